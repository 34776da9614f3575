package entity

import "strings"

// EventType decides which pricing rule applies to an event.
type EventType string

const (
	// EventTypeTicket is priced per zone seat.
	EventTypeTicket EventType = "ticket"
	// EventTypeForm is priced per name slot.
	EventTypeForm EventType = "form"
)

type ZoneStatus string

const (
	ZoneStatusAvailable ZoneStatus = "available"
	ZoneStatusTempFull  ZoneStatus = "temp_full"
	ZoneStatusSoldOut   ZoneStatus = "sold_out"
)

func (s ZoneStatus) Valid() bool {
	switch s {
	case ZoneStatusAvailable, ZoneStatusTempFull, ZoneStatusSoldOut:
		return true
	}
	return false
}

type Zone struct {
	ID           int64      `json:"id" db:"id"`
	Name         string     `json:"name" db:"name"`
	Remaining    int        `json:"remaining" db:"remaining"`
	TicketPrice  int64      `json:"ticketPrice" db:"ticket_price"`
	ServicePrice int64      `json:"servicePrice" db:"service_price"`
	Status       ZoneStatus `json:"status" db:"status"`
}

// Selectable reports whether a zone can still take a booking.
func (z Zone) Selectable() bool {
	return z.Remaining > 0 && z.Status != ZoneStatusSoldOut
}

type ShowTime struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Time  Millis `json:"time" db:"starts_at"`
	Zones []Zone `json:"zones"`
}

func (st *ShowTime) Zone(id int64) (*Zone, bool) {
	for i := range st.Zones {
		if st.Zones[i].ID == id {
			return &st.Zones[i], true
		}
	}
	return nil, false
}

// Event is an immutable catalog record.
type Event struct {
	ID               int64      `json:"id" db:"id"`
	ConcertCode      string     `json:"concertCode" db:"concert_code"`
	Name             string     `json:"name" db:"name"`
	Poster           string     `json:"poster" db:"poster"`
	ShowTimeLabel    string     `json:"showTime" db:"show_time_label"`
	TicketInfo       string     `json:"ticketInfo" db:"ticket_info"`
	Note             string     `json:"note,omitempty" db:"note"`
	Status           ZoneStatus `json:"statusEvent" db:"status"`
	ServicePriceForm int64      `json:"servicePriceForm" db:"service_price_form"`
	Type             EventType  `json:"eventTypes" db:"event_type"`
	ShowTimes        []ShowTime `json:"showTimeOptions,omitempty"`
}

func (e *Event) ShowTime(id int64) (*ShowTime, bool) {
	for i := range e.ShowTimes {
		if e.ShowTimes[i].ID == id {
			return &e.ShowTimes[i], true
		}
	}
	return nil, false
}

func (e Event) Clone() Event {
	out := e
	if e.ShowTimes != nil {
		out.ShowTimes = make([]ShowTime, len(e.ShowTimes))
		for i, st := range e.ShowTimes {
			out.ShowTimes[i] = st
			out.ShowTimes[i].Zones = append([]Zone(nil), st.Zones...)
		}
	}
	return out
}

// FindZone resolves a zone through its show time.
func (e *Event) FindZone(showTimeID, zoneID int64) (*Zone, bool) {
	st, ok := e.ShowTime(showTimeID)
	if !ok {
		return nil, false
	}
	return st.Zone(zoneID)
}

// IsAvailable is true while any zone is not sold out. Events without show time
// options fall back to their own status.
func (e *Event) IsAvailable() bool {
	if len(e.ShowTimes) == 0 {
		return e.Status != ZoneStatusSoldOut
	}
	for _, st := range e.ShowTimes {
		for _, z := range st.Zones {
			if z.Status != ZoneStatusSoldOut {
				return true
			}
		}
	}
	return false
}

// MatchesName does a case-insensitive substring match on the event name.
func (e *Event) MatchesName(query string) bool {
	query = strings.TrimSpace(query)
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Name), strings.ToLower(query))
}

// EventWithAvailability is what the catalog endpoints return.
type EventWithAvailability struct {
	Event
	Available bool `json:"available"`
}
