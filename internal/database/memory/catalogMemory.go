package memory

import (
	"context"
	"sort"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type eventRepository struct {
	events map[int64]*entity.Event
}

// NewEventRepository serves a fixed catalog. Events are copied on the way in
// and on the way out, so callers cannot change it.
func NewEventRepository(events []*entity.Event) database.EventRepository {
	r := &eventRepository{events: make(map[int64]*entity.Event, len(events))}
	for _, ev := range events {
		cp := ev.Clone()
		r.events[ev.ID] = &cp
	}
	return r
}

func (r *eventRepository) GetByID(ctx context.Context, id int64) (*entity.Event, error) {
	ev, ok := r.events[id]
	if !ok {
		return nil, entity.ErrEventNotFound
	}
	cp := ev.Clone()
	return &cp, nil
}

func (r *eventRepository) GetAll(ctx context.Context) ([]*entity.Event, error) {
	return r.SearchByName(ctx, "")
}

func (r *eventRepository) SearchByName(ctx context.Context, query string) ([]*entity.Event, error) {
	out := make([]*entity.Event, 0, len(r.events))
	for _, ev := range r.events {
		if ev.MatchesName(query) {
			cp := ev.Clone()
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var bangkok = time.FixedZone("ICT", 7*60*60)

func showAt(year int, month time.Month, day, hour int) entity.Millis {
	return entity.MillisOf(time.Date(year, month, day, hour, 0, 0, 0, bangkok))
}

// DefaultCatalog is the static catalog the shop currently sells.
func DefaultCatalog() []*entity.Event {
	return []*entity.Event{
		{
			ID:               1,
			ConcertCode:      "BP-BKK-2026",
			Name:             "BLACKPINK WORLD TOUR [BORN PINK] IN BANGKOK",
			Type:             entity.EventTypeForm,
			ServicePriceForm: 500,
			Poster:           "/con.jpeg",
			ShowTimeLabel:    "25 เมษายน 2569",
			TicketInfo:       "VIP Standing 8,500 / Standing 5,500",
			Note:             "ลำดับกดตามเวลาชำระมัดจำ - สลับโซนได้ถ้ายินยอม",
			Status:           entity.ZoneStatusAvailable,
		},
		{
			ID:               2,
			ConcertCode:      "TRS-BKK-2026",
			Name:             "TREASURE CONCERT 2026 IN BANGKOK",
			Type:             entity.EventTypeForm,
			ServicePriceForm: 500,
			Poster:           "/placeholder-concert.jpg",
			ShowTimeLabel:    "15 กุมภาพันธ์ 2569",
			TicketInfo:       "VIP 7,500 / Standing 4,500 / Seat A 5,500",
			Note:             "รับกดเฉพาะรอบบ่าย - ขออนุญาตรวบยอดชำระในครั้งเดียว",
			Status:           entity.ZoneStatusAvailable,
			ShowTimes: []entity.ShowTime{
				{ID: 201, Name: "15 กุมภาพันธ์ 2569 (รอบบ่าย)", Time: showAt(2026, time.February, 15, 12), Zones: []entity.Zone{
					{ID: 1, Name: "VIP", Remaining: 12, TicketPrice: 7500, ServicePrice: 2400, Status: entity.ZoneStatusAvailable},
					{ID: 2, Name: "Standing", Remaining: 0, TicketPrice: 4500, ServicePrice: 1600, Status: entity.ZoneStatusTempFull},
					{ID: 3, Name: "Seat A", Remaining: 0, TicketPrice: 5500, ServicePrice: 1200, Status: entity.ZoneStatusSoldOut},
				}},
			},
		},
		{
			ID:               3,
			ConcertCode:      "IU-GH-2026",
			Name:             "IU GOLDEN HOUR ASIA TOUR",
			Type:             entity.EventTypeTicket,
			ServicePriceForm: 500,
			Poster:           "/placeholder-iu.jpg",
			ShowTimeLabel:    "12-13 กรกฎาคม 2569",
			TicketInfo:       "VIP 9,500 / Premium 6,900 / Standard 4,200",
			Note:             "จำกัดสูงสุดคนละ 2 ใบ - เฉพาะผู้ที่พร้อมจ่ายทันที",
			Status:           entity.ZoneStatusAvailable,
			ShowTimes: []entity.ShowTime{
				{ID: 301, Name: "12 กรกฎาคม 2569 (รอบเย็น)", Time: showAt(2026, time.July, 12, 18), Zones: []entity.Zone{
					{ID: 1, Name: "VIP", Remaining: 12, TicketPrice: 9500, ServicePrice: 2400, Status: entity.ZoneStatusAvailable},
					{ID: 2, Name: "Premium Seat", Remaining: 0, TicketPrice: 6900, ServicePrice: 1600, Status: entity.ZoneStatusTempFull},
					{ID: 3, Name: "Standard Seat", Remaining: 0, TicketPrice: 4200, ServicePrice: 1200, Status: entity.ZoneStatusSoldOut},
				}},
				{ID: 302, Name: "13 กรกฎาคม 2569 (รอบเย็น)", Time: showAt(2026, time.July, 13, 18), Zones: []entity.Zone{
					{ID: 4, Name: "VIP", Remaining: 8, TicketPrice: 9500, ServicePrice: 2400, Status: entity.ZoneStatusAvailable},
					{ID: 5, Name: "Premium Seat", Remaining: 0, TicketPrice: 6900, ServicePrice: 1600, Status: entity.ZoneStatusTempFull},
					{ID: 6, Name: "Standard Seat", Remaining: 52, TicketPrice: 4200, ServicePrice: 1200, Status: entity.ZoneStatusAvailable},
				}},
			},
		},
		{
			ID:               4,
			ConcertCode:      "SVT-FA-2026",
			Name:             "SEVENTEEN FOLLOW AGAIN",
			Type:             entity.EventTypeTicket,
			ServicePriceForm: 500,
			Poster:           "/placeholder-svt.jpg",
			ShowTimeLabel:    "9 สิงหาคม 2569",
			TicketInfo:       "Standing 7,800 / Seat A 5,800 / Seat B 3,800",
			Note:             "มีสิทธิ์สลับโซนตามสถานการณ์เพื่อให้ได้บัตรจริง",
			Status:           entity.ZoneStatusSoldOut,
			ShowTimes: []entity.ShowTime{
				{ID: 401, Name: "9 สิงหาคม 2569", Time: showAt(2026, time.August, 9, 19), Zones: []entity.Zone{
					{ID: 1, Name: "Standing", Remaining: 0, TicketPrice: 7800, ServicePrice: 2000, Status: entity.ZoneStatusSoldOut},
					{ID: 2, Name: "Seat A", Remaining: 0, TicketPrice: 5800, ServicePrice: 1500, Status: entity.ZoneStatusSoldOut},
					{ID: 3, Name: "Seat B", Remaining: 0, TicketPrice: 3800, ServicePrice: 1000, Status: entity.ZoneStatusSoldOut},
				}},
			},
		},
	}
}
