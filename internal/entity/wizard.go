package entity

import "time"

// StepID numbers the wizard steps in the order they are walked.
type StepID int

const (
	StepTerms       StepID = 1
	StepEventSelect StepID = 2
	StepBookingForm StepID = 3
	StepPayment     StepID = 4
)

func (s StepID) Valid() bool {
	return s >= StepTerms && s <= StepPayment
}

func (s StepID) String() string {
	switch s {
	case StepTerms:
		return "terms"
	case StepEventSelect:
		return "event_select"
	case StepBookingForm:
		return "booking_form"
	case StepPayment:
		return "payment"
	}
	return "unknown"
}

// StatusExpired is reported instead of the step name once the payment budget ran out.
const StatusExpired = "expired"

// FormDraft holds what the user typed on the booking form. Zero ids mean nothing is selected.
type FormDraft struct {
	Nickname    string   `json:"nickName"`
	ShowTimeID  int64    `json:"showTimeId"`
	ZoneID      int64    `json:"zoneId"`
	TicketCount int      `json:"ticketCount"`
	Notes       string   `json:"notes"`
	NameList    []string `json:"nameList"`
}

func NewFormDraft() FormDraft {
	return FormDraft{TicketCount: 1, NameList: []string{""}}
}

type TermsAcceptance struct {
	ScrolledToBottom bool `json:"scrolledToBottom"`
	Accepted         bool `json:"accepted"`
}

type PaymentMethodTab string

const (
	PaymentInstant       PaymentMethodTab = "instant"
	PaymentInternational PaymentMethodTab = "international"
)

// Attachment describes an uploaded payment slip. Only metadata is kept.
type Attachment struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type PaymentProof struct {
	Method            PaymentMethodTab `json:"method,omitempty"`
	DomesticFile      *Attachment      `json:"domesticFile,omitempty"`
	InternationalFile *Attachment      `json:"internationalFile,omitempty"`
	TransferDate      string           `json:"transferDate,omitempty"`
	TransferTime      string           `json:"transferTime,omitempty"`
	Amount            float64          `json:"amount,omitempty"`
}

// WizardState is the whole persisted blob of one booking session.
type WizardState struct {
	Step             StepID          `json:"step"`
	SelectedEvent    *Event          `json:"selectedEvent"`
	BookingForm      *FormDraft      `json:"bookingForm"`
	PaymentStartedAt *Millis         `json:"paymentStartedAt"`
	IsExpired        bool            `json:"isExpired"`
	Terms            TermsAcceptance `json:"terms"`
	Payment          PaymentProof    `json:"payment"`
}

func NewWizardState() WizardState {
	return WizardState{Step: StepTerms}
}

// Status is the step name, or "expired".
func (s *WizardState) Status() string {
	if s.IsExpired {
		return StatusExpired
	}
	return s.Step.String()
}

// StartedAt returns the payment start, zero when not stamped.
func (s *WizardState) StartedAt() time.Time {
	if s.PaymentStartedAt == nil {
		return time.Time{}
	}
	return s.PaymentStartedAt.Time
}

// Clone makes a deep copy so callers cannot mutate controller state.
func (s WizardState) Clone() WizardState {
	out := s
	if s.SelectedEvent != nil {
		ev := s.SelectedEvent.Clone()
		out.SelectedEvent = &ev
	}
	if s.BookingForm != nil {
		d := *s.BookingForm
		d.NameList = append([]string(nil), s.BookingForm.NameList...)
		out.BookingForm = &d
	}
	if s.PaymentStartedAt != nil {
		ts := *s.PaymentStartedAt
		out.PaymentStartedAt = &ts
	}
	if s.Payment.DomesticFile != nil {
		a := *s.Payment.DomesticFile
		out.Payment.DomesticFile = &a
	}
	if s.Payment.InternationalFile != nil {
		a := *s.Payment.InternationalFile
		out.Payment.InternationalFile = &a
	}
	return out
}
