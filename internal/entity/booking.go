package entity

import (
	"time"
)

// TrackingStatus is the lifecycle of a submitted booking as shown on the tracking page.
type TrackingStatus string

const (
	TrackingBookingConfirmed TrackingStatus = "booking_confirmed"
	TrackingWaitFullPayment  TrackingStatus = "wait_full_payment"
	TrackingPreparePress     TrackingStatus = "prepare_press"
	TrackingPressing         TrackingStatus = "pressing"
	TrackingPartialTickets   TrackingStatus = "partial_tickets"
	TrackingCompleteTickets  TrackingStatus = "complete_tickets"
	TrackingFailed           TrackingStatus = "failed"
	TrackingWaitServiceFee   TrackingStatus = "wait_service_fee"
	TrackingWaitRefund       TrackingStatus = "wait_refund"
	TrackingRefunded         TrackingStatus = "refunded"
	TrackingDone             TrackingStatus = "done"
	TrackingCancel           TrackingStatus = "cancel"
)

type statusMetadata struct {
	label       string
	description string
}

var trackingMetadata = map[TrackingStatus]statusMetadata{
	TrackingBookingConfirmed: {"จองคิวสำเร็จ", "ลูกค้าอุ่นใจได้ว่ามีชื่ออยู่ในระบบแล้ว"},
	TrackingWaitFullPayment:  {"รอชำระค่าบัตร (กรณีฝากจ่าย)", "กรุณาชำระเงินค่าบัตรก่อนวันเวลาที่กำหนด มิเช่นนั้นสถานะจะถูกยกเลิก"},
	TrackingPreparePress:     {"เตรียมตัวกดบัตร", "ให้ลูกค้ารู้ว่าข้อมูลทุกอย่างเป๊ะแล้ว รอเวลาเปิดจอง"},
	TrackingPressing:         {"กำลังดำเนินการกดบัตร", "ระบบหรือทีมงานกำลังทำงานอยู่"},
	TrackingPartialTickets:   {"ได้บัตรแล้ว (บางส่วน)", "แจ้งความคืบหน้ากรณีสั่งหลายใบ"},
	TrackingCompleteTickets:  {"กดบัตรสำเร็จ", "ข่าวดี! ทีมงานกดได้ครบตามจำนวน"},
	TrackingFailed:           {"ไม่ได้รับบัตร", "ทีมงานกดให้ไม่ได้"},
	TrackingWaitServiceFee:   {"รอชำระค่ากดบัตร", "รอชำระค่ากดบัตร"},
	TrackingWaitRefund:       {"รอคืนเงิน", "รอคืนเงินจากทางร้าน"},
	TrackingRefunded:         {"คืนเงินเรียบร้อย", "คืนเงินสำเร็จ"},
	TrackingDone:             {"ดำเนินการเสร็จสมบูรณ์", "จบงาน บัตรส่งถึงมือ"},
	TrackingCancel:           {"ยกเลิกคิว", "ยกเลิกคิว"},
}

func (s TrackingStatus) Valid() bool {
	_, ok := trackingMetadata[s]
	return ok
}

func (s TrackingStatus) Label() string {
	return trackingMetadata[s].label
}

func (s TrackingStatus) Description() string {
	return trackingMetadata[s].description
}

// AwaitsPayment is true for statuses that carry a payment deadline.
func (s TrackingStatus) AwaitsPayment() bool {
	return s == TrackingWaitFullPayment || s == TrackingWaitServiceFee
}

// PaymentMethod is chosen on the booking detail page: the shop pays the ticket or the customer does.
type PaymentMethod string

const (
	PaymentStorePay PaymentMethod = "store_pay"
	PaymentSelfPay  PaymentMethod = "self_pay"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentStorePay || m == PaymentSelfPay
}

type ExtraField struct {
	Code       string `json:"otherCode"`
	Label      string `json:"label"`
	IsRequired bool   `json:"isRequired"`
}

// ExtraFields are the additional answers collected after confirmation.
var ExtraFields = []ExtraField{
	{Code: "other1", Label: "ราคาบัตรสำรอง", IsRequired: true},
	{Code: "other2", Label: "โซนสำรอง", IsRequired: true},
	{Code: "other3", Label: "จำนวน"},
	{Code: "other4", Label: "อีเมล"},
	{Code: "other5", Label: "รหัสผ่าน"},
	{Code: "other6", Label: "เมมเบอร์ชิป"},
}

// Booking is a submitted wizard session.
type Booking struct {
	Code            string            `json:"bookingCode" db:"code"`
	EventID         int64             `json:"eventId" db:"event_id"`
	EventName       string            `json:"eventName" db:"event_name"`
	Poster          string            `json:"poster" db:"poster"`
	EventType       EventType         `json:"eventTypes" db:"event_type"`
	ShowTimeID      int64             `json:"showTimeId" db:"show_time_id"`
	ShowTimeName    string            `json:"showTime" db:"show_time_name"`
	ZoneID          int64             `json:"zoneId" db:"zone_id"`
	ZoneName        string            `json:"zone" db:"zone_name"`
	Quantity        int               `json:"quantity" db:"quantity"`
	AdjustedQty     int               `json:"adjustedQuantity" db:"adjusted_quantity"`
	Nickname        string            `json:"nickName" db:"nickname"`
	NameList        []string          `json:"nameList" db:"name_list"`
	Notes           string            `json:"note,omitempty" db:"notes"`
	Deposit         int64             `json:"deposit" db:"deposit"`
	TicketPrice     int64             `json:"ticketPrice" db:"ticket_price"`
	ServiceFee      int64             `json:"serviceFee" db:"service_fee"`
	Total           int64             `json:"total" db:"total"`
	Status          TrackingStatus    `json:"status" db:"status"`
	PaymentMethod   PaymentMethod     `json:"paymentMethod,omitempty" db:"payment_method"`
	PaymentDeadline *time.Time        `json:"paymentDeadline,omitempty" db:"payment_deadline"`
	ExtraFields     map[string]string `json:"extraFields,omitempty" db:"extra_fields"`
	Proof           PaymentProof      `json:"proof" db:"proof"`
	RemindedAt      *time.Time        `json:"remindedAt,omitempty" db:"reminded_at"`
	CreatedAt       time.Time         `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time         `json:"updatedAt" db:"updated_at"`
}

// ChargedQuantity is the ticket count the total is computed for. Quantity
// stays as submitted and caps every later adjustment.
func (b *Booking) ChargedQuantity() int {
	if b.AdjustedQty > 0 {
		return b.AdjustedQty
	}
	return b.Quantity
}

// DaysUntilDeadline rounds up to whole days, like the tracking page shows it.
func (b *Booking) DaysUntilDeadline(now time.Time) (int, bool) {
	if b.PaymentDeadline == nil {
		return 0, false
	}
	left := b.PaymentDeadline.Sub(now)
	days := int(left / (24 * time.Hour))
	if left%(24*time.Hour) > 0 {
		days++
	}
	return days, true
}

// UrgentPayment marks bookings that need a payment banner: every service fee
// wait, and full payments due within three days.
func (b *Booking) UrgentPayment(now time.Time) bool {
	days, ok := b.DaysUntilDeadline(now)
	if !ok {
		return false
	}
	switch b.Status {
	case TrackingWaitServiceFee:
		return true
	case TrackingWaitFullPayment:
		return days >= 0 && days <= 3
	}
	return false
}

// StatusLabel is what the tracking search matches against.
func (b *Booking) StatusLabel() string {
	return b.Status.Label()
}
