package entity

import (
	"time"
)

// TrackingStats содержит сводку по отслеживаемым бронированиям
type TrackingStats struct {
	TotalBookings  int                    `json:"total_bookings"`
	ByStatus       map[TrackingStatus]int `json:"by_status"`
	TotalTickets   int                    `json:"total_tickets"`
	DepositTotal   int64                  `json:"deposit_total"`
	AwaitingPay    int                    `json:"awaiting_payment"`
	OverdueBooking int                    `json:"overdue_bookings"`
	GeneratedAt    time.Time              `json:"generated_at"`
}

// CollectTrackingStats aggregates bookings as of now.
func CollectTrackingStats(bookings []*Booking, now time.Time) *TrackingStats {
	stats := &TrackingStats{
		ByStatus:    make(map[TrackingStatus]int),
		GeneratedAt: now,
	}
	for _, b := range bookings {
		stats.TotalBookings++
		stats.ByStatus[b.Status]++
		stats.TotalTickets += b.Quantity
		stats.DepositTotal += b.Deposit
		if b.Status.AwaitsPayment() {
			stats.AwaitingPay++
			if b.PaymentDeadline != nil && b.PaymentDeadline.Before(now) {
				stats.OverdueBooking++
			}
		}
	}
	return stats
}
