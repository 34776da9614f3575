// Package pricing turns a draft or a confirmed booking into money.
package pricing

import "github.com/ds124wfegd/yoye-booking/internal/entity"

// DepositPerName is the deposit for each name slot of a form event.
const DepositPerName int64 = 100

// ComputeDeposit returns the deposit for the draft. ready is false when the
// amount cannot be known yet (ticket event without a resolvable zone), and the
// caller must block progression.
func ComputeDeposit(event *entity.Event, draft *entity.FormDraft) (amount int64, ready bool) {
	if event == nil || draft == nil {
		return 0, false
	}

	switch event.Type {
	case entity.EventTypeForm:
		return int64(draft.TicketCount) * DepositPerName, true
	case entity.EventTypeTicket:
		zone, ok := event.FindZone(draft.ShowTimeID, draft.ZoneID)
		if !ok {
			return 0, false
		}
		return int64(draft.TicketCount) * zone.ServicePrice, true
	}
	return 0, false
}

// ComputeFinalTotal is (ticket price + service fee) * quantity.
func ComputeFinalTotal(zone entity.Zone, serviceFee int64, quantity int) int64 {
	return (zone.TicketPrice + serviceFee) * int64(quantity)
}

// FallbackUnitTotal is the per-ticket amount used when a booking has no zone to price from.
func FallbackUnitTotal(total int64, quantity int, serviceFee int64) int64 {
	if quantity <= 0 {
		return serviceFee
	}
	return total/int64(quantity) + serviceFee
}

// ClampQuantity keeps a post-confirmation quantity inside [1, original].
func ClampQuantity(requested, original int) int {
	if original < 1 {
		original = 1
	}
	if requested < 1 {
		return 1
	}
	if requested > original {
		return original
	}
	return requested
}
