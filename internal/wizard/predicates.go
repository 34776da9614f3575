package wizard

import (
	"fmt"
	"strings"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

// MaxProofSize is the upload limit for payment slips.
const MaxProofSize int64 = 10 << 20

// TermsComplete: the terms were scrolled to the end and the box was ticked.
func TermsComplete(t entity.TermsAcceptance) bool {
	return t.ScrolledToBottom && t.Accepted
}

func EventSelectable(ev *entity.Event) bool {
	return ev != nil && ev.IsAvailable()
}

// DraftComplete checks the booking form. Ticket events additionally need a
// show time and a zone that can hold the requested count.
func DraftComplete(ev *entity.Event, d *entity.FormDraft) bool {
	if ev == nil || d == nil {
		return false
	}
	if strings.TrimSpace(d.Nickname) == "" || d.TicketCount < 1 {
		return false
	}
	if ev.Type != entity.EventTypeTicket {
		return true
	}

	zone, ok := ev.FindZone(d.ShowTimeID, d.ZoneID)
	if !ok {
		return false
	}
	return zone.Selectable() && d.TicketCount <= zone.Remaining
}

// PaymentComplete: a domestic slip, or a full international transfer record.
func PaymentComplete(p entity.PaymentProof) bool {
	if p.DomesticFile != nil {
		return true
	}
	return p.InternationalFile != nil &&
		strings.TrimSpace(p.TransferDate) != "" &&
		strings.TrimSpace(p.TransferTime) != "" &&
		p.Amount > 0
}

// ValidateAttachment accepts images and PDFs up to maxSize bytes.
func ValidateAttachment(a *entity.Attachment, maxSize int64) error {
	if a == nil {
		return nil
	}
	if maxSize <= 0 {
		maxSize = MaxProofSize
	}
	if a.Size <= 0 {
		return fmt.Errorf("%w: empty file", entity.ErrInvalidProof)
	}
	if a.Size > maxSize {
		return fmt.Errorf("%w: file is larger than %d bytes", entity.ErrInvalidProof, maxSize)
	}

	ct := strings.ToLower(a.ContentType)
	if !strings.HasPrefix(ct, "image/") && !strings.HasPrefix(ct, "application/pdf") {
		return fmt.Errorf("%w: unsupported content type %q", entity.ErrInvalidProof, a.ContentType)
	}
	return nil
}
