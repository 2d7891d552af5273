package notify

import (
	"fmt"
	"time"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
)

const stampLayout = "02/01/2006 15:04"

// Renderer turns events into the human-readable texts used both for the
// internal inbox and for outbound WhatsApp messages. Timestamps are rendered
// in the back office's local zone.
type Renderer struct {
	loc *time.Location
}

func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render produces the message text for an event. Unknown tags fall back to a
// generic line so a new tag never silently drops a notification.
func (r *Renderer) Render(ev events.Event) string {
	ref := domain.DisplayID(ev.OpRef)
	amount := fmt.Sprintf("%s %s", ev.Amount.StringFixed(2), ev.Currency)
	stamp := ev.At.In(r.loc).Format(stampLayout)

	var msg string
	switch ev.Tag {
	case domain.EventRemittanceNew:
		msg = fmt.Sprintf("New remittance %s of %s by %s", ref, amount, ev.OwnerName)
	case domain.EventRemittanceEdited:
		msg = fmt.Sprintf("Remittance %s edited: now %s for %s", ref, amount, ev.OwnerName)
	case domain.EventRemittanceConfirmed, domain.EventRemittanceCompleted:
		msg = fmt.Sprintf("Remittance %s of %s confirmed for %s", ref, amount, ev.OwnerName)
	case domain.EventRemittanceCancelled:
		msg = fmt.Sprintf("Remittance %s of %s cancelled for %s", ref, amount, ev.OwnerName)
	case domain.EventRemittanceDeleted:
		msg = fmt.Sprintf("Remittance %s of %s deleted for %s", ref, amount, ev.OwnerName)
	case domain.EventPayoutNew:
		msg = fmt.Sprintf("New %s %s of %s by %s", payoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventPayoutEdited:
		msg = fmt.Sprintf("%s %s edited: now %s for %s", titlePayoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventPayoutConfirmed:
		msg = fmt.Sprintf("%s %s of %s confirmed for %s", titlePayoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventPayoutCancelled:
		msg = fmt.Sprintf("%s %s of %s cancelled for %s", titlePayoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventPayoutDeleted:
		msg = fmt.Sprintf("%s %s of %s deleted for %s", titlePayoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventRemittancePending30h:
		msg = fmt.Sprintf("Remittance %s of %s for %s has been pending for over 30 hours", ref, amount, ev.OwnerName)
	case domain.EventPayoutPending30h, domain.EventLinkedPayoutPending30:
		msg = fmt.Sprintf("%s %s of %s for %s has been pending for over 30 hours", titlePayoutNoun(ev.OpType), ref, amount, ev.OwnerName)
	case domain.EventCurrencyLowFloor:
		return fmt.Sprintf("Low cash floor for %s: %s remaining (%s) [%s]",
			ev.Currency, ev.Amount.StringFixed(2), ev.Notes, stamp)
	default:
		msg = fmt.Sprintf("%s %s of %s for %s", ev.Tag, ref, amount, ev.OwnerName)
	}

	if ev.BalanceChange != nil {
		msg += fmt.Sprintf(". Balance change: %s USD", ev.BalanceChange.StringFixed(2))
	}
	if ev.Notes != "" {
		msg += fmt.Sprintf(" (%s)", ev.Notes)
	}
	return fmt.Sprintf("%s [%s]", msg, stamp)
}

// Level maps an event to the inbox severity shown to users.
func Level(tag string) string {
	switch tag {
	case domain.EventRemittanceCancelled, domain.EventPayoutCancelled,
		domain.EventRemittancePending30h, domain.EventPayoutPending30h,
		domain.EventLinkedPayoutPending30, domain.EventCurrencyLowFloor:
		return domain.LevelWarning
	case domain.EventRemittanceDeleted, domain.EventPayoutDeleted:
		return domain.LevelWarning
	default:
		return domain.LevelInfo
	}
}

func payoutNoun(opType string) string {
	if opType == domain.OpTypeLinkedPayout {
		return "linked payout"
	}
	return "payout"
}

func titlePayoutNoun(opType string) string {
	if opType == domain.OpTypeLinkedPayout {
		return "Linked payout"
	}
	return "Payout"
}
