package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/carrier"
	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
	"github.com/remesaops/remesas-backend/internal/service"
)

// Sender delivers one outbound message and names the carrier that took it.
// carrier.Chain satisfies it; tests swap in a recorder.
type Sender interface {
	Send(ctx context.Context, to carrier.Recipient, text string) (carrierName, response string, err error)
}

// ChainFactory builds the delivery chain from the stored carrier settings.
// Settings are re-read per event so account changes apply without restart.
type ChainFactory func(cfg models.CarrierConfig) Sender

// DefaultChainFactory is the production factory.
func DefaultChainFactory(cfg models.CarrierConfig) Sender {
	return carrier.NewChain(cfg)
}

// Fanout subscribes to the event bus and distributes each event to the
// internal inbox (operation owner plus administrators) and to external
// WhatsApp recipients. External delivery filters three times: the global
// enable switch, the per-category toggles, and each recipient's event
// subscription and currency filter.
type Fanout struct {
	store    service.QueryStore
	renderer *Renderer
	chains   ChainFactory
}

func NewFanout(store service.QueryStore, renderer *Renderer, chains ChainFactory) *Fanout {
	if chains == nil {
		chains = DefaultChainFactory
	}
	return &Fanout{store: store, renderer: renderer, chains: chains}
}

// Handle is the bus subscriber entry point. Failures are logged and recorded
// in the external delivery log; they never propagate back to the command
// that produced the event.
func (f *Fanout) Handle(ctx context.Context, ev events.Event) {
	if !ev.InboxDone {
		if err := f.writeInbox(ctx, ev); err != nil {
			zap.L().Error("inbox fan-out failed", zap.String("tag", ev.Tag), zap.Error(err))
		}
	}
	if ev.Silent {
		return
	}
	if err := f.sendExternal(ctx, ev); err != nil {
		zap.L().Error("external fan-out failed", zap.String("tag", ev.Tag), zap.Error(err))
	}
}

// writeInbox records the event for the operation owner and every
// administrator, once per person.
func (f *Fanout) writeInbox(ctx context.Context, ev events.Event) error {
	return f.store.RunInTx(ctx, func(q *repository.Queries) error {
		admins, err := q.ListAdmins(ctx)
		if err != nil {
			return fmt.Errorf("list admins: %w", err)
		}

		targets := make([]uuid.UUID, 0, len(admins)+1)
		seen := map[uuid.UUID]struct{}{}
		if ev.OwnerID != uuid.Nil {
			targets = append(targets, ev.OwnerID)
			seen[ev.OwnerID] = struct{}{}
		}
		for _, a := range admins {
			if _, ok := seen[a.ID]; ok {
				continue
			}
			targets = append(targets, a.ID)
			seen[a.ID] = struct{}{}
		}

		msg := f.renderer.Render(ev)
		level := Level(ev.Tag)
		for _, id := range targets {
			if err := q.InsertInternalNotification(ctx, models.InternalNotification{
				RecipientID: id,
				ActorID:     ev.ActorID,
				Verb:        ev.Tag,
				Message:     msg,
				Level:       level,
				CreatedAt:   ev.At,
			}); err != nil {
				return fmt.Errorf("write inbox for %s: %w", id, err)
			}
		}
		return nil
	})
}

func (f *Fanout) sendExternal(ctx context.Context, ev events.Event) error {
	cfg, err := f.store.Queries().GetCarrierConfig(ctx)
	if err != nil {
		return fmt.Errorf("load carrier config: %w", err)
	}
	if !cfg.Enabled || !categoryEnabled(cfg, ev.Tag) {
		return nil
	}

	recipients, err := f.store.Queries().ListActiveRecipients(ctx)
	if err != nil {
		return fmt.Errorf("list recipients: %w", err)
	}

	msg := f.renderer.Render(ev)
	chain := f.chains(cfg)
	for _, rcpt := range recipients {
		if !rcpt.SubscribedTo(ev.Tag) || !rcpt.WantsCurrency(ev.Currency) {
			continue
		}
		f.deliver(ctx, chain, ev, rcpt, msg)
	}
	return nil
}

// deliver logs the attempt as pending, sends, then settles the log row to
// sent or failed with the carrier response.
func (f *Fanout) deliver(ctx context.Context, chain Sender, ev events.Event, rcpt models.NotificationRecipient, msg string) {
	logRow := models.ExternalNotificationLog{
		Kind:           ev.Tag,
		RecipientName:  rcpt.Name,
		RecipientPhone: rcpt.Phone,
		Message:        msg,
		Status:         domain.ExtStatusPending,
		CreatedAt:      time.Now().UTC(),
	}
	switch ev.OpType {
	case domain.OpTypeRemittance:
		id := ev.OpID
		logRow.RemittanceID = &id
	case domain.OpTypePayout, domain.OpTypeLinkedPayout:
		id := ev.OpID
		logRow.PayoutID = &id
	}

	logID, err := f.store.Queries().InsertExternalLog(ctx, logRow)
	if err != nil {
		zap.L().Error("external log insert failed",
			zap.String("recipient", rcpt.Name), zap.Error(err))
		return
	}

	to := carrier.Recipient{Name: rcpt.Name, Phone: rcpt.Phone}
	if rcpt.CallMeBotKey != nil {
		to.CallMeBotKey = *rcpt.CallMeBotKey
	}

	carrierName, response, err := chain.Send(ctx, to, msg)
	status := domain.ExtStatusSent
	detail := fmt.Sprintf("%s: %s", carrierName, response)
	if err != nil {
		status = domain.ExtStatusFailed
		detail = err.Error()
		observability.IncrementNotification("none", "failed")
		zap.L().Warn("external delivery failed",
			zap.String("recipient", rcpt.Name),
			zap.String("tag", ev.Tag),
			zap.Error(err))
	} else {
		observability.IncrementNotification(carrierName, "sent")
	}
	if _, err := f.store.Queries().UpdateExternalLogStatus(ctx, logID, status, &detail); err != nil {
		zap.L().Error("external log update failed",
			zap.Int64("log_id", logID), zap.Error(err))
	}
}

// Resend retries a logged delivery. Works for failed rows and for rows stuck
// pending after a crash mid-send.
func (f *Fanout) Resend(ctx context.Context, logID int64) error {
	row, err := f.store.Queries().GetExternalLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("load external log %d: %w", logID, err)
	}
	if row.Status == domain.ExtStatusSent {
		return nil
	}

	cfg, err := f.store.Queries().GetCarrierConfig(ctx)
	if err != nil {
		return fmt.Errorf("load carrier config: %w", err)
	}
	if !cfg.Enabled {
		return fmt.Errorf("external notifications disabled")
	}

	to := carrier.Recipient{Name: row.RecipientName, Phone: row.RecipientPhone}
	if rcpt, err := f.store.Queries().GetRecipientByPhone(ctx, row.RecipientPhone); err == nil && rcpt.CallMeBotKey != nil {
		to.CallMeBotKey = *rcpt.CallMeBotKey
	}

	carrierName, response, sendErr := f.chains(cfg).Send(ctx, to, row.Message)
	status := domain.ExtStatusSent
	detail := fmt.Sprintf("%s: %s", carrierName, response)
	if sendErr != nil {
		status = domain.ExtStatusFailed
		detail = sendErr.Error()
	}
	if _, err := f.store.Queries().UpdateExternalLogStatus(ctx, logID, status, &detail); err != nil {
		return fmt.Errorf("update external log %d: %w", logID, err)
	}
	return sendErr
}

// categoryEnabled applies the per-category toggles. Watchdog alerts and the
// low-floor alert follow the state-change toggle.
func categoryEnabled(cfg models.CarrierConfig, tag string) bool {
	switch tag {
	case domain.EventRemittanceNew:
		return cfg.NotifyRemittances
	case domain.EventPayoutNew:
		return cfg.NotifyPayouts
	case domain.EventRemittanceEdited, domain.EventPayoutEdited:
		return cfg.NotifyEdits
	default:
		return cfg.NotifyStateChanges
	}
}
