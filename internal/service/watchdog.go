package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
)

// StaleThreshold is how long an operation may sit pending before the
// watchdog raises it.
const StaleThreshold = 30 * time.Hour

const sweepBatchSize = 100

// WatchdogService finds operations that have been pending past the
// threshold and notifies administrators about each exactly once. The inbox
// rows and the stale_notified_at stamp commit in the same per-row
// transaction; a crash between commit and the external fan-out can at worst
// drop the WhatsApp copy, never duplicate the alert.
type WatchdogService struct {
	store QueryStore
	bus   *events.Bus
}

func NewWatchdogService(store QueryStore, bus *events.Bus) *WatchdogService {
	return &WatchdogService{store: store, bus: bus}
}

// SweepResult counts one sweep's work per operation kind.
type SweepResult struct {
	Remittances   int
	Payouts       int
	LinkedPayouts int
	Errors        int
}

func (r SweepResult) Total() int {
	return r.Remittances + r.Payouts + r.LinkedPayouts
}

// Sweep processes every operation pending past the threshold that has not
// been notified yet. A failure on one row is logged and does not stop the
// rest of the sweep.
func (s *WatchdogService) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	cutoff := now.Add(-StaleThreshold)
	var res SweepResult

	ids, err := s.store.Queries().ListStalePendingRemittances(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return res, fmt.Errorf("list stale remittances: %w", err)
	}
	for _, id := range ids {
		if err := s.notifyStaleRemittance(ctx, id, now); err != nil {
			res.Errors++
			zap.L().Error("stale remittance notification failed",
				zap.String("id", id.String()), zap.Error(err))
			continue
		}
		res.Remittances++
	}

	for _, linked := range []bool{false, true} {
		ids, err := s.store.Queries().ListStalePendingPayouts(ctx, cutoff, linked, sweepBatchSize)
		if err != nil {
			return res, fmt.Errorf("list stale payouts: %w", err)
		}
		for _, id := range ids {
			if err := s.notifyStalePayout(ctx, id, now); err != nil {
				res.Errors++
				zap.L().Error("stale payout notification failed",
					zap.String("id", id.String()), zap.Error(err))
				continue
			}
			if linked {
				res.LinkedPayouts++
			} else {
				res.Payouts++
			}
		}
	}

	if res.Total() > 0 || res.Errors > 0 {
		zap.L().Info("pending watchdog sweep",
			zap.Int("remittances", res.Remittances),
			zap.Int("payouts", res.Payouts),
			zap.Int("linked_payouts", res.LinkedPayouts),
			zap.Int("errors", res.Errors))
	}
	return res, nil
}

func (s *WatchdogService) notifyStaleRemittance(ctx context.Context, id uuid.UUID, now time.Time) error {
	var ev events.Event
	skip := false

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rem, err := q.GetRemittanceForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				skip = true
				return nil
			}
			return fmt.Errorf("lock remittance: %w", err)
		}
		// Re-check under the lock; a concurrent confirm or an earlier
		// sweep may have raced the listing.
		if domain.NormalizeRemittanceState(rem.State) != domain.StatePending || rem.StaleNotifiedAt != nil {
			skip = true
			return nil
		}

		owner, err := q.GetUser(ctx, rem.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}

		ev = events.Event{
			Tag:       domain.EventRemittancePending30h,
			OpType:    domain.OpTypeRemittance,
			OpID:      rem.ID,
			OpRef:     rem.OpID,
			OwnerID:   rem.OwnerID,
			OwnerName: owner.Username,
			Currency:  rem.Currency,
			Amount:    rem.Amount,
			USD:       nullUSD(rem.USDSnapshot),
			At:        now,
		}
		if err := s.writeStaleInbox(ctx, q, ev, now); err != nil {
			return err
		}

		rows, err := q.SetRemittanceStaleNotified(ctx, id, now)
		if err != nil {
			return err
		}
		return requireExactlyOne(rows, "stamp stale remittance")
	})
	if err != nil || skip {
		return err
	}

	observability.IncrementStaleNotified(domain.OpTypeRemittance)
	ev.InboxDone = true
	s.bus.Publish(ev)
	return nil
}

func (s *WatchdogService) notifyStalePayout(ctx context.Context, id uuid.UUID, now time.Time) error {
	var ev events.Event
	skip := false

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		p, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				skip = true
				return nil
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if p.State != domain.StatePending || p.StaleNotifiedAt != nil {
			skip = true
			return nil
		}

		owner, err := q.GetUser(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}

		tag := domain.EventPayoutPending30h
		if p.Linked() {
			tag = domain.EventLinkedPayoutPending30
		}
		ev = events.Event{
			Tag:       tag,
			OpType:    payoutOpType(p),
			OpID:      p.ID,
			OpRef:     p.OpID,
			OwnerID:   p.OwnerID,
			OwnerName: owner.Username,
			Currency:  p.Currency,
			Amount:    p.Amount,
			USD:       nullUSD(p.USDSnapshot),
			At:        now,
		}
		if err := s.writeStaleInbox(ctx, q, ev, now); err != nil {
			return err
		}

		rows, err := q.SetPayoutStaleNotified(ctx, id, now)
		if err != nil {
			return err
		}
		return requireExactlyOne(rows, "stamp stale payout")
	})
	if err != nil || skip {
		return err
	}

	observability.IncrementStaleNotified(ev.OpType)
	ev.InboxDone = true
	s.bus.Publish(ev)
	return nil
}

// writeStaleInbox records the alert for every administrator inside the
// caller's transaction so the inbox rows and the notified stamp are atomic.
func (s *WatchdogService) writeStaleInbox(ctx context.Context, q *repository.Queries, ev events.Event, now time.Time) error {
	admins, err := q.ListAdmins(ctx)
	if err != nil {
		return fmt.Errorf("list admins: %w", err)
	}
	msg := fmt.Sprintf("%s for %s (%s %s) has been pending for over 30 hours",
		domain.DisplayID(ev.OpRef), ev.OwnerName, ev.Amount.StringFixed(2), ev.Currency)
	for _, admin := range admins {
		if err := q.InsertInternalNotification(ctx, models.InternalNotification{
			RecipientID: admin.ID,
			Verb:        ev.Tag,
			Message:     msg,
			Level:       domain.LevelWarning,
			CreatedAt:   now,
		}); err != nil {
			return fmt.Errorf("write admin inbox: %w", err)
		}
	}
	return nil
}

func nullUSD(d decimal.NullDecimal) decimal.Decimal {
	if d.Valid {
		return d.Decimal
	}
	return decimal.Zero
}
