package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
)

// PayoutService drives the payout state machine. Payouts terminate in
// confirmed rather than completed, debit the owner's USD balance and draw
// down the currency floor on confirmation. A payout bound to a remittance is
// a linked payout; it carries the PAGR id prefix and reports the
// linked_payout op type to history and events.
type PayoutService struct {
	store    QueryStore
	bus      *events.Bus
	balances BalanceInvalidator
	history  *HistoryService
}

func NewPayoutService(store QueryStore, bus *events.Bus, balances BalanceInvalidator) *PayoutService {
	return &PayoutService{
		store:    store,
		bus:      bus,
		balances: balances,
		history:  NewHistoryService(),
	}
}

type CreatePayoutInput struct {
	OwnerID      uuid.UUID
	ActorID      uuid.UUID
	Currency     string
	Amount       decimal.Decimal
	Kind         string
	Recipient    *string
	Phone        *string
	Address      *string
	IDDocument   *string
	Card         *string
	RemittanceID *uuid.UUID
}

// Create records a new pending payout with pinned snapshots. When
// RemittanceID is set the referenced remittance must exist and the payout
// becomes a linked payout.
func (s *PayoutService) Create(ctx context.Context, in CreatePayoutInput) (*models.Payout, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, fmt.Errorf("amount %s: %w", in.Amount, models.ErrInvalidAmount)
	}

	var p models.Payout
	var ev events.Event
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		owner, cur, err := loadOwnerAndCurrency(ctx, q, in.OwnerID, in.Currency, in.Kind)
		if err != nil {
			return err
		}
		rate, err := rateForUser(ctx, q, owner, cur)
		if err != nil {
			return err
		}

		prefix := domain.PrefixPayout
		if in.RemittanceID != nil {
			if _, err := q.GetRemittance(ctx, *in.RemittanceID); err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return fmt.Errorf("remittance %s: %w", *in.RemittanceID, models.ErrNotFound)
				}
				return fmt.Errorf("load linked remittance: %w", err)
			}
			prefix = domain.PrefixLinkedPayout
		}

		now := time.Now().UTC()
		p = models.Payout{
			ID:           uuid.New(),
			OpID:         domain.BuildOperationID(prefix, in.Kind, in.Amount, now),
			Amount:       in.Amount,
			Currency:     in.Currency,
			Kind:         in.Kind,
			Recipient:    in.Recipient,
			Phone:        in.Phone,
			Address:      in.Address,
			IDDocument:   in.IDDocument,
			Card:         in.Card,
			RemittanceID: in.RemittanceID,
			OwnerID:      in.OwnerID,
			State:        domain.StatePending,
			RateSnapshot: decimal.NewNullDecimal(rate),
			USDSnapshot:  decimal.NewNullDecimal(domain.PinUSD(in.Amount, rate, in.Currency)),
			CreatedAt:    now,
		}
		if err := q.InsertPayout(ctx, p); err != nil {
			return err
		}

		ev = payoutEvent(domain.EventPayoutNew, p, owner.Username, &in.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, in.OwnerID)
	s.bus.Publish(ev)
	return &p, nil
}

// Confirm moves a pending payout to confirmed. Confirming an already
// confirmed payout is a no-op.
func (s *PayoutService) Confirm(ctx context.Context, id, actorID uuid.UUID) error {
	var evs []events.Event
	var ownerID uuid.UUID
	noop := false

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		p, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock payout: %w", err)
		}

		if p.State == domain.StateConfirmed {
			noop = true
			return nil
		}
		if !domain.PayoutCanTransition(p.State, domain.StateConfirmed) {
			return fmt.Errorf("confirm from %s: %w", p.State, models.ErrIllegalTransition)
		}

		rows, err := q.UpdatePayoutState(ctx, id, domain.StateConfirmed)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "confirm payout"); err != nil {
			return err
		}
		if err := s.history.Write(ctx, q, payoutOpType(p), id, domain.HistoryProcessed, p.Amount, &actorID, "confirmed"); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = p.OwnerID
		evs = append(evs, payoutEvent(domain.EventPayoutConfirmed, p, owner.Username, &actorID))

		now := time.Now().UTC()
		floorEv, err := applyFloorDelta(ctx, q, p.Currency, p.Amount.Neg(), now)
		if err != nil {
			return err
		}
		if floorEv != nil {
			evs = append(evs, *floorEv)
		}
		return nil
	})
	if err != nil || noop {
		return err
	}

	observability.IncrementTransition(domain.OpTypePayout, domain.StateConfirmed)
	s.balances.Invalidate(ctx, ownerID)
	for _, ev := range evs {
		s.bus.Publish(ev)
	}
	return nil
}

// Cancel moves a pending payout to cancelled.
func (s *PayoutService) Cancel(ctx context.Context, id, actorID uuid.UUID) error {
	return s.cancel(ctx, id, actorID, false)
}

// CancelByTime is the administrative cancel of a stalled pending payout.
// External notification delivery is suppressed for this transition.
func (s *PayoutService) CancelByTime(ctx context.Context, id, actorID uuid.UUID) error {
	return s.cancel(ctx, id, actorID, true)
}

func (s *PayoutService) cancel(ctx context.Context, id, actorID uuid.UUID, byTime bool) error {
	var ev events.Event
	var ownerID uuid.UUID

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if byTime {
			if err := requireAdmin(ctx, q, actorID); err != nil {
				return err
			}
		}

		p, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock payout: %w", err)
		}

		if !domain.PayoutCanTransition(p.State, domain.StateCancelled) {
			return fmt.Errorf("cancel from %s: %w", p.State, models.ErrIllegalTransition)
		}

		now := time.Now().UTC()
		var rows int64
		detail := "cancelled"
		if byTime {
			rows, err = q.MarkPayoutAutoCancelled(ctx, id, now)
			detail = "cancelled by time"
		} else {
			rows, err = q.UpdatePayoutState(ctx, id, domain.StateCancelled)
		}
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel payout"); err != nil {
			return err
		}
		if err := s.history.Write(ctx, q, payoutOpType(p), id, domain.HistoryCancelled, p.Amount, &actorID, detail); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = p.OwnerID
		ev = payoutEvent(domain.EventPayoutCancelled, p, owner.Username, &actorID)
		ev.Silent = byTime
		return nil
	})
	if err != nil {
		return err
	}

	observability.IncrementTransition(domain.OpTypePayout, domain.StateCancelled)
	s.balances.Invalidate(ctx, ownerID)
	s.bus.Publish(ev)
	return nil
}

type EditPayoutInput struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	Amount     decimal.Decimal
	Currency   string
	Kind       string
	Recipient  *string
	Phone      *string
	Address    *string
	IDDocument *string
	Card       *string
	NewOwnerID *uuid.UUID
}

// Edit updates a pending payout and re-pins its snapshots at the current rate
// under the target owner's valuation variant.
func (s *PayoutService) Edit(ctx context.Context, in EditPayoutInput) (*models.Payout, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, fmt.Errorf("amount %s: %w", in.Amount, models.ErrInvalidAmount)
	}

	var p models.Payout
	var ev events.Event
	var oldOwner uuid.UUID
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		actor, err := q.GetUser(ctx, in.ActorID)
		if err != nil {
			return fmt.Errorf("load actor: %w", err)
		}

		current, err := q.GetPayoutForUpdate(ctx, in.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payout %s: %w", in.ID, models.ErrNotFound)
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if domain.TerminalPayoutState(current.State) {
			return fmt.Errorf("edit of %s payout: %w", current.State, models.ErrIllegalTransition)
		}

		targetOwnerID := current.OwnerID
		if in.NewOwnerID != nil && *in.NewOwnerID != current.OwnerID {
			if !actor.IsAdmin() {
				return fmt.Errorf("ownership reassignment: %w", models.ErrPermissionDenied)
			}
			targetOwnerID = *in.NewOwnerID
		}

		owner, cur, err := loadOwnerAndCurrency(ctx, q, targetOwnerID, in.Currency, in.Kind)
		if err != nil {
			return err
		}
		rate, err := rateForUser(ctx, q, owner, cur)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		p = current
		p.Amount = in.Amount
		p.Currency = in.Currency
		p.Kind = in.Kind
		p.Recipient = in.Recipient
		p.Phone = in.Phone
		p.Address = in.Address
		p.IDDocument = in.IDDocument
		p.Card = in.Card
		p.OwnerID = targetOwnerID
		p.Edited = true
		p.EditedAt = &now
		p.EditorID = &in.ActorID
		p.RateSnapshot = decimal.NewNullDecimal(rate)
		p.USDSnapshot = decimal.NewNullDecimal(domain.PinUSD(in.Amount, rate, in.Currency))

		rows, err := q.UpdatePayoutEdit(ctx, p)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "edit payout"); err != nil {
			return err
		}

		oldOwner = current.OwnerID
		ev = payoutEvent(domain.EventPayoutEdited, p, owner.Username, &in.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, oldOwner)
	if p.OwnerID != oldOwner {
		s.balances.Invalidate(ctx, p.OwnerID)
	}
	s.bus.Publish(ev)
	return &p, nil
}

// Delete removes a payout and its history. Administrators only. Returns the
// USD balance change applied to the owner (positive when a confirmed payout
// is removed, since confirmed payouts debit the balance).
func (s *PayoutService) Delete(ctx context.Context, id, actorID uuid.UUID) (decimal.Decimal, error) {
	change := decimal.Zero
	var ev events.Event
	var ownerID uuid.UUID

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := requireAdmin(ctx, q, actorID); err != nil {
			return err
		}

		p, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock payout: %w", err)
		}

		if p.State == domain.StateConfirmed && p.USDSnapshot.Valid {
			change = p.USDSnapshot.Decimal
		}

		if _, err := q.DeleteHistory(ctx, payoutOpType(p), id); err != nil {
			return err
		}
		rows, err := q.DeletePayout(ctx, id)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "delete payout"); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, p.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = p.OwnerID
		ev = payoutEvent(domain.EventPayoutDeleted, p, owner.Username, &actorID)
		ev.BalanceChange = &change
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}

	s.balances.Invalidate(ctx, ownerID)
	s.bus.Publish(ev)
	return change, nil
}

// Reactivate creates a fresh pending payout from a cancelled one, copying
// recipient details and the original pinned values.
func (s *PayoutService) Reactivate(ctx context.Context, id, actorID uuid.UUID) (*models.Payout, error) {
	var fresh models.Payout
	var ev events.Event

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := requireAdmin(ctx, q, actorID); err != nil {
			return err
		}

		orig, err := q.GetPayoutForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock payout: %w", err)
		}
		if orig.State != domain.StateCancelled {
			return fmt.Errorf("reactivate from %s: %w", orig.State, models.ErrIllegalTransition)
		}

		now := time.Now().UTC()
		prefix := domain.PrefixPayout
		if orig.Linked() {
			prefix = domain.PrefixLinkedPayout
		}
		origID := orig.ID
		fresh = models.Payout{
			ID:              uuid.New(),
			OpID:            domain.BuildOperationID(prefix, orig.Kind, orig.Amount, now),
			Amount:          orig.Amount,
			Currency:        orig.Currency,
			Kind:            orig.Kind,
			Recipient:       orig.Recipient,
			Phone:           orig.Phone,
			Address:         orig.Address,
			IDDocument:      orig.IDDocument,
			Card:            orig.Card,
			RemittanceID:    orig.RemittanceID,
			OwnerID:         orig.OwnerID,
			State:           domain.StatePending,
			RateSnapshot:    orig.RateSnapshot,
			USDSnapshot:     orig.USDSnapshot,
			CreatedAt:       now,
			ReactivatedFrom: &origID,
		}
		if err := q.InsertPayout(ctx, fresh); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, orig.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ev = payoutEvent(domain.EventPayoutNew, fresh, owner.Username, &actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, fresh.OwnerID)
	s.bus.Publish(ev)
	return &fresh, nil
}

func (s *PayoutService) Get(ctx context.Context, id uuid.UUID) (*models.Payout, error) {
	p, err := s.store.Queries().GetPayout(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("payout %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get payout: %w", err)
	}
	return &p, nil
}

func payoutOpType(p models.Payout) string {
	if p.Linked() {
		return domain.OpTypeLinkedPayout
	}
	return domain.OpTypePayout
}

func payoutEvent(tag string, p models.Payout, ownerName string, actorID *uuid.UUID) events.Event {
	usd := decimal.Zero
	if p.USDSnapshot.Valid {
		usd = p.USDSnapshot.Decimal
	}
	notes := ""
	if p.Recipient != nil {
		notes = *p.Recipient
	}
	return events.Event{
		Tag:       tag,
		OpType:    payoutOpType(p),
		OpID:      p.ID,
		OpRef:     p.OpID,
		OwnerID:   p.OwnerID,
		OwnerName: ownerName,
		ActorID:   actorID,
		Currency:  p.Currency,
		Amount:    p.Amount,
		USD:       usd,
		Notes:     notes,
		At:        time.Now().UTC(),
	}
}
