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

// RemittanceService drives the remittance state machine. Every command runs
// in a single transaction, writes history atomically with the state change,
// invalidates the owner's balance cache before returning, and publishes
// domain events after commit.
type RemittanceService struct {
	store    QueryStore
	bus      *events.Bus
	balances BalanceInvalidator
	history  *HistoryService
}

func NewRemittanceService(store QueryStore, bus *events.Bus, balances BalanceInvalidator) *RemittanceService {
	return &RemittanceService{
		store:    store,
		bus:      bus,
		balances: balances,
		history:  NewHistoryService(),
	}
}

type CreateRemittanceInput struct {
	OwnerID     uuid.UUID
	ActorID     uuid.UUID
	Currency    string
	Amount      decimal.Decimal
	Kind        string
	Receiver    *string
	Notes       *string
	EvidenceRef *string
}

// Create records a new pending remittance with pinned rate and USD snapshots
// under the owner's valuation variant.
func (s *RemittanceService) Create(ctx context.Context, in CreateRemittanceInput) (*models.Remittance, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, fmt.Errorf("amount %s: %w", in.Amount, models.ErrInvalidAmount)
	}

	var rem models.Remittance
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

		now := time.Now().UTC()
		rem = models.Remittance{
			ID:           uuid.New(),
			OpID:         domain.BuildOperationID(domain.PrefixRemittance, in.Kind, in.Amount, now),
			Amount:       in.Amount,
			Currency:     in.Currency,
			Kind:         in.Kind,
			Receiver:     in.Receiver,
			Notes:        in.Notes,
			EvidenceRef:  in.EvidenceRef,
			OwnerID:      in.OwnerID,
			State:        domain.StatePending,
			RateSnapshot: decimal.NewNullDecimal(rate),
			USDSnapshot:  decimal.NewNullDecimal(domain.PinUSD(in.Amount, rate, in.Currency)),
			CreatedAt:    now,
		}
		if err := q.InsertRemittance(ctx, rem); err != nil {
			return err
		}

		ev = remittanceEvent(domain.EventRemittanceNew, rem, owner.Username, &in.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, in.OwnerID)
	s.bus.Publish(ev)
	return &rem, nil
}

// Confirm moves a pending remittance to completed. Confirming an already
// completed remittance is a no-op; no second history entry or event is
// produced.
func (s *RemittanceService) Confirm(ctx context.Context, id, actorID uuid.UUID) error {
	var evs []events.Event
	var ownerID uuid.UUID
	noop := false

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		rem, err := q.GetRemittanceForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("remittance %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock remittance: %w", err)
		}

		state := domain.NormalizeRemittanceState(rem.State)
		if state == domain.StateCompleted {
			noop = true
			return nil
		}
		if !domain.RemittanceCanTransition(state, domain.StateCompleted) {
			return fmt.Errorf("confirm from %s: %w", state, models.ErrIllegalTransition)
		}

		rows, err := q.UpdateRemittanceState(ctx, id, domain.StateCompleted)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "complete remittance"); err != nil {
			return err
		}
		if err := s.history.Write(ctx, q, domain.OpTypeRemittance, id, domain.HistoryProcessed, rem.Amount, &actorID, "confirmed"); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, rem.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = rem.OwnerID
		evs = append(evs, remittanceEvent(domain.EventRemittanceConfirmed, rem, owner.Username, &actorID))

		now := time.Now().UTC()
		floorEv, err := applyFloorDelta(ctx, q, rem.Currency, rem.Amount, now)
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

	observability.IncrementTransition(domain.OpTypeRemittance, domain.StateCompleted)
	s.balances.Invalidate(ctx, ownerID)
	for _, ev := range evs {
		s.bus.Publish(ev)
	}
	return nil
}

// Cancel moves a pending remittance to cancelled.
func (s *RemittanceService) Cancel(ctx context.Context, id, actorID uuid.UUID) error {
	return s.cancel(ctx, id, actorID, false)
}

// CancelByTime is the administrative cancel of a stalled pending remittance.
// The outbound WhatsApp notification is suppressed for this transition; the
// internal inbox still records it.
func (s *RemittanceService) CancelByTime(ctx context.Context, id, actorID uuid.UUID) error {
	return s.cancel(ctx, id, actorID, true)
}

func (s *RemittanceService) cancel(ctx context.Context, id, actorID uuid.UUID, byTime bool) error {
	var ev events.Event
	var ownerID uuid.UUID

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if byTime {
			if err := requireAdmin(ctx, q, actorID); err != nil {
				return err
			}
		}

		rem, err := q.GetRemittanceForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("remittance %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock remittance: %w", err)
		}

		state := domain.NormalizeRemittanceState(rem.State)
		if !domain.RemittanceCanTransition(state, domain.StateCancelled) {
			return fmt.Errorf("cancel from %s: %w", state, models.ErrIllegalTransition)
		}

		now := time.Now().UTC()
		var rows int64
		detail := "cancelled"
		if byTime {
			rows, err = q.MarkRemittanceAutoCancelled(ctx, id, now)
			detail = "cancelled by time"
		} else {
			rows, err = q.UpdateRemittanceState(ctx, id, domain.StateCancelled)
		}
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "cancel remittance"); err != nil {
			return err
		}
		if err := s.history.Write(ctx, q, domain.OpTypeRemittance, id, domain.HistoryCancelled, rem.Amount, &actorID, detail); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, rem.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = rem.OwnerID
		ev = remittanceEvent(domain.EventRemittanceCancelled, rem, owner.Username, &actorID)
		ev.Silent = byTime
		return nil
	})
	if err != nil {
		return err
	}

	observability.IncrementTransition(domain.OpTypeRemittance, domain.StateCancelled)
	s.balances.Invalidate(ctx, ownerID)
	s.bus.Publish(ev)
	return nil
}

type EditRemittanceInput struct {
	ID          uuid.UUID
	ActorID     uuid.UUID
	Amount      decimal.Decimal
	Currency    string
	Kind        string
	Receiver    *string
	Notes       *string
	EvidenceRef *string
	// NewOwnerID reassigns ownership; administrators only.
	NewOwnerID *uuid.UUID
}

// Edit updates a pending remittance, re-validates currency permission for the
// target owner and re-pins the rate and USD snapshots at the current rate
// under the target owner's valuation variant.
func (s *RemittanceService) Edit(ctx context.Context, in EditRemittanceInput) (*models.Remittance, error) {
	if !domain.ValidAmount(in.Amount) {
		return nil, fmt.Errorf("amount %s: %w", in.Amount, models.ErrInvalidAmount)
	}

	var rem models.Remittance
	var ev events.Event
	var oldOwner uuid.UUID
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		actor, err := q.GetUser(ctx, in.ActorID)
		if err != nil {
			return fmt.Errorf("load actor: %w", err)
		}

		current, err := q.GetRemittanceForUpdate(ctx, in.ID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("remittance %s: %w", in.ID, models.ErrNotFound)
			}
			return fmt.Errorf("lock remittance: %w", err)
		}
		if domain.TerminalRemittanceState(current.State) {
			return fmt.Errorf("edit of %s remittance: %w", current.State, models.ErrIllegalTransition)
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
		rem = current
		rem.Amount = in.Amount
		rem.Currency = in.Currency
		rem.Kind = in.Kind
		rem.Receiver = in.Receiver
		rem.Notes = in.Notes
		rem.EvidenceRef = in.EvidenceRef
		rem.OwnerID = targetOwnerID
		rem.Edited = true
		rem.EditedAt = &now
		rem.EditorID = &in.ActorID
		rem.RateSnapshot = decimal.NewNullDecimal(rate)
		rem.USDSnapshot = decimal.NewNullDecimal(domain.PinUSD(in.Amount, rate, in.Currency))

		rows, err := q.UpdateRemittanceEdit(ctx, rem)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "edit remittance"); err != nil {
			return err
		}

		oldOwner = current.OwnerID
		ev = remittanceEvent(domain.EventRemittanceEdited, rem, owner.Username, &in.ActorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, oldOwner)
	if rem.OwnerID != oldOwner {
		s.balances.Invalidate(ctx, rem.OwnerID)
	}
	s.bus.Publish(ev)
	return &rem, nil
}

// Delete removes a remittance and its history. Administrators only. Returns
// the USD balance change applied to the owner (negative when a completed
// remittance is removed).
func (s *RemittanceService) Delete(ctx context.Context, id, actorID uuid.UUID) (decimal.Decimal, error) {
	change := decimal.Zero
	var ev events.Event
	var ownerID uuid.UUID

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := requireAdmin(ctx, q, actorID); err != nil {
			return err
		}

		rem, err := q.GetRemittanceForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("remittance %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock remittance: %w", err)
		}

		if domain.NormalizeRemittanceState(rem.State) == domain.StateCompleted && rem.USDSnapshot.Valid {
			change = rem.USDSnapshot.Decimal.Neg()
		}

		if _, err := q.DeleteHistory(ctx, domain.OpTypeRemittance, id); err != nil {
			return err
		}
		rows, err := q.DeleteRemittance(ctx, id)
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "delete remittance"); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, rem.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ownerID = rem.OwnerID
		ev = remittanceEvent(domain.EventRemittanceDeleted, rem, owner.Username, &actorID)
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

// Reactivate creates a fresh pending remittance from a cancelled one. The
// original stays cancelled; the copy points back via reactivated_from and
// carries the original pinned values.
func (s *RemittanceService) Reactivate(ctx context.Context, id, actorID uuid.UUID) (*models.Remittance, error) {
	var fresh models.Remittance
	var ev events.Event

	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		if err := requireAdmin(ctx, q, actorID); err != nil {
			return err
		}

		orig, err := q.GetRemittanceForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("remittance %s: %w", id, models.ErrNotFound)
			}
			return fmt.Errorf("lock remittance: %w", err)
		}
		if domain.NormalizeRemittanceState(orig.State) != domain.StateCancelled {
			return fmt.Errorf("reactivate from %s: %w", orig.State, models.ErrIllegalTransition)
		}

		now := time.Now().UTC()
		origID := orig.ID
		fresh = models.Remittance{
			ID:              uuid.New(),
			OpID:            domain.BuildOperationID(domain.PrefixRemittance, orig.Kind, orig.Amount, now),
			Amount:          orig.Amount,
			Currency:        orig.Currency,
			Kind:            orig.Kind,
			Receiver:        orig.Receiver,
			Notes:           orig.Notes,
			EvidenceRef:     orig.EvidenceRef,
			OwnerID:         orig.OwnerID,
			State:           domain.StatePending,
			RateSnapshot:    orig.RateSnapshot,
			USDSnapshot:     orig.USDSnapshot,
			CreatedAt:       now,
			ReactivatedFrom: &origID,
		}
		if err := q.InsertRemittance(ctx, fresh); err != nil {
			return err
		}

		owner, err := q.GetUser(ctx, orig.OwnerID)
		if err != nil {
			return fmt.Errorf("load owner: %w", err)
		}
		ev = remittanceEvent(domain.EventRemittanceNew, fresh, owner.Username, &actorID)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.balances.Invalidate(ctx, fresh.OwnerID)
	s.bus.Publish(ev)
	return &fresh, nil
}

// Get returns a remittance with legacy states normalized on read.
func (s *RemittanceService) Get(ctx context.Context, id uuid.UUID) (*models.Remittance, error) {
	rem, err := s.store.Queries().GetRemittance(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("remittance %s: %w", id, models.ErrNotFound)
		}
		return nil, fmt.Errorf("get remittance: %w", err)
	}
	rem.State = domain.NormalizeRemittanceState(rem.State)
	return &rem, nil
}

func remittanceEvent(tag string, rem models.Remittance, ownerName string, actorID *uuid.UUID) events.Event {
	usd := decimal.Zero
	if rem.USDSnapshot.Valid {
		usd = rem.USDSnapshot.Decimal
	}
	notes := ""
	if rem.Notes != nil {
		notes = *rem.Notes
	}
	return events.Event{
		Tag:       tag,
		OpType:    domain.OpTypeRemittance,
		OpID:      rem.ID,
		OpRef:     rem.OpID,
		OwnerID:   rem.OwnerID,
		OwnerName: ownerName,
		ActorID:   actorID,
		Currency:  rem.Currency,
		Amount:    rem.Amount,
		USD:       usd,
		Notes:     notes,
		At:        time.Now().UTC(),
	}
}

// loadOwnerAndCurrency fetches the owner and the operating currency, then
// enforces the permitted-currency set and the currency/kind consistency rule.
func loadOwnerAndCurrency(ctx context.Context, q *repository.Queries, ownerID uuid.UUID, currency, kind string) (models.User, models.Currency, error) {
	owner, err := q.GetUser(ctx, ownerID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, models.Currency{}, fmt.Errorf("owner %s: %w", ownerID, models.ErrNotFound)
		}
		return models.User{}, models.Currency{}, fmt.Errorf("load owner: %w", err)
	}

	cur, err := q.GetCurrency(ctx, currency)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, models.Currency{}, fmt.Errorf("currency %s: %w", currency, models.ErrNotFound)
		}
		return models.User{}, models.Currency{}, fmt.Errorf("load currency: %w", err)
	}
	if !cur.Enabled {
		return models.User{}, models.Currency{}, fmt.Errorf("currency %s disabled: %w", currency, models.ErrCurrencyNotPermitted)
	}
	if !owner.MayOperate(currency) {
		return models.User{}, models.Currency{}, fmt.Errorf("user %s currency %s: %w", owner.Username, currency, models.ErrCurrencyNotPermitted)
	}
	if kind != "" && cur.Kind != kind {
		return models.User{}, models.Currency{}, fmt.Errorf("currency %s is %s, operation is %s: %w", currency, cur.Kind, kind, models.ErrCurrencyKindMismatch)
	}
	return owner, cur, nil
}

func requireAdmin(ctx context.Context, q *repository.Queries, actorID uuid.UUID) error {
	actor, err := q.GetUser(ctx, actorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("actor %s: %w", actorID, models.ErrNotFound)
		}
		return fmt.Errorf("load actor: %w", err)
	}
	if !actor.IsAdmin() {
		return fmt.Errorf("role %s: %w", actor.Role, models.ErrPermissionDenied)
	}
	return nil
}
