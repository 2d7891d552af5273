package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/repository"
)

func TestRemittanceCreatePinsSnapshot(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	// 90 EUR at the current rate 0.90 pins exactly 100 USD.
	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID:  gestor.ID,
		ActorID:  gestor.ID,
		Currency: "EUR",
		Amount:   decimal.RequireFromString("90"),
		Kind:     domain.KindTransfer,
	})
	require.NoError(t, err)
	require.True(t, rem.RateSnapshot.Valid)
	require.True(t, rem.USDSnapshot.Valid)
	assert.True(t, rem.RateSnapshot.Decimal.Equal(decimal.RequireFromString("0.90")))
	assert.True(t, rem.USDSnapshot.Decimal.Equal(decimal.RequireFromString("100")),
		"usd snapshot = %s", rem.USDSnapshot.Decimal)
	assert.Equal(t, domain.StatePending, rem.State)
	assert.True(t, strings.HasPrefix(rem.OpID, domain.PrefixRemittance+"-"))

	// Changing the registry rate afterwards must not move the pinned value.
	_, err = repository.New(pool).UpdateCurrencyRates(ctx, "EUR",
		decimal.RequireFromString("1.80"), decimal.RequireFromString("1.90"))
	require.NoError(t, err)

	got, err := svc.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.True(t, got.USDSnapshot.Decimal.Equal(decimal.RequireFromString("100")))
	assert.True(t, got.RateSnapshot.Decimal.Equal(decimal.RequireFromString("0.90")))

	drain(t, bus)
	require.Len(t, rec.tagged(domain.EventRemittanceNew), 1)
}

func TestRemittanceCreateUSDPassThrough(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "USD", domain.KindTransfer, "1", "1")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID:  gestor.ID,
		ActorID:  gestor.ID,
		Currency: "USD",
		Amount:   decimal.RequireFromString("250.50"),
		Kind:     domain.KindTransfer,
	})
	require.NoError(t, err)
	assert.True(t, rem.USDSnapshot.Decimal.Equal(decimal.RequireFromString("250.50")))
	drain(t, bus)
}

func TestRemittanceCreateValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	// Zero and negative amounts are rejected before any DB work.
	_, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.Zero, Kind: domain.KindTransfer,
	})
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	// Kind must match the currency registration.
	_, err = svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(10), Kind: domain.KindCash,
	})
	assert.ErrorIs(t, err, models.ErrCurrencyKindMismatch)

	// A non-empty permitted set excludes everything else for non-admins.
	restricted := seedUser(t, pool, "pedro", domain.RoleGestor)
	restricted.PermittedCurrencies = []string{"USD"}
	_, err = repository.New(pool).UpdateUser(ctx, restricted)
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateRemittanceInput{
		OwnerID: restricted.ID, ActorID: restricted.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(10), Kind: domain.KindTransfer,
	})
	assert.ErrorIs(t, err, models.ErrCurrencyNotPermitted)

	// Disabled currencies are closed to everyone.
	_, err = pool.Exec(ctx, "UPDATE currencies SET enabled = FALSE WHERE code = 'EUR'")
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(10), Kind: domain.KindTransfer,
	})
	assert.ErrorIs(t, err, models.ErrCurrencyNotPermitted)
}

func TestRemittanceConfirmIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Confirm(ctx, rem.ID, gestor.ID))
	// Second confirm is a no-op, not an error.
	require.NoError(t, svc.Confirm(ctx, rem.ID, gestor.ID))

	got, err := svc.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)

	n, err := repository.New(pool).CountHistory(ctx, domain.OpTypeRemittance, rem.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "double confirm must not duplicate history")

	drain(t, bus)
	assert.Len(t, rec.tagged(domain.EventRemittanceConfirmed), 1)
}

func TestRemittanceIllegalTransitions(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(50), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, rem.ID, gestor.ID))
	assert.ErrorIs(t, svc.Confirm(ctx, rem.ID, gestor.ID), models.ErrIllegalTransition)
	assert.ErrorIs(t, svc.Cancel(ctx, rem.ID, gestor.ID), models.ErrIllegalTransition)

	// Completed is terminal for cancel too.
	rem2, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(60), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, rem2.ID, gestor.ID))
	assert.ErrorIs(t, svc.Cancel(ctx, rem2.ID, gestor.ID), models.ErrIllegalTransition)

	assert.ErrorIs(t, svc.Confirm(ctx, uuid.New(), gestor.ID), models.ErrNotFound)
	drain(t, bus)
}

func TestRemittanceLegacyConfirmedState(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	// Old rows carry 'confirmed'; reads normalize, confirm treats it as done.
	_, err = pool.Exec(ctx, "UPDATE remittances SET state = 'confirmed' WHERE id = $1", rem.ID)
	require.NoError(t, err)

	got, err := svc.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)

	require.NoError(t, svc.Confirm(ctx, rem.ID, gestor.ID))
	n, err := repository.New(pool).CountHistory(ctx, domain.OpTypeRemittance, rem.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	drain(t, bus)
}

func TestRemittanceCancelByTime(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	admin := seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.CancelByTime(ctx, rem.ID, gestor.ID), models.ErrPermissionDenied)

	require.NoError(t, svc.CancelByTime(ctx, rem.ID, admin.ID))

	got, err := svc.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, got.State)
	assert.True(t, got.AutoCancelled)
	require.NotNil(t, got.AutoCancelledAt)

	drain(t, bus)
	cancelled := rec.tagged(domain.EventRemittanceCancelled)
	require.Len(t, cancelled, 1)
	assert.True(t, cancelled[0].Silent, "cancel-by-time suppresses external delivery")
}

func TestRemittanceReactivate(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	admin := seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
		Notes: strPtr("familia Lopez"),
	})
	require.NoError(t, err)

	// Only cancelled operations reactivate.
	_, err = svc.Reactivate(ctx, rem.ID, admin.ID)
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	require.NoError(t, svc.Cancel(ctx, rem.ID, gestor.ID))

	_, err = svc.Reactivate(ctx, rem.ID, gestor.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	time.Sleep(1100 * time.Millisecond) // fresh created_at second for a distinct op id
	fresh, err := svc.Reactivate(ctx, rem.ID, admin.ID)
	require.NoError(t, err)

	assert.NotEqual(t, rem.ID, fresh.ID)
	assert.NotEqual(t, rem.OpID, fresh.OpID)
	assert.Equal(t, domain.StatePending, fresh.State)
	require.NotNil(t, fresh.ReactivatedFrom)
	assert.Equal(t, rem.ID, *fresh.ReactivatedFrom)
	assert.True(t, fresh.USDSnapshot.Decimal.Equal(rem.USDSnapshot.Decimal))
	assert.True(t, fresh.RateSnapshot.Decimal.Equal(rem.RateSnapshot.Decimal))
	require.NotNil(t, fresh.Notes)
	assert.Equal(t, "familia Lopez", *fresh.Notes)

	orig, err := svc.Get(ctx, rem.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCancelled, orig.State)

	drain(t, bus)
	assert.Len(t, rec.tagged(domain.EventRemittanceNew), 2)
}

func TestRemittanceDelete(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	admin := seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, rem.ID, gestor.ID))

	_, err = svc.Delete(ctx, rem.ID, gestor.ID)
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	change, err := svc.Delete(ctx, rem.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, change.Equal(decimal.RequireFromString("-100")),
		"deleting a completed remittance debits its pinned USD, got %s", change)

	_, err = svc.Get(ctx, rem.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	n, err := repository.New(pool).CountHistory(ctx, domain.OpTypeRemittance, rem.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n, "delete removes the history trail")

	drain(t, bus)
	deleted := rec.tagged(domain.EventRemittanceDeleted)
	require.Len(t, deleted, 1)
	require.NotNil(t, deleted[0].BalanceChange)
	assert.True(t, deleted[0].BalanceChange.Equal(change))
}

func TestRemittanceDeletePendingNoBalanceChange(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	admin := seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	change, err := svc.Delete(ctx, rem.ID, admin.ID)
	require.NoError(t, err)
	assert.True(t, change.IsZero())
	drain(t, bus)
}

func TestRemittanceEditRepinsUnderTargetVariant(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	svc := NewRemittanceService(store, bus, noopInvalidator{})
	ctx := context.Background()

	admin := seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	commercial := seedUser(t, pool, "pedro", domain.RoleGestor)
	commercial.Variant = strPtr(domain.VariantCommercial)
	_, err := repository.New(pool).UpdateUser(ctx, commercial)
	require.NoError(t, err)

	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := svc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.True(t, rem.RateSnapshot.Decimal.Equal(decimal.RequireFromString("0.90")))

	// Non-admins may edit but not reassign ownership.
	_, err = svc.Edit(ctx, EditRemittanceInput{
		ID: rem.ID, ActorID: gestor.ID,
		Amount: decimal.NewFromInt(95), Currency: "EUR", Kind: domain.KindTransfer,
		NewOwnerID: &commercial.ID,
	})
	assert.ErrorIs(t, err, models.ErrPermissionDenied)

	// Admin reassignment re-pins at the target owner's commercial rate.
	edited, err := svc.Edit(ctx, EditRemittanceInput{
		ID: rem.ID, ActorID: admin.ID,
		Amount: decimal.NewFromInt(95), Currency: "EUR", Kind: domain.KindTransfer,
		NewOwnerID: &commercial.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, commercial.ID, edited.OwnerID)
	assert.True(t, edited.Edited)
	require.NotNil(t, edited.EditorID)
	assert.Equal(t, admin.ID, *edited.EditorID)
	assert.True(t, edited.RateSnapshot.Decimal.Equal(decimal.RequireFromString("0.95")))
	assert.True(t, edited.USDSnapshot.Decimal.Equal(decimal.NewFromInt(95).DivRound(decimal.RequireFromString("0.95"), 6)))

	// Terminal states refuse edits.
	require.NoError(t, svc.Confirm(ctx, rem.ID, admin.ID))
	_, err = svc.Edit(ctx, EditRemittanceInput{
		ID: rem.ID, ActorID: admin.ID,
		Amount: decimal.NewFromInt(10), Currency: "EUR", Kind: domain.KindTransfer,
	})
	assert.ErrorIs(t, err, models.ErrIllegalTransition)

	drain(t, bus)
	assert.Len(t, rec.tagged(domain.EventRemittanceEdited), 1)
}
