package service

import (
	"context"
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

func TestBalanceFromSnapshots(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	balances := NewBalanceService(store, nil)
	remSvc := NewRemittanceService(store, bus, balances)
	paySvc := NewPayoutService(store, bus, balances)
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")
	seedCurrency(t, pool, "CUP", domain.KindCash, "320", "340")

	// 90 EUR completed credits 100 USD.
	rem, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Confirm(ctx, rem.ID, gestor.ID))

	// A pending remittance never counts.
	_, err = remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(900), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	// A cancelled one neither.
	cancelled, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(450), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Cancel(ctx, cancelled.ID, gestor.ID))

	// 9600 CUP confirmed payout debits 30 USD.
	p, err := paySvc.Create(ctx, CreatePayoutInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "CUP", Amount: decimal.NewFromInt(9600), Kind: domain.KindCash,
	})
	require.NoError(t, err)
	require.NoError(t, paySvc.Confirm(ctx, p.ID, gestor.ID))

	b, err := balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, b.RemittedUSD.Equal(decimal.NewFromInt(100)), "remitted = %s", b.RemittedUSD)
	assert.True(t, b.PaidOutUSD.Equal(decimal.NewFromInt(30)), "paid out = %s", b.PaidOutUSD)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(70)), "usd = %s", b.USD)

	// A registry rate change after pinning leaves the balance alone.
	_, err = repository.New(pool).UpdateCurrencyRates(ctx, "EUR",
		decimal.RequireFromString("2"), decimal.RequireFromString("2"))
	require.NoError(t, err)

	b, err = balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(70)))

	_, err = balances.GetBalance(ctx, uuid.New())
	assert.ErrorIs(t, err, models.ErrNotFound)
	drain(t, bus)
}

func TestBalanceForPeriod(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	balances := NewBalanceService(store, nil)
	remSvc := NewRemittanceService(store, bus, balances)
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "USD", domain.KindTransfer, "1", "1")

	old, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "USD", Amount: decimal.NewFromInt(40), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Confirm(ctx, old.ID, gestor.ID))

	recent, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "USD", Amount: decimal.NewFromInt(60), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Confirm(ctx, recent.ID, gestor.ID))

	// Push the first row out of the window.
	_, err = pool.Exec(ctx,
		"UPDATE remittances SET created_at = NOW() - INTERVAL '10 days' WHERE id = $1", old.ID)
	require.NoError(t, err)

	now := time.Now().UTC()
	b, err := balances.GetBalanceForPeriod(ctx, gestor.ID, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(60)), "windowed usd = %s", b.USD)

	b, err = balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(100)))
	drain(t, bus)
}

func TestBalancePinsLegacyRows(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	balances := NewBalanceService(store, nil)
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.80", "0.85")

	// A completed row from before pinning existed: null snapshots.
	legacyID := uuid.New()
	_, err := pool.Exec(ctx, `
		INSERT INTO remittances (id, op_id, amount, currency, kind, owner_id, state)
		VALUES ($1, 'REM-01/01-T400-090000', 400, 'EUR', 'transfer', $2, 'completed')`,
		legacyID, gestor.ID)
	require.NoError(t, err)

	b, err := balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(500)), "usd = %s", b.USD)

	// The read backfilled the snapshot at the rate in force now.
	rem, err := repository.New(pool).GetRemittance(ctx, legacyID)
	require.NoError(t, err)
	require.True(t, rem.RateSnapshot.Valid)
	assert.True(t, rem.RateSnapshot.Decimal.Equal(decimal.RequireFromString("0.80")))
	assert.True(t, rem.USDSnapshot.Decimal.Equal(decimal.NewFromInt(500)))

	// Later rate changes no longer touch the pinned row.
	_, err = repository.New(pool).UpdateCurrencyRates(ctx, "EUR",
		decimal.RequireFromString("1.60"), decimal.RequireFromString("1.70"))
	require.NoError(t, err)

	b, err = balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, b.USD.Equal(decimal.NewFromInt(500)))
}

func TestBalanceDriftReconciliation(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	balances := NewBalanceService(store, nil)
	remSvc := NewRemittanceService(store, bus, balances)
	ctx := context.Background()

	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "USD", domain.KindTransfer, "1", "1")

	rem, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "USD", Amount: decimal.NewFromInt(100), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Confirm(ctx, rem.ID, gestor.ID))

	// Corrupt the denormalized column past the tolerance.
	_, err = pool.Exec(ctx, "UPDATE users SET balance_cached = 55 WHERE id = $1", gestor.ID)
	require.NoError(t, err)

	_, err = balances.GetBalance(ctx, gestor.ID)
	require.NoError(t, err)

	u, err := repository.New(pool).GetUser(ctx, gestor.ID)
	require.NoError(t, err)
	assert.True(t, u.BalanceCached.Equal(decimal.NewFromInt(100)), "cached = %s", u.BalanceCached)
	drain(t, bus)
}

func TestRecalculateAll(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, _ := newTestBus()
	balances := NewBalanceService(store, nil)
	remSvc := NewRemittanceService(store, bus, balances)
	ctx := context.Background()

	maria := seedUser(t, pool, "maria", domain.RoleGestor)
	pedro := seedUser(t, pool, "pedro", domain.RoleGestor)
	seedCurrency(t, pool, "USD", domain.KindTransfer, "1", "1")

	for _, owner := range []models.User{maria, pedro} {
		rem, err := remSvc.Create(ctx, CreateRemittanceInput{
			OwnerID: owner.ID, ActorID: owner.ID,
			Currency: "USD", Amount: decimal.NewFromInt(100), Kind: domain.KindTransfer,
		})
		require.NoError(t, err)
		require.NoError(t, remSvc.Confirm(ctx, rem.ID, owner.ID))
	}

	// Drift one of them; the other is already correct.
	_, err := pool.Exec(ctx, "UPDATE users SET balance_cached = 100 WHERE id = $1", maria.ID)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, "UPDATE users SET balance_cached = -7 WHERE id = $1", pedro.ID)
	require.NoError(t, err)

	corrected, err := balances.RecalculateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, corrected)

	u, err := repository.New(pool).GetUser(ctx, pedro.ID)
	require.NoError(t, err)
	assert.True(t, u.BalanceCached.Equal(decimal.NewFromInt(100)))
	drain(t, bus)
}
