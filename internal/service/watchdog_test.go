package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/repository"
)

func TestWatchdogSweep(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	remSvc := NewRemittanceService(store, bus, noopInvalidator{})
	paySvc := NewPayoutService(store, bus, noopInvalidator{})
	watchdog := NewWatchdogService(store, bus)
	ctx := context.Background()

	admin1 := seedUser(t, pool, "admin1", domain.RoleAdmin)
	admin2 := seedUser(t, pool, "admin2", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")
	seedCurrency(t, pool, "CUP", domain.KindCash, "320", "340")

	stale, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	fresh, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(50), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	confirmed, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(70), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)
	require.NoError(t, remSvc.Confirm(ctx, confirmed.ID, gestor.ID))

	stalePayout, err := paySvc.Create(ctx, CreatePayoutInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "CUP", Amount: decimal.NewFromInt(9600), Kind: domain.KindCash,
	})
	require.NoError(t, err)

	staleLinked, err := paySvc.Create(ctx, CreatePayoutInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "CUP", Amount: decimal.NewFromInt(3200), Kind: domain.KindCash,
		RemittanceID: &stale.ID,
	})
	require.NoError(t, err)

	// Age everything except the fresh row past the threshold. The confirmed
	// row ages too but must be ignored.
	for _, q := range []struct {
		sql string
		id  any
	}{
		{"UPDATE remittances SET created_at = NOW() - INTERVAL '31 hours' WHERE id = $1", stale.ID},
		{"UPDATE remittances SET created_at = NOW() - INTERVAL '31 hours' WHERE id = $1", confirmed.ID},
		{"UPDATE payouts SET created_at = NOW() - INTERVAL '31 hours' WHERE id = $1", stalePayout.ID},
		{"UPDATE payouts SET created_at = NOW() - INTERVAL '31 hours' WHERE id = $1", staleLinked.ID},
	} {
		_, err := pool.Exec(ctx, q.sql, q.id)
		require.NoError(t, err)
	}

	res, err := watchdog.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remittances)
	assert.Equal(t, 1, res.Payouts)
	assert.Equal(t, 1, res.LinkedPayouts)
	assert.Equal(t, 0, res.Errors)

	// Every admin got one inbox row per stale operation, written
	// transactionally with the stamp.
	repo := repository.New(pool)
	n1, err := repo.CountInternalNotifications(ctx, admin1.ID, domain.EventRemittancePending30h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n1)
	n2, err := repo.CountInternalNotifications(ctx, admin2.ID, domain.EventRemittancePending30h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n2)

	np, err := repo.CountInternalNotifications(ctx, admin1.ID, domain.EventPayoutPending30h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, np)
	nl, err := repo.CountInternalNotifications(ctx, admin1.ID, domain.EventLinkedPayoutPending30)
	require.NoError(t, err)
	assert.EqualValues(t, 1, nl)

	got, err := repo.GetRemittance(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StaleNotifiedAt)

	fr, err := repo.GetRemittance(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Nil(t, fr.StaleNotifiedAt)

	// A second sweep finds nothing; the alert fires exactly once.
	res, err = watchdog.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())

	n1, err = repo.CountInternalNotifications(ctx, admin1.ID, domain.EventRemittancePending30h)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n1)

	drain(t, bus)
	// Events carry InboxDone so the fan-out skips the already-written inbox.
	staleEvents := rec.tagged(domain.EventRemittancePending30h)
	require.Len(t, staleEvents, 1)
	assert.True(t, staleEvents[0].InboxDone)
	assert.Len(t, rec.tagged(domain.EventPayoutPending30h), 1)
	assert.Len(t, rec.tagged(domain.EventLinkedPayoutPending30), 1)
}

func TestWatchdogSkipsResolvedRows(t *testing.T) {
	pool := setupTestDB(t)
	defer pool.Close()

	store := repository.NewStore(pool)
	bus, rec := newTestBus()
	remSvc := NewRemittanceService(store, bus, noopInvalidator{})
	watchdog := NewWatchdogService(store, bus)
	ctx := context.Background()

	seedUser(t, pool, "admin", domain.RoleAdmin)
	gestor := seedUser(t, pool, "maria", domain.RoleGestor)
	seedCurrency(t, pool, "EUR", domain.KindTransfer, "0.90", "0.95")

	rem, err := remSvc.Create(ctx, CreateRemittanceInput{
		OwnerID: gestor.ID, ActorID: gestor.ID,
		Currency: "EUR", Amount: decimal.NewFromInt(90), Kind: domain.KindTransfer,
	})
	require.NoError(t, err)

	_, err = pool.Exec(ctx,
		"UPDATE remittances SET created_at = NOW() - INTERVAL '31 hours' WHERE id = $1", rem.ID)
	require.NoError(t, err)

	// Resolved between listing and sweeping, confirmed here before the sweep.
	require.NoError(t, remSvc.Confirm(ctx, rem.ID, gestor.ID))

	res, err := watchdog.Sweep(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total())

	drain(t, bus)
	assert.Empty(t, rec.tagged(domain.EventRemittancePending30h))
}
