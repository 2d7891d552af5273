package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/observability"
	"github.com/remesaops/remesas-backend/internal/repository"
)

const (
	balanceKeyPrefix = "balance"
	balanceCacheTTL  = 30 * time.Second
)

// driftTolerance is the largest divergence between the stored cached balance
// and the recomputed one that is ignored on read.
var driftTolerance = decimal.RequireFromString("0.01")

// Balance is a user's USD position with its components.
type Balance struct {
	UserID      uuid.UUID       `json:"user_id"`
	USD         decimal.Decimal `json:"usd"`
	RemittedUSD decimal.Decimal `json:"remitted_usd"`
	PaidOutUSD  decimal.Decimal `json:"paid_out_usd"`
	ComputedAt  time.Time       `json:"computed_at"`
}

// BalanceService computes USD balances from pinned snapshots. Completed
// remittances credit, confirmed payouts debit; pending and cancelled
// operations never count. Reads go through a short-lived redis cache keyed
// per user; state transitions drop the key before returning so a read issued
// after a transition returns observes the new balance.
type BalanceService struct {
	store QueryStore
	redis redis.Cmdable
}

func NewBalanceService(store QueryStore, redis redis.Cmdable) *BalanceService {
	return &BalanceService{store: store, redis: redis}
}

// GetBalance returns the user's all-time USD balance. Rows written before
// rate pinning existed are pinned at the current rate first, then the sums
// are taken purely from snapshots.
func (s *BalanceService) GetBalance(ctx context.Context, userID uuid.UUID) (*Balance, error) {
	if s.redis != nil {
		val, err := s.redis.Get(ctx, balanceKey(userID)).Result()
		if err == nil {
			var b Balance
			if json.Unmarshal([]byte(val), &b) == nil && b.UserID == userID {
				observability.IncrementBalanceCache("hit")
				return &b, nil
			}
		} else if err != redis.Nil {
			zap.L().Warn("redis balance lookup failed", zap.Error(err))
		}
	}
	observability.IncrementBalanceCache("miss")

	b, err := s.compute(ctx, userID, nil, nil)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		if buf, err := json.Marshal(b); err == nil {
			if err := s.redis.Set(ctx, balanceKey(userID), buf, balanceCacheTTL).Err(); err != nil {
				zap.L().Warn("redis balance store failed", zap.Error(err))
			}
		}
	}
	return b, nil
}

// GetBalanceForPeriod returns the balance over [from, to]. Period reads are
// never cached.
func (s *BalanceService) GetBalanceForPeriod(ctx context.Context, userID uuid.UUID, from, to time.Time) (*Balance, error) {
	return s.compute(ctx, userID, &from, &to)
}

func (s *BalanceService) compute(ctx context.Context, userID uuid.UUID, from, to *time.Time) (*Balance, error) {
	var b Balance
	err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
		user, err := q.GetUser(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user %s: %w", userID, models.ErrNotFound)
			}
			return fmt.Errorf("load user: %w", err)
		}

		if err := s.pinLegacyRows(ctx, q, user); err != nil {
			return err
		}

		remitted, err := q.SumCompletedRemittanceUSD(ctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("sum remittances: %w", err)
		}
		paidOut, err := q.SumConfirmedPayoutUSD(ctx, userID, from, to)
		if err != nil {
			return fmt.Errorf("sum payouts: %w", err)
		}

		b = Balance{
			UserID:      userID,
			USD:         remitted.Sub(paidOut),
			RemittedUSD: remitted,
			PaidOutUSD:  paidOut,
			ComputedAt:  time.Now().UTC(),
		}

		// All-time reads reconcile the denormalized users.balance_cached
		// column when it has drifted past tolerance.
		if from == nil && to == nil && user.BalanceCached.Sub(b.USD).Abs().GreaterThan(driftTolerance) {
			if _, err := q.UpdateUserCachedBalance(ctx, userID, b.USD); err != nil {
				return fmt.Errorf("reconcile cached balance: %w", err)
			}
			zap.L().Info("balance cache drift corrected",
				zap.String("user_id", userID.String()),
				zap.String("stored", user.BalanceCached.String()),
				zap.String("computed", b.USD.String()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// pinLegacyRows backfills rate and usd snapshots on the user's rows written
// before pinning existed, at the rate in force now. Once pinned a row never
// changes again outside an explicit edit.
func (s *BalanceService) pinLegacyRows(ctx context.Context, q *repository.Queries, user models.User) error {
	rems, err := q.ListUnpinnedRemittances(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list unpinned remittances: %w", err)
	}
	pays, err := q.ListUnpinnedPayouts(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("list unpinned payouts: %w", err)
	}
	if len(rems) == 0 && len(pays) == 0 {
		return nil
	}

	rates := map[string]decimal.Decimal{}
	rateFor := func(code string) (decimal.Decimal, error) {
		if r, ok := rates[code]; ok {
			return r, nil
		}
		cur, err := q.GetCurrency(ctx, code)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load currency %s: %w", code, err)
		}
		r, err := rateForUser(ctx, q, user, cur)
		if err != nil {
			return decimal.Zero, err
		}
		rates[code] = r
		return r, nil
	}

	for _, r := range rems {
		rate, err := rateFor(r.Currency)
		if err != nil {
			return err
		}
		rows, err := q.PinRemittanceSnapshot(ctx, r.ID, rate, domain.PinUSD(r.Amount, rate, r.Currency))
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "pin remittance"); err != nil {
			return err
		}
	}
	for _, p := range pays {
		rate, err := rateFor(p.Currency)
		if err != nil {
			return err
		}
		rows, err := q.PinPayoutSnapshot(ctx, p.ID, rate, domain.PinUSD(p.Amount, rate, p.Currency))
		if err != nil {
			return err
		}
		if err := requireExactlyOne(rows, "pin payout"); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate drops the user's cached balance. Called synchronously by the
// state machines before they return.
func (s *BalanceService) Invalidate(ctx context.Context, userID uuid.UUID) {
	if s.redis == nil {
		return
	}
	if err := s.redis.Del(ctx, balanceKey(userID)).Err(); err != nil {
		zap.L().Warn("redis balance invalidation failed", zap.Error(err))
		return
	}
	observability.IncrementBalanceCache("invalidate")
}

// RecalculateAll recomputes every active user's balance from snapshots and
// rewrites users.balance_cached. Returns the number of users whose stored
// value diverged.
func (s *BalanceService) RecalculateAll(ctx context.Context) (int, error) {
	users, err := s.store.Queries().ListActiveUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	corrected := 0
	for _, u := range users {
		var diverged bool
		err := s.store.RunInTx(ctx, func(q *repository.Queries) error {
			if err := s.pinLegacyRows(ctx, q, u); err != nil {
				return err
			}
			remitted, err := q.SumCompletedRemittanceUSD(ctx, u.ID, nil, nil)
			if err != nil {
				return err
			}
			paidOut, err := q.SumConfirmedPayoutUSD(ctx, u.ID, nil, nil)
			if err != nil {
				return err
			}
			usd := remitted.Sub(paidOut)
			diverged = !u.BalanceCached.Equal(usd)
			_, err = q.UpdateUserCachedBalance(ctx, u.ID, usd)
			return err
		})
		if err != nil {
			return corrected, fmt.Errorf("recalculate user %s: %w", u.Username, err)
		}
		if diverged {
			corrected++
			zap.L().Info("balance recalculated", zap.String("username", u.Username))
		}
		s.Invalidate(ctx, u.ID)
	}
	return corrected, nil
}

func balanceKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s:%s", balanceKeyPrefix, userID)
}
