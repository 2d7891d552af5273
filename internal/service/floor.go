package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/events"
	"github.com/remesaops/remesas-backend/internal/repository"
)

// applyFloorDelta moves the currency's operational cash pool under the
// currency row lock and evaluates the low-floor alert. It returns a
// currency_low_floor event when the alert arms, and re-arms the flag when the
// pool recovers above the threshold.
func applyFloorDelta(ctx context.Context, q *repository.Queries, code string, delta decimal.Decimal, at time.Time) (*events.Event, error) {
	cur, err := q.GetCurrencyForUpdate(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("lock currency %s: %w", code, err)
	}

	balance, err := q.AdjustCurrencyFloor(ctx, code, delta)
	if err != nil {
		return nil, err
	}

	switch {
	case balance.LessThan(cur.FloorAlertThreshold) && !cur.FloorAlertSent:
		sentAt := at
		if err := q.SetCurrencyFloorAlert(ctx, code, true, &sentAt); err != nil {
			return nil, err
		}
		return &events.Event{
			Tag:      domain.EventCurrencyLowFloor,
			Currency: code,
			Amount:   balance,
			Notes:    fmt.Sprintf("floor %s below threshold %s", balance.StringFixed(2), cur.FloorAlertThreshold.StringFixed(2)),
			At:       at,
		}, nil
	case balance.GreaterThanOrEqual(cur.FloorAlertThreshold) && cur.FloorAlertSent:
		if err := q.SetCurrencyFloorAlert(ctx, code, false, nil); err != nil {
			return nil, err
		}
	}
	return nil, nil
}
