package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
)

const currencyColumns = `code, name, rate_current, rate_commercial, kind, enabled,
	floor_balance, floor_alert_threshold, floor_alert_sent, floor_alert_sent_at, created_at`

func scanCurrency(row interface{ Scan(...any) error }) (models.Currency, error) {
	var c models.Currency
	err := row.Scan(&c.Code, &c.Name, &c.RateCurrent, &c.RateCommercial, &c.Kind, &c.Enabled,
		&c.FloorBalance, &c.FloorAlertThreshold, &c.FloorAlertSent, &c.FloorAlertSentAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) GetCurrency(ctx context.Context, code string) (models.Currency, error) {
	row := q.db.QueryRow(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE code = $1`, code)
	return scanCurrency(row)
}

// GetCurrencyForUpdate locks the currency row for the duration of the
// enclosing transaction.
func (q *Queries) GetCurrencyForUpdate(ctx context.Context, code string) (models.Currency, error) {
	row := q.db.QueryRow(ctx, `SELECT `+currencyColumns+` FROM currencies WHERE code = $1 FOR UPDATE`, code)
	return scanCurrency(row)
}

func (q *Queries) ListCurrencies(ctx context.Context) ([]models.Currency, error) {
	rows, err := q.db.Query(ctx, `SELECT `+currencyColumns+` FROM currencies ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("list currencies: %w", err)
	}
	defer rows.Close()

	var out []models.Currency
	for rows.Next() {
		c, err := scanCurrency(rows)
		if err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (q *Queries) UpsertCurrency(ctx context.Context, c models.Currency) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO currencies (code, name, rate_current, rate_commercial, kind, enabled,
			floor_balance, floor_alert_threshold, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			rate_current = EXCLUDED.rate_current,
			rate_commercial = EXCLUDED.rate_commercial,
			kind = EXCLUDED.kind,
			enabled = EXCLUDED.enabled,
			floor_balance = EXCLUDED.floor_balance,
			floor_alert_threshold = EXCLUDED.floor_alert_threshold`,
		c.Code, c.Name, c.RateCurrent, c.RateCommercial, c.Kind, c.Enabled,
		c.FloorBalance, c.FloorAlertThreshold)
	if err != nil {
		return fmt.Errorf("upsert currency %s: %w", c.Code, err)
	}
	return nil
}

// UpdateCurrencyRates changes the administrator-entered rates. Pinned
// snapshots on existing operations are untouched by design of the schema.
func (q *Queries) UpdateCurrencyRates(ctx context.Context, code string, current, commercial decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE currencies SET rate_current = $1, rate_commercial = $2 WHERE code = $3`,
		current, commercial, code)
	if err != nil {
		return 0, fmt.Errorf("update currency rates: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AdjustCurrencyFloor applies a signed delta to the currency's cash pool and
// returns the new floor balance. Callers must hold the currency row lock.
func (q *Queries) AdjustCurrencyFloor(ctx context.Context, code string, delta decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := q.db.QueryRow(ctx,
		`UPDATE currencies SET floor_balance = floor_balance + $1 WHERE code = $2 RETURNING floor_balance`,
		delta, code).Scan(&balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("adjust currency floor: %w", err)
	}
	return balance, nil
}

func (q *Queries) SetCurrencyFloorAlert(ctx context.Context, code string, sent bool, at *time.Time) error {
	_, err := q.db.Exec(ctx,
		`UPDATE currencies SET floor_alert_sent = $1, floor_alert_sent_at = $2 WHERE code = $3`,
		sent, at, code)
	if err != nil {
		return fmt.Errorf("set currency floor alert: %w", err)
	}
	return nil
}
