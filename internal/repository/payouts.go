package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
)

const payoutColumns = `id, op_id, amount, currency, kind, recipient, phone, address, id_document, card,
	remittance_id, owner_id, state, rate_snapshot, usd_snapshot, created_at,
	edited, edited_at, editor_id,
	stale_notified_at, auto_cancelled, auto_cancelled_at, reactivated_from`

func scanPayout(row interface{ Scan(...any) error }) (models.Payout, error) {
	var p models.Payout
	err := row.Scan(&p.ID, &p.OpID, &p.Amount, &p.Currency, &p.Kind, &p.Recipient, &p.Phone, &p.Address,
		&p.IDDocument, &p.Card,
		&p.RemittanceID, &p.OwnerID, &p.State, &p.RateSnapshot, &p.USDSnapshot, &p.CreatedAt,
		&p.Edited, &p.EditedAt, &p.EditorID,
		&p.StaleNotifiedAt, &p.AutoCancelled, &p.AutoCancelledAt, &p.ReactivatedFrom)
	return p, err
}

func (q *Queries) InsertPayout(ctx context.Context, p models.Payout) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO payouts (id, op_id, amount, currency, kind, recipient, phone, address, id_document, card,
			remittance_id, owner_id, state, rate_snapshot, usd_snapshot, created_at, reactivated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		p.ID, p.OpID, p.Amount, p.Currency, p.Kind, p.Recipient, p.Phone, p.Address, p.IDDocument, p.Card,
		p.RemittanceID, p.OwnerID, p.State, p.RateSnapshot, p.USDSnapshot, p.CreatedAt, p.ReactivatedFrom)
	if err != nil {
		return fmt.Errorf("insert payout: %w", err)
	}
	return nil
}

func (q *Queries) GetPayout(ctx context.Context, id uuid.UUID) (models.Payout, error) {
	row := q.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1`, id)
	return scanPayout(row)
}

func (q *Queries) GetPayoutForUpdate(ctx context.Context, id uuid.UUID) (models.Payout, error) {
	row := q.db.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payouts WHERE id = $1 FOR UPDATE`, id)
	return scanPayout(row)
}

func (q *Queries) ListPayoutsByRemittance(ctx context.Context, remittanceID uuid.UUID) ([]models.Payout, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+payoutColumns+` FROM payouts WHERE remittance_id = $1 ORDER BY created_at`, remittanceID)
	if err != nil {
		return nil, fmt.Errorf("list payouts by remittance: %w", err)
	}
	defer rows.Close()
	return collectPayouts(rows)
}

func (q *Queries) UpdatePayoutState(ctx context.Context, id uuid.UUID, state string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE payouts SET state = $1 WHERE id = $2`, state, id)
	if err != nil {
		return 0, fmt.Errorf("update payout state: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) MarkPayoutAutoCancelled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payouts SET state = 'cancelled', auto_cancelled = TRUE, auto_cancelled_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("mark payout auto-cancelled: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) UpdatePayoutEdit(ctx context.Context, p models.Payout) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE payouts SET
			amount = $1, currency = $2, kind = $3, recipient = $4, phone = $5, address = $6,
			id_document = $7, card = $8, owner_id = $9, rate_snapshot = $10, usd_snapshot = $11,
			edited = TRUE, edited_at = $12, editor_id = $13
		WHERE id = $14`,
		p.Amount, p.Currency, p.Kind, p.Recipient, p.Phone, p.Address,
		p.IDDocument, p.Card, p.OwnerID, p.RateSnapshot, p.USDSnapshot,
		p.EditedAt, p.EditorID, p.ID)
	if err != nil {
		return 0, fmt.Errorf("update payout edit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeletePayout(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM payouts WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete payout: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStalePendingPayouts returns ids of pending payouts past the cutoff
// without a watchdog flag. linked toggles between free-standing payouts and
// those bound to a remittance.
func (q *Queries) ListStalePendingPayouts(ctx context.Context, cutoff time.Time, linked bool, limit int32) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM payouts
		WHERE state = 'pending' AND created_at <= $1 AND stale_notified_at IS NULL
		  AND (remittance_id IS NOT NULL) = $2
		ORDER BY created_at
		LIMIT $3`, cutoff, linked, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending payouts: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (q *Queries) SetPayoutStaleNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE payouts SET stale_notified_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("set payout stale notified: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumConfirmedPayoutUSD aggregates pinned USD of confirmed payouts (linked
// ones included) owned by the user.
func (q *Queries) SumConfirmedPayoutUSD(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(usd_snapshot), 0) FROM payouts
		WHERE owner_id = $1 AND state = 'confirmed' AND usd_snapshot IS NOT NULL
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)`,
		ownerID, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum confirmed payout usd: %w", err)
	}
	return sum, nil
}

func (q *Queries) ListUnpinnedPayouts(ctx context.Context, ownerID uuid.UUID) ([]models.Payout, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+payoutColumns+` FROM payouts
		WHERE owner_id = $1 AND state = 'confirmed' AND usd_snapshot IS NULL
		FOR UPDATE`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list unpinned payouts: %w", err)
	}
	defer rows.Close()
	return collectPayouts(rows)
}

func (q *Queries) PinPayoutSnapshot(ctx context.Context, id uuid.UUID, rate, usd decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE payouts SET rate_snapshot = $1, usd_snapshot = $2 WHERE id = $3`, rate, usd, id)
	if err != nil {
		return 0, fmt.Errorf("pin payout snapshot: %w", err)
	}
	return tag.RowsAffected(), nil
}

func collectPayouts(rows pgx.Rows) ([]models.Payout, error) {
	var out []models.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func collectIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
