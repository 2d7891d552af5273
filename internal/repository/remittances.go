package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
)

const remittanceColumns = `id, op_id, amount, currency, kind, receiver, notes, evidence_ref,
	owner_id, state, rate_snapshot, usd_snapshot, created_at,
	edited, edited_at, editor_id,
	stale_notified_at, auto_cancelled, auto_cancelled_at, reactivated_from`

func scanRemittance(row interface{ Scan(...any) error }) (models.Remittance, error) {
	var r models.Remittance
	err := row.Scan(&r.ID, &r.OpID, &r.Amount, &r.Currency, &r.Kind, &r.Receiver, &r.Notes, &r.EvidenceRef,
		&r.OwnerID, &r.State, &r.RateSnapshot, &r.USDSnapshot, &r.CreatedAt,
		&r.Edited, &r.EditedAt, &r.EditorID,
		&r.StaleNotifiedAt, &r.AutoCancelled, &r.AutoCancelledAt, &r.ReactivatedFrom)
	return r, err
}

func (q *Queries) InsertRemittance(ctx context.Context, r models.Remittance) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO remittances (id, op_id, amount, currency, kind, receiver, notes, evidence_ref,
			owner_id, state, rate_snapshot, usd_snapshot, created_at, reactivated_from)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.OpID, r.Amount, r.Currency, r.Kind, r.Receiver, r.Notes, r.EvidenceRef,
		r.OwnerID, r.State, r.RateSnapshot, r.USDSnapshot, r.CreatedAt, r.ReactivatedFrom)
	if err != nil {
		return fmt.Errorf("insert remittance: %w", err)
	}
	return nil
}

func (q *Queries) GetRemittance(ctx context.Context, id uuid.UUID) (models.Remittance, error) {
	row := q.db.QueryRow(ctx, `SELECT `+remittanceColumns+` FROM remittances WHERE id = $1`, id)
	return scanRemittance(row)
}

// GetRemittanceForUpdate locks the row for the enclosing transaction.
func (q *Queries) GetRemittanceForUpdate(ctx context.Context, id uuid.UUID) (models.Remittance, error) {
	row := q.db.QueryRow(ctx, `SELECT `+remittanceColumns+` FROM remittances WHERE id = $1 FOR UPDATE`, id)
	return scanRemittance(row)
}

func (q *Queries) UpdateRemittanceState(ctx context.Context, id uuid.UUID, state string) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE remittances SET state = $1 WHERE id = $2`, state, id)
	if err != nil {
		return 0, fmt.Errorf("update remittance state: %w", err)
	}
	return tag.RowsAffected(), nil
}

// MarkRemittanceAutoCancelled transitions a pending remittance to cancelled
// with the cancel-by-time audit flags set.
func (q *Queries) MarkRemittanceAutoCancelled(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE remittances SET state = 'cancelled', auto_cancelled = TRUE, auto_cancelled_at = $1
		WHERE id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("mark remittance auto-cancelled: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpdateRemittanceEdit rewrites the editable fields plus audit stamps and the
// re-pinned snapshots in one statement.
func (q *Queries) UpdateRemittanceEdit(ctx context.Context, r models.Remittance) (int64, error) {
	tag, err := q.db.Exec(ctx, `
		UPDATE remittances SET
			amount = $1, currency = $2, kind = $3, receiver = $4, notes = $5, evidence_ref = $6,
			owner_id = $7, rate_snapshot = $8, usd_snapshot = $9,
			edited = TRUE, edited_at = $10, editor_id = $11
		WHERE id = $12`,
		r.Amount, r.Currency, r.Kind, r.Receiver, r.Notes, r.EvidenceRef,
		r.OwnerID, r.RateSnapshot, r.USDSnapshot,
		r.EditedAt, r.EditorID, r.ID)
	if err != nil {
		return 0, fmt.Errorf("update remittance edit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (q *Queries) DeleteRemittance(ctx context.Context, id uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx, `DELETE FROM remittances WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete remittance: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListStalePendingRemittances returns ids of pending remittances created at
// or before the cutoff that have not yet been flagged by the watchdog.
func (q *Queries) ListStalePendingRemittances(ctx context.Context, cutoff time.Time, limit int32) ([]uuid.UUID, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id FROM remittances
		WHERE state = 'pending' AND created_at <= $1 AND stale_notified_at IS NULL
		ORDER BY created_at
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending remittances: %w", err)
	}
	defer rows.Close()
	return collectIDs(rows)
}

func (q *Queries) SetRemittanceStaleNotified(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE remittances SET stale_notified_at = $1 WHERE id = $2`, at, id)
	if err != nil {
		return 0, fmt.Errorf("set remittance stale notified: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumCompletedRemittanceUSD aggregates pinned USD of completed remittances
// owned by the user, optionally bounded to a creation-date range. Legacy
// "confirmed" rows count as completed.
func (q *Queries) SumCompletedRemittanceUSD(ctx context.Context, ownerID uuid.UUID, from, to *time.Time) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(usd_snapshot), 0) FROM remittances
		WHERE owner_id = $1 AND state IN ('completed', 'confirmed') AND usd_snapshot IS NOT NULL
		  AND ($2::timestamptz IS NULL OR created_at >= $2)
		  AND ($3::timestamptz IS NULL OR created_at <= $3)`,
		ownerID, from, to).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum completed remittance usd: %w", err)
	}
	return sum, nil
}

// ListUnpinnedRemittances returns terminal-success rows that predate pinning,
// locked for backfill.
func (q *Queries) ListUnpinnedRemittances(ctx context.Context, ownerID uuid.UUID) ([]models.Remittance, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+remittanceColumns+` FROM remittances
		WHERE owner_id = $1 AND state IN ('completed', 'confirmed') AND usd_snapshot IS NULL
		FOR UPDATE`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list unpinned remittances: %w", err)
	}
	defer rows.Close()

	var out []models.Remittance
	for rows.Next() {
		r, err := scanRemittance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unpinned remittance: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PinRemittanceSnapshot backfills the pinned rate and USD value on a legacy row.
func (q *Queries) PinRemittanceSnapshot(ctx context.Context, id uuid.UUID, rate, usd decimal.Decimal) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE remittances SET rate_snapshot = $1, usd_snapshot = $2 WHERE id = $3`, rate, usd, id)
	if err != nil {
		return 0, fmt.Errorf("pin remittance snapshot: %w", err)
	}
	return tag.RowsAffected(), nil
}
