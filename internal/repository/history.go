package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/remesaops/remesas-backend/internal/models"
)

func (q *Queries) InsertHistory(ctx context.Context, h models.StateHistoryEntry) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO state_history (op_type, op_id, kind, amount, actor_id, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`,
		h.OpType, h.OpID, h.Kind, h.Amount, h.ActorID, h.Detail)
	if err != nil {
		return fmt.Errorf("insert state history: %w", err)
	}
	return nil
}

func (q *Queries) ListHistory(ctx context.Context, opType string, opID uuid.UUID) ([]models.StateHistoryEntry, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, op_type, op_id, kind, amount, actor_id, detail, created_at
		FROM state_history
		WHERE op_type = $1 AND op_id = $2
		ORDER BY created_at`, opType, opID)
	if err != nil {
		return nil, fmt.Errorf("list state history: %w", err)
	}
	defer rows.Close()

	var out []models.StateHistoryEntry
	for rows.Next() {
		var h models.StateHistoryEntry
		if err := rows.Scan(&h.ID, &h.OpType, &h.OpID, &h.Kind, &h.Amount, &h.ActorID, &h.Detail, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan state history: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

func (q *Queries) CountHistory(ctx context.Context, opType string, opID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM state_history WHERE op_type = $1 AND op_id = $2`, opType, opID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count state history: %w", err)
	}
	return n, nil
}

// DeleteHistory removes the trail of a deleted operation.
func (q *Queries) DeleteHistory(ctx context.Context, opType string, opID uuid.UUID) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`DELETE FROM state_history WHERE op_type = $1 AND op_id = $2`, opType, opID)
	if err != nil {
		return 0, fmt.Errorf("delete state history: %w", err)
	}
	return tag.RowsAffected(), nil
}
