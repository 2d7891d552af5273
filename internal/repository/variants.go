package repository

import (
	"context"
	"fmt"

	"github.com/remesaops/remesas-backend/internal/models"
)

func (q *Queries) GetVariant(ctx context.Context, name string) (models.ValuationVariant, error) {
	var v models.ValuationVariant
	err := q.db.QueryRow(ctx,
		`SELECT name, position, enabled, is_default FROM valuation_variants WHERE name = $1`, name).
		Scan(&v.Name, &v.Position, &v.Enabled, &v.IsDefault)
	return v, err
}

// DefaultVariant returns the registry's default rate variant. One must always
// exist.
func (q *Queries) DefaultVariant(ctx context.Context) (models.ValuationVariant, error) {
	var v models.ValuationVariant
	err := q.db.QueryRow(ctx,
		`SELECT name, position, enabled, is_default FROM valuation_variants WHERE is_default LIMIT 1`).
		Scan(&v.Name, &v.Position, &v.Enabled, &v.IsDefault)
	return v, err
}

func (q *Queries) ListVariants(ctx context.Context) ([]models.ValuationVariant, error) {
	rows, err := q.db.Query(ctx,
		`SELECT name, position, enabled, is_default FROM valuation_variants ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	defer rows.Close()

	var out []models.ValuationVariant
	for rows.Next() {
		var v models.ValuationVariant
		if err := rows.Scan(&v.Name, &v.Position, &v.Enabled, &v.IsDefault); err != nil {
			return nil, fmt.Errorf("scan variant: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (q *Queries) UpsertVariant(ctx context.Context, v models.ValuationVariant) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO valuation_variants (name, position, enabled, is_default)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			position = EXCLUDED.position,
			enabled = EXCLUDED.enabled,
			is_default = EXCLUDED.is_default`,
		v.Name, v.Position, v.Enabled, v.IsDefault)
	if err != nil {
		return fmt.Errorf("upsert variant %s: %w", v.Name, err)
	}
	return nil
}
