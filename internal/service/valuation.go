package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/domain"
	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/repository"
)

// rateForUser resolves the exchange rate for a currency under the user's
// valuation variant. Users without a selection (or with a disabled variant)
// fall back to the registry default.
func rateForUser(ctx context.Context, q *repository.Queries, user models.User, c models.Currency) (decimal.Decimal, error) {
	variant := ""
	if user.Variant != nil {
		v, err := q.GetVariant(ctx, *user.Variant)
		switch {
		case err == nil && v.Enabled:
			variant = v.Name
		case err != nil && !errors.Is(err, pgx.ErrNoRows):
			return decimal.Zero, fmt.Errorf("load user variant: %w", err)
		}
	}
	if variant == "" {
		def, err := q.DefaultVariant(ctx)
		if err != nil {
			return decimal.Zero, fmt.Errorf("load default variant: %w", err)
		}
		variant = def.Name
	}

	var rate decimal.Decimal
	switch variant {
	case domain.VariantCommercial:
		rate = c.RateCommercial
	default:
		rate = c.RateCurrent
	}
	if !domain.ValidRate(rate) {
		return decimal.Zero, fmt.Errorf("currency %s has non-positive %s rate", c.Code, variant)
	}
	return rate, nil
}
