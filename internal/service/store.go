package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/remesaops/remesas-backend/internal/repository"
)

// QueryStore defines the minimal data access contract required by services.
type QueryStore interface {
	Queries() *repository.Queries
	RunInTx(ctx context.Context, fn func(q *repository.Queries) error) error
}

// BalanceInvalidator drops a user's cached balance on the commit path so that
// reads issued after a transition observe it.
type BalanceInvalidator interface {
	Invalidate(ctx context.Context, userID uuid.UUID)
}

func requireExactlyOne(rows int64, operation string) error {
	if rows != 1 {
		return fmt.Errorf("%s affected %d rows", operation, rows)
	}
	return nil
}
