package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/remesaops/remesas-backend/internal/models"
	"github.com/remesaops/remesas-backend/internal/repository"
)

// HistoryService writes immutable per-transaction state history. A failed
// history write aborts the enclosing transition transaction.
type HistoryService struct{}

func NewHistoryService() *HistoryService {
	return &HistoryService{}
}

// HistoryReader serves the per-operation history trail to the API.
type HistoryReader struct {
	store QueryStore
}

func NewHistoryReader(store QueryStore) *HistoryReader {
	return &HistoryReader{store: store}
}

func (r *HistoryReader) List(ctx context.Context, opType string, opID uuid.UUID) ([]models.StateHistoryEntry, error) {
	entries, err := r.store.Queries().ListHistory(ctx, opType, opID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return entries, nil
}

// Write stores a single history record inside the caller's transaction.
func (s *HistoryService) Write(ctx context.Context, qtx *repository.Queries, opType string, opID uuid.UUID, kind string, amount decimal.Decimal, actorID *uuid.UUID, detail string) error {
	if err := qtx.InsertHistory(ctx, models.StateHistoryEntry{
		OpType:  opType,
		OpID:    opID,
		Kind:    kind,
		Amount:  amount,
		ActorID: actorID,
		Detail:  detail,
	}); err != nil {
		return fmt.Errorf("write state history: %w", err)
	}
	return nil
}
