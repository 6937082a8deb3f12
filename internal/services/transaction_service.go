package services

import (
	"context"
	"fmt"
	"log/slog"

	"household/internal/core"
)

// TransactionStore is the persistence surface TransactionService needs.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	ListTransactions(ctx context.Context, f core.TransactionFilter) (core.TransactionPage, error)
	UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
}

// TransactionService orchestrates manual transaction entry across SQLite and AMQP
type TransactionService struct {
	store     TransactionStore
	publisher TransactionPublisher
}

func NewTransactionService(store TransactionStore, publisher TransactionPublisher) *TransactionService {
	return &TransactionService{
		store:     store,
		publisher: publisher,
	}
}

// CreateTransaction saves a transaction locally and announces it for mirroring
func (s *TransactionService) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	// Save to SQLite first (fast, reliable)
	saved, err := s.store.CreateTransaction(ctx, t)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}

	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message", "id", saved.ID)
		return saved, nil
	}
	if err := s.publisher.PublishTransactionSync(ctx, saved); err != nil {
		// Don't fail the request - the transaction is saved locally
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", saved.ID, "error", err)
	}
	return saved, nil
}

func (s *TransactionService) GetTransaction(ctx context.Context, id string) (core.Transaction, error) {
	return s.store.GetTransaction(ctx, id)
}

func (s *TransactionService) ListTransactions(ctx context.Context, f core.TransactionFilter) (core.TransactionPage, error) {
	return s.store.ListTransactions(ctx, f)
}

// UpdateTransaction edits a stored transaction. Rows already mirrored to the
// sheet are not re-sent.
func (s *TransactionService) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if patch.IsEmpty() {
		return core.Transaction{}, ErrEmptyPatch
	}
	return s.store.UpdateTransaction(ctx, id, patch)
}

func (s *TransactionService) DeleteTransaction(ctx context.Context, id string) error {
	return s.store.DeleteTransaction(ctx, id)
}
