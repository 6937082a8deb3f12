package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"household/internal/amqp"
	"household/internal/cache"
	"household/internal/core"
	"household/internal/sheets"
)

const (
	DefaultBatchSize    = 10
	DefaultPollInterval = time.Minute

	categoryCacheSize = 64
	categoryCacheTTL  = time.Hour

	markSyncedAttempts   = 3
	defaultMarkSyncDelay = 100 * time.Millisecond
)

// Store is the slice of the SQLite repository the worker reads and flags.
type Store interface {
	GetTransaction(ctx context.Context, id string) (core.Transaction, error)
	GetCategory(ctx context.Context, id string) (core.Category, error)
	GetPendingSyncTransactions(ctx context.Context, limit int) ([]string, error)
	MarkSynced(ctx context.Context, id string) error
	MarkSyncError(ctx context.Context, id string) error
}

// SyncWorker mirrors stored transactions to a spreadsheet. Messages drive
// the fast path; a periodic sweep of unsynced rows covers lost messages.
type SyncWorker struct {
	store        Store
	sheets       sheets.TransactionWriter
	batchSize    int
	pollInterval time.Duration
	categories   *cache.LRU[string]

	// serializes appends so the consumer and the sweep never mirror the same
	// row twice
	syncMu sync.Mutex

	// appended holds rows written to the sheet whose synced flag could not be
	// stored yet, keyed by id with the sheet reference. Guarded by syncMu.
	appended      map[string]string
	markSyncDelay time.Duration

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncWorker(store Store, writer sheets.TransactionWriter, batchSize int, pollInterval time.Duration) *SyncWorker {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &SyncWorker{
		store:         store,
		sheets:        writer,
		batchSize:     batchSize,
		pollInterval:  pollInterval,
		categories:    cache.NewLRU[string](categoryCacheSize, categoryCacheTTL),
		appended:      make(map[string]string),
		markSyncDelay: defaultMarkSyncDelay,
	}
}

// HandleSyncMessage processes a single transaction sync message from AMQP.
// A returned error requeues the message.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"transaction_id", msg.TransactionID,
		"rule_id", msg.RuleID)

	return w.syncTransaction(ctx, msg.TransactionID)
}

// ProcessPending mirrors up to limit unsynced transactions and reports how
// many were appended and how many failed.
func (w *SyncWorker) ProcessPending(ctx context.Context, limit int) (synced, failed int, err error) {
	ids, err := w.store.GetPendingSyncTransactions(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("get pending transactions: %w", err)
	}
	if len(ids) == 0 {
		return 0, 0, nil
	}

	slog.InfoContext(ctx, "Processing pending transactions", "count", len(ids))

	for _, id := range ids {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.syncTransaction(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to sync transaction", "id", id, "error", err)
			failed++
			continue
		}
		synced++
	}
	return synced, failed, nil
}

// StartupSyncCheck drains a larger batch once, to recover from worker
// downtime before the consumer starts.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.ProcessPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	slog.InfoContext(ctx, "Startup sync completed", "synced", synced, "errors", failed)
	return nil
}

// Start begins the periodic sweep. Returns an error if already running.
func (w *SyncWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("sync worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Sync sweep started",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize)
	return nil
}

// Stop signals the sweep to exit and waits for it, bounded by ctx.
func (w *SyncWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync sweep stopped gracefully")
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync sweep stop timed out")
		return ctx.Err()
	}
}

func (w *SyncWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *SyncWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, _, err := w.ProcessPending(ctx, w.batchSize); err != nil && ctx.Err() == nil {
				slog.ErrorContext(ctx, "Sync sweep failed", "error", err)
			}
		}
	}
}

func (w *SyncWorker) syncTransaction(ctx context.Context, id string) error {
	w.syncMu.Lock()
	defer w.syncMu.Unlock()

	t, err := w.store.GetTransaction(ctx, id)
	if errors.Is(err, core.ErrTransactionNotFound) {
		delete(w.appended, id)
		slog.WarnContext(ctx, "Transaction deleted before sync, skipping", "id", id)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get transaction from storage: %w", err)
	}
	if t.Synced {
		slog.DebugContext(ctx, "Transaction already synced", "id", id)
		return nil
	}

	category, err := w.categoryName(ctx, t.CategoryID)
	if err != nil {
		return err
	}

	row := sheets.NewRow(t, category)
	if err := row.Validate(); err != nil {
		// Malformed rows are flagged and left for manual review.
		if markErr := w.store.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark sync error", "id", id, "error", markErr)
		}
		slog.ErrorContext(ctx, "Transaction cannot be mirrored", "id", id, "error", err)
		return nil
	}

	if ref, ok := w.appended[id]; ok {
		// Already on the sheet; only the flag is missing.
		return w.markSynced(ctx, id, ref)
	}

	ref, err := w.sheets.AppendTransaction(ctx, row)
	if err != nil {
		return fmt.Errorf("append to sheets: %w", err)
	}
	if err := w.markSynced(ctx, id, ref); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Successfully synced transaction",
		"id", id,
		"sheets_ref", ref,
		"amount", t.Amount.String())
	return nil
}

// markSynced stores the synced flag for a row already on the sheet, retrying
// briefly. On failure the row is remembered so later attempts skip the append;
// a restart before the flag lands appends it again.
func (w *SyncWorker) markSynced(ctx context.Context, id, ref string) error {
	var err error
	delay := w.markSyncDelay
retry:
	for attempt := 1; ; attempt++ {
		if err = w.store.MarkSynced(ctx, id); err == nil {
			delete(w.appended, id)
			return nil
		}
		slog.WarnContext(ctx, "Failed to mark as synced",
			"id", id,
			"attempt", attempt,
			"error", err)
		if attempt == markSyncedAttempts {
			break
		}
		select {
		case <-ctx.Done():
			break retry
		case <-time.After(delay):
			delay *= 2
		}
	}

	w.appended[id] = ref
	slog.ErrorContext(ctx, "Row appended but not marked synced, a restart before the next attempt will append it again",
		"id", id,
		"sheets_ref", ref,
		"error", err)
	return fmt.Errorf("mark synced: %w", err)
}

// categoryName resolves a display name, falling back to the id for
// categories that no longer exist.
func (w *SyncWorker) categoryName(ctx context.Context, id string) (string, error) {
	if name, ok := w.categories.Get(id); ok {
		return name, nil
	}
	c, err := w.store.GetCategory(ctx, id)
	if errors.Is(err, core.ErrCategoryNotFound) {
		return id, nil
	}
	if err != nil {
		return "", fmt.Errorf("get category: %w", err)
	}
	w.categories.Set(id, c.Name)
	return c.Name, nil
}
