package memory

import (
	"context"
	"fmt"
	"sync"

	ports "household/internal/sheets"
)

// Store is an in-process TransactionWriter used when no spreadsheet is
// configured and in tests.
type Store struct {
	mu   sync.Mutex
	rows []ports.Row
	fail error
}

var _ ports.TransactionWriter = (*Store)(nil)

func New() *Store {
	return &Store{}
}

// AppendTransaction stores the row and returns a synthetic row reference.
func (s *Store) AppendTransaction(_ context.Context, r ports.Row) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return "", s.fail
	}
	s.rows = append(s.rows, r)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// FailWith makes subsequent appends return err until called with nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	s.fail = err
	s.mu.Unlock()
}

// Rows returns a copy of the appended rows in order.
func (s *Store) Rows() []ports.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.Row(nil), s.rows...)
}
