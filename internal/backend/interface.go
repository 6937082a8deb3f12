package backend

import (
	"context"

	"household/internal/sheets"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// WriterResult contains the mirror writer and optional cleanup function
type WriterResult struct {
	Writer  sheets.TransactionWriter
	Cleanup CleanupFunc
}

// Factory creates mirror writers based on configuration
type Factory interface {
	CreateWriter(ctx context.Context, config Config) (*WriterResult, error)
}

// Config holds configuration for mirror and messaging setup
type Config struct {
	Type BackendType

	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	GoogleSpreadsheetID string
	GoogleSheetName     string
}

// BackendType selects where transactions are mirrored
type BackendType string

const (
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
