package backend

import (
	"context"
	"fmt"
	"log/slog"

	"household/internal/amqp"
	"household/internal/services"
	gsheet "household/internal/sheets/google"
	"household/internal/sheets/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateWriter implements Factory.CreateWriter
func (f *DefaultFactory) CreateWriter(ctx context.Context, config Config) (*WriterResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		cli, err := gsheet.NewFromEnv(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		f.logger.Info("Initialized Google Sheets mirror", "spreadsheet_id", config.GoogleSpreadsheetID)
		return &WriterResult{Writer: cli}, nil
	case MemoryBackend:
		f.logger.Info("Initialized in-memory mirror")
		return &WriterResult{Writer: memory.New()}, nil
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// ConnectPublisher dials AMQP when configured. A nil publisher means sync
// messages are disabled and unsynced rows wait for the worker's sweep.
func ConnectPublisher(config Config, logger *slog.Logger) (services.TransactionPublisher, CleanupFunc) {
	if logger == nil {
		logger = slog.Default()
	}
	if config.AMQPURL == "" {
		logger.Info("AMQP not configured, sync messages disabled")
		return nil, nil
	}

	client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		return nil, nil
	}
	logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client, client.Close
}
