// Package indexer wraps the chain-indexing provider that watches addresses
// and delivers deposit notifications to our webhook endpoint.
package indexer

import (
	"context"
	"log/slog"
)

// Webhooks registers addresses with the indexing provider so deposits to
// them are delivered as events.
type Webhooks interface {
	WatchAddress(ctx context.Context, address string) error
}

// LoggerWebhooks is a stub implementation that only logs the registration.
// Used in development mode and tests.
type LoggerWebhooks struct {
	logger *slog.Logger
}

// NewLoggerWebhooks constructs the logging stub.
func NewLoggerWebhooks(logger *slog.Logger) *LoggerWebhooks {
	return &LoggerWebhooks{logger: logger}
}

// WatchAddress logs the address instead of registering it.
func (w *LoggerWebhooks) WatchAddress(_ context.Context, address string) error {
	if w == nil || w.logger == nil {
		return nil
	}
	w.logger.Info("watch address", "address", address)
	return nil
}
