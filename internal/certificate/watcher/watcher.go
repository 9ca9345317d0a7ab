// Package watcher rebuilds the certificate cache when the registry announces an
// issuance or revocation, so changes made by other operators show up without a
// manual refresh.
package watcher

import (
	"context"
	"log/slog"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
)

// Refresher is the service operation triggered per notification.
type Refresher interface {
	Refresh(ctx context.Context) ([]models.CertificateRecord, error)
}

type Watcher struct {
	notifier  ledger.Notifier
	refresher Refresher
	logger    *slog.Logger
}

type Option func(*Watcher)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

func New(notifier ledger.Notifier, refresher Refresher, opts ...Option) *Watcher {
	w := &Watcher{notifier: notifier, refresher: refresher, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run subscribes and refreshes once per event until ctx is done or the
// subscription closes. A failed refresh is logged and the watcher keeps going;
// the previous snapshot stays in place.
func (w *Watcher) Run(ctx context.Context) error {
	events, err := w.notifier.Subscribe(ctx)
	if err != nil {
		return err
	}
	w.logger.InfoContext(ctx, "watching ledger events")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				w.logger.InfoContext(ctx, "ledger event subscription closed")
				return nil
			}
			w.handle(ctx, event)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event ledger.Event) {
	records, err := w.refresher.Refresh(ctx)
	if err != nil {
		w.logger.WarnContext(ctx, "refresh after ledger event failed",
			"event", string(event.Kind),
			"certificate_id", event.ID.String(),
			"error", err,
		)
		return
	}
	w.logger.DebugContext(ctx, "cache refreshed after ledger event",
		"event", string(event.Kind),
		"certificate_id", event.ID.String(),
		"records", len(records),
	)
}
