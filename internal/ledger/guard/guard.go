// Package guard decorates a ledger gateway with tracing, metrics and a circuit
// breaker. An open breaker fails calls fast as unavailable; it never retries and
// never substitutes a default result.
package guard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	dErrors "certledger/pkg/domain-errors"
	"certledger/pkg/platform/circuit"
)

// ErrCircuitOpen is the underlying cause when a call is refused by the breaker.
var ErrCircuitOpen = errors.New("ledger circuit open")

const tracerName = "certledger/internal/ledger"

type Gateway struct {
	next    ledger.Gateway
	breaker *circuit.Breaker
	tracer  trace.Tracer
	metrics *Metrics
	logger  *slog.Logger
}

type Option func(*Gateway)

func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) {
		g.breaker = b
	}
}

func WithMetrics(m *Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

func New(next ledger.Gateway, opts ...Option) *Gateway {
	g := &Gateway{
		next:    next,
		breaker: circuit.New("ledger"),
		tracer:  otel.Tracer(tracerName),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Count(ctx context.Context) (uint64, error) {
	var n uint64
	err := g.call(ctx, "count", nil, func(ctx context.Context) error {
		var err error
		n, err = g.next.Count(ctx)
		return err
	})
	return n, err
}

func (g *Gateway) GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	var record models.CertificateRecord
	err := g.call(ctx, "get_record", &id, func(ctx context.Context) error {
		var err error
		record, err = g.next.GetRecord(ctx, id)
		return err
	})
	return record, err
}

func (g *Gateway) Issue(ctx context.Context, record models.CertificateRecord) error {
	return g.call(ctx, "issue", &record.ID, func(ctx context.Context) error {
		return g.next.Issue(ctx, record)
	})
}

func (g *Gateway) Verify(ctx context.Context, id models.CertificateID) (bool, error) {
	var valid bool
	err := g.call(ctx, "verify", &id, func(ctx context.Context) error {
		var err error
		valid, err = g.next.Verify(ctx, id)
		return err
	})
	return valid, err
}

// Subscribe passes through to the wrapped gateway when it emits notifications.
func (g *Gateway) Subscribe(ctx context.Context) (<-chan ledger.Event, error) {
	n, ok := g.next.(ledger.Notifier)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInternal, "ledger backend does not emit notifications")
	}
	return n.Subscribe(ctx)
}

func (g *Gateway) call(ctx context.Context, op string, id *models.CertificateID, fn func(context.Context) error) error {
	if !g.breaker.Allow() {
		g.metrics.observe(op, "unavailable", 0)
		return ledger.Unavailable(ErrCircuitOpen, op)
	}

	ctx, span := g.tracer.Start(ctx, "ledger."+op)
	defer span.End()
	if id != nil {
		span.SetAttributes(attribute.Int64("certificate.id", int64(*id)))
	}

	start := time.Now()
	err := ledger.Classify(fn(ctx), op)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		g.metrics.observe(op, "ok", elapsed)
		g.recordSuccess(ctx)
	case dErrors.HasCode(err, dErrors.CodeLedgerUnavailable):
		g.metrics.observe(op, "unavailable", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.recordFailure(ctx, err)
	default:
		// The ledger answered; a rejection says nothing about its availability.
		g.metrics.observe(op, "rejected", elapsed)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.recordSuccess(ctx)
	}
	return err
}

func (g *Gateway) recordSuccess(ctx context.Context) {
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.metrics.setBreakerOpen(false)
		g.logger.InfoContext(ctx, "ledger circuit closed", "breaker", g.breaker.Name())
	}
}

func (g *Gateway) recordFailure(ctx context.Context, err error) {
	if _, change := g.breaker.RecordFailure(); change.Opened {
		g.metrics.setBreakerOpen(true)
		g.logger.WarnContext(ctx, "ledger circuit opened",
			"breaker", g.breaker.Name(),
			"error", err,
		)
	}
}
