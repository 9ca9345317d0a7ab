// Package redis keeps the certificate registry in Redis so several local
// processes (server, certctl, watchers) share one development ledger with the
// contract's rules: caller-assigned ids, duplicate rejection, a monotonically
// increasing count, and issued/revoked notifications over pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/redis/go-redis/v9"

	"certledger/internal/certificate/models"
	"certledger/internal/ledger"
	"certledger/pkg/platform/sentinel"
)

const (
	fieldRecipient = "recipient"
	fieldCourse    = "course"
	fieldIssueDate = "issue_date"
	fieldValid     = "valid"
)

type Ledger struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

type Option func(*Ledger)

func WithKeyPrefix(prefix string) Option {
	return func(l *Ledger) {
		l.prefix = prefix
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func New(client *redis.Client, opts ...Option) *Ledger {
	l := &Ledger{client: client, prefix: "certledger", logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Ledger) countKey() string { return l.prefix + ":count" }

func (l *Ledger) recordKey(id models.CertificateID) string {
	return l.prefix + ":cert:" + id.String()
}

func (l *Ledger) eventsChannel() string { return l.prefix + ":events" }

func (l *Ledger) Count(ctx context.Context) (uint64, error) {
	n, err := l.client.Get(ctx, l.countKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, classify(err, "count certificates")
	}
	return n, nil
}

func (l *Ledger) GetRecord(ctx context.Context, id models.CertificateID) (models.CertificateRecord, error) {
	fields, err := l.client.HGetAll(ctx, l.recordKey(id)).Result()
	if err != nil {
		return models.CertificateRecord{}, classify(err, "get certificate")
	}
	if len(fields) == 0 {
		return models.CertificateRecord{}, ledger.Rejected(
			fmt.Errorf("certificate %s: %w", id, sentinel.ErrNotFound), "get certificate")
	}
	return decodeRecord(id, fields)
}

// Issue stores the record under WATCH so two concurrent issuers of the same id
// cannot both succeed.
func (l *Ledger) Issue(ctx context.Context, record models.CertificateRecord) error {
	key := l.recordKey(record.ID)
	payload, err := json.Marshal(eventPayload{
		Kind:          ledger.EventIssued,
		ID:            uint64(record.ID),
		RecipientName: record.RecipientName,
		CourseName:    record.CourseName,
		IssueDate:     record.IssueDate,
	})
	if err != nil {
		return fmt.Errorf("encode issued event: %w", err)
	}

	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("certificate %s: %w", record.ID, sentinel.ErrConflict)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key,
				fieldRecipient, record.RecipientName,
				fieldCourse, record.CourseName,
				fieldIssueDate, record.IssueDate,
				fieldValid, "1",
			)
			pipe.Incr(ctx, l.countKey())
			pipe.Publish(ctx, l.eventsChannel(), payload)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return classify(err, "issue certificate")
	}
	return nil
}

func (l *Ledger) Verify(ctx context.Context, id models.CertificateID) (bool, error) {
	v, err := l.client.HGet(ctx, l.recordKey(id), fieldValid).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, classify(err, "verify certificate")
	}
	return v == "1", nil
}

// Revoke stands in for the registry owner's revokeCertificate transaction.
func (l *Ledger) Revoke(ctx context.Context, id models.CertificateID) error {
	key := l.recordKey(id)
	payload, err := json.Marshal(eventPayload{Kind: ledger.EventRevoked, ID: uint64(id)})
	if err != nil {
		return fmt.Errorf("encode revoked event: %w", err)
	}
	err = l.client.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists == 0 {
			return fmt.Errorf("certificate %s: %w", id, sentinel.ErrNotFound)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldValid, "0")
			pipe.Publish(ctx, l.eventsChannel(), payload)
			return nil
		})
		return err
	}, key)
	if err != nil {
		return classify(err, "revoke certificate")
	}
	return nil
}

// Subscribe relays pub/sub notifications until ctx is done.
func (l *Ledger) Subscribe(ctx context.Context) (<-chan ledger.Event, error) {
	pubsub := l.client.Subscribe(ctx, l.eventsChannel())
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, classify(err, "subscribe to certificate events")
	}

	out := make(chan ledger.Event, 16)
	go func() {
		defer close(out)
		defer pubsub.Close()
		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var p eventPayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					l.logger.WarnContext(ctx, "discarding malformed certificate event",
						"channel", msg.Channel,
						"error", err,
					)
					continue
				}
				select {
				case out <- p.toEvent():
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

type eventPayload struct {
	Kind          ledger.EventKind `json:"kind"`
	ID            uint64           `json:"id"`
	RecipientName string           `json:"recipient_name,omitempty"`
	CourseName    string           `json:"course_name,omitempty"`
	IssueDate     int64            `json:"issue_date,omitempty"`
}

func (p eventPayload) toEvent() ledger.Event {
	return ledger.Event{
		Kind:          p.Kind,
		ID:            models.CertificateID(p.ID),
		RecipientName: p.RecipientName,
		CourseName:    p.CourseName,
		IssueDate:     p.IssueDate,
	}
}

func decodeRecord(id models.CertificateID, fields map[string]string) (models.CertificateRecord, error) {
	issueDate, err := strconv.ParseInt(fields[fieldIssueDate], 10, 64)
	if err != nil {
		return models.CertificateRecord{}, ledger.Rejected(
			fmt.Errorf("certificate %s: malformed issue date %q", id, fields[fieldIssueDate]), "get certificate")
	}
	return models.CertificateRecord{
		ID:            id,
		RecipientName: fields[fieldRecipient],
		CourseName:    fields[fieldCourse],
		IssueDate:     issueDate,
		IsValid:       fields[fieldValid] == "1",
	}, nil
}

// classify maps go-redis failures: server replies and domain conflicts are
// rejections, transport failures are unavailability.
func classify(err error, message string) error {
	var replyErr redis.Error
	switch {
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrNotFound):
		return ledger.Rejected(err, message)
	case errors.Is(err, redis.TxFailedErr):
		return ledger.Rejected(fmt.Errorf("%w: %w", sentinel.ErrConflict, err), message)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ledger.Unavailable(err, message)
	case errors.As(err, &replyErr):
		return ledger.Rejected(err, message)
	default:
		return ledger.Unavailable(fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err), message)
	}
}
