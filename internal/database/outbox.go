package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// EventStatus tracks an outbox row on its way to the listing stream.
type EventStatus string

const (
	StatusPending    EventStatus = "pending"
	StatusSent       EventStatus = "sent"
	StatusRetrying   EventStatus = "retrying"
	StatusDeadLetter EventStatus = "dead_letter"
)

const (
	// MaxAttempts is how many failed relays an event gets before it is
	// parked as a dead letter.
	MaxAttempts = 5

	// DefaultTargetStream receives listing events when none is set.
	DefaultTargetStream = "stream:listings"

	maxRetryDelay = 5 * time.Minute
)

var (
	ErrInvalidEvent  = errors.New("invalid outbox event")
	ErrEventNotFound = errors.New("outbox event not found")
)

// OutboxEvent is a listing event waiting in the outbox_event table. Column
// tags are used when scanning claimed rows.
type OutboxEvent struct {
	ID            uuid.UUID       `db:"id"`
	AggregateType string          `db:"aggregate_type"`
	AggregateID   string          `db:"aggregate_id"`
	EventType     string          `db:"event_type"`
	Payload       json.RawMessage `db:"payload"`
	TargetStream  string          `db:"target_stream"`
	Status        EventStatus     `db:"status"`
	RetryCount    int             `db:"retry_count"`
	ErrorMessage  *string         `db:"error_message"`
	CreatedAt     time.Time       `db:"created_at"`
	ProcessedAt   *time.Time      `db:"processed_at"`
	NextRetryAt   *time.Time      `db:"next_retry_at"`
}

func (e *OutboxEvent) validate() error {
	switch {
	case e.AggregateType == "", e.AggregateID == "", e.EventType == "":
		return fmt.Errorf("%w: aggregate type, aggregate id and event type are required", ErrInvalidEvent)
	case len(e.Payload) == 0:
		return fmt.Errorf("%w: payload is required", ErrInvalidEvent)
	case !json.Valid(e.Payload):
		return fmt.Errorf("%w: payload is not JSON", ErrInvalidEvent)
	}
	return nil
}

// retryAt doubles the wait with every attempt, from two seconds up to five
// minutes.
func retryAt(now time.Time, attempt int) time.Time {
	if attempt < 1 {
		attempt = 1
	}
	delay := maxRetryDelay
	if attempt < 9 {
		delay = min(time.Duration(1<<attempt)*time.Second, maxRetryDelay)
	}
	return now.Add(delay)
}

type OutboxRepository struct {
	db *DB
}

func NewOutboxRepository(db *DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

const outboxColumns = `id, aggregate_type, aggregate_id, event_type, payload, target_stream,
	status, retry_count, error_message, created_at, processed_at, next_retry_at`

// InsertWithTx queues e inside tx so the event commits or rolls back with
// the listing row it describes.
func (r *OutboxRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, e *OutboxEvent) error {
	if err := e.validate(); err != nil {
		return err
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.TargetStream == "" {
		e.TargetStream = DefaultTargetStream
	}
	e.CreatedAt = time.Now()
	if e.NextRetryAt == nil {
		due := e.CreatedAt
		e.NextRetryAt = &due
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO outbox_event (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, NULL, $10)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, e.Payload, e.TargetStream,
		string(e.Status), e.RetryCount, e.CreatedAt, e.NextRetryAt,
	)
	if err != nil {
		return fmt.Errorf("failed to queue %s event for %s: %w", e.EventType, e.AggregateID, err)
	}
	return nil
}

// Ready returns up to limit unsent events whose retry time has come, oldest
// first.
func (r *OutboxRepository) Ready(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT `+outboxColumns+`
		FROM outbox_event
		WHERE status = ANY($1) AND next_retry_at <= NOW()
		ORDER BY created_at, id
		LIMIT $2`,
		statusNames(StatusPending, StatusRetrying), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ready events: %w", err)
	}

	events, err := pgx.CollectRows(rows, pgx.RowToAddrOfStructByName[OutboxEvent])
	if err != nil {
		return nil, fmt.Errorf("failed to scan ready events: %w", err)
	}
	return events, nil
}

// MarkSent records that the event reached its stream.
func (r *OutboxRepository) MarkSent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $2, processed_at = NOW(), error_message = NULL
		WHERE id = $1 AND status <> $2`,
		id, string(StatusSent))
	if err != nil {
		return fmt.Errorf("failed to mark event %s sent: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrEventNotFound, id)
	}
	return nil
}

// MarkFailed counts a failed relay of e and schedules the next attempt, or
// parks the event once MaxAttempts is reached. e is updated to match the row.
func (r *OutboxRepository) MarkFailed(ctx context.Context, e *OutboxEvent, cause error) error {
	attempt := e.RetryCount + 1
	status := StatusRetrying
	if attempt >= MaxAttempts {
		status = StatusDeadLetter
	}
	next := retryAt(time.Now(), attempt)
	msg := cause.Error()

	// the retry_count guard keeps two relays from counting the same failure
	tag, err := r.db.pool.Exec(ctx, `
		UPDATE outbox_event
		SET status = $2, retry_count = $3, error_message = $4, next_retry_at = $5
		WHERE id = $1 AND retry_count = $6`,
		e.ID, string(status), attempt, msg, next, e.RetryCount)
	if err != nil {
		return fmt.Errorf("failed to record relay failure of %s: %w", e.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s at attempt %d", ErrEventNotFound, e.ID, e.RetryCount)
	}

	e.RetryCount = attempt
	e.Status = status
	e.ErrorMessage = &msg
	e.NextRetryAt = &next
	return nil
}

// PendingCount returns how many events still wait for the relay.
func (r *OutboxRepository) PendingCount(ctx context.Context) (int64, error) {
	return r.count(ctx, StatusPending, StatusRetrying)
}

// DeadLetterCount returns how many events exhausted their attempts.
func (r *OutboxRepository) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.count(ctx, StatusDeadLetter)
}

func (r *OutboxRepository) count(ctx context.Context, statuses ...EventStatus) (int64, error) {
	var n int64
	err := r.db.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM outbox_event WHERE status = ANY($1)`,
		statusNames(statuses...)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %v events: %w", statuses, err)
	}
	return n, nil
}

func statusNames(statuses ...EventStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
