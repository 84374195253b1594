package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StreamWriter is the part of the redis client the relay writes through.
type StreamWriter interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// EventSource is the outbox as the relay sees it.
type EventSource interface {
	Ready(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, e *OutboxEvent, cause error) error
}

// Relay forwards committed listing events from the outbox to Redis streams.
type Relay struct {
	events   EventSource
	out      StreamWriter
	logger   *slog.Logger
	interval time.Duration
	batch    int
	maxLen   int64
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxLen caps each stream at roughly this many entries. Zero keeps
	// everything.
	MaxLen int64
}

func NewRelay(events EventSource, out StreamWriter, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Relay{
		events:   events,
		out:      out,
		logger:   logger.With("component", "relay"),
		interval: cfg.PollInterval,
		batch:    cfg.BatchSize,
		maxLen:   cfg.MaxLen,
	}
}

// Run relays a batch every poll interval until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.Info("relay started", "interval", r.interval, "batch_size", r.batch)

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := r.relayBatch(ctx); err != nil && ctx.Err() == nil {
			r.logger.Error("relay batch failed", "error", err)
		}
		timer.Reset(r.interval)
	}
}

// Drain relays batches back to back and returns how many events were sent.
// It stops once a batch sends nothing, so events that keep failing wait for
// their retry time instead of spinning.
func (r *Relay) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		sent, err := r.relayBatch(ctx)
		total += sent
		if err != nil || sent == 0 {
			return total, err
		}
	}
}

func (r *Relay) relayBatch(ctx context.Context) (int, error) {
	events, err := r.events.Ready(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range events {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := r.forward(ctx, e); err != nil {
			r.logger.Warn("listing event not relayed",
				"outbox_id", e.ID,
				"listing_id", e.AggregateID,
				"attempt", e.RetryCount+1,
				"error", err)
			continue
		}
		sent++
	}
	if len(events) > 0 {
		r.logger.Debug("relay batch done", "ready", len(events), "sent", sent)
	}
	return sent, nil
}

func (r *Relay) forward(ctx context.Context, e *OutboxEvent) error {
	fields, err := streamFields(e)
	if err == nil {
		args := &redis.XAddArgs{Stream: e.TargetStream, Values: fields}
		if r.maxLen > 0 {
			args.MaxLen = r.maxLen
			args.Approx = true
		}
		var entryID string
		if entryID, err = r.out.XAdd(ctx, args).Result(); err == nil {
			if err := r.events.MarkSent(ctx, e.ID); err != nil {
				return err
			}
			r.logger.Info("listing event relayed",
				"outbox_id", e.ID,
				"listing_id", e.AggregateID,
				"stream", e.TargetStream,
				"entry_id", entryID)
			return nil
		}
		err = fmt.Errorf("xadd %s: %w", e.TargetStream, err)
	}

	if markErr := r.events.MarkFailed(ctx, e, err); markErr != nil {
		r.logger.Error("failed to record relay failure", "outbox_id", e.ID, "error", markErr)
	} else if e.Status == StatusDeadLetter {
		r.logger.Error("listing event moved to dead letter", "outbox_id", e.ID, "attempts", e.RetryCount)
	}
	return err
}

// listingHeader is the part of a LISTING_GENERATED payload copied into flat
// stream fields so readers can route entries without decoding the payload.
type listingHeader struct {
	RunID string `json:"run_id"`
	URL   string `json:"url"`
	Site  string `json:"site"`
}

// streamFields flattens e into a stream entry. The payload travels verbatim
// as JSON text.
func streamFields(e *OutboxEvent) (map[string]interface{}, error) {
	var h listingHeader
	if err := json.Unmarshal(e.Payload, &h); err != nil {
		return nil, fmt.Errorf("%w: payload of %s: %v", ErrInvalidEvent, e.ID, err)
	}
	return map[string]interface{}{
		"event_type":     e.EventType,
		"aggregate_type": e.AggregateType,
		"listing_id":     e.AggregateID,
		"listing_url":    h.URL,
		"site":           h.Site,
		"run_id":         h.RunID,
		"payload":        string(e.Payload),
		"outbox_id":      e.ID.String(),
		"attempt":        strconv.Itoa(e.RetryCount + 1),
		"created_at":     e.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}
