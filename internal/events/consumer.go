package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// EventTypeScrapeRequested asks a consumer to scrape one or more URLs.
const EventTypeScrapeRequested EventType = "SCRAPE_REQUESTED"

const (
	DefaultRequestStream = "stream:scrape_requests"
	DefaultConsumerGroup = "listing-builder"
)

// ErrInvalidRequest marks a stream message that can never be processed.
var ErrInvalidRequest = errors.New("invalid scrape request")

// StreamClient is the subset of the redis client the consumer needs.
type StreamClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// RequestHandler runs the batch of URLs carried by message id.
type RequestHandler func(ctx context.Context, id string, urls []string) error

// ScrapeRequestedPayload is the JSON payload of a SCRAPE_REQUESTED message.
type ScrapeRequestedPayload struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

type ConsumerConfig struct {
	Stream string
	Group  string
	Name   string
	Block  time.Duration
	Count  int64
}

// Consumer reads scrape requests from a Redis stream as part of a
// consumer group and hands them to a RequestHandler.
type Consumer struct {
	client StreamClient
	handle RequestHandler
	logger *slog.Logger
	cfg    ConsumerConfig
}

func NewConsumer(client StreamClient, handle RequestHandler, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Stream == "" {
		cfg.Stream = DefaultRequestStream
	}
	if cfg.Group == "" {
		cfg.Group = DefaultConsumerGroup
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Block == 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Count == 0 {
		cfg.Count = 1
	}

	return &Consumer{
		client: client,
		handle: handle,
		logger: logger.With("component", "consumer"),
		cfg:    cfg,
	}
}

// Run consumes until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group, "name", c.cfg.Name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if _, err := c.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one round of messages and processes them, returning how many
// were acknowledged.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.cfg.Group,
		Consumer: c.cfg.Name,
		Streams:  []string{c.cfg.Stream, ">"},
		Count:    c.cfg.Count,
		Block:    c.cfg.Block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	acked := 0
	for _, stream := range streams {
		for _, msg := range stream.Messages {
			if err := c.process(ctx, msg); err != nil {
				c.logger.Error("failed to process message", "id", msg.ID, "error", err)
				continue
			}
			if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
				c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
				continue
			}
			acked++
		}
	}
	return acked, nil
}

// process returns nil for every message that should be acknowledged.
func (c *Consumer) process(ctx context.Context, msg redis.XMessage) error {
	urls, err := ParseRequest(msg)
	if errors.Is(err, ErrInvalidRequest) {
		c.logger.Warn("dropping malformed request", "id", msg.ID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}

	c.logger.Info("processing request", "id", msg.ID, "urls", len(urls))
	return c.handle(ctx, msg.ID, urls)
}

// ParseRequest extracts the URLs from a stream message. Messages of another
// event type yield no URLs and no error.
func ParseRequest(msg redis.XMessage) ([]string, error) {
	if raw, ok := msg.Values["url"].(string); ok {
		if strings.TrimSpace(raw) == "" {
			return nil, fmt.Errorf("%w: empty url", ErrInvalidRequest)
		}
		return []string{raw}, nil
	}

	eventType, _ := msg.Values["event_type"].(string)
	if eventType != string(EventTypeScrapeRequested) {
		return nil, nil
	}

	raw, ok := msg.Values["payload"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: missing payload", ErrInvalidRequest)
	}

	var payload ScrapeRequestedPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var urls []string
	if payload.URL != "" {
		urls = append(urls, payload.URL)
	}
	for _, u := range payload.URLs {
		if strings.TrimSpace(u) != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no urls", ErrInvalidRequest)
	}
	return urls, nil
}
