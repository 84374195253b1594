package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/listing-builder/internal/database"
	"github.com/maltedev/listing-builder/internal/listing"
	"github.com/maltedev/listing-builder/internal/models"
)

type EventType string

const (
	// EventTypeListingGenerated is published once a listing document is written.
	EventTypeListingGenerated EventType = "LISTING_GENERATED"

	aggregateListing = "listing"
	defaultSource    = "scraper"
)

// Generated describes a freshly written listing.
type Generated struct {
	RunID        uuid.UUID
	Index        int
	Site         string
	Record       models.Record
	Document     listing.Document
	ArtifactPath string
	Partial      bool
}

// ListingGeneratedPayload is the outbox payload for LISTING_GENERATED.
type ListingGeneratedPayload struct {
	EventID      string    `json:"event_id"`
	EventType    string    `json:"event_type"`
	Timestamp    time.Time `json:"timestamp"`
	ListingID    string    `json:"listing_id"`
	RunID        string    `json:"run_id"`
	Index        int       `json:"index"`
	URL          string    `json:"url"`
	Site         string    `json:"site"`
	Title        string    `json:"title"`
	ImageURLs    []string  `json:"image_urls"`
	VideoURLs    []string  `json:"video_urls,omitempty"`
	ArtifactPath string    `json:"artifact_path,omitempty"`
	Partial      bool      `json:"partial,omitempty"`
	Source       string    `json:"source"`
}

type txRunner interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type listingWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, l *database.Listing) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

// Publisher stores listings and their events using the transactional outbox.
type Publisher struct {
	db       txRunner
	listings listingWriter
	outbox   outboxWriter
	stream   string
	logger   *slog.Logger
}

func NewPublisher(db *database.DB, stream string, logger *slog.Logger) *Publisher {
	return newPublisher(db, database.NewListingRepository(db), database.NewOutboxRepository(db), stream, logger)
}

func newPublisher(db txRunner, listings listingWriter, outbox outboxWriter, stream string, logger *slog.Logger) *Publisher {
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	return &Publisher{
		db:       db,
		listings: listings,
		outbox:   outbox,
		stream:   stream,
		logger:   logger.With("component", "event_publisher"),
	}
}

// PublishListingGenerated inserts the listing row and its LISTING_GENERATED
// event in one transaction.
func (p *Publisher) PublishListingGenerated(ctx context.Context, g Generated) (uuid.UUID, error) {
	doc, err := json.Marshal(g.Document)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal document: %w", err)
	}

	row := &database.Listing{
		ID:           uuid.New(),
		RunID:        g.RunID,
		Index:        g.Index,
		URL:          g.Record.URL,
		Site:         g.Site,
		Title:        g.Record.Title,
		ImageCount:   len(g.Record.ImageURLs),
		VideoCount:   len(g.Record.VideoURLs),
		ArtifactPath: g.ArtifactPath,
		Document:     doc,
		CreatedAt:    time.Now(),
	}

	payload := ListingGeneratedPayload{
		EventID:      uuid.New().String(),
		EventType:    string(EventTypeListingGenerated),
		Timestamp:    row.CreatedAt,
		ListingID:    row.ID.String(),
		RunID:        g.RunID.String(),
		Index:        g.Index,
		URL:          g.Record.URL,
		Site:         g.Site,
		Title:        g.Record.Title,
		ImageURLs:    g.Record.ImageURLs,
		VideoURLs:    g.Record.VideoURLs,
		ArtifactPath: g.ArtifactPath,
		Partial:      g.Partial,
		Source:       defaultSource,
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	outboxEvent := &database.OutboxEvent{
		AggregateType: aggregateListing,
		AggregateID:   row.ID.String(),
		EventType:     string(EventTypeListingGenerated),
		Payload:       data,
		TargetStream:  p.stream,
	}

	err = p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if err := p.listings.InsertWithTx(ctx, tx, row); err != nil {
			return err
		}
		return p.outbox.InsertWithTx(ctx, tx, outboxEvent)
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to publish event: %w", err)
	}

	p.logger.Info("event published to outbox",
		"type", payload.EventType,
		"event_id", payload.EventID,
		"listing_id", row.ID,
		"url", row.URL,
		"outbox_id", outboxEvent.ID,
	)

	return row.ID, nil
}
