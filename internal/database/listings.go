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

var ErrListingNotFound = errors.New("listing not found")

// Listing is one merged document produced by a batch run.
type Listing struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	RunID        uuid.UUID       `db:"run_id" json:"run_id"`
	Index        int             `db:"input_index" json:"index"`
	URL          string          `db:"url" json:"url"`
	Site         string          `db:"site" json:"site"`
	Title        string          `db:"title" json:"title"`
	ImageCount   int             `db:"image_count" json:"image_count"`
	VideoCount   int             `db:"video_count" json:"video_count"`
	ArtifactPath string          `db:"artifact_path" json:"artifact_path"`
	Document     json.RawMessage `db:"document" json:"document"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

type ListingRepository struct {
	db *DB
}

func NewListingRepository(db *DB) *ListingRepository {
	return &ListingRepository{db: db}
}

// InsertWithTx stores l inside tx, assigning an ID and timestamp when unset.
func (r *ListingRepository) InsertWithTx(ctx context.Context, tx pgx.Tx, l *Listing) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO listings (
			id, run_id, input_index, url, site, title,
			image_count, video_count, artifact_path, document, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)`

	_, err := tx.Exec(ctx, query,
		l.ID, l.RunID, l.Index, l.URL, l.Site, l.Title,
		l.ImageCount, l.VideoCount, l.ArtifactPath, l.Document, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	return nil
}

func (r *ListingRepository) Get(ctx context.Context, id uuid.UUID) (*Listing, error) {
	query := `
		SELECT id, run_id, input_index, url, site, title,
			image_count, video_count, artifact_path, document, created_at
		FROM listings
		WHERE id = $1`

	l := &Listing{}
	err := r.db.pool.QueryRow(ctx, query, id).Scan(
		&l.ID, &l.RunID, &l.Index, &l.URL, &l.Site, &l.Title,
		&l.ImageCount, &l.VideoCount, &l.ArtifactPath, &l.Document, &l.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}

	return l, nil
}

// ListByRun returns a run's listings in input order.
func (r *ListingRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*Listing, error) {
	query := `
		SELECT id, run_id, input_index, url, site, title,
			image_count, video_count, artifact_path, document, created_at
		FROM listings
		WHERE run_id = $1
		ORDER BY input_index ASC`

	rows, err := r.db.pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	defer rows.Close()

	var out []*Listing
	for rows.Next() {
		l := &Listing{}
		if err := rows.Scan(
			&l.ID, &l.RunID, &l.Index, &l.URL, &l.Site, &l.Title,
			&l.ImageCount, &l.VideoCount, &l.ArtifactPath, &l.Document, &l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan listing: %w", err)
		}
		out = append(out, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return out, nil
}
