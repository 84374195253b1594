package database

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func generatedEvent(listingURL string) *OutboxEvent {
	return &OutboxEvent{
		AggregateType: "listing",
		AggregateID:   uuid.NewString(),
		EventType:     "LISTING_GENERATED",
		Payload:       json.RawMessage(`{"url":"` + listingURL + `","site":"very","title":"Arc Floor Lamp"}`),
	}
}

func TestRetryAt(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, now.Add(2*time.Second), retryAt(now, 0))
	assert.Equal(t, now.Add(2*time.Second), retryAt(now, 1))
	assert.Equal(t, now.Add(16*time.Second), retryAt(now, 4))
	assert.Equal(t, now.Add(256*time.Second), retryAt(now, 8))
	assert.Equal(t, now.Add(5*time.Minute), retryAt(now, 9))
	assert.Equal(t, now.Add(5*time.Minute), retryAt(now, 80))
}

func TestOutboxRepository_InsertRejectsIncompleteEvents(t *testing.T) {
	repo := NewOutboxRepository(nil)

	cases := map[string]*OutboxEvent{
		"missing aggregate": {EventType: "LISTING_GENERATED", Payload: json.RawMessage(`{}`)},
		"missing event type": {
			AggregateType: "listing", AggregateID: "x", Payload: json.RawMessage(`{}`),
		},
		"missing payload": {AggregateType: "listing", AggregateID: "x", EventType: "LISTING_GENERATED"},
		"payload not json": {
			AggregateType: "listing", AggregateID: "x", EventType: "LISTING_GENERATED",
			Payload: json.RawMessage(`{"url":`),
		},
	}
	for name, e := range cases {
		e := e
		t.Run(name, func(t *testing.T) {
			// a nil tx proves validation runs before any statement
			err := repo.InsertWithTx(context.Background(), nil, e)
			assert.ErrorIs(t, err, ErrInvalidEvent)
			assert.Equal(t, uuid.Nil, e.ID)
		})
	}
}

func TestStatusNames(t *testing.T) {
	assert.Equal(t, []string{"pending", "retrying"}, statusNames(StatusPending, StatusRetrying))
	assert.Empty(t, statusNames())
}

func TestOutboxRepository_InsertWithTx(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("defaults are filled in", func(t *testing.T) {
		e := generatedEvent("https://www.very.co.uk/1.prd")
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, e)
		})
		require.NoError(t, err)

		assert.NotEqual(t, uuid.Nil, e.ID)
		assert.Equal(t, StatusPending, e.Status)
		assert.Equal(t, DefaultTargetStream, e.TargetStream)
		require.NotNil(t, e.NextRetryAt)
		assert.Equal(t, e.CreatedAt, *e.NextRetryAt)
	})

	t.Run("rolled back with its transaction", func(t *testing.T) {
		e := generatedEvent("https://www.very.co.uk/2.prd")
		err := pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			if err := repo.InsertWithTx(ctx, tx, e); err != nil {
				return err
			}
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		ready, err := repo.Ready(ctx, 10)
		require.NoError(t, err)
		for _, r := range ready {
			assert.NotEqual(t, e.ID, r.ID)
		}
	})
}

func TestOutboxRepository_Ready(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	later := time.Now().Add(time.Hour)

	pending := generatedEvent("https://www.argos.co.uk/product/1")
	sent := generatedEvent("https://www.argos.co.uk/product/2")
	sent.Status = StatusSent
	retrying := generatedEvent("https://www.argos.co.uk/product/3")
	retrying.Status = StatusRetrying
	retrying.RetryCount = 2
	notYet := generatedEvent("https://www.argos.co.uk/product/4")
	notYet.Status = StatusRetrying
	notYet.NextRetryAt = &later
	dead := generatedEvent("https://www.argos.co.uk/product/5")
	dead.Status = StatusDeadLetter

	for _, e := range []*OutboxEvent{pending, sent, retrying, notYet, dead} {
		e := e
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, e)
		}))
	}

	ready, err := repo.Ready(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ready, 2)
	assert.Equal(t, pending.ID, ready[0].ID)
	assert.Equal(t, retrying.ID, ready[1].ID)
	assert.Equal(t, StatusRetrying, ready[1].Status)
	assert.Equal(t, 2, ready[1].RetryCount)
	assert.JSONEq(t, string(pending.Payload), string(ready[0].Payload))

	limited, err := repo.Ready(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	n, err := repo.PendingCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = repo.DeadLetterCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestOutboxRepository_MarkSent(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)
	e := generatedEvent("https://www.very.co.uk/1.prd")
	require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
		return repo.InsertWithTx(ctx, tx, e)
	}))

	require.NoError(t, repo.MarkSent(ctx, e.ID))

	var status string
	var processedAt *time.Time
	require.NoError(t, db.pool.QueryRow(ctx,
		"SELECT status, processed_at FROM outbox_event WHERE id = $1", e.ID).Scan(&status, &processedAt))
	assert.Equal(t, "sent", status)
	require.NotNil(t, processedAt)

	t.Run("twice", func(t *testing.T) {
		assert.ErrorIs(t, repo.MarkSent(ctx, e.ID), ErrEventNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, repo.MarkSent(ctx, uuid.New()), ErrEventNotFound)
	})
}

func TestOutboxRepository_MarkFailed(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	defer db.Close()

	repo := NewOutboxRepository(db)

	t.Run("schedules a retry", func(t *testing.T) {
		e := generatedEvent("https://www.very.co.uk/1.prd")
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, e)
		}))

		require.NoError(t, repo.MarkFailed(ctx, e, assert.AnError))
		assert.Equal(t, 1, e.RetryCount)
		assert.Equal(t, StatusRetrying, e.Status)

		var status string
		var attempts int
		var msg *string
		var next time.Time
		require.NoError(t, db.pool.QueryRow(ctx,
			"SELECT status, retry_count, error_message, next_retry_at FROM outbox_event WHERE id = $1",
			e.ID).Scan(&status, &attempts, &msg, &next))
		assert.Equal(t, "retrying", status)
		assert.Equal(t, 1, attempts)
		require.NotNil(t, msg)
		assert.Contains(t, *msg, "assert.AnError")
		assert.True(t, next.After(time.Now()))

		ready, err := repo.Ready(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, ready)
	})

	t.Run("stale copy is rejected", func(t *testing.T) {
		e := generatedEvent("https://www.very.co.uk/2.prd")
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, e)
		}))
		stale := *e

		require.NoError(t, repo.MarkFailed(ctx, e, assert.AnError))
		assert.ErrorIs(t, repo.MarkFailed(ctx, &stale, assert.AnError), ErrEventNotFound)
	})

	t.Run("last attempt parks the event", func(t *testing.T) {
		e := generatedEvent("https://www.very.co.uk/3.prd")
		e.RetryCount = MaxAttempts - 1
		require.NoError(t, pgx.BeginFunc(ctx, db.pool, func(tx pgx.Tx) error {
			return repo.InsertWithTx(ctx, tx, e)
		}))

		require.NoError(t, repo.MarkFailed(ctx, e, assert.AnError))
		assert.Equal(t, StatusDeadLetter, e.Status)
		assert.Equal(t, MaxAttempts, e.RetryCount)

		n, err := repo.DeadLetterCount(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

// setupTestDB connects to TEST_DATABASE_URL, applies the schema and empties
// the tables. Tests skip when the variable is unset.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := New(ctx, Config{DSN: dsn, MaxConns: 4})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(ctx))

	_, err = db.Exec(ctx, "TRUNCATE outbox_event, listings")
	require.NoError(t, err)

	return db
}
