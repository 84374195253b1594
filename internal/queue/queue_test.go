package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryQueue_FIFO(t *testing.T) {
	q := NewInMemoryQueue()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(&Task{Index: i}))
	}
	assert.Equal(t, 3, q.Size())

	for i := 1; i <= 3; i++ {
		task, err := q.TryPop()
		require.NoError(t, err)
		assert.Equal(t, i, task.Index)
		assert.False(t, task.CreatedAt.IsZero())
	}

	_, err := q.TryPop()
	assert.ErrorIs(t, err, ErrQueueEmpty)
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue()
	require.NoError(t, q.Push(&Task{Index: 1}))
	require.NoError(t, q.Close())

	assert.ErrorIs(t, q.Push(&Task{Index: 2}), ErrQueueClosed)

	// tasks queued before Close still drain
	task, err := q.TryPop()
	require.NoError(t, err)
	assert.Equal(t, 1, task.Index)

	_, err = q.TryPop()
	assert.ErrorIs(t, err, ErrQueueClosed)
	require.NoError(t, q.Close())
}
