package queue

import (
	"context"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/colligo/internal/models"
)

func newTestManager(t *testing.T, visibility time.Duration, maxReceive int) (*Manager, *badger.DB) {
	t.Helper()

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	qm, err := NewManager(db, "test", visibility, maxReceive, arbor.NewLogger())
	require.NoError(t, err)
	return qm.(*Manager), db
}

func TestNewManagerValidation(t *testing.T) {
	logger := arbor.NewLogger()

	_, err := NewManager(nil, "test", time.Minute, 3, logger)
	assert.Error(t, err)

	opts := badger.DefaultOptions(t.TempDir()).WithLogger(nil)
	db, err := badger.Open(opts)
	require.NoError(t, err)
	defer db.Close()

	_, err = NewManager(db, "", time.Minute, 3, logger)
	assert.Error(t, err)
}

func TestEnqueueReceiveAck(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 42, Reason: "test"}))

	n, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), msg.JobID)
	assert.Equal(t, "test", msg.Reason)
	assert.NotEmpty(t, msg.QueueID)

	// In flight: not visible, but still counted.
	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)
	n, err = m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, deleteFn())
	n, err = m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReceiveEmptyQueue(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 3)

	_, _, err := m.Receive(context.Background())
	assert.ErrorIs(t, err, models.ErrNoMessage)
}

func TestFIFOOrdering(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 3)
	ctx := context.Background()

	for _, id := range []uint64{1, 2, 3} {
		require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: id, Reason: "order"}))
		// Index keys are timestamped at nanosecond resolution; spacing
		// the enqueues keeps the ordering unambiguous.
		time.Sleep(2 * time.Millisecond)
	}

	for _, want := range []uint64{1, 2, 3} {
		msg, deleteFn, err := m.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, msg.JobID)
		require.NoError(t, deleteFn())
	}
}

func TestVisibilityTimeoutRedelivery(t *testing.T) {
	m, _ := newTestManager(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 7, Reason: "retry"}))

	msg, _, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), msg.JobID)

	// Unacknowledged: invisible until the timeout lapses.
	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	time.Sleep(80 * time.Millisecond)

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), msg.JobID)
	require.NoError(t, deleteFn())
}

func TestEnqueueWithDelay(t *testing.T) {
	m, _ := newTestManager(t, time.Minute, 3)
	ctx := context.Background()

	require.NoError(t, m.EnqueueWithDelay(ctx, &models.QueueMessage{JobID: 9, Reason: "delayed"}, 60*time.Millisecond))

	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	time.Sleep(90 * time.Millisecond)

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), msg.JobID)
	require.NoError(t, deleteFn())
}

func TestPoisonMessageDropped(t *testing.T) {
	m, _ := newTestManager(t, 20*time.Millisecond, 2)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 13, Reason: "poison"}))

	// Burn through the allowed deliveries without acknowledging.
	for i := 0; i < 2; i++ {
		_, _, err := m.Receive(ctx)
		require.NoError(t, err)
		time.Sleep(40 * time.Millisecond)
	}

	// Third attempt drops the message instead of delivering it.
	_, _, err := m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	n, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestExtendVisibility(t *testing.T) {
	m, _ := newTestManager(t, 50*time.Millisecond, 3)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 21, Reason: "long-stage"}))

	msg, deleteFn, err := m.Receive(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Extend(ctx, msg.QueueID, 500*time.Millisecond))

	// Past the original timeout the extended message stays invisible.
	time.Sleep(80 * time.Millisecond)
	_, _, err = m.Receive(ctx)
	assert.ErrorIs(t, err, models.ErrNoMessage)

	require.NoError(t, deleteFn())
}

func TestAckAfterRedeliveryIsIdempotent(t *testing.T) {
	m, _ := newTestManager(t, 30*time.Millisecond, 5)
	ctx := context.Background()

	require.NoError(t, m.Enqueue(ctx, &models.QueueMessage{JobID: 5, Reason: "dup"}))

	_, firstDelete, err := m.Receive(ctx)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, secondDelete, err := m.Receive(ctx)
	require.NoError(t, err)

	// Either delivery may acknowledge; the second ack is a no-op.
	require.NoError(t, secondDelete())
	require.NoError(t, firstDelete())

	n, err := m.Length(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
