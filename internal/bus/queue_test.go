package bus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftline/activitybus/internal/activity"
)

func TestActivityQueue_FIFO(t *testing.T) {
	q := newActivityQueue()

	for _, id := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(activity.Activity{"id": id}))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"a", "b", "c"} {
		got, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, got.ID())
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestActivityQueue_SignalWakesWaiter(t *testing.T) {
	q := newActivityQueue()

	done := make(chan activity.Activity, 1)
	go func() {
		for {
			if act, ok := q.TryDequeue(); ok {
				done <- act
				return
			}
			<-q.Wait()
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(activity.Activity{"id": "a1"})

	select {
	case act := <-done:
		assert.Equal(t, "a1", act.ID())
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestActivityQueue_Close(t *testing.T) {
	q := newActivityQueue()
	q.Enqueue(activity.Activity{"id": "a1"})
	q.Close()

	// Closed queue rejects new items but drains existing ones.
	assert.False(t, q.Enqueue(activity.Activity{"id": "a2"}))
	assert.True(t, q.Closed())

	got, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "a1", got.ID())

	// Close is idempotent.
	q.Close()

	// The signal channel is closed, so waiters wake immediately.
	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait did not fire after Close")
	}
}
