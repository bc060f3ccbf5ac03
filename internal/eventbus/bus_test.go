package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	t.Parallel()
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Publish(b, UserSignup, "x")

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, UserSignup, e.Type)
			assert.Equal(t, "x", e.Data)
			assert.False(t, e.Time.IsZero())
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestFullBufferDrops(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	defer unsub()

	for i := 0; i < 3; i++ {
		b.Publish(Event{Type: TaskStarted, Data: i})
	}
	assert.Equal(t, uint64(2), Dropped(b))
	e := <-ch
	assert.Equal(t, 0, e.Data)
}

func TestUnsubscribeClosesAndIsIdempotent(t *testing.T) {
	t.Parallel()
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, ok := <-ch
	require.False(t, ok)

	// Publishing after unsubscribe must not panic.
	b.Publish(Event{Type: TaskFinished})
	assert.Zero(t, Dropped(b))
}

func TestNilBusPublish(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() { Publish(nil, FetchFailed, nil) })
	assert.Zero(t, Dropped(nil))
}
