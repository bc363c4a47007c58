package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishFansOut(t *testing.T) {
	b := New()
	_, ch1 := b.Subscribe(1)
	_, ch2 := b.Subscribe(1)

	published := b.PublishNew(AssignmentAccepted, "01ASSIGNMENT", map[string]string{"status": "ACCEPTED"})

	for _, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.Equal(t, published.ID, got.ID)
			assert.Equal(t, AssignmentAccepted, got.Type)
			assert.Equal(t, "01ASSIGNMENT", got.ResourceID)
			assert.Equal(t, "ACCEPTED", got.Metadata["status"])
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestBus_FullBufferDrops(t *testing.T) {
	b := New()
	_, ch := b.Subscribe(1)

	b.PublishNew(AssignmentCreated, "a", nil)
	b.PublishNew(AssignmentCreated, "b", nil)

	got := <-ch
	assert.Equal(t, "a", got.ResourceID)
	select {
	case extra := <-ch:
		t.Fatalf("unexpected event %s", extra.ResourceID)
	default:
	}
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	b := New()
	id, ch := b.Subscribe(1)
	b.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)

	// publishing after unsubscribe must not panic
	b.PublishNew(AssignmentTimedOut, "a", nil)
}
