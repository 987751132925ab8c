package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient(id string, buffer int) *Client {
	return &Client{ID: id, send: make(chan Message, buffer), logger: zap.NewNop()}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("expected a message")
		return Message{}
	}
}

func assertNoMessage(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message: %s", msg.Event)
	default:
	}
}

func TestPublishReachesAllConnectedObservers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	a := newTestClient("a", 4)
	b := newTestClient("b", 4)
	hub.Register(a)
	hub.Register(b)

	hub.Publish(EventSessionStarted, map[string]string{"id": "s1"})

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, EventSessionStarted, msg.Event)
		assert.False(t, msg.At.IsZero(), "messages are timestamped")
		assert.JSONEq(t, `{"id":"s1"}`, string(msg.Data))
	}
}

func TestLateSubscriberNeverSeesEarlierEvents(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)

	hub.Publish(EventSessionStarted, map[string]string{"id": "s1"})

	late := newTestClient("late", 4)
	hub.Register(late)
	assertNoMessage(t, late)

	// But it does see what is published afterwards.
	hub.Publish(EventSessionEnded, map[string]string{"id": "s1"})
	msg := receive(t, late)
	assert.Equal(t, EventSessionEnded, msg.Event)
}

func TestSlowObserverDropsInsteadOfBlocking(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	slow := newTestClient("slow", 1)
	hub.Register(slow)

	done := make(chan struct{})
	go func() {
		// Second publish overflows the buffer; it must not block.
		hub.Publish(EventAudioLevel, map[string]float64{"level": 10})
		hub.Publish(EventAudioLevel, map[string]float64{"level": 20})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow observer")
	}
	require.Len(t, slow.send, 1, "overflow message is dropped, not queued")
}

func TestUnregisteredObserverReceivesNothing(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil, nil)
	c := newTestClient("c", 4)
	hub.Register(c)
	assert.Equal(t, 1, hub.ObserverCount())

	hub.Unregister(c)
	assert.Equal(t, 0, hub.ObserverCount())

	hub.Publish(EventEnvironment, map[string]float64{"co2": 850})
	assertNoMessage(t, c)
}
