package channel

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// inlineDispatcher runs events on the caller goroutine
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) bool {
	fn()
	return true
}

// refusingDispatcher drops every event
type refusingDispatcher struct{}

func (refusingDispatcher) Dispatch(func()) bool { return false }

func publish(t *testing.T, tr Transport, topic string, v any) {
	t.Helper()

	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Failed to encode payload: %v", err)
	}
	if err = tr.Publish(context.Background(), topic, data); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
}

func TestTopic_SubscribeDeliversInOrder(t *testing.T) {
	tr := NewMemoryTransport()
	topic := NewTopic[telemetry.Orientation](telemetry.TopicAttitude, tr, inlineDispatcher{})

	var got []telemetry.Orientation
	sub, err := topic.Subscribe(func(o telemetry.Orientation) {
		got = append(got, o)
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer sub.Close()

	want := []telemetry.Orientation{
		{Roll: 0.1, Pitch: 0.2, Yaw: 0.3},
		{Roll: -0.1, Pitch: 0, Yaw: 1.5},
		{Roll: 0, Pitch: -0.4, Yaw: 3.1},
	}
	for _, o := range want {
		publish(t, tr, telemetry.TopicAttitude, o)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivered snapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestTopic_SkipsMalformedPayloads(t *testing.T) {
	tr := NewMemoryTransport()

	var invalid int
	topic := NewTopic[telemetry.Status](telemetry.TopicStatus, tr, inlineDispatcher{},
		WithInvalidHook(func(string) { invalid++ }))

	var got []telemetry.Status
	sub, err := topic.Subscribe(func(s telemetry.Status) { got = append(got, s) })
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	_ = tr.Publish(context.Background(), telemetry.TopicStatus, []byte(`{"armed":"yes"`))
	publish(t, tr, telemetry.TopicStatus, telemetry.Status{Armed: true, FlightMode: "GUIDED"})

	if invalid != 1 {
		t.Errorf("expected 1 invalid payload, got %d", invalid)
	}
	if !sub.Active() {
		t.Fatal("subscription should stay active after a malformed payload")
	}
	want := []telemetry.Status{{Armed: true, FlightMode: "GUIDED"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("delivered snapshots mismatch (-want +got):\n%s", diff)
	}
}

func TestTopic_StrictDecodingFailsSubscription(t *testing.T) {
	tr := NewMemoryTransport()
	topic := NewTopic[telemetry.Motion](telemetry.TopicIMU, tr, inlineDispatcher{}, WithStrictDecoding())

	calls := 0
	sub, err := topic.Subscribe(func(telemetry.Motion) { calls++ })
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	_ = tr.Publish(context.Background(), telemetry.TopicIMU, []byte(`[1,2,3]`))
	publish(t, tr, telemetry.TopicIMU, telemetry.Motion{})

	if calls != 0 {
		t.Errorf("handler should not run after a strict failure, ran %d times", calls)
	}
	if sub.Active() {
		t.Error("subscription should be closed")
	}
	if !errors.Is(sub.Err(), telemetry.ErrInvalidSnapshot) {
		t.Errorf("expected ErrInvalidSnapshot, got %v", sub.Err())
	}
	if n := tr.Subscribers(telemetry.TopicIMU); n != 0 {
		t.Errorf("expected transport subscriber to be removed, got %d", n)
	}
}

func TestTopic_CloseStopsDelivery(t *testing.T) {
	tr := NewMemoryTransport()
	topic := NewTopic[telemetry.Status](telemetry.TopicStatus, tr, inlineDispatcher{})

	calls := 0
	sub, err := topic.Subscribe(func(telemetry.Status) { calls++ })
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}

	publish(t, tr, telemetry.TopicStatus, telemetry.Status{})
	if err = sub.Close(); err != nil {
		t.Fatalf("Failed to close subscription: %v", err)
	}
	if err = sub.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	publish(t, tr, telemetry.TopicStatus, telemetry.Status{})

	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
}

func TestTopic_SubscriptionIDsAreUnique(t *testing.T) {
	tr := NewMemoryTransport()
	topic := NewTopic[telemetry.Status](telemetry.TopicStatus, tr, inlineDispatcher{})

	a, _ := topic.Subscribe(func(telemetry.Status) {})
	b, _ := topic.Subscribe(func(telemetry.Status) {})
	if a.ID == b.ID {
		t.Errorf("subscriptions share ID %s", a.ID)
	}
	if a.Topic != telemetry.TopicStatus {
		t.Errorf("expected topic %q, got %q", telemetry.TopicStatus, a.Topic)
	}
}

func TestTopic_UnavailableTransport(t *testing.T) {
	tr := NewMemoryTransport()
	_ = tr.Close()

	topic := NewTopic[telemetry.Status](telemetry.TopicStatus, tr, inlineDispatcher{})
	if _, err := topic.Subscribe(func(telemetry.Status) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	// must not panic or block
	topic.Set(telemetry.Status{Armed: true})
	topic.Close()
	topic.Set(telemetry.Status{Armed: false})
}

func TestTopic_DispatcherRefusal(t *testing.T) {
	tr := NewMemoryTransport()
	topic := NewTopic[telemetry.Status](telemetry.TopicStatus, tr, refusingDispatcher{})

	calls := 0
	if _, err := topic.Subscribe(func(telemetry.Status) { calls++ }); err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	publish(t, tr, telemetry.TopicStatus, telemetry.Status{})

	if calls != 0 {
		t.Errorf("handler ran %d times although the dispatcher refused", calls)
	}
}

func TestTopic_SetPublishesInOrder(t *testing.T) {
	tr := NewMemoryTransport()

	var mu sync.Mutex
	var got []telemetry.StatusCommand
	done := make(chan struct{})
	cancel, err := tr.Subscribe(telemetry.TopicStatus, func(payload []byte) {
		var cmd telemetry.StatusCommand
		if err := json.Unmarshal(payload, &cmd); err != nil {
			t.Errorf("Failed to decode published payload: %v", err)
			return
		}

		mu.Lock()
		defer mu.Unlock()
		got = append(got, cmd)
		if len(got) == 3 {
			close(done)
		}
	})
	if err != nil {
		t.Fatalf("Failed to subscribe: %v", err)
	}
	defer cancel()

	topic := NewTopic[telemetry.StatusCommand](telemetry.TopicStatus, tr, inlineDispatcher{})
	defer topic.Close()

	topic.Set(telemetry.StatusCommand{Armed: true})
	topic.Set(telemetry.StatusCommand{Armed: false})
	topic.Set(telemetry.StatusCommand{Armed: true})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published payloads")
	}

	mu.Lock()
	defer mu.Unlock()
	want := []telemetry.StatusCommand{{Armed: true}, {Armed: false}, {Armed: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("published commands mismatch (-want +got):\n%s", diff)
	}
}
