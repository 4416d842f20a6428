package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"
)

func startLoop(t *testing.T, l *Loop) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := l.Run(ctx); err != nil {
			t.Errorf("Run returned an error: %v", err)
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

func TestLoop_RunsEventsInOrder(t *testing.T) {
	l := NewLoop(8)
	stop := startLoop(t, l)
	defer stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		if !l.Dispatch(func() { got = append(got, i) }) {
			t.Fatalf("event %d was not dispatched", i)
		}
	}
	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	if len(got) != 100 {
		t.Fatalf("expected 100 events, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("event %d ran out of order (got %d)", i, v)
		}
	}
}

func TestLoop_DropPolicy(t *testing.T) {
	hooked := 0
	l := NewLoop(1, WithPolicy(PolicyDrop), WithDropHook(func() { hooked++ }))

	// not running, so the single slot fills up
	if !l.Dispatch(func() {}) {
		t.Fatal("first event should fit into the queue")
	}
	if l.Dispatch(func() {}) {
		t.Fatal("second event should be dropped")
	}
	if l.Dropped() != 1 || hooked != 1 {
		t.Errorf("expected 1 drop, got %d (hook %d)", l.Dropped(), hooked)
	}
	if l.Len() != 1 {
		t.Errorf("expected 1 queued event, got %d", l.Len())
	}
}

func TestLoop_RecoversFromPanics(t *testing.T) {
	l := NewLoop(4)
	stop := startLoop(t, l)
	defer stop()

	l.Dispatch(func() { panic("boom") })

	ran := false
	if err := l.Call(context.Background(), func() { ran = true }); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if !ran {
		t.Error("loop did not survive a panicking handler")
	}
}

func TestLoop_StoppedLoopRejectsEvents(t *testing.T) {
	l := NewLoop(4)
	stop := startLoop(t, l)
	stop()

	if l.Dispatch(func() {}) {
		t.Error("Dispatch should report false after the loop stopped")
	}
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrStopped) {
		t.Errorf("expected ErrStopped, got %v", err)
	}
}

func TestLoop_RunTwice(t *testing.T) {
	l := NewLoop(4)
	stop := startLoop(t, l)
	defer stop()

	if err := l.Call(context.Background(), func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if err := l.Run(context.Background()); err == nil {
		t.Error("expected an error when running the loop twice")
	}
}

func TestLoop_CallHonoursContext(t *testing.T) {
	l := NewLoop(4) // never started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := l.Call(ctx, func() {}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		policy  Policy
		wantErr bool
	}{
		{PolicyBlock, false},
		{PolicyDrop, false},
		{"oldest", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			if err := tt.policy.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
