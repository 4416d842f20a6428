package channel

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"
)

func waitStopped(t *testing.T, stopped <-chan error) error {
	t.Helper()

	select {
	case err := <-stopped:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the link to stop")
		return nil
	}
}

func TestStreamTransport_DispatchesEnvelopes(t *testing.T) {
	local, remote := net.Pipe()
	s, stopped := NewStreamTransport("pipe", local)
	defer s.Close()

	got := make(chan string, 4)
	_, _ = s.Subscribe("status", func(p []byte) { got <- string(p) })

	lines := "\n" +
		`{"topic":"status","data":{"armed":true}}` + "\n" +
		`{"topic":"imu","data":{}}` + "\n" +
		`{"topic":"status","data":{"armed":false}}` + "\n"
	if _, err := remote.Write([]byte(lines)); err != nil {
		t.Fatalf("Failed to write lines: %v", err)
	}
	_ = remote.Close()

	if err := waitStopped(t, stopped); err != nil {
		t.Fatalf("unexpected link error: %v", err)
	}

	close(got)
	var payloads []string
	for p := range got {
		payloads = append(payloads, p)
	}
	want := []string{`{"armed":true}`, `{"armed":false}`}
	if fmt.Sprint(payloads) != fmt.Sprint(want) {
		t.Errorf("expected %v, got %v", want, payloads)
	}
}

func TestStreamTransport_ParseErrorsThreshold(t *testing.T) {
	tests := []struct {
		name      string
		lines     []string
		threshold uint8
		wantErr   error
	}{
		{
			name:      "consecutive errors",
			lines:     []string{"garbage", "{", `{"data":{}}`},
			threshold: 3,
			wantErr:   ErrTooManyParseErrors,
		},
		{
			name:      "counter reset by a valid line",
			lines:     []string{"garbage", "{", `{"topic":"x","data":1}`, "garbage", "{"},
			threshold: 3,
			wantErr:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, remote := net.Pipe()
			s, stopped := NewStreamTransport("pipe", local, WithParseErrorsThreshold(tt.threshold))
			defer s.Close()

			for _, line := range tt.lines {
				if _, err := remote.Write([]byte(line + "\n")); err != nil {
					t.Fatalf("Failed to write line: %v", err)
				}
			}
			_ = remote.Close()

			err := waitStopped(t, stopped)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestStreamTransport_PublishWritesEnvelope(t *testing.T) {
	local, remote := net.Pipe()
	s, _ := NewStreamTransport("pipe", local)
	defer remote.Close()
	defer s.Close()

	read := make(chan Envelope, 1)
	go func() {
		line, err := bufio.NewReader(remote).ReadBytes('\n')
		if err != nil {
			t.Errorf("Failed to read envelope: %v", err)
			return
		}
		var env Envelope
		if err = json.Unmarshal(line, &env); err != nil {
			t.Errorf("Failed to decode envelope: %v", err)
			return
		}
		read <- env
	}()

	if err := s.Publish(context.Background(), "status", []byte(`{"armed":true}`)); err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}

	select {
	case env := <-read:
		if env.Topic != "status" {
			t.Errorf("expected topic status, got %q", env.Topic)
		}
		if string(env.Data) != `{"armed":true}` {
			t.Errorf("unexpected data %s", env.Data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
}
