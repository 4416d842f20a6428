package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/roman-kulish/flight-instruments/internal/channel"
	"github.com/roman-kulish/flight-instruments/internal/geo"
	"github.com/roman-kulish/flight-instruments/internal/instrument"
	"github.com/roman-kulish/flight-instruments/internal/media"
	"github.com/roman-kulish/flight-instruments/internal/params"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// startDashboard runs d until the test ends and waits for its subscriptions
func startDashboard(t *testing.T, tr *channel.MemoryTransport, d *Dashboard) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = d.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	deadline := time.After(2 * time.Second)
	for tr.Subscribers(telemetry.TopicImage) == 0 {
		select {
		case <-deadline:
			t.Fatal("dashboard did not subscribe in time")
		case <-time.After(time.Millisecond):
		}
	}
}

func publishJSON(t *testing.T, tr channel.Transport, topic, payload string) {
	t.Helper()

	if err := tr.Publish(context.Background(), topic, []byte(payload)); err != nil {
		t.Fatalf("Failed to publish on %s: %v", topic, err)
	}
}

func flush(t *testing.T, d *Dashboard) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Flush(ctx); err != nil {
		t.Fatalf("Failed to flush: %v", err)
	}
}

// capture collects raw payloads published on topic
func capture(t *testing.T, tr channel.Transport, topic string) <-chan []byte {
	t.Helper()

	ch := make(chan []byte, 16)
	cancel, err := tr.Subscribe(topic, func(payload []byte) { ch <- payload })
	if err != nil {
		t.Fatalf("Failed to subscribe to %s: %v", topic, err)
	}
	t.Cleanup(cancel)
	return ch
}

func receive(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()

	select {
	case payload := <-ch:
		return payload
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a payload")
		return nil
	}
}

func TestDashboard_Status(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)

	publishJSON(t, tr, telemetry.TopicStatus, `{"armed":true,"flight_mode":"GUIDED"}`)
	flush(t, d)

	want := telemetry.Status{Armed: true, FlightMode: "GUIDED"}
	if diff := cmp.Diff(want, d.Binder().Status.Get()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
	if d.Binder().Snapshot().UpdatedAt.IsZero() {
		t.Error("expected the binder to be touched")
	}
}

func TestDashboard_MalformedPayloadIsSkipped(t *testing.T) {
	reg := prometheus.NewRegistry()
	tr := channel.NewMemoryTransport()
	d, err := New(tr, WithMetrics(NewMetrics(reg)))
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)

	publishJSON(t, tr, telemetry.TopicStatus, `{"armed":`)
	publishJSON(t, tr, telemetry.TopicStatus, `{"armed":true,"flight_mode":"AUTO"}`)
	flush(t, d)

	if got := d.Binder().Status.Get().FlightMode; got != "AUTO" {
		t.Errorf("expected the valid snapshot to be applied, got mode %q", got)
	}
	if got := testutil.ToFloat64(d.metrics.invalid.WithLabelValues(telemetry.TopicStatus)); got != 1 {
		t.Errorf("expected 1 invalid payload, got %v", got)
	}
	if got := testutil.ToFloat64(d.metrics.snapshots.WithLabelValues(telemetry.TopicStatus)); got != 1 {
		t.Errorf("expected 1 handled snapshot, got %v", got)
	}
}

func TestDashboard_ArmDisarm(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	payloads := capture(t, tr, telemetry.TopicStatus)
	startDashboard(t, tr, d)

	d.Arm()
	if got := string(receive(t, payloads)); got != `{"armed":true}` {
		t.Errorf("arm: unexpected payload %s", got)
	}

	d.Disarm()
	if got := string(receive(t, payloads)); got != `{"armed":false}` {
		t.Errorf("disarm: unexpected payload %s", got)
	}

	if got := testutil.ToFloat64(d.metrics.actions.WithLabelValues("arm")); got != 1 {
		t.Errorf("expected 1 arm action, got %v", got)
	}
}

func TestDashboard_ComeHere(t *testing.T) {
	pos := telemetry.Position{Latitude: 37.5, Longitude: -122.25}

	tr := channel.NewMemoryTransport()
	d, err := New(tr, WithLocator(geo.Static{Position: pos}))
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	payloads := capture(t, tr, telemetry.TopicWaypoints)
	startDashboard(t, tr, d)

	if !d.ComeHere(context.Background()) {
		t.Fatal("expected come here to be sent")
	}

	var got telemetry.Waypoints
	if err = json.Unmarshal(receive(t, payloads), &got); err != nil {
		t.Fatalf("Failed to decode waypoints: %v", err)
	}

	want := telemetry.Waypoints{Waypoints: []telemetry.Waypoint{{Latitude: 37.5, Longitude: -122.25, Altitude: 5}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("waypoints mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboard_ComeHereAtInvalid(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	payloads := capture(t, tr, telemetry.TopicWaypoints)

	for _, p := range []telemetry.Position{{Latitude: math.NaN()}, {Longitude: 200}} {
		if d.ComeHereAt(p) {
			t.Errorf("expected %+v to be rejected", p)
		}
	}
	if got := testutil.ToFloat64(d.metrics.locateFailures); got != 2 {
		t.Errorf("expected 2 geolocation failures, got %v", got)
	}

	select {
	case p := <-payloads:
		t.Errorf("unexpected waypoints %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDashboard_ComeHereWithoutPosition(t *testing.T) {
	tests := []struct {
		name    string
		options []func(d *Dashboard)
	}{
		{name: "no locator"},
		{name: "no report", options: []func(d *Dashboard){WithLocator(geo.NewReported(time.Minute))}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := channel.NewMemoryTransport()
			d, err := New(tr, tt.options...)
			if err != nil {
				t.Fatalf("Failed to create dashboard: %v", err)
			}
			payloads := capture(t, tr, telemetry.TopicWaypoints)

			if d.ComeHere(context.Background()) {
				t.Fatal("expected come here to be ignored")
			}
			if got := testutil.ToFloat64(d.metrics.locateFailures); got != 1 {
				t.Errorf("expected 1 geolocation failure, got %v", got)
			}

			select {
			case p := <-payloads:
				t.Errorf("unexpected waypoints %s", p)
			case <-time.After(50 * time.Millisecond):
			}
		})
	}
}

func TestDashboard_ChartRedraws(t *testing.T) {
	epoch := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now := epoch

	tr := channel.NewMemoryTransport()
	d, err := New(tr, WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)
	if err = d.AttachChart(context.Background()); err != nil {
		t.Fatalf("Failed to attach chart: %v", err)
	}

	times := []int64{0, 100, 600, 1101}
	want := []bool{true, false, true, true}

	for i, ms := range times {
		now = epoch.Add(time.Duration(ms) * time.Millisecond)
		publishJSON(t, tr, telemetry.TopicIMU, `{"accel":{"z":9.8}}`)
		flush(t, d)

		if got := d.Binder().Chart.Get().Tick.Redraw; got != want[i] {
			t.Errorf("sample at %dms: expected redraw %v, got %v", ms, want[i], got)
		}
	}

	view := d.Binder().Chart.Get()
	if len(view.Points) != len(times) {
		t.Errorf("expected %d points in the window, got %d", len(times), len(view.Points))
	}
	if view.Redraws != 3 {
		t.Errorf("expected 3 redraws, got %d", view.Redraws)
	}
	if got := testutil.ToFloat64(d.metrics.redraws.WithLabelValues("suppressed")); got != 1 {
		t.Errorf("expected 1 suppressed redraw, got %v", got)
	}
	if got := d.Binder().Motion.Get().Accel.Z; got != 9.8 {
		t.Errorf("expected motion to be stored, got accel.z %v", got)
	}
}

func TestDashboard_ChartWithoutSurface(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)

	publishJSON(t, tr, telemetry.TopicIMU, `{"accel":{"z":1}}`)
	flush(t, d)

	if !d.Binder().Chart.Get().Tick.Dropped {
		t.Error("expected the sample to be dropped")
	}
	if got := testutil.ToFloat64(d.metrics.droppedSamples); got != 1 {
		t.Errorf("expected 1 dropped sample, got %v", got)
	}
}

func TestDashboard_ChartDetachOrdering(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)
	ctx := context.Background()

	if err = d.AttachChart(ctx); err != nil {
		t.Fatalf("Failed to attach chart: %v", err)
	}
	publishJSON(t, tr, telemetry.TopicIMU, `{"accel":{"z":1}}`)
	flush(t, d)
	if got := len(d.Series().Points()); got != 1 {
		t.Fatalf("expected 1 point on the attached surface, got %d", got)
	}

	if err = d.DetachChart(ctx); err != nil {
		t.Fatalf("Failed to detach chart: %v", err)
	}
	if got := len(d.Series().Points()); got != 0 {
		t.Errorf("expected the detached surface to be cleared, got %d points", got)
	}

	publishJSON(t, tr, telemetry.TopicIMU, `{"accel":{"z":2}}`)
	flush(t, d)

	if got := len(d.Series().Points()); got != 0 {
		t.Errorf("expected no points after detach, got %d", got)
	}
	view := d.Binder().Chart.Get()
	if !view.Tick.Dropped || len(view.Points) != 0 {
		t.Errorf("expected the sample to be dropped and the window reset, got %+v", view)
	}
}

func TestDashboard_ChartAttachStopped(t *testing.T) {
	d, err := New(channel.NewMemoryTransport())
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err = d.AttachChart(ctx); err == nil {
		t.Error("expected an error when the loop does not run")
	}
	if d.Series().Present() {
		t.Error("surface should not be attached")
	}
}

func TestDashboard_InstrumentsWaitForLoad(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)

	needle := instrument.NewElement(instrument.BBox{Width: 100, Height: 100}, "translate(1 1)")
	doc := instrument.Elements{instrument.CompassNeedleID: needle}

	publishJSON(t, tr, telemetry.TopicAttitude, `{"roll":0,"pitch":0,"yaw":1.5707963267948966}`)
	flush(t, d)

	if got := needle.Transform(); got != "translate(1 1)" {
		t.Fatalf("needle was modified before load: %q", got)
	}
	if d.Binder().Attitude.Get().CompassLoaded {
		t.Fatal("compass should not be reported as loaded")
	}

	if err = d.LoadCompass(context.Background(), doc); err != nil {
		t.Fatalf("Failed to load compass: %v", err)
	}
	if want := "rotate(-90 50 50) translate(1 1)"; needle.Transform() != want {
		t.Errorf("expected %q after load, got %q", want, needle.Transform())
	}

	view := d.Binder().Attitude.Get()
	if !view.CompassLoaded || math.Abs(view.Heading-90) > 1e-9 {
		t.Errorf("unexpected attitude view %+v", view)
	}
	if err = d.LoadCompass(context.Background(), doc); err == nil {
		t.Error("expected a second load to fail")
	}
}

func TestDashboard_Settings(t *testing.T) {
	store, err := params.OpenBuntStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	defer store.Close()

	tr := channel.NewMemoryTransport()
	d, err := New(tr, WithParams(store))
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)

	publishJSON(t, tr, telemetry.TopicResolutions, `{"resolutions":[{"width":640,"height":480},{"width":1280,"height":720}]}`)
	flush(t, d)

	ctx := context.Background()
	if err = d.SetDetectorEnabled(ctx, true); err != nil {
		t.Fatalf("Failed to enable detector: %v", err)
	}
	if err = d.SetResolution(ctx, "1280x720"); err != nil {
		t.Fatalf("Failed to set resolution: %v", err)
	}

	got, err := d.Settings(ctx)
	if err != nil {
		t.Fatalf("Failed to read settings: %v", err)
	}
	want := Settings{DetectorEnabled: true, Resolution: "1280x720", Resolutions: []string{"640x480", "1280x720"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings mismatch (-want +got):\n%s", diff)
	}
}

func TestDashboard_SettingsWithoutStore(t *testing.T) {
	d, err := New(channel.NewMemoryTransport())
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}

	if _, err = d.Settings(context.Background()); err != ErrNoParams {
		t.Errorf("expected ErrNoParams, got %v", err)
	}
	if err = d.SetResolution(context.Background(), "640x480"); err != ErrNoParams {
		t.Errorf("expected ErrNoParams, got %v", err)
	}
}

func TestNew_InvalidPolicy(t *testing.T) {
	if _, err := New(channel.NewMemoryTransport(), WithQueue(8, "spill")); err == nil {
		t.Fatal("expected an error for an unknown queue policy")
	}
}

func TestDashboard_RenderWithoutRaster(t *testing.T) {
	d, err := New(channel.NewMemoryTransport())
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	if err = d.RenderCompass(nil); err != ErrNoRaster {
		t.Errorf("expected ErrNoRaster, got %v", err)
	}
}

func TestDashboard_Snapshot(t *testing.T) {
	tr := channel.NewMemoryTransport()
	d, err := New(tr)
	if err != nil {
		t.Fatalf("Failed to create dashboard: %v", err)
	}
	startDashboard(t, tr, d)
	ctx := context.Background()

	if _, err = d.Snapshot(ctx); !errors.Is(err, media.ErrNoImage) {
		t.Fatalf("expected ErrNoImage before the first frame, got %v", err)
	}

	publishJSON(t, tr, telemetry.TopicImage, `{"format":"jpeg","data":"/9j/4A=="}`)
	publishJSON(t, tr, telemetry.TopicImage, `{"format":"jpeg","data":""}`)
	flush(t, d)

	img, err := d.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Failed to take snapshot: %v", err)
	}
	want := media.Image{ContentType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff, 0xe0}}
	if diff := cmp.Diff(want, img); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if got := testutil.ToFloat64(d.metrics.invalid.WithLabelValues(telemetry.TopicImage)); got != 1 {
		t.Errorf("expected the empty frame to be counted as invalid, got %v", got)
	}
}
