package sim

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/roman-kulish/flight-instruments/internal/channel"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

const (
	DefaultRate = 50 * time.Millisecond

	// Gravity is the resting vertical acceleration in m/s²
	Gravity = 9.81

	statusEvery = 20

	frameWidth  = 160
	frameHeight = 120

	modeArmed    = "GUIDED"
	modeDisarmed = "STABILIZE"
)

// WithLogger sets the logger for the simulator
func WithLogger(logger *slog.Logger) func(s *Simulator) {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// WithRate sets the interval between attitude and IMU samples
func WithRate(rate time.Duration) func(s *Simulator) {
	return func(s *Simulator) {
		if rate > 0 {
			s.rate = rate
		}
	}
}

// WithResolutions sets the camera resolutions announced on start
func WithResolutions(r ...telemetry.Resolution) func(s *Simulator) {
	return func(s *Simulator) {
		s.resolutions = telemetry.Resolutions{Resolutions: r}
	}
}

// Simulator is a vehicle stand-in that publishes telemetry on a transport
// and obeys arm commands written back to the status channel.
type Simulator struct {
	transport   channel.Transport
	rate        time.Duration
	resolutions telemetry.Resolutions

	mu    sync.Mutex
	armed bool
	ticks uint64

	logger *slog.Logger
}

// New creates a simulator publishing on transport
func New(transport channel.Transport, options ...func(s *Simulator)) *Simulator {
	s := Simulator{
		transport: transport,
		rate:      DefaultRate,
		resolutions: telemetry.Resolutions{Resolutions: []telemetry.Resolution{
			{Width: 640, Height: 480},
			{Width: 1280, Height: 720},
			{Width: 1920, Height: 1080},
		}},
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, option := range options {
		option(&s)
	}

	return &s
}

// Sample returns the simulated attitude and IMU reading at elapsed time t
func Sample(t time.Duration) (telemetry.Orientation, telemetry.Motion) {
	sec := t.Seconds()

	o := telemetry.Orientation{
		Roll:  0.35 * math.Sin(2*math.Pi*sec/8),
		Pitch: 0.2 * math.Sin(2*math.Pi*sec/11),
		Yaw:   math.Mod(2*math.Pi*sec/60, 2*math.Pi),
	}

	m := telemetry.Motion{
		Gyro: telemetry.Vector3{
			X: 0.35 * 2 * math.Pi / 8 * math.Cos(2*math.Pi*sec/8),
			Y: 0.2 * 2 * math.Pi / 11 * math.Cos(2*math.Pi*sec/11),
			Z: 2 * math.Pi / 60,
		},
		Accel: telemetry.Vector3{
			X: Gravity * math.Sin(o.Pitch),
			Y: -Gravity * math.Sin(o.Roll),
			Z: Gravity + 0.5*math.Sin(2*math.Pi*sec/3),
		},
		Mag: telemetry.Vector3{
			X: math.Cos(o.Yaw),
			Y: -math.Sin(o.Yaw),
		},
	}

	return o, m
}

// Armed reports the simulated arming state
func (s *Simulator) Armed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.armed
}

// Status returns the status the simulator reports
func (s *Simulator) Status() telemetry.Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.armed {
		return telemetry.Status{Armed: true, FlightMode: modeArmed}
	}
	return telemetry.Status{Armed: false, FlightMode: modeDisarmed}
}

// Run publishes telemetry until ctx is cancelled
func (s *Simulator) Run(ctx context.Context) error {
	unsubscribe, err := s.transport.Subscribe(telemetry.TopicStatus, s.handleStatus)
	if err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	defer unsubscribe()

	if err = s.publish(ctx, telemetry.TopicResolutions, s.resolutions); err != nil {
		return err
	}
	if err = s.publish(ctx, telemetry.TopicStatus, s.Status()); err != nil {
		return err
	}

	s.logger.Info("simulator started", slog.Duration("rate", s.rate))

	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()

	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("simulator stopped")
			return nil

		case now := <-ticker.C:
			if err = s.tick(ctx, now.Sub(start)); err != nil {
				s.logger.Warn(err.Error())
			}
		}
	}
}

func (s *Simulator) tick(ctx context.Context, elapsed time.Duration) error {
	o, m := Sample(elapsed)

	if err := s.publish(ctx, telemetry.TopicAttitude, o); err != nil {
		return err
	}
	if err := s.publish(ctx, telemetry.TopicIMU, m); err != nil {
		return err
	}

	s.mu.Lock()
	s.ticks++
	announce := s.ticks%statusEvery == 0
	s.mu.Unlock()

	if !announce {
		return nil
	}
	if err := s.publish(ctx, telemetry.TopicStatus, s.Status()); err != nil {
		return err
	}

	frame, err := Frame(o)
	if err != nil {
		return err
	}
	return s.publish(ctx, telemetry.TopicImage, frame)
}

// Frame renders a camera view of the horizon for o
func Frame(o telemetry.Orientation) (telemetry.CompressedImage, error) {
	sky := color.RGBA{R: 0x4a, G: 0x90, B: 0xd9, A: 0xff}
	ground := color.RGBA{R: 0x8b, G: 0x5a, B: 0x2b, A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, frameWidth, frameHeight))
	slope := math.Tan(-o.Roll)
	offset := float64(frameHeight) / 2 * (1 + math.Sin(o.Pitch))
	for y := 0; y < frameHeight; y++ {
		for x := 0; x < frameWidth; x++ {
			horizon := offset + slope*(float64(x)-frameWidth/2)
			if float64(y) < horizon {
				img.SetRGBA(x, y, sky)
			} else {
				img.SetRGBA(x, y, ground)
			}
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return telemetry.CompressedImage{}, fmt.Errorf("encoding frame: %w", err)
	}
	return telemetry.CompressedImage{Format: "jpeg", Data: buf.Bytes()}, nil
}

// handleStatus applies arm commands. Status reports carry a flight mode,
// commands never do.
func (s *Simulator) handleStatus(payload []byte) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		s.logger.Debug(fmt.Sprintf("ignoring malformed status: %s", err.Error()))
		return
	}
	if _, ok := fields["flight_mode"]; ok {
		return
	}

	cmd, err := telemetry.Decode[telemetry.StatusCommand](payload)
	if err != nil {
		s.logger.Debug(fmt.Sprintf("ignoring malformed command: %s", err.Error()))
		return
	}

	s.mu.Lock()
	changed := s.armed != cmd.Armed
	s.armed = cmd.Armed
	s.mu.Unlock()

	if changed {
		s.logger.Info("arming state changed", slog.Bool("armed", cmd.Armed))
	}
}

func (s *Simulator) publish(ctx context.Context, topic string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", topic, err)
	}
	if err = s.transport.Publish(ctx, topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}
