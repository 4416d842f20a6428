package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/flight-instruments/internal/chart"
	"github.com/roman-kulish/flight-instruments/internal/dispatch"
	"github.com/roman-kulish/flight-instruments/internal/sim"
	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

const (
	TransportMemory  TransportType = "memory"
	TransportSSE     TransportType = "sse"
	TransportSerial  TransportType = "serial"
	TransportCommand TransportType = "command"

	ParamsNone   ParamsBackend = ""
	ParamsSqlite ParamsBackend = "sqlite"
	ParamsBunt   ParamsBackend = "buntdb"

	defaultAddr          = ":8080"
	defaultQueueSize     = 256
	defaultChartWidth    = 640
	defaultChartHeight   = 240
	defaultRasterSize    = 256
	defaultStatsInterval = 30 * time.Second
	defaultPositionAge   = 5 * time.Minute
	snapshotTimeout      = 5 * time.Second
)

var (
	validTransports = map[TransportType]struct{}{
		TransportMemory:  {},
		TransportSSE:     {},
		TransportSerial:  {},
		TransportCommand: {},
	}

	validParamsBackends = map[ParamsBackend]struct{}{
		ParamsNone:   {},
		ParamsSqlite: {},
		ParamsBunt:   {},
	}
)

type TransportType string

type ParamsBackend string

// Config represents the main application configuration
type Config struct {
	Settings    Settings           `yaml:"settings"`
	HTTP        HTTPConfig         `yaml:"http"`
	Telemetry   TelemetryConfig    `yaml:"telemetry"`
	Chart       ChartConfig        `yaml:"chart"`
	Raster      RasterConfig       `yaml:"raster"`
	Params      ParamsConfig       `yaml:"params"`
	Geolocation *GeolocationConfig `yaml:"geolocation"`
	Simulator   SimulatorConfig    `yaml:"simulator"`
	Media       MediaConfig        `yaml:"media"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string   `yaml:"logLevel"`
	LogFile       string   `yaml:"logFile"`
	StatsInterval Duration `yaml:"statsInterval"`
	Terminal      bool     `yaml:"terminal"`
}

// HTTPConfig represents the operator web surface settings
type HTTPConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// TelemetryConfig represents the vehicle link settings
type TelemetryConfig struct {
	Transport      TransportType   `yaml:"transport"`
	URL            string          `yaml:"url"`
	SerialPort     string          `yaml:"serialPort"`
	BaudRate       int             `yaml:"baudRate"`
	Command        string          `yaml:"command"`
	Args           []string        `yaml:"args"`
	StrictDecoding bool            `yaml:"strictDecoding"`
	QueueSize      int             `yaml:"queueSize"`
	OnQueueFull    dispatch.Policy `yaml:"onQueueFull"`
}

// ChartConfig represents the strip chart settings
type ChartConfig struct {
	RedrawInterval Duration `yaml:"redrawInterval"`
	Horizon        Duration `yaml:"horizon"`
	Width          int      `yaml:"width"`
	Height         int      `yaml:"height"`
}

// RasterConfig represents server side instrument rendering settings
type RasterConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// ParamsConfig represents the parameter store settings
type ParamsConfig struct {
	Backend ParamsBackend `yaml:"backend"`
	Path    string        `yaml:"path"`
}

// GeolocationConfig is the fixed operator position used when the browser
// does not report one
type GeolocationConfig struct {
	Latitude  float64  `yaml:"latitude"`
	Longitude float64  `yaml:"longitude"`
	MaxAge    Duration `yaml:"maxAge"`
}

// SimulatorConfig represents the built-in vehicle simulator settings. It
// only runs on the memory transport.
type SimulatorConfig struct {
	Enabled bool     `yaml:"enabled"`
	Rate    Duration `yaml:"rate"`
}

// MediaConfig represents the picture library and camera snapshot settings.
// Without a snapshot URL the last frame received from the vehicle is used.
type MediaConfig struct {
	Path        string `yaml:"path"`
	SnapshotURL string `yaml:"snapshotURL"`
}

// NewConfig returns the configuration defaults
func NewConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      slog.LevelInfo.String(),
			StatsInterval: Duration(defaultStatsInterval),
		},
		HTTP: HTTPConfig{
			Addr: defaultAddr,
		},
		Telemetry: TelemetryConfig{
			Transport:   TransportMemory,
			QueueSize:   defaultQueueSize,
			OnQueueFull: dispatch.PolicyBlock,
		},
		Chart: ChartConfig{
			RedrawInterval: Duration(chart.DefaultRedrawInterval),
			Horizon:        Duration(chart.DefaultHorizon),
			Width:          defaultChartWidth,
			Height:         defaultChartHeight,
		},
		Raster: RasterConfig{
			Size: defaultRasterSize,
		},
		Simulator: SimulatorConfig{
			Enabled: true,
			Rate:    Duration(sim.DefaultRate),
		},
	}
}

// LoadConfig reads the YAML configuration at path over the defaults
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return ParseConfig(data)
}

// ParseConfig decodes YAML data over the defaults and validates the result
func ParseConfig(data []byte) (*Config, error) {
	c := NewConfig()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if c.Geolocation != nil && c.Geolocation.MaxAge == 0 {
		c.Geolocation.MaxAge = Duration(defaultPositionAge)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

// Level returns the configured log level
func (s Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return 0, fmt.Errorf("settings.logLevel: %w", err)
	}
	return level, nil
}

func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Settings.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Settings.StatsInterval.Validate(time.Second); err != nil {
		errs = append(errs, fmt.Errorf("settings.statsInterval: %w", err))
	}

	if c.HTTP.Addr == "" && !c.Settings.Terminal {
		errs = append(errs, errors.New("http.addr is required unless settings.terminal is enabled"))
	}

	t := c.Telemetry
	if _, ok := validTransports[t.Transport]; !ok {
		errs = append(errs, fmt.Errorf("telemetry.transport: unknown type '%s'", t.Transport))
	}
	switch t.Transport {
	case TransportSSE:
		if t.URL == "" {
			errs = append(errs, errors.New("telemetry.url is required for the sse transport"))
		}
	case TransportSerial:
		if t.SerialPort == "" {
			errs = append(errs, errors.New("telemetry.serialPort is required for the serial transport"))
		}
	case TransportCommand:
		if t.Command == "" {
			errs = append(errs, errors.New("telemetry.command is required for the command transport"))
		}
	}
	if t.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("telemetry.queueSize must be positive: %d given", t.QueueSize))
	}
	if err := t.OnQueueFull.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry.onQueueFull: %w", err))
	}

	if err := c.Chart.RedrawInterval.Validate(time.Millisecond); err != nil {
		errs = append(errs, fmt.Errorf("chart.redrawInterval: %w", err))
	}
	if err := c.Chart.Horizon.Validate(time.Second); err != nil {
		errs = append(errs, fmt.Errorf("chart.horizon: %w", err))
	}
	if c.Chart.Width <= 0 || c.Chart.Height <= 0 {
		errs = append(errs, fmt.Errorf("chart size must be positive: %dx%d given", c.Chart.Width, c.Chart.Height))
	}

	if c.Raster.Enabled && c.Raster.Size < 32 {
		errs = append(errs, fmt.Errorf("raster.size must be at least 32: %d given", c.Raster.Size))
	}

	if _, ok := validParamsBackends[c.Params.Backend]; !ok {
		errs = append(errs, fmt.Errorf("params.backend: unknown type '%s'", c.Params.Backend))
	}
	if c.Params.Backend != ParamsNone && c.Params.Path == "" {
		errs = append(errs, errors.New("params.path is required"))
	}

	if g := c.Geolocation; g != nil {
		if err := (telemetry.Position{Latitude: g.Latitude, Longitude: g.Longitude}).Validate(); err != nil {
			errs = append(errs, fmt.Errorf("geolocation: %w", err))
		}
	}

	if u := c.Media.SnapshotURL; u != "" {
		if parsed, err := url.Parse(u); err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			errs = append(errs, fmt.Errorf("media.snapshotURL: '%s' is not an http url", u))
		}
	}

	if c.Simulator.Enabled {
		if err := c.Simulator.Rate.Validate(time.Millisecond); err != nil {
			errs = append(errs, fmt.Errorf("simulator.rate: %w", err))
		}
	}

	return errors.Join(errs...)
}
