package app

import (
	"errors"
	"flag"
	"fmt"
	"strings"
)

const (
	InstrumentCompass  Instrument = "compass"
	InstrumentAttitude Instrument = "attitude"
	InstrumentChart    Instrument = "chart"

	defaultSize        = 256
	defaultChartWidth  = 640
	defaultChartHeight = 240
)

type Instrument string

var validInstruments = map[Instrument]struct{}{
	InstrumentCompass:  {},
	InstrumentAttitude: {},
	InstrumentChart:    {},
}

type Config struct {
	InputFile   string
	OutputDir   string
	Instruments []Instrument
	Size        int
	ChartWidth  int
	ChartHeight int
	Verbose     bool
	NoCaptions  bool
}

func NewConfig() *Config {
	return &Config{
		OutputDir:   ".",
		Instruments: []Instrument{InstrumentCompass, InstrumentAttitude},
		Size:        defaultSize,
		ChartWidth:  defaultChartWidth,
		ChartHeight: defaultChartHeight,
	}
}

func NewConfigFromCLI() (*Config, error) {
	c := NewConfig()

	var instruments string
	flag.StringVar(&c.InputFile, "i", "", "Path to the snapshot JSON file")
	flag.StringVar(&c.OutputDir, "o", c.OutputDir, "Output directory")
	flag.StringVar(&instruments, "r", "compass,attitude", "Comma separated instruments to render. [compass, attitude, chart]")
	flag.IntVar(&c.Size, "size", c.Size, "Instrument image size in pixels")
	flag.IntVar(&c.ChartWidth, "chart-width", c.ChartWidth, "Chart image width in pixels")
	flag.IntVar(&c.ChartHeight, "chart-height", c.ChartHeight, "Chart image height in pixels")
	flag.BoolVar(&c.Verbose, "verbose", false, "Enable more verbose output")
	flag.BoolVar(&c.NoCaptions, "no-captions", false, "Disable captions such as heading and arming state")
	flag.Parse()

	var err error
	if c.Instruments, err = ParseInstruments(instruments); err == nil {
		err = c.Validate()
	}
	if err != nil {
		flag.Usage()
		return nil, err
	}

	return c, nil
}

// ParseInstruments parses a comma separated list of instruments
func ParseInstruments(s string) ([]Instrument, error) {
	var instruments []Instrument
	for _, name := range strings.Split(s, ",") {
		in := Instrument(strings.ToLower(strings.TrimSpace(name)))
		if in == "" {
			continue
		}
		if _, ok := validInstruments[in]; !ok {
			return nil, fmt.Errorf("invalid instrument: %s", in)
		}
		instruments = append(instruments, in)
	}
	if len(instruments) == 0 {
		return nil, errors.New("at least one instrument is required")
	}
	return instruments, nil
}

func (c *Config) Validate() error {
	switch {
	case c.InputFile == "":
		return errors.New("input file is required")
	case c.Size < 32:
		return fmt.Errorf("size must be at least 32: %d given", c.Size)
	case c.ChartWidth <= 0 || c.ChartHeight <= 0:
		return fmt.Errorf("invalid chart size: %dx%d", c.ChartWidth, c.ChartHeight)
	}
	return nil
}
