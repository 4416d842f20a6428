package instrument

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// Element ids of the instrument assets
const (
	CompassNeedleID = "needle"
	RollNeedleID    = "layer2"
	RollGaugeID     = "layer5"
)

var (
	// ErrAlreadyLoaded is returned when an instrument asset is loaded twice
	ErrAlreadyLoaded = errors.New("instrument already loaded")

	// ErrElementNotFound is returned when an asset lacks a required element
	ErrElementNotFound = errors.New("element not found")
)

// Node is an element of a loaded instrument asset
type Node interface {
	BBox() BBox
	Transform() string
	SetTransform(attr string)
}

// Document looks up the elements of an instrument asset by id
type Document interface {
	Element(id string) (Node, bool)
}

// Element is an in-memory Node
type Element struct {
	mu   sync.RWMutex
	box  BBox
	attr string
}

// NewElement creates an element with the given box and transform attribute
func NewElement(box BBox, attr string) *Element {
	return &Element{box: box, attr: attr}
}

func (e *Element) BBox() BBox {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.box
}

func (e *Element) Transform() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.attr
}

func (e *Element) SetTransform(attr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.attr = attr
}

// Elements is a Document backed by a map
type Elements map[string]*Element

func (d Elements) Element(id string) (Node, bool) {
	e, ok := d[id]
	if !ok || e == nil {
		return nil, false
	}
	return e, true
}

func lookup(doc Document, id string) (Node, error) {
	n, ok := doc.Element(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	return n, nil
}

// CompassGeometry is captured once when the compass asset loads
type CompassGeometry struct {
	Needle BBox      `json:"needle"`
	Base   Transform `json:"-"`
}

// Compass drives the yaw needle of a compass asset. It is Unloaded until
// Load captures the needle geometry; before that Apply does nothing.
// A Compass must be driven from a single goroutine.
type Compass struct {
	needle   Node
	geometry CompassGeometry
	loaded   bool
}

// Load captures the needle geometry from doc
func (c *Compass) Load(doc Document) error {
	if c.loaded {
		return ErrAlreadyLoaded
	}

	needle, err := lookup(doc, CompassNeedleID)
	if err != nil {
		return fmt.Errorf("loading compass: %w", err)
	}
	base, err := ParseTransform(needle.Transform())
	if err != nil {
		return fmt.Errorf("loading compass: %w", err)
	}

	c.needle = needle
	c.geometry = CompassGeometry{Needle: needle.BBox(), Base: base}
	c.loaded = true
	return nil
}

func (c *Compass) Loaded() bool {
	return c.loaded
}

// Geometry returns the captured geometry, if loaded
func (c *Compass) Geometry() (CompassGeometry, bool) {
	return c.geometry, c.loaded
}

// Apply sets the needle transform for o. It reports false, touching
// nothing, while the compass is not loaded.
func (c *Compass) Apply(o telemetry.Orientation) (Transform, bool) {
	if !c.loaded {
		return nil, false
	}

	t := CompassNeedle(o, c.geometry.Needle, c.geometry.Base)
	c.needle.SetTransform(t.String())
	return t, true
}

// AttitudeGeometry is captured once when the attitude asset loads
type AttitudeGeometry struct {
	Needle BBox      `json:"needle"`
	Gauge  BBox      `json:"gauge"`
	Base   Transform `json:"-"`
}

// AttitudeIndicator drives the roll needle and the pitch/roll gauge of an
// artificial horizon asset, with the same lifecycle as Compass.
type AttitudeIndicator struct {
	needle   Node
	gauge    Node
	geometry AttitudeGeometry
	loaded   bool
}

// Load captures the needle and gauge geometry from doc
func (a *AttitudeIndicator) Load(doc Document) error {
	if a.loaded {
		return ErrAlreadyLoaded
	}

	needle, err := lookup(doc, RollNeedleID)
	if err != nil {
		return fmt.Errorf("loading attitude indicator: %w", err)
	}
	gauge, err := lookup(doc, RollGaugeID)
	if err != nil {
		return fmt.Errorf("loading attitude indicator: %w", err)
	}
	base, err := ParseTransform(gauge.Transform())
	if err != nil {
		return fmt.Errorf("loading attitude indicator: %w", err)
	}

	a.needle, a.gauge = needle, gauge
	a.geometry = AttitudeGeometry{Needle: needle.BBox(), Gauge: gauge.BBox(), Base: base}
	a.loaded = true
	return nil
}

func (a *AttitudeIndicator) Loaded() bool {
	return a.loaded
}

// Geometry returns the captured geometry, if loaded
func (a *AttitudeIndicator) Geometry() (AttitudeGeometry, bool) {
	return a.geometry, a.loaded
}

// Apply sets the needle and gauge transforms for o. It reports false,
// touching nothing, while the indicator is not loaded.
func (a *AttitudeIndicator) Apply(o telemetry.Orientation) (needleT, gaugeT Transform, ok bool) {
	if !a.loaded {
		return nil, nil, false
	}

	needleT, gaugeT = Horizon(o, a.geometry.Needle, a.geometry.Gauge, a.geometry.Base)
	a.needle.SetTransform(needleT.String())
	a.gauge.SetTransform(gaugeT.String())
	return needleT, gaugeT, true
}
