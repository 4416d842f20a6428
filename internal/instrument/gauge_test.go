package instrument

import (
	"errors"
	"math"
	"testing"

	"github.com/roman-kulish/flight-instruments/internal/telemetry"
)

// recordingNode counts transform writes
type recordingNode struct {
	box    BBox
	attr   string
	writes int
}

func (n *recordingNode) BBox() BBox            { return n.box }
func (n *recordingNode) Transform() string     { return n.attr }
func (n *recordingNode) SetTransform(a string) { n.attr = a; n.writes++ }

type fakeDocument map[string]*recordingNode

func (d fakeDocument) Element(id string) (Node, bool) {
	n, ok := d[id]
	return n, ok
}

func TestCompass_Lifecycle(t *testing.T) {
	needle := &recordingNode{box: BBox{Width: 40, Height: 200}, attr: "translate(80 0)"}
	doc := fakeDocument{CompassNeedleID: needle}
	o := telemetry.Orientation{Yaw: math.Pi / 2}

	var c Compass
	if _, ok := c.Apply(o); ok {
		t.Fatal("Apply should be a no-op before load")
	}
	if needle.writes != 0 || needle.attr != "translate(80 0)" {
		t.Fatal("needle was modified before load")
	}

	if err := c.Load(doc); err != nil {
		t.Fatalf("Failed to load compass: %v", err)
	}
	if err := c.Load(doc); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("expected ErrAlreadyLoaded, got %v", err)
	}

	if _, ok := c.Apply(o); !ok {
		t.Fatal("Apply should succeed after load")
	}
	if want := "rotate(-90 20 100) translate(80 0)"; needle.attr != want {
		t.Errorf("expected %q, got %q", want, needle.attr)
	}

	// the base transform is captured once and not read back from the node
	c.Apply(o)
	if want := "rotate(-90 20 100) translate(80 0)"; needle.attr != want {
		t.Errorf("repeated apply: expected %q, got %q", want, needle.attr)
	}
}

func TestCompass_MissingElement(t *testing.T) {
	var c Compass
	if err := c.Load(fakeDocument{}); !errors.Is(err, ErrElementNotFound) {
		t.Errorf("expected ErrElementNotFound, got %v", err)
	}
	if c.Loaded() {
		t.Error("compass should stay unloaded")
	}
}

func TestAttitudeIndicator_Lifecycle(t *testing.T) {
	needle := &recordingNode{box: BBox{Width: 100, Height: 100}}
	gauge := &recordingNode{box: BBox{Width: 100, Height: 200}, attr: "translate(0 -100)"}
	doc := fakeDocument{RollNeedleID: needle, RollGaugeID: gauge}
	o := telemetry.Orientation{Roll: math.Pi / 2, Pitch: math.Pi / 4}

	var a AttitudeIndicator
	if _, _, ok := a.Apply(o); ok {
		t.Fatal("Apply should be a no-op before load")
	}
	if needle.writes+gauge.writes != 0 {
		t.Fatal("nodes were modified before load")
	}

	if err := a.Load(doc); err != nil {
		t.Fatalf("Failed to load attitude indicator: %v", err)
	}
	if err := a.Load(doc); !errors.Is(err, ErrAlreadyLoaded) {
		t.Errorf("expected ErrAlreadyLoaded, got %v", err)
	}

	if _, _, ok := a.Apply(o); !ok {
		t.Fatal("Apply should succeed after load")
	}
	if want := "rotate(-90 50 50)"; needle.attr != want {
		t.Errorf("needle: expected %q, got %q", want, needle.attr)
	}
	if want := "rotate(-90 50 50) translate(0 -100) translate(0 50)"; gauge.attr != want {
		t.Errorf("gauge: expected %q, got %q", want, gauge.attr)
	}
}

func TestAttitudeIndicator_InvalidBaseTransform(t *testing.T) {
	doc := fakeDocument{
		RollNeedleID: &recordingNode{},
		RollGaugeID:  &recordingNode{attr: "translate(x)"},
	}

	var a AttitudeIndicator
	if err := a.Load(doc); err == nil {
		t.Fatal("expected an error for an unparsable base transform")
	}
	if a.Loaded() {
		t.Error("indicator should stay unloaded")
	}
}
