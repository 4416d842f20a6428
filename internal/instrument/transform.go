package instrument

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/image/math/f64"
)

var (
	transformFunc = regexp.MustCompile(`([A-Za-z]+)\s*\(([^)]*)\)`)
	argNumber     = regexp.MustCompile(`[+-]?(?:\d+\.?\d*|\.\d+)(?:[eE][+-]?\d+)?`)
	argSeparator  = regexp.MustCompile(`^\s*,?\s*$`)
)

// Op is a single step of an SVG transform list
type Op interface {
	fmt.Stringer

	// Affine returns the matrix of the step
	Affine() f64.Aff3
}

// Rotate rotates by Angle degrees around (CX, CY)
type Rotate struct {
	Angle  float64
	CX, CY float64
}

func (r Rotate) String() string {
	return "rotate(" + formatFloat(r.Angle) + " " + formatFloat(r.CX) + " " + formatFloat(r.CY) + ")"
}

func (r Rotate) Affine() f64.Aff3 {
	sin, cos := math.Sincos(r.Angle * math.Pi / 180)
	return multiply(
		multiply(translateAff(r.CX, r.CY), f64.Aff3{cos, -sin, 0, sin, cos, 0}),
		translateAff(-r.CX, -r.CY),
	)
}

// Translate moves by (X, Y)
type Translate struct {
	X, Y float64
}

func (t Translate) String() string {
	return "translate(" + formatFloat(t.X) + " " + formatFloat(t.Y) + ")"
}

func (t Translate) Affine() f64.Aff3 {
	return translateAff(t.X, t.Y)
}

// Scale scales by (SX, SY)
type Scale struct {
	SX, SY float64
}

func (s Scale) String() string {
	return "scale(" + formatFloat(s.SX) + " " + formatFloat(s.SY) + ")"
}

func (s Scale) Affine() f64.Aff3 {
	return f64.Aff3{s.SX, 0, 0, 0, s.SY, 0}
}

// Matrix is an SVG matrix(a b c d e f)
type Matrix [6]float64

func (m Matrix) String() string {
	parts := make([]string, len(m))
	for i, v := range m {
		parts[i] = formatFloat(v)
	}
	return "matrix(" + strings.Join(parts, " ") + ")"
}

func (m Matrix) Affine() f64.Aff3 {
	return f64.Aff3{m[0], m[2], m[4], m[1], m[3], m[5]}
}

// Raw carries transform text that is passed through untouched. Its matrix is
// the identity.
type Raw string

func (r Raw) String() string {
	return string(r)
}

func (r Raw) Affine() f64.Aff3 {
	return identity
}

// Transform is an ordered transform list. Like SVG, the last step is applied
// to a point first.
type Transform []Op

// String renders the transform as an SVG transform attribute
func (t Transform) String() string {
	parts := make([]string, 0, len(t))
	for _, op := range t {
		if s := op.String(); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// Affine returns the combined matrix of the transform
func (t Transform) Affine() f64.Aff3 {
	m := identity
	for _, op := range t {
		m = multiply(m, op.Affine())
	}
	return m
}

// Apply maps a point through the transform
func (t Transform) Apply(x, y float64) (float64, float64) {
	return apply(t.Affine(), x, y)
}

// ParseTransform reads an SVG transform attribute. Functions it does not
// understand are kept as Raw steps, so rendering the result back yields an
// equivalent attribute.
func ParseTransform(attr string) (Transform, error) {
	attr = strings.TrimSpace(attr)
	if attr == "" {
		return nil, nil
	}

	matches := transformFunc.FindAllStringSubmatchIndex(attr, -1)
	if matches == nil {
		return nil, fmt.Errorf("parsing transform %q: no transform functions", attr)
	}

	var t Transform
	end := 0
	for _, m := range matches {
		if gap := strings.Trim(attr[end:m[0]], " \t\n,"); gap != "" {
			return nil, fmt.Errorf("parsing transform %q: unexpected %q", attr, gap)
		}
		end = m[1]

		name := attr[m[2]:m[3]]
		args, err := parseArgs(attr[m[4]:m[5]])
		if err != nil {
			return nil, fmt.Errorf("parsing transform %q: %s: %w", attr, name, err)
		}

		op, err := newOp(name, args, attr[m[0]:m[1]])
		if err != nil {
			return nil, fmt.Errorf("parsing transform %q: %w", attr, err)
		}
		t = append(t, op)
	}
	if rest := strings.TrimSpace(attr[end:]); rest != "" {
		return nil, fmt.Errorf("parsing transform %q: unexpected %q", attr, rest)
	}

	return t, nil
}

func newOp(name string, args []float64, text string) (Op, error) {
	switch name {
	case "rotate":
		switch len(args) {
		case 1:
			return Rotate{Angle: args[0]}, nil
		case 3:
			return Rotate{Angle: args[0], CX: args[1], CY: args[2]}, nil
		}
	case "translate":
		switch len(args) {
		case 1:
			return Translate{X: args[0]}, nil
		case 2:
			return Translate{X: args[0], Y: args[1]}, nil
		}
	case "scale":
		switch len(args) {
		case 1:
			return Scale{SX: args[0], SY: args[0]}, nil
		case 2:
			return Scale{SX: args[0], SY: args[1]}, nil
		}
	case "matrix":
		if len(args) == 6 {
			return Matrix{args[0], args[1], args[2], args[3], args[4], args[5]}, nil
		}
	default:
		return Raw(text), nil
	}
	return nil, fmt.Errorf("%s: unexpected number of arguments %d", name, len(args))
}

// parseArgs reads a number list, including the compact forms minifiers emit
// such as "10-5" and ".5.5"
func parseArgs(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var args []float64
	prev := 0
	for i, m := range argNumber.FindAllStringIndex(s, -1) {
		gap := s[prev:m[0]]
		if (i == 0 && gap != "") || !argSeparator.MatchString(gap) {
			return nil, fmt.Errorf("unexpected %q in %q", gap, s)
		}

		v, err := strconv.ParseFloat(s[m[0]:m[1]], 64)
		if err != nil {
			return nil, err
		}
		args = append(args, v)
		prev = m[1]
	}
	if prev != len(s) {
		return nil, fmt.Errorf("unexpected %q in %q", s[prev:], s)
	}
	return args, nil
}

func apply(m f64.Aff3, x, y float64) (float64, float64) {
	return m[0]*x + m[1]*y + m[2], m[3]*x + m[4]*y + m[5]
}

func formatFloat(v float64) string {
	if v == 0 {
		v = 0 // no "-0"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
