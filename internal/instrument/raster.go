package instrument

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"strconv"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/vector"
)

const (
	dpi     float64 = 72
	spacing float64 = 1.1

	defaultRasterSize = 256
	circleSegments    = 96
)

var (
	dialColor    = colorful.Hsv(220, 0.25, 0.16)
	bezelColor   = dialColor.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.3).Clamped()
	skyColor     = colorful.Hsv(205, 0.65, 0.85)
	groundColor  = colorful.Hsv(28, 0.7, 0.55)
	northColor   = colorful.Hsv(0, 0.8, 0.9)
	symbolColor  = colorful.Hsv(48, 0.9, 1)
	markingColor = color.White
)

// Raster is a server-side rendering surface for both instrument faces. It
// is itself a pair of Documents, so instruments load their geometry from it
// and write transforms into it exactly as they would into a browser asset.
type Raster struct {
	size     int
	font     *truetype.Font
	compass  Elements
	attitude Elements
}

// NewRaster creates square faces of the given size in pixels
func NewRaster(size int) (*Raster, error) {
	if size <= 0 {
		size = defaultRasterSize
	}

	parsedFont, err := freetype.ParseFont(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parsing font: %w", err)
	}

	s := float64(size)
	return &Raster{
		size: size,
		font: parsedFont,
		compass: Elements{
			CompassNeedleID: NewElement(BBox{Width: s, Height: s}, ""),
		},
		attitude: Elements{
			RollNeedleID: NewElement(BBox{Width: s, Height: s}, ""),
			RollGaugeID:  NewElement(BBox{Width: s, Height: 2 * s}, Translate{Y: -s / 2}.String()),
		},
	}, nil
}

func (r *Raster) Size() int {
	return r.size
}

// CompassDocument is the compass face asset
func (r *Raster) CompassDocument() Document {
	return r.compass
}

// AttitudeDocument is the artificial horizon face asset
func (r *Raster) AttitudeDocument() Document {
	return r.attitude
}

// DrawCompass renders the compass face with its current needle transform
func (r *Raster) DrawCompass(captions ...string) (*image.RGBA, error) {
	needle, err := ParseTransform(r.compass[CompassNeedleID].Transform())
	if err != nil {
		return nil, fmt.Errorf("drawing compass: %w", err)
	}

	img := r.dial()
	s := float64(r.size)
	c := s / 2

	// ticks every 30 degrees
	for deg := 0; deg < 360; deg += 30 {
		t := Transform{Rotate{Angle: float64(deg), CX: c, CY: c}}
		fillPolygon(img, t.Affine(), markingColor, [][2]float64{
			{c - 1, s * 0.04}, {c + 1, s * 0.04}, {c + 1, s * 0.1}, {c - 1, s * 0.1},
		})
	}

	fc := r.context(img, s/14)
	for i, label := range []string{"N", "E", "S", "W"} {
		angle := float64(i) * math.Pi / 2
		x := c + math.Sin(angle)*s*0.32 - s/14*0.35
		y := c - math.Cos(angle)*s*0.32 + s/14*0.35
		if _, err = fc.DrawString(label, freetype.Pt(int(x), int(y))); err != nil {
			return nil, fmt.Errorf("drawing compass label: %w", err)
		}
	}

	m := needle.Affine()
	fillPolygon(img, m, northColor, [][2]float64{{c, s * 0.14}, {c + s*0.05, c}, {c - s*0.05, c}})
	fillPolygon(img, m, markingColor, [][2]float64{{c - s*0.05, c}, {c + s*0.05, c}, {c, s * 0.86}})

	if err = r.caption(img, captions); err != nil {
		return nil, fmt.Errorf("drawing compass: %w", err)
	}
	return img, nil
}

// DrawAttitude renders the artificial horizon with its current transforms
func (r *Raster) DrawAttitude(captions ...string) (*image.RGBA, error) {
	needle, err := ParseTransform(r.attitude[RollNeedleID].Transform())
	if err != nil {
		return nil, fmt.Errorf("drawing attitude: %w", err)
	}
	gauge, err := ParseTransform(r.attitude[RollGaugeID].Transform())
	if err != nil {
		return nil, fmt.Errorf("drawing attitude: %w", err)
	}

	img := r.dial()
	s := float64(r.size)
	c := s / 2
	bounds := img.Bounds()

	// gauge layer in its own coordinates: horizon at y = s, 2s tall
	layer := image.NewRGBA(bounds)
	m := gauge.Affine()
	fillPolygon(layer, m, skyColor, [][2]float64{{-s, -2 * s}, {2 * s, -2 * s}, {2 * s, s}, {-s, s}})
	fillPolygon(layer, m, groundColor, [][2]float64{{-s, s}, {2 * s, s}, {2 * s, 4 * s}, {-s, 4 * s}})
	fillPolygon(layer, m, markingColor, [][2]float64{{-s, s - 1}, {2 * s, s - 1}, {2 * s, s + 1}, {-s, s + 1}})
	for _, deg := range []float64{-20, -10, 10, 20} {
		y := s - PitchOffset(deg*math.Pi/180, 2*s)
		w := s * 0.08
		if math.Abs(deg) == 20 {
			w = s * 0.14
		}
		fillPolygon(layer, m, markingColor, [][2]float64{{c - w, y - 0.5}, {c + w, y - 0.5}, {c + w, y + 0.5}, {c - w, y + 0.5}})
	}

	mask := image.NewAlpha(bounds)
	z := vector.NewRasterizer(bounds.Dx(), bounds.Dy())
	circle(z, identity, c, c, s*0.44)
	z.Draw(mask, bounds, image.Opaque, image.Point{})
	draw.DrawMask(img, bounds, layer, image.Point{}, mask, image.Point{}, draw.Over)

	// roll index
	fillPolygon(img, needle.Affine(), symbolColor, [][2]float64{{c, s * 0.07}, {c + s*0.03, s * 0.12}, {c - s*0.03, s * 0.12}})

	// fixed aircraft symbol
	fillPolygon(img, identity, symbolColor, [][2]float64{{c - s*0.22, c - 1.5}, {c - s*0.06, c - 1.5}, {c - s*0.06, c + 1.5}, {c - s*0.22, c + 1.5}})
	fillPolygon(img, identity, symbolColor, [][2]float64{{c + s*0.06, c - 1.5}, {c + s*0.22, c - 1.5}, {c + s*0.22, c + 1.5}, {c + s*0.06, c + 1.5}})
	fillPolygon(img, identity, symbolColor, [][2]float64{{c - 3, c - 3}, {c + 3, c - 3}, {c + 3, c + 3}, {c - 3, c + 3}})

	fc := r.context(img, s/20)
	for _, deg := range []int{-20, -10, 10, 20} {
		x, y := gauge.Apply(c+s*0.16, s-PitchOffset(float64(deg)*math.Pi/180, 2*s)+s/40)
		if math.Hypot(x-c, y-c) > s*0.4 {
			continue
		}
		if _, err = fc.DrawString(strconv.Itoa(deg), freetype.Pt(int(x), int(y))); err != nil {
			return nil, fmt.Errorf("drawing pitch label: %w", err)
		}
	}

	if err = r.caption(img, captions); err != nil {
		return nil, fmt.Errorf("drawing attitude: %w", err)
	}
	return img, nil
}

// EncodePNG writes img as PNG
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

// dial draws the instrument background and bezel
func (r *Raster) dial() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, r.size, r.size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)

	s := float64(r.size)
	c := s / 2

	z := vector.NewRasterizer(r.size, r.size)
	circle(z, identity, c, c, s*0.49)
	z.Draw(img, img.Bounds(), image.NewUniform(bezelColor), image.Point{})

	z.Reset(r.size, r.size)
	circle(z, identity, c, c, s*0.46)
	z.Draw(img, img.Bounds(), image.NewUniform(dialColor), image.Point{})

	return img
}

func (r *Raster) context(img *image.RGBA, size float64) *freetype.Context {
	if size < 8 {
		size = 8
	}

	fc := freetype.NewContext()
	fc.SetDPI(dpi)
	fc.SetFont(r.font)
	fc.SetFontSize(size)
	fc.SetHinting(font.HintingFull)
	fc.SetSrc(image.White)
	fc.SetClip(img.Bounds())
	fc.SetDst(img)
	return fc
}

// caption draws text lines in the bottom left corner
func (r *Raster) caption(img *image.RGBA, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	size := math.Max(8, float64(r.size)/24)
	fc := r.context(img, size)

	lineHeight := size * spacing
	top := float64(r.size) - lineHeight*float64(len(lines)-1) - 3
	pt := freetype.Pt(3, int(top))
	for _, line := range lines {
		if _, err := fc.DrawString(line, pt); err != nil {
			return fmt.Errorf("drawing caption: %w", err)
		}
		pt.Y += fc.PointToFixed(lineHeight)
	}
	return nil
}

func fillPolygon(dst *image.RGBA, m f64.Aff3, c color.Color, points [][2]float64) {
	if len(points) < 3 {
		return
	}

	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for i, p := range points {
		x, y := apply(m, p[0], p[1])
		if i == 0 {
			z.MoveTo(float32(x), float32(y))
			continue
		}
		z.LineTo(float32(x), float32(y))
	}
	z.ClosePath()
	z.Draw(dst, b, image.NewUniform(c), image.Point{})
}

func circle(z *vector.Rasterizer, m f64.Aff3, cx, cy, radius float64) {
	for i := 0; i <= circleSegments; i++ {
		sin, cos := math.Sincos(2 * math.Pi * float64(i) / circleSegments)
		x, y := apply(m, cx+radius*cos, cy+radius*sin)
		if i == 0 {
			z.MoveTo(float32(x), float32(y))
			continue
		}
		z.LineTo(float32(x), float32(y))
	}
	z.ClosePath()
}
