package detection

import (
	"errors"
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

// GlassesConfig holds the HSV window for the tinted lens check.
// Hue uses OpenCV's 0-180 range, saturation and value 0-255.
type GlassesConfig struct {
	Enabled bool `json:"enabled"`

	HueMin float64 `json:"hue_min"`
	HueMax float64 `json:"hue_max"`
	SatMin float64 `json:"sat_min"`
	ValMin float64 `json:"val_min"`

	// MinFraction of sampled pixels that must match for the lens to count
	MinFraction float64 `json:"min_fraction"`

	// RegionScale is the half-size of each eye sample as a fraction of the
	// eye separation in pixels
	RegionScale float64 `json:"region_scale"`
}

// DefaultGlassesConfig returns a disabled gate tuned for red lenses
func DefaultGlassesConfig() GlassesConfig {
	return GlassesConfig{
		Enabled:     false,
		HueMin:      0,
		HueMax:      10,
		SatMin:      100,
		ValMin:      60,
		MinFraction: 0.25,
		RegionScale: 0.35,
	}
}

// Validate checks the HSV window
func (c GlassesConfig) Validate() error {
	var errs []error
	if c.HueMin < 0 || c.HueMax > 180 || c.HueMin > c.HueMax {
		errs = append(errs, fmt.Errorf("glasses: hue range [%v, %v] outside 0-180", c.HueMin, c.HueMax))
	}
	if c.SatMin < 0 || c.SatMin > 255 || c.ValMin < 0 || c.ValMin > 255 {
		errs = append(errs, errors.New("glasses: sat/val minimum outside 0-255"))
	}
	if !(c.MinFraction > 0 && c.MinFraction <= 1) {
		errs = append(errs, fmt.Errorf("glasses: min fraction must be in (0, 1], got %v", c.MinFraction))
	}
	if !(c.RegionScale > 0) {
		errs = append(errs, fmt.Errorf("glasses: region scale must be > 0, got %v", c.RegionScale))
	}
	return errors.Join(errs...)
}

// GlassesGate decides whether the viewer wears the tinted glasses by
// counting in-range HSV pixels around each eye.
type GlassesGate struct {
	config GlassesConfig
	lower  gocv.Scalar
	upper  gocv.Scalar
}

// NewGlassesGate creates a gate from a validated config
func NewGlassesGate(cfg GlassesConfig) (*GlassesGate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &GlassesGate{
		config: cfg,
		lower:  gocv.NewScalar(cfg.HueMin, cfg.SatMin, cfg.ValMin, 0),
		upper:  gocv.NewScalar(cfg.HueMax, 255, 255, 0),
	}, nil
}

// Config returns the gate config
func (g *GlassesGate) Config() GlassesConfig {
	return g.config
}

// SetEnabled switches the gate on or off
func (g *GlassesGate) SetEnabled(on bool) {
	g.config.Enabled = on
}

// Check reports whether tracking should move the camera for this frame.
// A disabled gate always passes.
func (g *GlassesGate) Check(frame gocv.Mat, eyes geom.EyePair) bool {
	if !g.config.Enabled {
		return true
	}
	if frame.Empty() || !eyes.Finite() {
		return false
	}

	imgW := float64(frame.Cols())
	imgH := float64(frame.Rows())
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	lx, ly := toPixels(eyes.Left, imgW, imgH)
	rx, ry := toPixels(eyes.Right, imgW, imgH)
	half := int(math.Round(math.Hypot(rx-lx, ry-ly) * g.config.RegionScale))
	if half < 1 {
		return false
	}

	var matched, total int
	for _, c := range []image.Point{
		{X: int(math.Round(lx)), Y: int(math.Round(ly))},
		{X: int(math.Round(rx)), Y: int(math.Round(ry))},
	} {
		rect := image.Rect(c.X-half, c.Y-half, c.X+half, c.Y+half).Intersect(bounds)
		if rect.Empty() {
			continue
		}
		m, n := g.countRegion(frame, rect)
		matched += m
		total += n
	}
	if total == 0 {
		return false
	}
	return float64(matched)/float64(total) >= g.config.MinFraction
}

func (g *GlassesGate) countRegion(frame gocv.Mat, rect image.Rectangle) (matched, total int) {
	region := frame.Region(rect)
	defer region.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(region, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.InRangeWithScalar(hsv, g.lower, g.upper, &mask)

	return gocv.CountNonZero(mask), rect.Dx() * rect.Dy()
}
