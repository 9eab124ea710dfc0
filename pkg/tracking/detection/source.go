package detection

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/geom"
	"github.com/teslashibe/go-parallax/pkg/tracking"
)

// FrameReader supplies BGR frames. camera.Capture satisfies it.
type FrameReader interface {
	Read(dst *gocv.Mat) error
}

// Source turns webcam frames into tracking.FrameResult values:
// read, detect, pick the best face, apply the glasses gate.
type Source struct {
	reader   FrameReader
	detector Detector
	gate     *GlassesGate
	minSep   float64
	logger   *slog.Logger

	mu    sync.Mutex
	frame gocv.Mat

	// Preview, when set, receives an annotated JPEG every PreviewEvery frames
	Preview      func(jpeg []byte)
	PreviewEvery int
	count        int
}

// NewSource creates a frame source. gate may be nil for no gating.
// Faces with eyes closer than minSep are ignored.
func NewSource(reader FrameReader, detector Detector, gate *GlassesGate, minSep float64) *Source {
	return &Source{
		reader:       reader,
		detector:     detector,
		gate:         gate,
		minSep:       minSep,
		logger:       log.Component(nil, "detection"),
		frame:        gocv.NewMat(),
		PreviewEvery: 3,
	}
}

// SetGlassesEnabled toggles the gate at runtime.
func (s *Source) SetGlassesEnabled(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		s.gate.SetEnabled(on)
	}
}

// Next reads one frame and runs detection on it.
func (s *Source) Next(ctx context.Context) (tracking.FrameResult, error) {
	if err := ctx.Err(); err != nil {
		return tracking.FrameResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.reader.Read(&s.frame); err != nil {
		return tracking.FrameResult{}, fmt.Errorf("read frame: %w", err)
	}
	res := tracking.FrameResult{CapturedAt: time.Now()}

	dets, err := s.detector.Detect(s.frame)
	if err != nil {
		return tracking.FrameResult{}, fmt.Errorf("detect: %w", err)
	}

	best := SelectViewer(dets, s.minSep)
	if best != nil {
		res.Found = true
		res.Eyes = best.Eyes()
		res.Confidence = best.Confidence
		res.TrackingEnabled = s.gate == nil || s.gate.Check(s.frame, res.Eyes)
	}

	s.count++
	if s.Preview != nil && s.PreviewEvery > 0 && s.count%s.PreviewEvery == 0 {
		s.sendPreview(best)
	}
	return res, nil
}

var (
	previewEye     = color.RGBA{G: 255, A: 255}
	previewBox     = color.RGBA{R: 255, G: 200, A: 255}
	previewBlocked = color.RGBA{R: 255, A: 255}
)

func (s *Source) sendPreview(best *Detection) {
	img := s.frame.Clone()
	defer img.Close()

	if best != nil {
		w, h := float64(img.Cols()), float64(img.Rows())
		annotate(&img, *best, w, h, s.gate == nil || s.gate.Check(s.frame, best.Eyes()))
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		s.logger.Debug("preview encode failed", "error", err)
		return
	}
	defer buf.Close()

	// Copy out of the native buffer before it is freed
	data := append([]byte(nil), buf.GetBytes()...)
	s.Preview(data)
}

func annotate(img *gocv.Mat, d Detection, w, h float64, enabled bool) {
	// The box corner stored is bottom-left in eye space, which is the
	// bottom-right corner in pixel space
	x1, y1 := toPixels(geom.Vec2{X: d.X, Y: d.Y}, w, h)
	x0, y0 := toPixels(geom.Vec2{X: d.X + d.W, Y: d.Y + d.H}, w, h)
	box := previewBox
	if !enabled {
		box = previewBlocked
	}
	gocv.Rectangle(img, image.Rect(int(x0), int(y0), int(x1), int(y1)), box, 2)

	for _, eye := range []geom.Vec2{d.Eyes().Left, d.Eyes().Right} {
		px, py := toPixels(eye, w, h)
		gocv.Circle(img, image.Pt(int(px), int(py)), 3, previewEye, -1)
	}
}

// Close releases the frame buffer. The reader and detector are owned by
// the caller.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frame.Close()
}
