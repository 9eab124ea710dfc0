package detection

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/internal/log"
)

// YuNet output row: box (4), five landmark points (10), score (1)
const (
	yunetBox      = 0
	yunetLandmark = 4
	yunetScore    = 14
)

// YuNetDetector runs OpenCV's FaceDetectorYN. Safe for concurrent use.
type YuNetDetector struct {
	mu     sync.Mutex
	net    gocv.FaceDetectorYN
	size   image.Point
	closed bool
	config Config
	logger *slog.Logger
}

// NewYuNet loads the ONNX model named by cfg.ModelPath.
func NewYuNet(cfg Config) (*YuNetDetector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("detection: model: %w", err)
	}

	size := image.Pt(cfg.InputWidth, cfg.InputHeight)
	net := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath, "", size,
		float32(cfg.ConfidenceThresh),
		float32(cfg.NMSThresh),
		5000,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)

	return &YuNetDetector{
		net:    net,
		size:   size,
		config: cfg,
		logger: log.Component(nil, "yunet"),
	}, nil
}

// DetectJPEG decodes a JPEG and runs Detect on it
func (d *YuNetDetector) DetectJPEG(jpeg []byte) ([]Detection, error) {
	img, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return nil, fmt.Errorf("detection: decode: %w", err)
	}
	defer img.Close()
	return d.Detect(img)
}

// Detect finds faces in a BGR frame
func (d *YuNetDetector) Detect(img gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, ErrDetectorClosed
	}
	if img.Empty() {
		return nil, ErrEmptyFrame
	}

	// Resizing the network input is only needed when the frame size changes
	if size := image.Pt(img.Cols(), img.Rows()); size != d.size {
		d.net.SetInputSize(size)
		d.size = size
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.net.Detect(img, &faces)

	w, h := float64(img.Cols()), float64(img.Rows())
	dets := make([]Detection, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		dets = append(dets, parseRow(func(col int) float64 {
			return float64(faces.GetFloatAt(r, col))
		}, w, h))
	}

	if len(dets) > 0 {
		d.logger.Debug("faces detected", "count", len(dets))
	}
	return dets, nil
}

// parseRow converts one YuNet output row, in pixels with a top-left
// origin, to eye space.
func parseRow(at func(col int) float64, w, h float64) Detection {
	x, y := at(yunetBox), at(yunetBox+1)
	bw, bh := at(yunetBox+2), at(yunetBox+3)

	// Mirroring makes the far pixel corner the eye-space origin corner
	corner := toEyeSpace(x+bw, y+bh, w, h)
	det := Detection{
		X:          corner.X,
		Y:          corner.Y,
		W:          bw / w,
		H:          bh / h,
		Confidence: at(yunetScore),
	}
	for i := range det.Landmarks {
		col := yunetLandmark + 2*i
		det.Landmarks[i] = toEyeSpace(at(col), at(col+1), w, h)
	}
	return det
}

// Close releases the model. Calling it twice is safe.
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	d.net.Close()
	return nil
}
