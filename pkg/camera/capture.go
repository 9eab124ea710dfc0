package camera

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/internal/log"
)

// ErrClosed is returned when reading from a closed capture
var ErrClosed = errors.New("camera: capture closed")

// ErrNoFrame is returned when the device produced an empty frame
var ErrNoFrame = errors.New("camera: no frame")

// Capture reads BGR frames from a local webcam
type Capture struct {
	mu     sync.Mutex
	cap    *gocv.VideoCapture
	config Config
	logger *slog.Logger
}

// Open opens the webcam described by cfg and applies its settings
func Open(cfg Config) (*Capture, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("camera: open device %d: %w", cfg.DeviceID, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("camera: device %d not available", cfg.DeviceID)
	}

	c := &Capture{
		cap:    vc,
		logger: log.Component(nil, "camera"),
	}
	c.apply(cfg)
	c.logger.Info("webcam opened", "device", cfg.DeviceID, "width", cfg.Width, "height", cfg.Height, "fps", cfg.Framerate)
	return c, nil
}

// Apply updates resolution and frame rate on the open device.
// Changing DeviceID requires reopening, which Apply does in place.
func (c *Capture) Apply(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return ErrClosed
	}

	if cfg.DeviceID != c.config.DeviceID {
		vc, err := gocv.OpenVideoCapture(cfg.DeviceID)
		if err != nil {
			return fmt.Errorf("camera: open device %d: %w", cfg.DeviceID, err)
		}
		if !vc.IsOpened() {
			vc.Close()
			return fmt.Errorf("camera: device %d not available", cfg.DeviceID)
		}
		c.cap.Close()
		c.cap = vc
		c.logger.Info("webcam switched", "device", cfg.DeviceID)
	}
	c.apply(cfg)
	return nil
}

func (c *Capture) apply(cfg Config) {
	c.cap.Set(gocv.VideoCaptureFrameWidth, float64(cfg.Width))
	c.cap.Set(gocv.VideoCaptureFrameHeight, float64(cfg.Height))
	c.cap.Set(gocv.VideoCaptureFPS, float64(cfg.Framerate))
	if cfg.Exposure != 0 {
		c.cap.Set(gocv.VideoCaptureExposure, cfg.Exposure)
	}
	c.config = cfg
}

// Config returns the applied capture config
func (c *Capture) Config() Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// Read grabs the next frame into dst
func (c *Capture) Read(dst *gocv.Mat) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return ErrClosed
	}
	if ok := c.cap.Read(dst); !ok || dst.Empty() {
		return ErrNoFrame
	}
	return nil
}

// Close releases the device
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cap == nil {
		return nil
	}
	err := c.cap.Close()
	c.cap = nil
	return err
}
