package tracking

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/calibration"
	"github.com/teslashibe/go-parallax/pkg/settings"
)

const sourceErrorLogKey = "source-error"

// Tracker drives a HeadTrackingContext from a frame source and makes it
// safe to call from HTTP handlers while frames are flowing.
type Tracker struct {
	mu        sync.RWMutex
	ctx       *HeadTrackingContext
	publisher Publisher
	logger    *slog.Logger
	once      *log.Once

	last      Output
	hasOutput bool
	isRunning bool

	// OnSettingsChange is called after tuning or calibration changed the
	// settings, outside the tracker lock
	OnSettingsChange func(s settings.Settings)
}

// New creates a tracker around a fresh HeadTrackingContext.
// publisher may be nil.
func New(cfg Config, store settings.Store, publisher Publisher, logger *slog.Logger) (*Tracker, error) {
	hc, err := NewHeadTrackingContext(cfg, store, logger)
	if err != nil {
		return nil, err
	}
	return &Tracker{
		ctx:       hc,
		publisher: publisher,
		logger:    log.Component(logger, "tracker"),
		once:      log.NewOnce(),
	}, nil
}

// Run pulls frames from source every FrameInterval until ctx is done.
func (t *Tracker) Run(ctx context.Context, source FrameSource) error {
	t.mu.Lock()
	interval := t.ctx.config.FrameInterval
	t.isRunning = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.isRunning = false
		t.mu.Unlock()
	}()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	t.logger.Info("head tracker started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			t.logger.Info("head tracker stopped", "frames", t.Frames())
			return ctx.Err()

		case <-ticker.C:
			frame, err := source.Next(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					continue
				}
				t.once.Do(sourceErrorLogKey, func() {
					t.logger.Warn("frame source failing", "error", err)
				})
				continue
			}
			if t.once.Fired(sourceErrorLogKey) {
				t.logger.Info("frame source recovered")
				t.once.Reset(sourceErrorLogKey)
			}
			t.Step(frame)
		}
	}
}

// Step runs one frame and publishes the result.
func (t *Tracker) Step(frame FrameResult) Output {
	t.mu.Lock()
	out := t.ctx.Step(frame)
	t.last = out
	t.hasOutput = true
	t.mu.Unlock()

	if t.publisher != nil {
		t.publisher.Publish(out)
	}
	return out
}

// Last returns the most recent output.
func (t *Tracker) Last() (Output, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.last, t.hasOutput
}

// Frames returns the number of frames processed.
func (t *Tracker) Frames() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx.Frames()
}

// IsRunning returns whether Run is active
func (t *Tracker) IsRunning() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isRunning
}

// Settings returns the settings in effect.
func (t *Tracker) Settings() settings.Settings {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx.Settings()
}

// Status is a snapshot for the status endpoint.
type Status struct {
	Running     bool              `json:"running"`
	Frames      uint64            `json:"frames"`
	Builds      int               `json:"builds"`
	ScreenCm    [2]float64        `json:"screen_cm"`
	Calibration calibration.State `json:"calibration"`
	Last        *Output           `json:"last,omitempty"`
}

// Status returns the tracker status.
func (t *Tracker) Status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()

	screen := t.ctx.Screen()
	st := Status{
		Running:     t.isRunning,
		Frames:      t.ctx.Frames(),
		Builds:      t.ctx.Builds(),
		ScreenCm:    [2]float64{screen.WidthCm, screen.HeightCm},
		Calibration: t.ctx.CalibrationStatus().State,
	}
	if t.hasOutput {
		last := t.last
		st.Last = &last
	}
	return st
}

// GetTuningParams returns current tuning parameters.
func (t *Tracker) GetTuningParams() TuningParams {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx.GetTuningParams()
}

// SetTuningParams applies a tuning update between frames.
func (t *Tracker) SetTuningParams(ctx context.Context, params TuningParams) error {
	t.mu.Lock()
	before := t.ctx.Settings()
	err := t.ctx.SetTuningParams(ctx, params)
	s := t.ctx.Settings()
	t.mu.Unlock()

	// A rejected update changes nothing; a failed save still applied
	if s != before {
		t.notify(s)
	}
	return err
}

// CalibrationStatus reports the calibration procedure.
func (t *Tracker) CalibrationStatus() CalibrationStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ctx.CalibrationStatus()
}

// StartCalibration begins the calibration procedure.
func (t *Tracker) StartCalibration() (CalibrationStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx.StartCalibration()
}

// NextCalibration confirms the current calibration step.
func (t *Tracker) NextCalibration(ctx context.Context, sliders calibration.Sliders) (CalibrationStatus, error) {
	t.mu.Lock()
	committing := t.ctx.session.State() == calibration.StateSliders
	st, err := t.ctx.NextCalibration(ctx, sliders)
	s := t.ctx.Settings()
	t.mu.Unlock()

	// Sliders -> Off means the new constants are in effect
	if committing && !st.Active {
		t.notify(s)
	}
	return st, err
}

// CancelCalibration abandons the calibration procedure.
func (t *Tracker) CancelCalibration() CalibrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ctx.CancelCalibration()
}

func (t *Tracker) notify(s settings.Settings) {
	if t.OnSettingsChange != nil {
		t.OnSettingsChange(s)
	}
}
