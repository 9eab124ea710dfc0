// Window turns a monitor into a virtual window: a webcam tracks the
// viewer's eyes and the control API streams off-axis camera projections
// for a renderer to draw with.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-parallax/internal/config"
	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/camera"
	"github.com/teslashibe/go-parallax/pkg/hub"
	"github.com/teslashibe/go-parallax/pkg/settings"
	"github.com/teslashibe/go-parallax/pkg/tracking"
	"github.com/teslashibe/go-parallax/pkg/tracking/detection"
	"github.com/teslashibe/go-parallax/pkg/web"
)

type options struct {
	port      string
	cameraID  int
	preset    string
	modelPath string
	dbPath    string
	staticDir string
	slow      bool
}

func main() {
	config.LoadDotEnv()
	env := config.FromEnv()

	var o options
	flag.StringVar(&o.port, "port", env.Port, "HTTP server port")
	flag.IntVar(&o.cameraID, "camera", env.CameraID, "Webcam device index")
	flag.StringVar(&o.preset, "preset", camera.PresetDefault, "Camera preset: default, 720p, 1080p, fast")
	flag.StringVar(&o.modelPath, "model", env.ModelPath, "YuNet face detection model")
	flag.StringVar(&o.dbPath, "db", env.DBPath, "Settings database (:memory: to discard on exit)")
	flag.StringVar(&o.staticDir, "static", "", "Directory served at /")
	flag.BoolVar(&o.slow, "slow", env.Slow, "Track at 15 fps")
	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	flag.Parse()

	level := env.LogLevel
	if *debug {
		level = "debug"
	}
	log.Init(level)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, o); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("window stopped", "error", err)
		os.Exit(1)
	}
	log.Info("goodbye")
}

func run(ctx context.Context, o options) error {
	logger := log.L()

	store, err := settings.OpenSQLite(ctx, o.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	s, err := settings.Load(ctx, store, logger)
	if err != nil {
		logger.Warn("settings unavailable, using defaults", "error", err)
	}

	camCfg := camera.GetPreset(o.preset)
	if camCfg == nil {
		return fmt.Errorf("unknown camera preset %q", o.preset)
	}
	camCfg.DeviceID = o.cameraID
	cameras := camera.NewManager(*camCfg)

	capture, err := camera.Open(cameras.GetConfig())
	if err != nil {
		return err
	}
	defer capture.Close()
	cameras.OnConfigChange = capture.Apply

	detCfg := detection.DefaultConfig()
	detCfg.ModelPath = o.modelPath
	detector, err := detection.NewYuNet(detCfg)
	if err != nil {
		return err
	}
	defer detector.Close()

	glassesCfg := detection.DefaultGlassesConfig()
	glassesCfg.Enabled = s.GlassesEnabled
	gate, err := detection.NewGlassesGate(glassesCfg)
	if err != nil {
		return err
	}

	source := detection.NewSource(capture, detector, gate, detCfg.MinEyeSeparation)
	defer source.Close()

	poseHub := hub.New("pose")
	previewHub := hub.New("preview")
	source.Preview = previewHub.BroadcastBinary

	cfg := tracking.DefaultConfig()
	if o.slow {
		cfg = tracking.SlowConfig()
	}
	cfg.Settings = s

	tracker, err := tracking.New(cfg, store, poseHub, logger)
	if err != nil {
		return err
	}
	tracker.OnSettingsChange = func(s settings.Settings) {
		source.SetGlassesEnabled(s.GlassesEnabled)
		if err := poseHub.BroadcastJSON(hub.KindSettings, s); err != nil {
			logger.Debug("settings broadcast failed", "error", err)
		}
	}

	srv := web.NewServer(web.Config{Port: o.port, StaticDir: o.staticDir}, tracker, cameras, poseHub, previewHub)
	srv.StartAsync(ctx)

	return tracker.Run(ctx, source)
}
