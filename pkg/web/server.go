// Package web serves the window's control API: tracker status, tuning,
// the calibration procedure, camera settings, and websocket streams of
// poses and preview frames.
package web

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-parallax/internal/log"
	"github.com/teslashibe/go-parallax/pkg/camera"
	"github.com/teslashibe/go-parallax/pkg/hub"
	"github.com/teslashibe/go-parallax/pkg/tracking"
)

// Config holds the HTTP server settings.
type Config struct {
	Port string

	// StaticDir is served at / when set
	StaticDir string
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{Port: "8080"}
}

// Server is the control API server
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	tracker *tracking.Tracker
	cameras *camera.Manager

	// Hubs for websocket broadcast. The pose hub is also the tracker's
	// publisher.
	poseHub    *hub.Hub
	previewHub *hub.Hub
}

// NewServer creates the server. cameras may be nil when the frame source
// is not a webcam.
func NewServer(cfg Config, tracker *tracking.Tracker, cameras *camera.Manager, poseHub, previewHub *hub.Hub) *Server {
	s := &Server{
		config:     cfg,
		logger:     log.Component(nil, "web"),
		tracker:    tracker,
		cameras:    cameras,
		poseHub:    poseHub,
		previewHub: previewHub,
	}

	app := fiber.New(fiber.Config{
		AppName:               "Parallax Window",
		DisableStartupMessage: true,
	})

	// CORS for local development
	app.Use(cors.New())

	if cfg.StaticDir != "" {
		app.Static("/", cfg.StaticDir)
	}

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/tuning", s.handleGetTuning)
	api.Post("/tuning", s.handleSetTuning)
	api.Get("/calibration", s.handleCalibrationStatus)
	api.Post("/calibration/start", s.handleCalibrationStart)
	api.Post("/calibration/next", s.handleCalibrationNext)
	api.Post("/calibration/cancel", s.handleCalibrationCancel)
	api.Get("/camera", s.handleGetCamera)
	api.Post("/camera", s.handleSetCamera)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/pose", websocket.New(s.handlePoseWS))
	app.Get("/ws/preview", websocket.New(s.handlePreviewWS))

	s.app = app
	return s
}

// Start runs the hubs and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	go s.poseHub.Run(ctx)
	go s.previewHub.Run(ctx)

	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("shutdown failed", "error", err)
		}
	}()

	addr := ":" + s.config.Port
	s.logger.Info("control api listening", "addr", "http://localhost"+addr)
	return s.app.Listen(addr)
}

// StartAsync starts the server in a goroutine
func (s *Server) StartAsync(ctx context.Context) {
	go func() {
		if err := s.Start(ctx); err != nil {
			s.logger.Error("web server stopped", "error", err)
		}
	}()
}

// App exposes the fiber app, mainly for tests.
func (s *Server) App() *fiber.App {
	return s.app
}
