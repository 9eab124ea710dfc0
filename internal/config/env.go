// Package config provides environment configuration helpers for go-parallax commands.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Defaults used when the environment does not override them.
const (
	DefaultDBPath    = "parallax.db"
	DefaultPort      = "8080"
	DefaultCameraID  = 0
	DefaultModelPath = "models/face_detection_yunet.onnx"
	DefaultLogLevel  = "info"
)

// Env is the process configuration read at startup.
type Env struct {
	DBPath     string // PARALLAX_DB, ":memory:" for a throwaway store
	Port       string // PARALLAX_PORT
	CameraID   int    // PARALLAX_CAMERA
	ModelPath  string // PARALLAX_MODEL
	LogLevel   string // LOG_LEVEL
	Slow       bool   // PARALLAX_SLOW, track at 15 fps
	Production bool   // GO_ENV=production
}

// LoadDotEnv loads .env files into the environment. Missing files are not
// an error; variables already set win.
func LoadDotEnv(files ...string) {
	_ = godotenv.Load(files...)
}

// FromEnv reads the process configuration.
func FromEnv() Env {
	return Env{
		DBPath:     String("PARALLAX_DB", DefaultDBPath),
		Port:       String("PARALLAX_PORT", DefaultPort),
		CameraID:   Int("PARALLAX_CAMERA", DefaultCameraID),
		ModelPath:  String("PARALLAX_MODEL", DefaultModelPath),
		LogLevel:   String("LOG_LEVEL", DefaultLogLevel),
		Slow:       Bool("PARALLAX_SLOW", false),
		Production: os.Getenv("GO_ENV") == "production",
	}
}

// String returns the env var or def when unset or empty.
func String(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Int returns the env var parsed as an int, or def when unset or malformed.
func Int(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// Bool returns the env var parsed as a bool, or def when unset or malformed.
func Bool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
