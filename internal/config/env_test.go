package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PARALLAX_DB", "PARALLAX_PORT", "PARALLAX_CAMERA", "PARALLAX_MODEL", "PARALLAX_SLOW", "LOG_LEVEL", "GO_ENV"} {
		t.Setenv(k, "")
	}

	env := FromEnv()
	if env.Port != DefaultPort || env.CameraID != DefaultCameraID || env.ModelPath != DefaultModelPath {
		t.Errorf("unexpected defaults: %+v", env)
	}
	if env.Production {
		t.Error("Production should be false without GO_ENV")
	}
	if env.Slow {
		t.Error("Slow should default to false")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PARALLAX_PORT", "9000")
	t.Setenv("PARALLAX_CAMERA", "2")
	t.Setenv("GO_ENV", "production")
	t.Setenv("PARALLAX_SLOW", "1")

	env := FromEnv()
	if env.Port != "9000" {
		t.Errorf("Port: got %q, want 9000", env.Port)
	}
	if env.CameraID != 2 {
		t.Errorf("CameraID: got %d, want 2", env.CameraID)
	}
	if !env.Production {
		t.Error("expected Production")
	}
	if !env.Slow {
		t.Error("expected Slow from PARALLAX_SLOW=1")
	}
}

func TestInt_Malformed(t *testing.T) {
	t.Setenv("PARALLAX_CAMERA", "front")
	if got := Int("PARALLAX_CAMERA", 3); got != 3 {
		t.Errorf("Int: got %d, want fallback 3", got)
	}
}

func TestBool(t *testing.T) {
	t.Setenv("PARALLAX_STEREO", "true")
	if !Bool("PARALLAX_STEREO", false) {
		t.Error("expected true")
	}
	t.Setenv("PARALLAX_STEREO", "maybe")
	if Bool("PARALLAX_STEREO", false) {
		t.Error("malformed value should fall back")
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("PARALLAX_MODEL=/opt/yunet.onnx\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PARALLAX_MODEL", "")
	os.Unsetenv("PARALLAX_MODEL")

	LoadDotEnv(path)
	if got := String("PARALLAX_MODEL", ""); got != "/opt/yunet.onnx" {
		t.Errorf("PARALLAX_MODEL: got %q", got)
	}
}
