package detection

import (
	"context"
	"errors"
	"testing"

	"gocv.io/x/gocv"

	"github.com/teslashibe/go-parallax/pkg/geom"
)

type stillReader struct {
	frame gocv.Mat
	err   error
}

func (r *stillReader) Read(dst *gocv.Mat) error {
	if r.err != nil {
		return r.err
	}
	r.frame.CopyTo(dst)
	return nil
}

type fixedDetector struct {
	dets []Detection
}

func (d *fixedDetector) Detect(gocv.Mat) ([]Detection, error) {
	out := make([]Detection, len(d.dets))
	copy(out, d.dets)
	return out, nil
}

func (d *fixedDetector) Close() error { return nil }

func viewerFace(conf float64) Detection {
	d := Detection{X: 0.3, Y: 0.3, W: 0.4, H: 0.4, Confidence: conf}
	d.Landmarks[LandmarkLeftEye] = geom.Vec2{X: 0.4, Y: 0.55}
	d.Landmarks[LandmarkRightEye] = geom.Vec2{X: 0.6, Y: 0.55}
	return d
}

func TestSource_Next(t *testing.T) {
	frame := solidFrame(0, 0, 255)
	defer frame.Close()

	det := &fixedDetector{dets: []Detection{viewerFace(0.6), viewerFace(0.9)}}
	src := NewSource(&stillReader{frame: frame}, det, nil, 0.01)
	defer src.Close()

	res, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !res.Found || !res.TrackingEnabled {
		t.Fatalf("expected a tracked face, got %+v", res)
	}
	if res.Confidence != 0.9 {
		t.Errorf("Confidence: got %v, want the best face's 0.9", res.Confidence)
	}
	if res.Eyes.Left.X >= res.Eyes.Right.X {
		t.Errorf("left eye must be left of right eye in viewer space: %+v", res.Eyes)
	}

	profile := viewerFace(0.99)
	profile.Landmarks[LandmarkRightEye] = profile.Landmarks[LandmarkLeftEye]
	for _, dets := range [][]Detection{nil, {profile}} {
		det.dets = dets
		res, err = src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if res.Found {
			t.Errorf("expected no face for %d detections", len(dets))
		}
	}
}

func TestSource_GateAndPreview(t *testing.T) {
	frame := solidFrame(255, 0, 0)
	defer frame.Close()

	cfg := DefaultGlassesConfig()
	cfg.Enabled = true
	gate, err := NewGlassesGate(cfg)
	if err != nil {
		t.Fatal(err)
	}

	src := NewSource(&stillReader{frame: frame}, &fixedDetector{dets: []Detection{viewerFace(0.9)}}, gate, 0.01)
	defer src.Close()

	var previews [][]byte
	src.Preview = func(jpeg []byte) { previews = append(previews, jpeg) }
	src.PreviewEvery = 2

	for i := 0; i < 4; i++ {
		res, err := src.Next(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if !res.Found || res.TrackingEnabled {
			t.Fatalf("blue frame should fail the gate: %+v", res)
		}
	}
	if len(previews) != 2 {
		t.Fatalf("expected 2 previews, got %d", len(previews))
	}
	if len(previews[0]) < 2 || previews[0][0] != 0xFF || previews[0][1] != 0xD8 {
		t.Error("preview is not a JPEG")
	}

	src.SetGlassesEnabled(false)
	res, _ := src.Next(context.Background())
	if !res.TrackingEnabled {
		t.Error("disabled gate should pass")
	}
}

func TestSource_Errors(t *testing.T) {
	boom := errors.New("unplugged")
	src := NewSource(&stillReader{err: boom}, &fixedDetector{}, nil, 0.01)
	defer src.Close()

	if _, err := src.Next(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected read error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
