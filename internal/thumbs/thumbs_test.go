package thumbs

import (
	"bytes"
	"image"
	"image/jpeg"
	"log"
	"os"
	"strings"
	"testing"

	"github.com/davidbyttow/govips/v2/vips"

	"media-ingest/internal/logging"
)

func makeJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("failed to encode test JPEG: %v", err)
	}
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode thumbnail: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestDeriveAllClasses(t *testing.T) {
	d := NewDeriver(false)
	original := makeJPEG(t, 1600, 1200)

	out, failures := d.Derive(original, DefaultSizeClasses)
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}
	if len(out) != len(DefaultSizeClasses) {
		t.Fatalf("got %d variants, want %d", len(out), len(DefaultSizeClasses))
	}

	for _, class := range DefaultSizeClasses {
		data, ok := out[class]
		if !ok {
			t.Errorf("missing variant for class %s", class)
			continue
		}

		target, _ := Targets(class)
		w, h := decodeDims(t, data)
		longEdge := w
		if h > w {
			longEdge = h
		}
		if longEdge != target {
			t.Errorf("class %s long edge = %d, want %d", class, longEdge, target)
		}

		// 1600x1200 is 4:3; the variants must keep that ratio.
		if w*3 != h*4 {
			t.Errorf("class %s aspect ratio broken: %dx%d", class, w, h)
		}
	}
}

func TestDeriveNeverUpscales(t *testing.T) {
	d := NewDeriver(false)
	original := makeJPEG(t, 400, 300)

	out, failures := d.Derive(original, []SizeClass{SizeLarge})
	if len(failures) != 0 {
		t.Fatalf("unexpected failures: %v", failures)
	}

	w, h := decodeDims(t, out[SizeLarge])
	if w > 400 || h > 300 {
		t.Errorf("large variant upscaled to %dx%d from 400x300", w, h)
	}
}

func TestDeriveCorruptInput(t *testing.T) {
	d := NewDeriver(false)

	out, failures := d.Derive([]byte("definitely not an image"), DefaultSizeClasses)
	if len(out) != 0 {
		t.Errorf("corrupt input produced %d variants, want 0", len(out))
	}
	if len(failures) != len(DefaultSizeClasses) {
		t.Errorf("got %d failures, want one per class (%d)", len(failures), len(DefaultSizeClasses))
	}
}

func TestDeriveUnknownClass(t *testing.T) {
	d := NewDeriver(false)
	original := makeJPEG(t, 640, 480)

	out, failures := d.Derive(original, []SizeClass{SizeSmall, SizeClass("huge")})
	if _, ok := out[SizeSmall]; !ok {
		t.Error("known class missing from output")
	}
	if len(failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(failures))
	}
	if failures[0].Class != SizeClass("huge") {
		t.Errorf("failure class = %s, want huge", failures[0].Class)
	}
}

func TestClampTarget(t *testing.T) {
	tests := []struct {
		name          string
		target        int
		width, height int
		want          int
	}{
		{"larger original untouched", 640, 1600, 1200, 640},
		{"small square clamps to long edge", 640, 300, 300, 300},
		{"portrait uses long edge", 1280, 300, 800, 800},
		{"long edge above target untouched", 640, 300, 700, 640},
		{"exact match", 640, 640, 480, 640},
		{"unknown dimensions keep target", 640, 0, 0, 640},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := clampTarget(tt.target, tt.width, tt.height); got != tt.want {
				t.Errorf("clampTarget(%d, %d, %d) = %d, want %d",
					tt.target, tt.width, tt.height, got, tt.want)
			}
		})
	}
}

func TestLogVipsMessage(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	prev := logging.GetLevel()
	logging.SetLevel(logging.LevelDebug)
	t.Cleanup(func() {
		log.SetOutput(os.Stderr)
		logging.SetLevel(prev)
	})

	tests := []struct {
		name  string
		level vips.LogLevel
		want  string
	}{
		{"error", vips.LogLevelError, "[ERROR]"},
		{"critical", vips.LogLevelCritical, "[ERROR]"},
		{"warning", vips.LogLevelWarning, "[WARN]"},
		{"info", vips.LogLevelInfo, "[DEBUG]"},
		{"message", vips.LogLevelMessage, "[DEBUG]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf.Reset()
			logVipsMessage("VIPS", tt.level, "something happened")

			line := buf.String()
			if !strings.Contains(line, tt.want) {
				t.Errorf("log line %q missing %s prefix", line, tt.want)
			}
			if !strings.Contains(line, "[VIPS] something happened") {
				t.Errorf("log line %q missing message", line)
			}
		})
	}
}

func TestTargets(t *testing.T) {
	if target, ok := Targets(SizeSmall); !ok || target != 200 {
		t.Errorf("Targets(small) = %d, %v", target, ok)
	}
	if target, ok := Targets(SizeMedium); !ok || target != 640 {
		t.Errorf("Targets(medium) = %d, %v", target, ok)
	}
	if target, ok := Targets(SizeLarge); !ok || target != 1280 {
		t.Errorf("Targets(large) = %d, %v", target, ok)
	}
	if _, ok := Targets(SizeClass("bogus")); ok {
		t.Error("Targets(bogus) reported ok")
	}
}
