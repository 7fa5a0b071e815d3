package thumbs

import (
	"bytes"
	"fmt"
	"image"
	"time"

	"media-ingest/internal/logging"
	"media-ingest/internal/metrics"

	"github.com/disintegration/imaging"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// SizeClass names one of the thumbnail resolutions derived for every upload.
type SizeClass string

const (
	// SizeSmall targets grid cells and list rows.
	SizeSmall SizeClass = "small"
	// SizeMedium targets detail views.
	SizeMedium SizeClass = "medium"
	// SizeLarge targets zoomed previews.
	SizeLarge SizeClass = "large"
)

// longEdgeTargets maps each size class to its longer-edge pixel target.
var longEdgeTargets = map[SizeClass]int{
	SizeSmall:  200,
	SizeMedium: 640,
	SizeLarge:  1280,
}

// DefaultSizeClasses is the standard derivation set, smallest first.
var DefaultSizeClasses = []SizeClass{SizeSmall, SizeMedium, SizeLarge}

// jpegQuality is the re-encode quality for all thumbnails. One consistent
// format and quality keeps output sizes predictable.
const jpegQuality = 80

// SizeError reports a single size class that could not be derived.
type SizeError struct {
	Class SizeClass
	Err   error
}

func (e SizeError) Error() string {
	return fmt.Sprintf("thumbnail %s: %v", e.Class, e.Err)
}

// Deriver produces resized JPEG variants of an original image.
type Deriver struct {
	useVips bool
}

// NewDeriver returns a Deriver. When useVips is true and libvips initialized
// successfully, decoding uses vips with decode-time shrinking; otherwise the
// pure-Go path is used.
func NewDeriver(useVips bool) *Deriver {
	if useVips && !IsVipsAvailable() {
		logging.Warn("ThumbnailDeriver: vips requested but not available, using pure-Go decoding")
		useVips = false
	}
	logging.Debug("ThumbnailDeriver: vips=%v", useVips)
	return &Deriver{useVips: useVips}
}

// Derive produces one JPEG per requested size class, resized so the longer
// edge equals the class target while preserving aspect ratio. Originals
// smaller than a target are re-encoded at their native size, never upscaled.
//
// Size classes are independent: a failure in one class is returned in the
// error slice while the remaining classes still populate the map.
func (d *Deriver) Derive(original []byte, classes []SizeClass) (map[SizeClass][]byte, []SizeError) {
	out := make(map[SizeClass][]byte, len(classes))
	var failures []SizeError

	// Decode once on the pure-Go path; the vips path shrinks during decode,
	// so it re-decodes per class from the compressed original instead.
	var decoded image.Image
	if !d.useVips {
		img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
		if err != nil {
			for _, class := range classes {
				failures = append(failures, SizeError{Class: class, Err: fmt.Errorf("decode failed: %w", err)})
				metrics.ThumbnailsGenerated.WithLabelValues(string(class), "error").Inc()
			}
			return out, failures
		}
		decoded = img
	}

	for _, class := range classes {
		start := time.Now()

		data, err := d.deriveOne(original, decoded, class)
		metrics.ThumbnailDuration.WithLabelValues(string(class)).Observe(time.Since(start).Seconds())

		if err != nil {
			failures = append(failures, SizeError{Class: class, Err: err})
			metrics.ThumbnailsGenerated.WithLabelValues(string(class), "error").Inc()
			logging.Warn("Thumbnail %s failed: %v", class, err)
			continue
		}

		out[class] = data
		metrics.ThumbnailsGenerated.WithLabelValues(string(class), "success").Inc()
	}

	return out, failures
}

func (d *Deriver) deriveOne(original []byte, decoded image.Image, class SizeClass) ([]byte, error) {
	target, ok := longEdgeTargets[class]
	if !ok {
		return nil, fmt.Errorf("unknown size class %q", class)
	}

	var img image.Image
	if d.useVips {
		// The decode-time shrink must honor the no-upscale rule too: cap the
		// target at the original's long edge before vips sees it.
		decodeTarget := target
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(original)); err == nil {
			decodeTarget = clampTarget(target, cfg.Width, cfg.Height)
		}
		var err error
		img, err = decodeShrunkWithVips(original, decodeTarget)
		if err != nil {
			logging.Debug("vips decode failed, falling back to pure-Go: %v", err)
			img, err = imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
			if err != nil {
				return nil, fmt.Errorf("decode failed: %w", err)
			}
		}
	} else {
		img = decoded
	}

	// Fit only ever scales down, which is exactly the no-upscale rule.
	thumb := imaging.Fit(img, target, target, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode failed: %w", err)
	}

	return buf.Bytes(), nil
}

// clampTarget bounds a size-class target by the original's long edge.
// Originals smaller than the target keep their native size.
func clampTarget(target, width, height int) int {
	longEdge := width
	if height > longEdge {
		longEdge = height
	}
	if longEdge > 0 && longEdge < target {
		return longEdge
	}
	return target
}

// Targets exposes the longer-edge target for a size class, for callers that
// need to reason about expected output dimensions.
func Targets(class SizeClass) (int, bool) {
	t, ok := longEdgeTargets[class]
	return t, ok
}
