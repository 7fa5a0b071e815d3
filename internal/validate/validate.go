package validate

import (
	"bytes"
	"fmt"
	"image"

	"media-ingest/internal/logging"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrorKind classifies why an upload was rejected.
type ErrorKind string

const (
	// UnsupportedType means the file is not an allowed image format.
	UnsupportedType ErrorKind = "unsupported_type"
	// TooLarge means the file exceeds the maximum byte size.
	TooLarge ErrorKind = "too_large"
	// TooSmall means the file is below the minimum byte size.
	TooSmall ErrorKind = "too_small"
	// CorruptImage means the bytes could not be decoded as the declared format.
	CorruptImage ErrorKind = "corrupt_image"
	// DimensionsTooSmall means the decoded image is below the minimum pixel dimensions.
	DimensionsTooSmall ErrorKind = "dimensions_too_small"
)

// ValidationError is returned when an upload fails pre-flight validation.
type ValidationError struct {
	Kind    ErrorKind
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Message)
}

// Limits bounds what the validation gate accepts.
type Limits struct {
	MaxBytes    int64
	MinBytes    int64
	MinPixelDim int
}

// DefaultLimits returns the standard upload limits.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:    20 << 20, // 20 MiB
		MinBytes:    512,
		MinPixelDim: 200,
	}
}

// SourceMeta describes a validated upload. Captured once at validation and
// immutable afterwards.
type SourceMeta struct {
	Name        string `json:"name"`
	ByteSize    int64  `json:"byteSize"`
	MimeType    string `json:"mimeType"`
	PixelWidth  int    `json:"pixelWidth"`
	PixelHeight int    `json:"pixelHeight"`
}

// allowedMimes is the MIME allow-list for uploads. Formats must have a
// registered decoder so dimensions can be checked.
var allowedMimes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
	"image/gif":  true,
}

// Validate runs the pre-flight checks on an upload: MIME allow-list, byte-size
// bounds, magic-byte sniffing, then a lazy header decode for pixel dimensions.
// It performs no storage I/O, so a rejected file leaves nothing behind.
func Validate(name string, data []byte, declaredMime string, limits Limits) (SourceMeta, error) {
	size := int64(len(data))

	if !allowedMimes[declaredMime] {
		return SourceMeta{}, &ValidationError{
			Kind:    UnsupportedType,
			Message: fmt.Sprintf("mime type %q is not supported", declaredMime),
		}
	}

	if size > limits.MaxBytes {
		return SourceMeta{}, &ValidationError{
			Kind:    TooLarge,
			Message: fmt.Sprintf("file is %d bytes, maximum is %d", size, limits.MaxBytes),
		}
	}

	if size < limits.MinBytes {
		return SourceMeta{}, &ValidationError{
			Kind:    TooSmall,
			Message: fmt.Sprintf("file is %d bytes, minimum is %d", size, limits.MinBytes),
		}
	}

	// Cross-check the declared MIME against the actual bytes before handing
	// them to a decoder.
	sniffed := sniffFormat(data)
	if sniffed == "" {
		return SourceMeta{}, &ValidationError{
			Kind:    CorruptImage,
			Message: "file header does not match any supported image format",
		}
	}
	if mimeForFormat(sniffed) != declaredMime {
		logging.Debug("validate: declared %s but sniffed %s for %s", declaredMime, sniffed, name)
		return SourceMeta{}, &ValidationError{
			Kind:    UnsupportedType,
			Message: fmt.Sprintf("declared type %s does not match file content (%s)", declaredMime, sniffed),
		}
	}

	// Dimensions are decoded lazily: only files that already passed the type
	// and size checks reach this point.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return SourceMeta{}, &ValidationError{
			Kind:    CorruptImage,
			Message: fmt.Sprintf("cannot decode image header: %v", err),
		}
	}

	if cfg.Width < limits.MinPixelDim || cfg.Height < limits.MinPixelDim {
		return SourceMeta{}, &ValidationError{
			Kind: DimensionsTooSmall,
			Message: fmt.Sprintf("image is %dx%d, minimum is %dx%d",
				cfg.Width, cfg.Height, limits.MinPixelDim, limits.MinPixelDim),
		}
	}

	return SourceMeta{
		Name:        name,
		ByteSize:    size,
		MimeType:    declaredMime,
		PixelWidth:  cfg.Width,
		PixelHeight: cfg.Height,
	}, nil
}

// sniffFormat identifies the image format from the leading magic bytes.
// Returns "" when the header matches no supported format.
func sniffFormat(data []byte) string {
	switch {
	case len(data) >= 3 && data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "jpeg"

	case len(data) >= 8 && data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "png"

	case len(data) >= 4 && data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38:
		return "gif"

	case len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50:
		return "webp"
	}

	return ""
}

// mimeForFormat maps a sniffed format name back to its MIME type.
func mimeForFormat(format string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	case "webp":
		return "image/webp"
	default:
		return ""
	}
}
