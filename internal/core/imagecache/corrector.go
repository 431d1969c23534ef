package imagecache

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	_ "image/png" // Register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// CanonicalFormat is the serving format every corrected image is
// re-encoded to. JPEG for universal client compatibility.
const CanonicalFormat = FormatJPEG

// DefaultJPEGQuality is the encode quality used when none is configured.
const DefaultJPEGQuality = 85

// Corrector reconciles a buffer's true format with its declared one.
type Corrector interface {
	// Correct sniffs buf and, when the true format disagrees with the
	// declared one, re-encodes to the canonical serving format.
	// Returns the (possibly re-encoded) bytes, the format of the returned
	// bytes, and whether a re-encode happened. Returns ErrMalformed when
	// buf carries no recognizable image signature; such payloads are
	// never re-encoded or persisted.
	Correct(buf []byte, declared Format) ([]byte, Format, bool, error)
}

// FormatCorrector implements Corrector using the imaging library.
type FormatCorrector struct {
	quality int
}

// NewCorrector creates a FormatCorrector encoding at the given JPEG
// quality (0 or out-of-range uses the default).
func NewCorrector(quality int) *FormatCorrector {
	if quality < 1 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	return &FormatCorrector{quality: quality}
}

// Correct implements Corrector.
//
// The sniffed format is authoritative. No correction happens when the
// bytes already match the declared format, when the declared format is
// unknown (the key carries no usable extension), or when the bytes are
// already in the canonical format regardless of how the key is named;
// in the last case the key is merely a mislabeled locator and the bytes
// need no work. Anything else is decoded from its true format and
// re-encoded to canonical JPEG, flattening transparency against white.
func (c *FormatCorrector) Correct(buf []byte, declared Format) ([]byte, Format, bool, error) {
	actual := Sniff(buf)
	if actual == FormatUnknown {
		return nil, FormatUnknown, false, fmt.Errorf("%w: no known image signature", ErrMalformed)
	}

	if actual == declared || declared == FormatUnknown || actual == CanonicalFormat {
		return buf, actual, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		// The signature matched but the body does not decode: a
		// truncated transfer or corrupted upload.
		return nil, actual, false, fmt.Errorf("%w: decode %s: %v", ErrMalformed, actual, err)
	}

	out, err := c.encodeJPEG(img)
	if err != nil {
		return nil, actual, false, err
	}
	return out, CanonicalFormat, true, nil
}

// encodeJPEG flattens img against a white background and encodes it.
// JPEG has no alpha channel, so transparent regions would otherwise
// come out black.
func (c *FormatCorrector) encodeJPEG(img image.Image) ([]byte, error) {
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flattened := imaging.Overlay(background, img, image.Pt(0, 0), 1.0)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, flattened, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	return out.Bytes(), nil
}
