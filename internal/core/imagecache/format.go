package imagecache

import (
	"bytes"
	"path"
	"strings"
)

// Format identifies a supported image encoding. Values match the format
// names reported by image.Decode.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatUnknown Format = ""
)

// String returns the string representation of the Format.
func (f Format) String() string {
	if f == FormatUnknown {
		return "unknown"
	}
	return string(f)
}

// Supported reports whether the format is one the cache can serve.
func (f Format) Supported() bool {
	return f == FormatJPEG || f == FormatPNG || f == FormatWebP
}

// ContentType returns the MIME type for the format. Unknown formats map
// to application/octet-stream, which callers should treat as an error.
func (f Format) ContentType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}

// Magic signatures for supported formats. WebP is a RIFF container:
// "RIFF" at offset 0, "WEBP" at offset 8.
var (
	jpegMagic     = []byte{0xFF, 0xD8}
	pngMagic      = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	riffMagic     = []byte("RIFF")
	webpContainer = []byte("WEBP")
)

// Sniff returns the true format of data based on its leading bytes.
// It is the single source of truth for "what format is this actually";
// declared extensions are advisory only. Returns FormatUnknown when no
// signature matches, which callers must treat as a non-image payload,
// never as "assume the declared extension is correct".
func Sniff(data []byte) Format {
	if len(data) >= len(jpegMagic) && bytes.Equal(data[:len(jpegMagic)], jpegMagic) {
		return FormatJPEG
	}
	if len(data) >= len(pngMagic) && bytes.Equal(data[:len(pngMagic)], pngMagic) {
		return FormatPNG
	}
	if len(data) >= 12 && bytes.Equal(data[:4], riffMagic) && bytes.Equal(data[8:12], webpContainer) {
		return FormatWebP
	}
	return FormatUnknown
}

// DeclaredFormat derives the advisory format from a key's extension.
// An unrecognized or missing extension yields FormatUnknown.
func DeclaredFormat(key string) Format {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".jpeg":
		return FormatJPEG
	case ".png":
		return FormatPNG
	case ".webp":
		return FormatWebP
	default:
		return FormatUnknown
	}
}
