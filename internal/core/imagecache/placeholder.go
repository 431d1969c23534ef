package imagecache

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"sync"
)

var (
	placeholderOnce sync.Once
	placeholderData []byte
)

// Placeholder returns the bundled fallback image served on unrecoverable
// origin failures: a small neutral-gray JPEG generated in-process, so it
// is always available and always in the canonical serving format.
// The returned slice is shared; callers must not modify it.
func Placeholder() []byte {
	placeholderOnce.Do(func() {
		const size = 64
		img := image.NewRGBA(image.Rect(0, 0, size, size))
		gray := color.RGBA{R: 0xE2, G: 0xE5, B: 0xE9, A: 0xFF}
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				img.Set(x, y, gray)
			}
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
			// Encoding a solid RGBA image into memory cannot fail.
			panic(err)
		}
		placeholderData = buf.Bytes()
	})
	return placeholderData
}
