// Package imageutil handles data URLs and thumbnail encoding for captured
// vehicle photos.
package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image/color"
	"strings"

	"github.com/disintegration/imaging"
)

const (
	// ThumbSize is the longest edge of a session thumbnail in pixels.
	ThumbSize = 320
	// ThumbQuality is the JPEG quality used for thumbnails.
	ThumbQuality = 60
)

var ErrNotDataURL = errors.New("imageutil: not a base64 data URL")

// IsDataURL reports whether s is an inline data URL.
func IsDataURL(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// DataURL encodes data inline with the given media type.
func DataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// ParseDataURL splits a base64 data URL into media type and bytes.
func ParseDataURL(s string) (string, []byte, error) {
	if !IsDataURL(s) {
		return "", nil, ErrNotDataURL
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok || !strings.HasSuffix(meta, ";base64") {
		return "", nil, ErrNotDataURL
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("imageutil: decode data URL: %w", err)
	}
	mime := strings.TrimSuffix(meta, ";base64")
	if mime == "" {
		mime = "application/octet-stream"
	}
	return mime, data, nil
}

// Thumbnail decodes an image (honouring EXIF orientation), fits it inside a
// maxDim square and re-encodes it as JPEG. Images already small enough are
// only re-encoded.
func Thumbnail(data []byte, maxDim, quality int) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("imageutil: decode: %w", err)
	}
	b := img.Bounds()
	if b.Dx() > maxDim || b.Dy() > maxDim {
		img = imaging.Fit(img, maxDim, maxDim, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("imageutil: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// ThumbnailDataURL turns a captured photo data URL into a JPEG thumbnail data
// URL at the default size and quality.
func ThumbnailDataURL(photo string) (string, error) {
	_, data, err := ParseDataURL(photo)
	if err != nil {
		return "", err
	}
	thumb, err := Thumbnail(data, ThumbSize, ThumbQuality)
	if err != nil {
		return "", err
	}
	return DataURL("image/jpeg", thumb), nil
}

// PadSquarePNG centres the image on a transparent size×size canvas, scaled so
// its longest edge covers fill (0..1) of the canvas. Image edit endpoints
// repaint the transparent margin.
func PadSquarePNG(data []byte, size int, fill float64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("imageutil: decode: %w", err)
	}
	if fill <= 0 || fill > 1 {
		fill = 1
	}
	inner := int(float64(size) * fill)
	img = imaging.Fit(img, inner, inner, imaging.Lanczos)
	canvas := imaging.New(size, size, color.NRGBA{})
	canvas = imaging.PasteCenter(canvas, img)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("imageutil: encode: %w", err)
	}
	return buf.Bytes(), nil
}
