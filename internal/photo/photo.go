// Package photo prepares uploaded asset photos for storage.
package photo

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"golang.org/x/image/draw"
)

const (
	// MaxDimension bounds the width and height of a stored photo.
	MaxDimension = 1024
	// ThumbDimension bounds the width and height of a thumbnail.
	ThumbDimension = 256
	// Quality is the JPEG quality of both renditions.
	Quality = 85
	// MIME is the type of every processed rendition.
	MIME = "image/jpeg"
)

// ErrUnsupported is returned for uploads that are not JPEG or PNG images.
var ErrUnsupported = errors.New("unsupported image format")

var accepted = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// Photo holds the stored renditions of an uploaded image.
type Photo struct {
	Full  []byte
	Thumb []byte
}

// Process sniffs the upload, rejects anything other than JPEG or PNG and
// returns a downscaled JPEG together with a thumbnail. Client supplied
// content types are not trusted.
func Process(r io.Reader) (*Photo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading image data: %w", err)
	}

	if detected := http.DetectContentType(data); !accepted[detected] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, detected)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}

	full, err := encode(fit(img, MaxDimension))
	if err != nil {
		return nil, err
	}
	thumb, err := encode(fit(img, ThumbDimension))
	if err != nil {
		return nil, err
	}
	return &Photo{Full: full, Thumb: thumb}, nil
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: Quality}); err != nil {
		return nil, fmt.Errorf("encoding jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// fit scales img down with Catmull-Rom so that neither side exceeds maxDim,
// keeping the aspect ratio. Smaller images are returned unchanged.
func fit(img image.Image, maxDim int) image.Image {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}

	newW, newH := maxDim, maxDim
	if w > h {
		newH = max(1, h*maxDim/w)
	} else {
		newW = max(1, w*maxDim/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}
