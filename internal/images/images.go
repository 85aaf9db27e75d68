// Package images implements the image transform capability: clockwise
// rotation, bounded scale-down resizing, and re-encoding.
package images

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Format selects the output encoding.
type Format string

const (
	PNG  Format = "png"
	JPEG Format = "jpeg"
)

// Options describe a transform. Zero values leave the corresponding
// dimension untouched. MaxWidth/MaxHeight only ever scale down.
type Options struct {
	RotateDegrees int // clockwise: 0, 90, 180, 270
	MaxWidth      int
	MaxHeight     int
	Format        Format
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == JPEG {
		return "image/jpeg"
	}
	return "image/png"
}

func (f Format) imagingFormat() imaging.Format {
	if f == JPEG {
		return imaging.JPEG
	}
	return imaging.PNG
}

// Transform decodes the stream, applies the requested operations, and
// re-encodes it.
func Transform(r io.Reader, opts Options) ([]byte, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}

	rotated, err := rotateClockwise(img, opts.RotateDegrees)
	if err != nil {
		return nil, err
	}

	img = scaleDown(rotated, opts.MaxWidth, opts.MaxHeight)

	format := opts.Format
	if format == "" {
		format = PNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format.imagingFormat()); err != nil {
		return nil, fmt.Errorf("encoding image: %w", err)
	}
	return buf.Bytes(), nil
}

// rotateClockwise maps clockwise degrees onto imaging's counterclockwise
// rotation helpers.
func rotateClockwise(img image.Image, degrees int) (*image.NRGBA, error) {
	switch degrees {
	case 0:
		return imaging.Clone(img), nil
	case 90:
		return imaging.Rotate270(img), nil
	case 180:
		return imaging.Rotate180(img), nil
	case 270:
		return imaging.Rotate90(img), nil
	default:
		return nil, fmt.Errorf("unsupported rotation %d, want 0/90/180/270", degrees)
	}
}

// scaleDown resizes the image so it fits within the given bounds without
// ever upscaling. A zero bound means unconstrained in that dimension.
func scaleDown(img *image.NRGBA, maxWidth, maxHeight int) *image.NRGBA {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()

	switch {
	case maxWidth > 0 && maxHeight > 0:
		if w > maxWidth || h > maxHeight {
			return imaging.Fit(img, maxWidth, maxHeight, imaging.Lanczos)
		}
	case maxWidth > 0:
		if w > maxWidth {
			return imaging.Resize(img, maxWidth, 0, imaging.Lanczos)
		}
	case maxHeight > 0:
		if h > maxHeight {
			return imaging.Resize(img, 0, maxHeight, imaging.Lanczos)
		}
	}
	return img
}
