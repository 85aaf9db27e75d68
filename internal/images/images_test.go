package images

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"
)

// testImage renders a w x h image with a red top-left pixel so rotation
// direction is observable.
func testImage(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func decode(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	return img
}

func TestTransformRotate(t *testing.T) {
	tests := []struct {
		name       string
		degrees    int
		wantWidth  int
		wantHeight int
	}{
		{name: "no rotation", degrees: 0, wantWidth: 40, wantHeight: 20},
		{name: "quarter turn", degrees: 90, wantWidth: 20, wantHeight: 40},
		{name: "half turn", degrees: 180, wantWidth: 40, wantHeight: 20},
		{name: "three quarter turn", degrees: 270, wantWidth: 20, wantHeight: 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testImage(t, 40, 20)
			out, err := Transform(bytes.NewReader(src), Options{RotateDegrees: tt.degrees})
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			img := decode(t, out)
			if img.Bounds().Dx() != tt.wantWidth || img.Bounds().Dy() != tt.wantHeight {
				t.Errorf("bounds = %dx%d, want %dx%d",
					img.Bounds().Dx(), img.Bounds().Dy(), tt.wantWidth, tt.wantHeight)
			}
		})
	}
}

func TestTransformRotateDirection(t *testing.T) {
	// Red pixel starts top-left; a 90 degree clockwise turn moves it to the
	// top-right corner.
	src := testImage(t, 4, 4)
	out, err := Transform(bytes.NewReader(src), Options{RotateDegrees: 90})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	img := decode(t, out)
	r, g, _, _ := img.At(3, 0).RGBA()
	if r>>8 != 255 || g>>8 == 255 {
		t.Errorf("top-right pixel = %v, want red marker", img.At(3, 0))
	}
}

func TestTransformScaleDown(t *testing.T) {
	tests := []struct {
		name       string
		opts       Options
		srcW, srcH int
		wantW      int
		wantH      int
	}{
		{
			name: "width bound shrinks",
			opts: Options{MaxWidth: 16},
			srcW: 64, srcH: 32,
			wantW: 16, wantH: 8,
		},
		{
			name: "no upscale below bound",
			opts: Options{MaxWidth: 640},
			srcW: 64, srcH: 32,
			wantW: 64, wantH: 32,
		},
		{
			name: "square fit keeps ratio",
			opts: Options{MaxWidth: 10, MaxHeight: 10},
			srcW: 40, srcH: 20,
			wantW: 10, wantH: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := testImage(t, tt.srcW, tt.srcH)
			out, err := Transform(bytes.NewReader(src), tt.opts)
			if err != nil {
				t.Fatalf("Transform() error = %v", err)
			}
			img := decode(t, out)
			if img.Bounds().Dx() != tt.wantW || img.Bounds().Dy() != tt.wantH {
				t.Errorf("bounds = %dx%d, want %dx%d",
					img.Bounds().Dx(), img.Bounds().Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestTransformInvalidRotation(t *testing.T) {
	src := testImage(t, 4, 4)
	if _, err := Transform(bytes.NewReader(src), Options{RotateDegrees: 45}); err == nil {
		t.Fatal("Transform(45) error = nil, want error")
	}
}

func TestTransformJPEGOutput(t *testing.T) {
	src := testImage(t, 8, 8)
	out, err := Transform(bytes.NewReader(src), Options{Format: JPEG})
	if err != nil {
		t.Fatalf("Transform() error = %v", err)
	}
	// JPEG SOI marker
	if len(out) < 2 || out[0] != 0xFF || out[1] != 0xD8 {
		t.Errorf("output is not JPEG, first bytes = %x", out[:2])
	}
	if got := JPEG.ContentType(); got != "image/jpeg" {
		t.Errorf("ContentType() = %q", got)
	}
}
