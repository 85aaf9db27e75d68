package workflow

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/rs/zerolog"

	"bandaid/internal/ai"
	"bandaid/internal/blob"
)

type fakeInferrer struct {
	degrees string
	calls   int
}

func (f *fakeInferrer) InferRotation(_ context.Context, _ string) (*ai.RotationInstructions, error) {
	f.calls++
	return &ai.RotationInstructions{DegreesToRotate: f.degrees}, nil
}

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test image: %v", err)
	}
	return buf.Bytes()
}

func newTestNormalizer(t *testing.T, inferrer RotationInferrer, posters Posters) (*Normalizer, *blob.BadgerStore, *memStepLog) {
	t.Helper()
	blobs, err := blob.Open("")
	if err != nil {
		t.Fatalf("opening blob store: %v", err)
	}
	t.Cleanup(func() { blobs.Close() })
	steps := newMemStepLog()
	return NewNormalizer(inferrer, blobs, posters, steps, zerolog.Nop()), blobs, steps
}

func TestNormalizerRotatesScalesAndCommits(t *testing.T) {
	posterAgent := &fakeWorkflowPoster{slug: "the-show", uploaded: "r2://uploads/raw.png"}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}
	inferrer := &fakeInferrer{degrees: "90"}
	n, blobs, _ := newTestNormalizer(t, inferrer, posters)
	ctx := context.Background()

	// 1000x800 landscape: rotating 90 gives 800x1000, then scaling caps
	// width at 640.
	err := blobs.Put(ctx, blob.BucketUploads, "raw.png", &blob.Object{
		Data:        encodePNG(t, 1000, 800),
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("seeding upload: %v", err)
	}

	if err := n.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if posterAgent.canonical != "r2://posters/the-show.png" {
		t.Fatalf("canonical = %q", posterAgent.canonical)
	}
	obj, err := blobs.Get(ctx, blob.BucketPosters, "the-show.png")
	if err != nil {
		t.Fatalf("normalized image missing: %v", err)
	}
	if obj.ContentType != "image/png" {
		t.Errorf("content type = %q", obj.ContentType)
	}
	img, err := png.Decode(bytes.NewReader(obj.Data))
	if err != nil {
		t.Fatalf("decoding normalized image: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() > maxPosterWidth {
		t.Errorf("width = %d, want <= %d", bounds.Dx(), maxPosterWidth)
	}
	// Rotation happened before scaling: the result stays portrait.
	if bounds.Dy() <= bounds.Dx() {
		t.Errorf("bounds = %v, want portrait after 90 degree rotation", bounds)
	}
}

func TestNormalizerAvoidsKeyCollision(t *testing.T) {
	posterAgent := &fakeWorkflowPoster{slug: "the-show", uploaded: "r2://uploads/raw.png"}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}
	n, blobs, _ := newTestNormalizer(t, &fakeInferrer{degrees: "0"}, posters)
	ctx := context.Background()

	if err := blobs.Put(ctx, blob.BucketUploads, "raw.png", &blob.Object{Data: encodePNG(t, 100, 100)}); err != nil {
		t.Fatalf("seeding upload: %v", err)
	}
	// Another poster already owns the base key.
	if err := blobs.Put(ctx, blob.BucketPosters, "the-show.png", &blob.Object{Data: []byte("taken")}); err != nil {
		t.Fatalf("seeding collision: %v", err)
	}

	if err := n.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if posterAgent.canonical != "r2://posters/the-show-1.png" {
		t.Errorf("canonical = %q, want collision-avoided key", posterAgent.canonical)
	}
}

func TestNormalizerReplaySkipsInference(t *testing.T) {
	posterAgent := &fakeWorkflowPoster{slug: "s", uploaded: "r2://uploads/raw.png"}
	posters := &fakePosters{agents: map[string]*fakeWorkflowPoster{"p1": posterAgent}}
	inferrer := &fakeInferrer{degrees: "0"}
	n, blobs, _ := newTestNormalizer(t, inferrer, posters)
	ctx := context.Background()

	if err := blobs.Put(ctx, blob.BucketUploads, "raw.png", &blob.Object{Data: encodePNG(t, 10, 10)}); err != nil {
		t.Fatalf("seeding upload: %v", err)
	}

	if err := n.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first := posterAgent.canonical

	if err := n.Run(ctx, "wf-1", "p1"); err != nil {
		t.Fatalf("replay Run() error = %v", err)
	}
	if inferrer.calls != 1 {
		t.Errorf("inference ran %d times, want memoized replay", inferrer.calls)
	}
	if posterAgent.canonical != first {
		t.Errorf("canonical changed on replay: %q -> %q", first, posterAgent.canonical)
	}
}
