package workflow

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bandaid/internal/ai"
	"bandaid/internal/blob"
	"bandaid/internal/images"
)

// Normalized poster images are capped at this width.
const maxPosterWidth = 640

// How many alternate keys to try before giving up on a slug.
const maxKeyAttempts = 100

// RotationInferrer determines the rotation needed to make a poster upright.
type RotationInferrer interface {
	InferRotation(ctx context.Context, imageURLOrData string) (*ai.RotationInstructions, error)
}

// Normalizer turns the uploaded original into the canonical poster image:
// upright, at most 640 wide, PNG, stored under a slug-derived key.
type Normalizer struct {
	inferrer   RotationInferrer
	blobs      blob.Store
	posters    Posters
	steps      StepLog
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewNormalizer wires the normalization workflow.
func NewNormalizer(inferrer RotationInferrer, blobs blob.Store, posters Posters, steps StepLog, logger zerolog.Logger) *Normalizer {
	return &Normalizer{
		inferrer:   inferrer,
		blobs:      blobs,
		posters:    posters,
		steps:      steps,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// Run executes the three normalization phases. Each phase is memoized, so
// a retry after a crash resumes where it stopped.
func (n *Normalizer) Run(ctx context.Context, workflowID, posterID string) error {
	agent := n.posters.Get(posterID)
	run := NewRun(workflowID, n.steps)

	source, err := Do(ctx, run, "source", func(ctx context.Context) (string, error) {
		return agent.UploadedImageURL(ctx)
	})
	if err != nil {
		return fmt.Errorf("reading source for poster %s: %w", posterID, err)
	}

	degrees, err := Do(ctx, run, "infer-rotation", func(ctx context.Context) (int, error) {
		obj, err := n.loadImage(ctx, source)
		if err != nil {
			return 0, err
		}
		instr, err := n.inferrer.InferRotation(ctx, dataURL(obj))
		if err != nil {
			return 0, err
		}
		return strconv.Atoi(instr.DegreesToRotate)
	})
	if err != nil {
		return fmt.Errorf("inferring rotation for poster %s: %w", posterID, err)
	}

	canonical, err := Do(ctx, run, "transform-store", func(ctx context.Context) (string, error) {
		obj, err := n.loadImage(ctx, source)
		if err != nil {
			return "", err
		}
		normalized, err := images.Transform(bytes.NewReader(obj.Data), images.Options{
			RotateDegrees: degrees,
			MaxWidth:      maxPosterWidth,
			Format:        images.PNG,
		})
		if err != nil {
			return "", err
		}

		slug, err := agent.Slug(ctx)
		if err != nil {
			return "", err
		}
		if slug == "" {
			slug = posterID
		}
		key, err := n.availableKey(ctx, slug)
		if err != nil {
			return "", err
		}
		err = n.blobs.Put(ctx, blob.BucketPosters, key, &blob.Object{
			Data:        normalized,
			ContentType: images.PNG.ContentType(),
		})
		if err != nil {
			return "", err
		}
		return blob.URL(blob.BucketPosters, key), nil
	})
	if err != nil {
		return fmt.Errorf("normalizing poster %s: %w", posterID, err)
	}

	if _, err := Do(ctx, run, "commit", func(ctx context.Context) (bool, error) {
		return true, agent.SetCanonicalURL(ctx, canonical)
	}); err != nil {
		return fmt.Errorf("committing canonical url for poster %s: %w", posterID, err)
	}

	n.logger.Info().Str("poster_id", posterID).Str("workflow_id", workflowID).
		Int("rotation", degrees).Str("canonical", canonical).Msg("poster normalized")
	return nil
}

// availableKey picks the first unused slug-derived key: slug.png,
// slug-1.png, slug-2.png, ...
func (n *Normalizer) availableKey(ctx context.Context, slug string) (string, error) {
	for i := 0; i < maxKeyAttempts; i++ {
		key := slug + ".png"
		if i > 0 {
			key = fmt.Sprintf("%s-%d.png", slug, i)
		}
		exists, err := n.blobs.Exists(ctx, blob.BucketPosters, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
	return "", fmt.Errorf("no free key for slug %q", slug)
}

// loadImage fetches the source image from the blob store or, for external
// sources, over HTTP.
func (n *Normalizer) loadImage(ctx context.Context, source string) (*blob.Object, error) {
	if blob.IsRef(source) {
		bucket, key, err := blob.ParseRef(source)
		if err != nil {
			return nil, err
		}
		return n.blobs.Get(ctx, bucket, key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, fmt.Errorf("building image request: %w", err)
	}
	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	return &blob.Object{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func dataURL(obj *blob.Object) string {
	contentType := obj.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(obj.Data)
}
