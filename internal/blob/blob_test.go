package blob

import (
	"context"
	"errors"
	"testing"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		name       string
		ref        string
		wantBucket string
		wantKey    string
		wantErr    bool
	}{
		{
			name:       "upload reference",
			ref:        "r2://uploads/poster.jpg",
			wantBucket: "uploads",
			wantKey:    "poster.jpg",
		},
		{
			name:       "poster reference with dashes",
			ref:        "r2://posters/alpha-tour-2024-1.png",
			wantBucket: "posters",
			wantKey:    "alpha-tour-2024-1.png",
		},
		{
			name:       "nested key",
			ref:        "r2://uploads/2024/06/poster.jpg",
			wantBucket: "uploads",
			wantKey:    "2024/06/poster.jpg",
		},
		{
			name:    "external url",
			ref:     "https://example.com/poster.jpg",
			wantErr: true,
		},
		{
			name:    "missing key",
			ref:     "r2://uploads",
			wantErr: true,
		},
		{
			name:    "empty bucket",
			ref:     "r2:///key",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bucket, key, err := ParseRef(tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseRef(%q) error = nil, want error", tt.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseRef(%q) error = %v", tt.ref, err)
			}
			if bucket != tt.wantBucket || key != tt.wantKey {
				t.Errorf("ParseRef(%q) = (%q, %q), want (%q, %q)",
					tt.ref, bucket, key, tt.wantBucket, tt.wantKey)
			}
		})
	}
}

func TestURLRoundTrip(t *testing.T) {
	ref := URL(BucketPosters, "alpha.png")
	if ref != "r2://posters/alpha.png" {
		t.Fatalf("URL() = %q", ref)
	}
	bucket, key, err := ParseRef(ref)
	if err != nil {
		t.Fatalf("ParseRef() error = %v", err)
	}
	if bucket != BucketPosters || key != "alpha.png" {
		t.Errorf("round trip = (%q, %q)", bucket, key)
	}
}

func TestBadgerStore(t *testing.T) {
	store, err := Open("")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	// Missing object
	if _, err := store.Get(ctx, BucketUploads, "missing.jpg"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get(missing) error = %v, want ErrNotFound", err)
	}

	exists, err := store.Exists(ctx, BucketUploads, "missing.jpg")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if exists {
		t.Error("Exists(missing) = true, want false")
	}

	// Put and get back
	want := &Object{Data: []byte("image-bytes"), ContentType: "image/jpeg"}
	if err := store.Put(ctx, BucketUploads, "poster.jpg", want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := store.Get(ctx, BucketUploads, "poster.jpg")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(want.Data) {
		t.Errorf("Data = %q, want %q", got.Data, want.Data)
	}
	if got.ContentType != want.ContentType {
		t.Errorf("ContentType = %q, want %q", got.ContentType, want.ContentType)
	}

	// Buckets are isolated
	if _, err := store.Get(ctx, BucketPosters, "poster.jpg"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(other bucket) error = %v, want ErrNotFound", err)
	}

	exists, err = store.Exists(ctx, BucketUploads, "poster.jpg")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Error("Exists(poster.jpg) = false, want true")
	}
}
