// Package blob provides the scheme-prefixed blob store backing poster
// uploads and normalized poster images.
//
// Objects are addressed as "r2://<bucket>/<key>". Two logical buckets
// exist: "uploads" holds user-submitted originals and "posters" holds
// canonical normalized images.
package blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

// Bucket names.
const (
	BucketUploads = "uploads"
	BucketPosters = "posters"
)

// scheme is the prefix used in stored object references.
const scheme = "r2://"

// ErrNotFound is returned when the referenced object does not exist.
var ErrNotFound = errors.New("blob not found")

// Object is a stored blob with its content type.
type Object struct {
	Data        []byte
	ContentType string
}

// Store is the blob-store capability consumed by the agents and workflows.
type Store interface {
	Get(ctx context.Context, bucket, key string) (*Object, error)
	Put(ctx context.Context, bucket, key string, obj *Object) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// URL formats a bucket and key as an object reference.
func URL(bucket, key string) string {
	return scheme + bucket + "/" + key
}

// IsRef reports whether url is an internal object reference.
func IsRef(url string) bool {
	return strings.HasPrefix(url, scheme)
}

// ParseRef splits an object reference into bucket and key.
func ParseRef(ref string) (bucket, key string, err error) {
	if !IsRef(ref) {
		return "", "", fmt.Errorf("not an object reference: %q", ref)
	}
	rest := strings.TrimPrefix(ref, scheme)
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("malformed object reference: %q", ref)
	}
	return bucket, key, nil
}

// BadgerStore persists blobs in BadgerDB. Keys are namespaced per bucket;
// content types live under a parallel key so objects round-trip intact.
type BadgerStore struct {
	db *badger.DB
}

// Open creates or opens a Badger-backed store at dir. An empty dir opens an
// in-memory store, used by tests.
func Open(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening blob store: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

func dataKey(bucket, key string) []byte {
	return []byte("blob:" + bucket + "/" + key)
}

func ctypeKey(bucket, key string) []byte {
	return []byte("ctype:" + bucket + "/" + key)
}

// Get returns the object stored under bucket/key, or ErrNotFound.
func (s *BadgerStore) Get(_ context.Context, bucket, key string) (*Object, error) {
	var obj Object
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(dataKey(bucket, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("getting blob: %w", err)
		}
		obj.Data, err = item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("copying blob value: %w", err)
		}

		ct, err := txn.Get(ctypeKey(bucket, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("getting content type: %w", err)
		}
		return ct.Value(func(val []byte) error {
			obj.ContentType = string(val)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &obj, nil
}

// Put stores the object under bucket/key, overwriting any existing value.
func (s *BadgerStore) Put(_ context.Context, bucket, key string, obj *Object) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(dataKey(bucket, key), obj.Data); err != nil {
			return err
		}
		return txn.Set(ctypeKey(bucket, key), []byte(obj.ContentType))
	})
	if err != nil {
		return fmt.Errorf("putting blob %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Exists reports whether an object is stored under bucket/key.
func (s *BadgerStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(dataKey(bucket, key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("checking blob %s/%s: %w", bucket, key, err)
	}
	return found, nil
}

var _ Store = (*BadgerStore)(nil)
