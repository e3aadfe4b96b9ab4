package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ObjectStore is the storage surface the image pipeline writes to: one
// bucket per TCG, deterministic object paths, overwrite-if-exists puts.
// Re-running ingestion after a partial failure never produces duplicate
// or orphaned objects.
type ObjectStore interface {
	Put(ctx context.Context, bucket, objectPath string, data []byte) error
	Copy(ctx context.Context, bucket, srcPath, dstPath string) error
	Exists(ctx context.Context, bucket, objectPath string) (bool, error)
	PublicURL(bucket, objectPath string) string
}

// FileObjectStore keeps objects on the local filesystem under
// baseDir/{bucket}/{path} and serves them from baseURL.
type FileObjectStore struct {
	baseDir string
	baseURL string
}

func NewFileObjectStore(baseDir, baseURL string) (*FileObjectStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &FileObjectStore{
		baseDir: baseDir,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Put writes an object, replacing any previous version. The bytes land
// under a temporary name first and are renamed into place, so readers
// never observe a partially written object.
func (s *FileObjectStore) Put(_ context.Context, bucket, objectPath string, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty object data")
	}
	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create object directory: %w", err)
	}

	tmp := filepath.Join(filepath.Dir(target), ".tmp-"+uuid.New().String())
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write object: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize object: %w", err)
	}
	return nil
}

// Copy duplicates an existing object within a bucket without touching
// the network. Used for cross-language artwork reuse.
func (s *FileObjectStore) Copy(ctx context.Context, bucket, srcPath, dstPath string) error {
	src, err := s.resolve(bucket, srcPath)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read source object %s: %w", srcPath, err)
	}
	return s.Put(ctx, bucket, dstPath, data)
}

func (s *FileObjectStore) Exists(_ context.Context, bucket, objectPath string) (bool, error) {
	target, err := s.resolve(bucket, objectPath)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *FileObjectStore) PublicURL(bucket, objectPath string) string {
	return s.baseURL + "/" + bucket + "/" + objectPath
}

// resolve maps bucket+path to a filesystem location, rejecting paths
// that would escape the storage root.
func (s *FileObjectStore) resolve(bucket, objectPath string) (string, error) {
	if bucket == "" || objectPath == "" {
		return "", fmt.Errorf("bucket and object path required")
	}
	target := filepath.Join(s.baseDir, bucket, filepath.FromSlash(objectPath))
	root := filepath.Clean(s.baseDir) + string(os.PathSeparator)
	if !strings.HasPrefix(filepath.Clean(target), root) {
		return "", fmt.Errorf("object path %q escapes storage root", objectPath)
	}
	return target, nil
}
