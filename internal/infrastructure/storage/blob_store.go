package storage

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrObjectNotFound is returned when bucket/key has no object
	ErrObjectNotFound = errors.New("object not found")
	// ErrInvalidSignature is returned for tampered or unsigned URLs
	ErrInvalidSignature = errors.New("invalid signature")
	// ErrURLExpired is returned once a signed URL is past its expiry
	ErrURLExpired = errors.New("signed url expired")
	// ErrObjectTooLarge is returned when an upload exceeds its size limit
	ErrObjectTooLarge = errors.New("object too large")
)

// LocalBlobStore implements port.BlobStore on the local filesystem.
// Signed URLs point at the HTTP server's /blobs routes and carry an HMAC.
type LocalBlobStore struct {
	baseDir   string
	publicURL string
	secret    []byte
	logger    *zap.Logger
	now       func() time.Time
}

// NewLocalBlobStore creates a blob store rooted at baseDir.
// publicURL is the externally reachable base of the HTTP server.
func NewLocalBlobStore(baseDir, publicURL, secret string, logger *zap.Logger) (*LocalBlobStore, error) {
	if secret == "" {
		return nil, fmt.Errorf("blob signing secret is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create blob dir: %w", err)
	}

	return &LocalBlobStore{
		baseDir:   baseDir,
		publicURL: strings.TrimRight(publicURL, "/"),
		secret:    []byte(secret),
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Upload stores content and returns "bucket/key"
func (s *LocalBlobStore) Upload(ctx context.Context, bucket, key string, content []byte, contentType string) (string, error) {
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		s.logger.Error("Failed to create parent directories",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to create directories: %w", err)
	}
	if err := os.WriteFile(fullPath, content, 0o644); err != nil {
		s.logger.Error("Failed to write object",
			zap.String("path", fullPath),
			zap.Error(err))
		return "", fmt.Errorf("failed to write object: %w", err)
	}

	s.logger.Debug("Object stored",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.String("content_type", contentType),
		zap.Int("size", len(content)))

	return bucket + "/" + key, nil
}

// Download reads an object
func (s *LocalBlobStore) Download(ctx context.Context, bucket, key string) ([]byte, error) {
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to read object: %w", err)
	}
	return content, nil
}

// Open returns a reader for an object. The caller closes it.
func (s *LocalBlobStore) Open(bucket, key string) (*os.File, error) {
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open object: %w", err)
	}
	return f, nil
}

// Put streams r into an object, failing once more than limit bytes arrive.
// A partial file is removed on failure.
func (s *LocalBlobStore) Put(bucket, key string, r io.Reader, limit int64) (int64, error) {
	fullPath, err := s.objectPath(bucket, key)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create directories: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(fullPath), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, limit+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to write object: %w", err)
	}
	if n > limit {
		return 0, ErrObjectTooLarge
	}

	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		return 0, fmt.Errorf("failed to commit object: %w", err)
	}

	s.logger.Info("Object uploaded",
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int64("size", n))

	return n, nil
}

// SignedURL returns a GET URL valid for ttl
func (s *LocalBlobStore) SignedURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return s.sign("GET", bucket, key, ttl)
}

// SignedUploadURL returns a PUT URL valid for ttl
func (s *LocalBlobStore) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	return s.sign("PUT", bucket, key, ttl)
}

// Verify checks a signed URL's expires and sig query values for method on bucket/key
func (s *LocalBlobStore) Verify(method, bucket, key, expires, sig string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}

	want := s.signature(method, bucket, key, exp)
	got, err := hex.DecodeString(sig)
	if err != nil || !hmac.Equal(want, got) {
		return ErrInvalidSignature
	}
	if s.now().Unix() > exp {
		return ErrURLExpired
	}
	return nil
}

func (s *LocalBlobStore) sign(method, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.objectPath(bucket, key); err != nil {
		return "", err
	}
	if ttl <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive")
	}

	exp := s.now().Add(ttl).Unix()
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(exp, 10))
	q.Set("sig", hex.EncodeToString(s.signature(method, bucket, key, exp)))

	return fmt.Sprintf("%s/blobs/%s/%s?%s", s.publicURL, url.PathEscape(bucket), escapeKey(key), q.Encode()), nil
}

func (s *LocalBlobStore) signature(method, bucket, key string, exp int64) []byte {
	mac := hmac.New(sha256.New, s.secret)
	fmt.Fprintf(mac, "%s\n%s/%s\n%d", method, bucket, key, exp)
	return mac.Sum(nil)
}

// objectPath maps bucket/key below baseDir, rejecting traversal
func (s *LocalBlobStore) objectPath(bucket, key string) (string, error) {
	if bucket == "" || key == "" || strings.ContainsAny(bucket, `/\`) {
		return "", fmt.Errorf("invalid object location %q/%q", bucket, key)
	}

	fullPath := filepath.Join(s.baseDir, bucket, filepath.FromSlash(key))
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	absBucket, err := filepath.Abs(filepath.Join(s.baseDir, bucket))
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	if !strings.HasPrefix(absPath, absBucket+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes bucket: %s", key)
	}

	return fullPath, nil
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
