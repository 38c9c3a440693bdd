package http

import (
	"errors"
	"io"
	"net/http"
	"os"
	"path"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/receipt-scan/internal/application/service"
	"github.com/garyjia/receipt-scan/internal/infrastructure/storage"
)

// BlobGateway serves objects behind signed URLs
type BlobGateway interface {
	Verify(method, bucket, key, expires, sig string) error
	Open(bucket, key string) (*os.File, error)
	Put(bucket, key string, r io.Reader, limit int64) (int64, error)
}

// BlobHandlers serves GET and PUT on signed blob URLs
type BlobHandlers struct {
	blobs    BlobGateway
	maxBytes int64
	logger   Logger
}

// NewBlobHandlers creates blob handlers
func NewBlobHandlers(blobs BlobGateway, maxBytes int64, logger Logger) *BlobHandlers {
	if maxBytes <= 0 {
		maxBytes = service.MaxVideoSizeBytes
	}
	return &BlobHandlers{blobs: blobs, maxBytes: maxBytes, logger: logger}
}

// Get handles GET /blobs/:bucket/*key
func (b *BlobHandlers) Get(c *gin.Context) {
	bucket, key, allowed := b.authorize(c)
	if !allowed {
		return
	}

	f, err := b.blobs.Open(bucket, key)
	if err != nil {
		b.writeError(c, err)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		b.writeError(c, err)
		return
	}
	http.ServeContent(c.Writer, c.Request, path.Base(key), info.ModTime(), f)
}

// Put handles PUT /blobs/:bucket/*key
func (b *BlobHandlers) Put(c *gin.Context) {
	bucket, key, allowed := b.authorize(c)
	if !allowed {
		return
	}
	if c.Request.ContentLength > b.maxBytes {
		abort(c, http.StatusRequestEntityTooLarge, "VIDEO_TOO_LARGE", "upload exceeds size limit")
		return
	}

	n, err := b.blobs.Put(bucket, key, c.Request.Body, b.maxBytes)
	if err != nil {
		b.writeError(c, err)
		return
	}
	b.logger.Info("Blob stored", "bucket", bucket, "key", key, "bytes", n)
	ok(c, http.StatusOK, gin.H{"storage_key": bucket + "/" + key, "size": n})
}

func (b *BlobHandlers) authorize(c *gin.Context) (string, string, bool) {
	bucket := c.Param("bucket")
	key := strings.TrimPrefix(c.Param("key"), "/")

	err := b.blobs.Verify(c.Request.Method, bucket, key, c.Query("expires"), c.Query("sig"))
	if err != nil {
		b.writeError(c, err)
		return "", "", false
	}
	return bucket, key, true
}

func (b *BlobHandlers) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrInvalidSignature):
		abort(c, http.StatusForbidden, "INVALID_SIGNATURE", "signature does not match")
	case errors.Is(err, storage.ErrURLExpired):
		abort(c, http.StatusForbidden, "URL_EXPIRED", "signed url expired")
	case errors.Is(err, storage.ErrObjectNotFound):
		abort(c, http.StatusNotFound, "NOT_FOUND", "object not found")
	case errors.Is(err, storage.ErrObjectTooLarge):
		abort(c, http.StatusRequestEntityTooLarge, "VIDEO_TOO_LARGE", "upload exceeds size limit")
	default:
		b.logger.Error("Blob request failed", "path", c.Request.URL.Path, "error", err)
		abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
