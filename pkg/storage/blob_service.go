package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"libreshelf/internal/util"
	"libreshelf/pkg/domain"
)

// BlobService is the attachment surface consumed by the document lifecycle:
// attach an uploaded stream, open stored content, purge orphaned bytes.
// Blobs are immutable once attached; replacing a document's file means
// attaching a new blob and dropping the reference to the old one.
type BlobService interface {
	Attach(ctx context.Context, r io.Reader, filename, contentType string) (domain.Blob, error)
	Open(ctx context.Context, blob domain.Blob) (io.ReadCloser, error)
	Purge(ctx context.Context, blob domain.Blob) error
}

// ObjectBlobService implements BlobService over an ObjectStore, computing a
// SHA-256 content fingerprint while spooling the upload to a temp file.
type ObjectBlobService struct {
	objects ObjectStore
}

// NewObjectBlobService wraps an object store.
func NewObjectBlobService(objects ObjectStore) *ObjectBlobService {
	return &ObjectBlobService{objects: objects}
}

// Attach spools the stream to a temp file, hashing as it copies, then stores
// the bytes under a fresh key. The fingerprint is stable per content and the
// key is unique per upload.
func (s *ObjectBlobService) Attach(ctx context.Context, r io.Reader, filename, contentType string) (domain.Blob, error) {
	if strings.TrimSpace(filename) == "" {
		return domain.Blob{}, fmt.Errorf("filename required")
	}
	tmp, err := os.CreateTemp("", "libreshelf-attach-*")
	if err != nil {
		return domain.Blob{}, fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	hasher := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return domain.Blob{}, fmt.Errorf("spool upload: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return domain.Blob{}, fmt.Errorf("rewind temp file: %w", err)
	}

	name := SanitizeFilename(filepath.Base(filename))
	if name == "" {
		name = "document"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	blob := domain.Blob{
		Key:         path.Join("blobs", util.NewID(), name),
		Fingerprint: hex.EncodeToString(hasher.Sum(nil)),
		ByteSize:    size,
		ContentType: contentType,
		Filename:    filepath.Base(filename),
	}
	if err := s.objects.Put(ctx, blob.Key, tmp, size, contentType); err != nil {
		return domain.Blob{}, fmt.Errorf("store blob: %w", err)
	}
	return blob, nil
}

// Open streams a stored blob's content.
func (s *ObjectBlobService) Open(ctx context.Context, blob domain.Blob) (io.ReadCloser, error) {
	if blob.Zero() {
		return nil, fmt.Errorf("no blob attached")
	}
	return s.objects.Get(ctx, blob.Key)
}

// Purge removes a blob's bytes from the object store.
func (s *ObjectBlobService) Purge(ctx context.Context, blob domain.Blob) error {
	if blob.Zero() {
		return nil
	}
	return s.objects.Delete(ctx, blob.Key)
}

// SanitizeFilename reduces a filename to a safe ASCII subset, collapsing
// runs of other characters to single underscores.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for _, r := range name {
		if r <= 0x7f {
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '.' || r == '-' || r == '_' {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
