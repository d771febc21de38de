package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/ledongthuc/pdf"

	"libreshelf/pkg/domain"
	"libreshelf/pkg/storage"
)

const (
	previewMaxWidth  = 600
	previewMaxHeight = 800
	previewQuality   = 85
)

// PreviewStore is the persistence surface the renderer needs: attach the
// derived preview reference to the owning record.
type PreviewStore interface {
	SetDocumentPreview(id string, preview domain.Blob) error
}

// Renderer derives a bounded-size preview image from a document's primary
// attachment. PDFs go through an external page rasterizer; EPUBs through
// the cover extractor. Unsupported formats are a logged no-op.
type Renderer struct {
	blobs      storage.BlobService
	store      PreviewStore
	rasterizer string
	timeout    time.Duration
}

// NewRenderer wires the renderer. rasterizer is the page-rasterization
// binary (pdftoppm-compatible argument contract); empty selects the default.
func NewRenderer(blobs storage.BlobService, store PreviewStore, rasterizer string, timeout time.Duration) *Renderer {
	if strings.TrimSpace(rasterizer) == "" {
		rasterizer = "pdftoppm"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Renderer{blobs: blobs, store: store, rasterizer: rasterizer, timeout: timeout}
}

// Generate produces and attaches a preview for the document's current
// attachment. Unsupported formats and cover-less EPUBs are no-ops; PDF
// rasterization failures return an error so the task runner can retry.
func (r *Renderer) Generate(ctx context.Context, doc domain.Document) error {
	if doc.File.Zero() {
		return nil
	}
	switch Classify(doc.File.ContentType) {
	case domain.FormatPDF:
		return r.renderPDF(ctx, doc)
	case domain.FormatEPUB:
		return r.renderEPUB(ctx, doc)
	default:
		slog.Info("preview: unsupported attachment format, skipping",
			"documentId", doc.ID, "contentType", doc.File.ContentType)
		return nil
	}
}

func (r *Renderer) renderPDF(ctx context.Context, doc domain.Document) error {
	workDir, err := os.MkdirTemp("", "libreshelf-preview-*")
	if err != nil {
		return fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	inputPath := filepath.Join(workDir, "input.pdf")
	if err := r.downloadBlob(ctx, doc.File, inputPath); err != nil {
		return err
	}
	if err := preflightPDF(inputPath); err != nil {
		return fmt.Errorf("pdf preflight: %w", err)
	}

	outputStem := filepath.Join(workDir, "page")
	if err := r.rasterizeFirstPage(ctx, inputPath, outputStem); err != nil {
		return err
	}

	raster, err := os.Open(outputStem + ".jpg")
	if err != nil {
		return fmt.Errorf("open rasterized page: %w", err)
	}
	defer raster.Close()

	img, err := imaging.Decode(raster)
	if err != nil {
		return fmt.Errorf("decode rasterized page: %w", err)
	}
	// Fit preserves aspect ratio inside the bound; re-encoding drops any
	// embedded metadata.
	fitted := imaging.Fit(img, previewMaxWidth, previewMaxHeight, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, fitted, imaging.JPEG, imaging.JPEGQuality(previewQuality)); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}

	return r.attachPreview(ctx, doc, &buf, previewFilename(doc.File.Filename, "pdf", ".jpg"), "image/jpeg")
}

func (r *Renderer) renderEPUB(ctx context.Context, doc domain.Document) error {
	rc, err := r.blobs.Open(ctx, doc.File)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	cover, mimeType := ExtractEpubCover(data)
	if cover == nil {
		slog.Info("preview: epub without discoverable cover, skipping", "documentId", doc.ID)
		return nil
	}
	return r.attachPreview(ctx, doc, bytes.NewReader(cover),
		previewFilename(doc.File.Filename, "epub", extensionForMime(mimeType)), mimeType)
}

// rasterizeFirstPage shells out to the external rasterizer for page one
// only, under a bounded wall-clock timeout. Non-zero exit is a hard failure.
func (r *Renderer) rasterizeFirstPage(ctx context.Context, inputPath, outputStem string) error {
	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, r.rasterizer,
		"-jpeg", "-singlefile", "-f", "1", "-l", "1", "-scale-to", "1000",
		inputPath, outputStem)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if runCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("rasterizer timed out after %s", r.timeout)
		}
		return fmt.Errorf("rasterizer failed: %w (stdout=%q stderr=%q)",
			err, strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()))
	}
	return nil
}

func (r *Renderer) downloadBlob(ctx context.Context, blob domain.Blob, target string) error {
	rc, err := r.blobs.Open(ctx, blob)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer rc.Close()
	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create temp input: %w", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}
	return nil
}

func (r *Renderer) attachPreview(ctx context.Context, doc domain.Document, content io.Reader, filename, contentType string) error {
	blob, err := r.blobs.Attach(ctx, content, filename, contentType)
	if err != nil {
		return fmt.Errorf("attach preview: %w", err)
	}
	if err := r.store.SetDocumentPreview(doc.ID, blob); err != nil {
		return fmt.Errorf("save preview reference: %w", err)
	}
	return nil
}

// preflightPDF verifies the attachment opens as a PDF with at least one
// page before spending a subprocess invocation on it.
func preflightPDF(path string) error {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()
	if reader.NumPage() < 1 {
		return fmt.Errorf("pdf has no pages")
	}
	return nil
}

// previewFilename derives "{sanitized-base-or-format}-preview{ext}".
func previewFilename(original, formatKind, ext string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = storage.SanitizeFilename(base)
	if base == "" {
		base = formatKind
	}
	return base + "-preview" + ext
}

func extensionForMime(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}
