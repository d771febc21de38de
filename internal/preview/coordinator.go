package preview

import (
	"context"
	"fmt"
	"log/slog"

	"libreshelf/pkg/domain"
	"libreshelf/pkg/queue"
)

// RecordTypeDocument is the record type string carried in preview job
// payloads for documents.
const RecordTypeDocument = "Document"

// DocumentLoader loads the current state of a record under preview.
type DocumentLoader interface {
	GetDocument(id string) (domain.Document, bool, error)
}

// Broadcaster publishes a replace instruction for a rendered fragment to a
// live-update channel.
type Broadcaster interface {
	BroadcastReplace(ctx context.Context, channelID, targetID, fragment string) error
}

// FragmentRenderer renders the view fragment broadcast after a preview
// completes. Supplied by the presentation layer.
type FragmentRenderer func(domain.Document) string

// Coordinator executes preview jobs with at-least-once semantics. A job
// whose fingerprint no longer matches the record's current attachment is
// superseded and skipped; a render failure is re-raised so the queue's
// retry policy applies. Re-running a valid job re-renders (last write wins);
// the fingerprint comparison is the only staleness guard.
type Coordinator struct {
	loader    DocumentLoader
	renderer  *Renderer
	broadcast Broadcaster
	fragment  FragmentRenderer
}

// NewCoordinator wires the coordinator. broadcast and fragment may be nil
// when no live-update transport is attached.
func NewCoordinator(loader DocumentLoader, renderer *Renderer, broadcast Broadcaster, fragment FragmentRenderer) *Coordinator {
	return &Coordinator{loader: loader, renderer: renderer, broadcast: broadcast, fragment: fragment}
}

// Run handles one job: validate the fingerprint against current state,
// generate, then publish the updated fragment. Skips are silent successes.
func (c *Coordinator) Run(ctx context.Context, job queue.Job) error {
	if job.RecordType != RecordTypeDocument {
		slog.Info("preview job: unknown record type, skipping", "recordType", job.RecordType, "recordId", job.RecordID)
		return nil
	}
	doc, ok, err := c.loader.GetDocument(job.RecordID)
	if err != nil {
		slog.Error("preview job: load failed", "recordType", job.RecordType, "recordId", job.RecordID, "error", err)
		return fmt.Errorf("load document %s: %w", job.RecordID, err)
	}
	if !ok || doc.File.Zero() || doc.File.Fingerprint != job.Fingerprint {
		// The attachment was replaced or removed after this job was
		// enqueued; a superseded job self-cancels instead of racing the
		// newer render.
		slog.Info("preview job: stale or missing attachment, skipping",
			"recordType", job.RecordType, "recordId", job.RecordID, "expectedFingerprint", job.Fingerprint)
		return nil
	}

	if err := c.renderer.Generate(ctx, doc); err != nil {
		slog.Error("preview job: generate failed", "recordType", job.RecordType, "recordId", job.RecordID, "error", err)
		return fmt.Errorf("generate preview for %s: %w", job.RecordID, err)
	}

	c.publishCompleted(ctx, job.RecordID)
	return nil
}

// publishCompleted reloads current state and broadcasts the updated
// fragment. Fire-and-forget: a broadcast failure never fails the job.
func (c *Coordinator) publishCompleted(ctx context.Context, documentID string) {
	if c.broadcast == nil || c.fragment == nil {
		return
	}
	doc, ok, err := c.loader.GetDocument(documentID)
	if err != nil || !ok {
		slog.Warn("preview job: reload for broadcast failed", "recordId", documentID, "error", err)
		return
	}
	channel := "previews:" + doc.TenantID
	target := "document_" + doc.ID
	if err := c.broadcast.BroadcastReplace(ctx, channel, target, c.fragment(doc)); err != nil {
		slog.Warn("preview job: broadcast failed", "recordId", documentID, "channel", channel, "error", err)
	}
}
