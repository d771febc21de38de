package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"libreshelf/internal/ledger"
	"libreshelf/internal/preview"
	"libreshelf/internal/util"
	"libreshelf/pkg/domain"
	"libreshelf/pkg/storage"
	"libreshelf/pkg/store"
)

// PreviewEnqueuer schedules an asynchronous preview job. The fingerprint is
// captured at enqueue time and becomes the staleness guard checked when the
// job eventually runs.
type PreviewEnqueuer interface {
	EnqueuePreview(ctx context.Context, recordType, recordID, fingerprint string) error
}

// App orchestrates the document lifecycle: validation, attachment writes,
// ledger accounting, and preview scheduling. Ordering between "write a
// document" and "adjust tenant storage" lives here, in plain control flow,
// instead of hidden persistence hooks.
type App struct {
	store    store.Store
	blobs    storage.BlobService
	ledger   *ledger.Ledger
	previews PreviewEnqueuer
}

// Config holds the collaborators App needs.
type Config struct {
	Store    store.Store
	Blobs    storage.BlobService
	Previews PreviewEnqueuer
}

// New wires the application service.
func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store required")
	}
	if cfg.Blobs == nil {
		return nil, fmt.Errorf("blob service required")
	}
	return &App{
		store:    cfg.Store,
		blobs:    cfg.Blobs,
		ledger:   ledger.New(cfg.Store),
		previews: cfg.Previews,
	}, nil
}

// MetadataInput is one metadata entry in a document write request.
type MetadataInput struct {
	Key                  string
	Value                string
	MarkedForDestruction bool
}

// FileUpload is an incoming primary attachment.
type FileUpload struct {
	Reader      io.Reader
	Filename    string
	ContentType string
}

// CreateDocumentInput describes a document-create request.
type CreateDocumentInput struct {
	TenantID string
	StaffID  string
	Kind     domain.DocumentKind
	Metadata []MetadataInput
	File     *FileUpload
}

// UpdateDocumentInput describes a document-update request. Metadata, when
// non-nil, replaces the document's entries wholesale (entries flagged for
// destruction are removed). File, when non-nil, replaces the primary
// attachment.
type UpdateDocumentInput struct {
	Metadata []MetadataInput
	File     *FileUpload
}

// CreateTenant registers a new institution.
func (a *App) CreateTenant(name, subdomain string, storageTotal int64) (domain.Tenant, error) {
	name = strings.TrimSpace(name)
	subdomain = strings.TrimSpace(subdomain)
	if name == "" || subdomain == "" {
		return domain.Tenant{}, &ValidationError{Fields: map[string]string{
			"name": "name and subdomain are required",
		}}
	}
	now := time.Now().UTC()
	tenant := domain.Tenant{
		ID:           util.NewID(),
		Name:         name,
		Subdomain:    subdomain,
		StorageTotal: storageTotal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.SaveTenant(tenant); err != nil {
		return domain.Tenant{}, fmt.Errorf("save tenant: %w", err)
	}
	return tenant, nil
}

// CreateDocument validates and persists a new document, then attaches the
// uploaded file if one was supplied. Validation runs before any persistence
// or attachment side effect.
func (a *App) CreateDocument(ctx context.Context, input CreateDocumentInput) (domain.Document, error) {
	if input.Kind == "" {
		input.Kind = domain.KindLibrary
	}
	if err := validateMetadata(input.Kind, input.Metadata); err != nil {
		return domain.Document{}, err
	}
	if _, ok, err := a.store.GetTenant(input.TenantID); err != nil {
		return domain.Document{}, fmt.Errorf("load tenant: %w", err)
	} else if !ok {
		return domain.Document{}, ErrTenantNotFound
	}

	now := time.Now().UTC()
	doc := domain.Document{
		ID:        util.NewID(),
		TenantID:  input.TenantID,
		StaffID:   input.StaffID,
		Kind:      input.Kind,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := a.store.SaveDocument(doc); err != nil {
		return domain.Document{}, fmt.Errorf("save document: %w", err)
	}
	if err := a.store.ReplaceMetadata(doc.ID, metadataEntries(doc.ID, input.Metadata)); err != nil {
		return domain.Document{}, fmt.Errorf("save metadata: %w", err)
	}
	if input.File != nil {
		return a.AttachFile(ctx, doc.ID, *input.File)
	}
	return doc, nil
}

// UpdateDocument applies a metadata and/or file update.
func (a *App) UpdateDocument(ctx context.Context, documentID string, input UpdateDocumentInput) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}
	if input.Metadata != nil {
		if err := validateMetadata(doc.Kind, input.Metadata); err != nil {
			return domain.Document{}, err
		}
		if err := a.store.ReplaceMetadata(doc.ID, metadataEntries(doc.ID, input.Metadata)); err != nil {
			return domain.Document{}, fmt.Errorf("save metadata: %w", err)
		}
	}
	if input.File != nil {
		return a.AttachFile(ctx, doc.ID, *input.File)
	}
	doc, _, err = a.store.GetDocument(documentID)
	return doc, err
}

// AttachFile attaches or replaces the document's primary binary file. The
// sequence is explicit: store the new blob, point the document at it,
// adjust the ledger, purge the orphaned old blob, then enqueue the preview
// job carrying the just-attached fingerprint. A ledger failure propagates;
// an enqueue or purge failure does not undo the committed write.
func (a *App) AttachFile(ctx context.Context, documentID string, upload FileUpload) (domain.Document, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return domain.Document{}, ErrDocumentNotFound
	}

	oldBlob := doc.File
	oldSize := doc.FileSize

	blob, err := a.blobs.Attach(ctx, upload.Reader, upload.Filename, upload.ContentType)
	if err != nil {
		return domain.Document{}, fmt.Errorf("attach file: %w", err)
	}
	if err := a.store.SetDocumentFile(doc.ID, blob); err != nil {
		_ = a.blobs.Purge(ctx, blob)
		return domain.Document{}, fmt.Errorf("save attachment reference: %w", err)
	}
	if err := a.ledger.OnAttachmentChange(doc, oldSize, blob.ByteSize); err != nil {
		return domain.Document{}, err
	}
	if !oldBlob.Zero() {
		if err := a.blobs.Purge(ctx, oldBlob); err != nil {
			slog.Warn("purge of replaced blob failed", "documentId", doc.ID, "key", oldBlob.Key, "error", err)
		}
	}
	if a.previews != nil {
		if err := a.previews.EnqueuePreview(ctx, preview.RecordTypeDocument, doc.ID, blob.Fingerprint); err != nil {
			slog.Error("enqueue preview failed", "documentId", doc.ID, "error", err)
		}
	}

	doc, _, err = a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, fmt.Errorf("reload document: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes a document, its metadata, and its stored bytes.
// The file size is captured before the destroy commits; the ledger
// decrement runs after and propagates on failure.
func (a *App) DeleteDocument(ctx context.Context, documentID string) error {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if !ok {
		return nil
	}
	capturedSize := doc.FileSize

	if err := a.store.DeleteDocument(doc.ID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if err := a.ledger.OnDocumentDeleted(doc, capturedSize); err != nil {
		return err
	}
	for _, blob := range []domain.Blob{doc.File, doc.Preview} {
		if blob.Zero() {
			continue
		}
		if err := a.blobs.Purge(ctx, blob); err != nil {
			slog.Warn("purge of deleted blob failed", "documentId", doc.ID, "key", blob.Key, "error", err)
		}
	}
	return nil
}

// GetDocument loads a document with its metadata entries.
func (a *App) GetDocument(documentID string) (domain.Document, []domain.Metadata, error) {
	doc, ok, err := a.store.GetDocument(documentID)
	if err != nil {
		return domain.Document{}, nil, err
	}
	if !ok {
		return domain.Document{}, nil, ErrDocumentNotFound
	}
	entries, err := a.store.ListMetadata(documentID)
	if err != nil {
		return domain.Document{}, nil, err
	}
	return doc, entries, nil
}

// StorageUsage reports the tenant's advisory quota state.
func (a *App) StorageUsage(tenantID string) (domain.StorageUsage, error) {
	tenant, ok, err := a.store.GetTenant(tenantID)
	if err != nil {
		return domain.StorageUsage{}, err
	}
	if !ok {
		return domain.StorageUsage{}, ErrTenantNotFound
	}
	remaining := tenant.StorageTotal - tenant.StorageUsed
	if remaining < 0 {
		remaining = 0
	}
	return domain.StorageUsage{
		Used:      tenant.StorageUsed,
		Total:     tenant.StorageTotal,
		Remaining: remaining,
	}, nil
}

// ReconcileStorage recomputes the tenant's counter from its live documents
// and repairs any drift, returning the correction applied. This is the
// repair path; normal operation only ever adjusts incrementally.
func (a *App) ReconcileStorage(tenantID string) (int64, error) {
	tenant, ok, err := a.store.GetTenant(tenantID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, ErrTenantNotFound
	}
	actual, err := a.store.SumDocumentSizes(tenantID)
	if err != nil {
		return 0, fmt.Errorf("sum document sizes: %w", err)
	}
	drift := actual - tenant.StorageUsed
	if drift == 0 {
		return 0, nil
	}
	if err := a.store.SetStorageUsed(tenantID, actual); err != nil {
		return 0, err
	}
	slog.Warn("storage counter repaired", "tenantId", tenantID, "was", tenant.StorageUsed, "now", actual)
	return drift, nil
}

// validateMetadata rejects duplicate keys and missing required values.
// Entries flagged for destruction do not satisfy required keys.
func validateMetadata(kind domain.DocumentKind, entries []MetadataInput) error {
	fields := make(map[string]string)
	seen := make(map[string]bool)
	for _, entry := range entries {
		key := strings.TrimSpace(entry.Key)
		if key == "" {
			fields["metadata"] = "metadata key must not be blank"
			continue
		}
		if seen[key] {
			fields[key] = "duplicate metadata key"
		}
		seen[key] = true
	}
	for _, required := range kind.RequiredMetadataKeys() {
		if !hasActiveValue(entries, required) {
			fields[required] = "required metadata value is missing"
		}
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func hasActiveValue(entries []MetadataInput, key string) bool {
	for _, entry := range entries {
		if entry.MarkedForDestruction {
			continue
		}
		if strings.TrimSpace(entry.Key) == key && strings.TrimSpace(entry.Value) != "" {
			return true
		}
	}
	return false
}

func metadataEntries(documentID string, inputs []MetadataInput) []domain.Metadata {
	now := time.Now().UTC()
	entries := make([]domain.Metadata, 0, len(inputs))
	for _, input := range inputs {
		entries = append(entries, domain.Metadata{
			ID:                   util.NewID(),
			DocumentID:           documentID,
			Key:                  strings.TrimSpace(input.Key),
			Value:                input.Value,
			MarkedForDestruction: input.MarkedForDestruction,
			CreatedAt:            now,
			UpdatedAt:            now,
		})
	}
	return entries
}
