package store

import (
	"errors"

	"libreshelf/pkg/domain"
)

// ErrTenantNotFound is returned when a storage-counter adjustment targets a
// missing tenant row. Ledger adjustments must never be silently lost, so
// this surfaces instead of being swallowed.
var ErrTenantNotFound = errors.New("tenant not found")

// FilterQuery is the normalized library filter built by the search engine.
// Facets holds the non-date facet keys; Years holds the publishing_date
// year set. An empty field applies no restriction.
type FilterQuery struct {
	TenantID   string
	Kind       domain.DocumentKind
	TitleQuery string
	Facets     map[string][]string
	Years      []string
}

// Store defines persistence operations for tenants, documents, and metadata.
type Store interface {
	// tenants
	SaveTenant(domain.Tenant) error
	GetTenant(id string) (domain.Tenant, bool, error)
	GetTenantBySubdomain(subdomain string) (domain.Tenant, bool, error)
	// AdjustStorageUsed applies an atomic relative increment to the tenant's
	// storage_used counter (never read-modify-write).
	AdjustStorageUsed(tenantID string, delta int64) error
	// SetStorageUsed overwrites the counter; reconciliation/repair only.
	SetStorageUsed(tenantID string, value int64) error
	// SumDocumentSizes recomputes sum(file_size) over the tenant's live
	// documents; reconciliation only, never the normal accounting path.
	SumDocumentSizes(tenantID string) (int64, error)

	// documents
	SaveDocument(domain.Document) error
	GetDocument(id string) (domain.Document, bool, error)
	ListDocuments(tenantID string) ([]domain.Document, error)
	DeleteDocument(id string) error
	// SetDocumentFile updates the primary attachment reference fields only;
	// file_size accounting goes through ApplyFileSizeChange.
	SetDocumentFile(id string, file domain.Blob) error
	SetDocumentPreview(id string, preview domain.Blob) error
	// ApplyFileSizeChange persists the document's cached file_size and
	// atomically adjusts the owning tenant's storage_used by delta, in one
	// transaction.
	ApplyFileSizeChange(documentID, tenantID string, newSize, delta int64) error

	// metadata
	ReplaceMetadata(documentID string, entries []domain.Metadata) error
	ListMetadata(documentID string) ([]domain.Metadata, error)

	// library search
	FilterDocuments(q FilterQuery) ([]domain.Document, error)
	// FacetValueCounts counts distinct documents per metadata value for a
	// simple facet key, tenant-wide (not restricted by active filters),
	// ordered by count descending.
	FacetValueCounts(tenantID string, kind domain.DocumentKind, key string) ([]domain.FacetCount, error)
	// YearCounts counts distinct documents per publishing_date year within
	// the scope selected by q.
	YearCounts(q FilterQuery) ([]domain.FacetCount, error)
}
