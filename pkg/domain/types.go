package domain

import "time"

// DocumentKind selects the required-metadata contract for a document.
type DocumentKind string

const (
	// KindLibrary is the public, library-facing document type.
	KindLibrary DocumentKind = "library"
	// KindArchive is the broader internal content type.
	KindArchive DocumentKind = "archive"
)

// RequiredMetadataKeys returns the metadata keys that must carry a non-blank
// value for a document of this kind to be valid.
func (k DocumentKind) RequiredMetadataKeys() []string {
	switch k {
	case KindArchive:
		return []string{"title", "author", "publication_date"}
	default:
		return []string{"title", "author", "publishing_date"}
	}
}

// Format classifies an attachment's binary format.
type Format string

const (
	FormatPDF         Format = "pdf"
	FormatEPUB        Format = "epub"
	FormatUnsupported Format = "unsupported"
)

// Tenant is an institution: the unit of data isolation and storage
// accounting. StorageUsed is maintained incrementally by the ledger and by
// invariant equals the sum of FileSize over the tenant's live documents.
// StorageTotal is an advisory quota ceiling, not a write blocker.
type Tenant struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Subdomain    string            `json:"subdomain"`
	Branding     map[string]string `json:"branding,omitempty"`
	StorageUsed  int64             `json:"storageUsed"`
	StorageTotal int64             `json:"storageTotal"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// Blob is an immutable stored content object. Key addresses the bytes in the
// object store; Fingerprint is the content-derived identifier used to detect
// whether a document's attachment changed after a job was enqueued.
type Blob struct {
	Key         string `json:"key"`
	Fingerprint string `json:"fingerprint"`
	ByteSize    int64  `json:"byteSize"`
	ContentType string `json:"contentType"`
	Filename    string `json:"filename"`
}

// Zero reports whether no blob is attached.
func (b Blob) Zero() bool { return b.Key == "" }

// Document belongs to a tenant (long-lived owner) with staff attribution.
// It carries zero-or-one primary binary attachment and zero-or-one derived
// preview image. FileSize mirrors the primary attachment's byte size, 0 when
// none is attached.
type Document struct {
	ID        string       `json:"id"`
	TenantID  string       `json:"tenantId"`
	StaffID   string       `json:"staffId"`
	Kind      DocumentKind `json:"kind"`
	File      Blob         `json:"file"`
	FileSize  int64        `json:"fileSize"`
	Preview   Blob         `json:"preview"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Metadata is a user-defined (key, value) entry on a document. Key is unique
// per document. MarkedForDestruction flags a row for removal within the
// parent document's edit transaction; flagged rows do not satisfy required
// keys.
type Metadata struct {
	ID                   string    `json:"id"`
	DocumentID           string    `json:"documentId"`
	Key                  string    `json:"key"`
	Value                string    `json:"value"`
	MarkedForDestruction bool      `json:"-"`
	CreatedAt            time.Time `json:"createdAt"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// FacetSelections maps a facet key to the selected values for that key.
type FacetSelections map[string][]string

// FacetCount is one (value, count) pair in a facet's ordered count list.
type FacetCount struct {
	Value string `json:"value"`
	Count int64  `json:"count"`
}

// StorageUsage is the advisory quota report for a tenant.
type StorageUsage struct {
	Used      int64 `json:"used"`
	Total     int64 `json:"total"`
	Remaining int64 `json:"remaining"`
}
