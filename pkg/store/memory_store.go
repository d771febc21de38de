package store

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"libreshelf/pkg/domain"
)

// MemoryStore keeps tenants, documents, and metadata in-process. It mirrors
// the GormStore query semantics and backs tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	tenants  map[string]domain.Tenant
	docs     map[string]domain.Document
	meta     map[string][]domain.Metadata // document ID -> entries
	docOrder []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tenants: make(map[string]domain.Tenant),
		docs:    make(map[string]domain.Document),
		meta:    make(map[string][]domain.Metadata),
	}
}

// SaveTenant stores or replaces a tenant, preserving the live counter.
func (m *MemoryStore) SaveTenant(t domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.tenants[t.ID]; ok {
		t.StorageUsed = existing.StorageUsed
	}
	m.tenants[t.ID] = t
	return nil
}

// GetTenant retrieves a tenant by ID.
func (m *MemoryStore) GetTenant(id string) (domain.Tenant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tenants[id]
	return t, ok, nil
}

// GetTenantBySubdomain looks up a tenant by subdomain.
func (m *MemoryStore) GetTenantBySubdomain(subdomain string) (domain.Tenant, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, t := range m.tenants {
		if t.Subdomain == subdomain {
			return t, true, nil
		}
	}
	return domain.Tenant{}, false, nil
}

// AdjustStorageUsed applies a relative increment under the store lock.
func (m *MemoryStore) AdjustStorageUsed(tenantID string, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustStorageLocked(tenantID, delta)
}

func (m *MemoryStore) adjustStorageLocked(tenantID string, delta int64) error {
	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("adjust storage_used for %s: %w", tenantID, ErrTenantNotFound)
	}
	t.StorageUsed += delta
	t.UpdatedAt = time.Now().UTC()
	m.tenants[tenantID] = t
	return nil
}

// SetStorageUsed overwrites the counter. Reconciliation only.
func (m *MemoryStore) SetStorageUsed(tenantID string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tenants[tenantID]
	if !ok {
		return fmt.Errorf("set storage_used for %s: %w", tenantID, ErrTenantNotFound)
	}
	t.StorageUsed = value
	t.UpdatedAt = time.Now().UTC()
	m.tenants[tenantID] = t
	return nil
}

// SumDocumentSizes recomputes the tenant's live attachment byte total.
func (m *MemoryStore) SumDocumentSizes(tenantID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var total int64
	for _, d := range m.docs {
		if d.TenantID == tenantID {
			total += d.FileSize
		}
	}
	return total, nil
}

// SaveDocument stores or replaces a document and tracks insertion order.
func (m *MemoryStore) SaveDocument(d domain.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[d.ID]; ok {
		d.File = existing.File
		d.FileSize = existing.FileSize
		d.Preview = existing.Preview
	} else {
		m.docOrder = append(m.docOrder, d.ID)
	}
	m.docs[d.ID] = d
	return nil
}

// GetDocument retrieves a document by ID.
func (m *MemoryStore) GetDocument(id string) (domain.Document, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok, nil
}

// ListDocuments returns a tenant's documents in insertion order.
func (m *MemoryStore) ListDocuments(tenantID string) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0, len(m.docOrder))
	for _, id := range m.docOrder {
		if d, ok := m.docs[id]; ok && d.TenantID == tenantID {
			res = append(res, d)
		}
	}
	return res, nil
}

// DeleteDocument removes a document and its metadata.
func (m *MemoryStore) DeleteDocument(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	delete(m.meta, id)
	filtered := m.docOrder[:0]
	for _, item := range m.docOrder {
		if item != id {
			filtered = append(filtered, item)
		}
	}
	m.docOrder = filtered
	return nil
}

// SetDocumentFile updates the primary attachment reference fields.
func (m *MemoryStore) SetDocumentFile(id string, file domain.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	size := d.FileSize
	d.File = file
	d.FileSize = size
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return nil
}

// SetDocumentPreview attaches or replaces the derived preview reference.
func (m *MemoryStore) SetDocumentPreview(id string, preview domain.Blob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("document %s not found", id)
	}
	d.Preview = preview
	d.UpdatedAt = time.Now().UTC()
	m.docs[id] = d
	return nil
}

// ApplyFileSizeChange persists file_size and adjusts the tenant counter
// under one lock acquisition.
func (m *MemoryStore) ApplyFileSizeChange(documentID, tenantID string, newSize, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.docs[documentID]; ok {
		d.FileSize = newSize
		d.File.ByteSize = newSize
		d.UpdatedAt = time.Now().UTC()
		m.docs[documentID] = d
	}
	return m.adjustStorageLocked(tenantID, delta)
}

// ReplaceMetadata replaces all metadata rows for a document, dropping
// entries flagged for destruction.
func (m *MemoryStore) ReplaceMetadata(documentID string, entries []domain.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]domain.Metadata, 0, len(entries))
	for _, entry := range entries {
		if entry.MarkedForDestruction {
			continue
		}
		entry.DocumentID = documentID
		kept = append(kept, entry)
	}
	m.meta[documentID] = kept
	return nil
}

// ListMetadata returns a document's metadata entries.
func (m *MemoryStore) ListMetadata(documentID string) ([]domain.Metadata, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.meta[documentID]
	res := make([]domain.Metadata, len(entries))
	copy(res, entries)
	return res, nil
}

// FilterDocuments runs the faceted library query over the in-memory data.
func (m *MemoryStore) FilterDocuments(q FilterQuery) ([]domain.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Document, 0)
	for _, id := range m.docOrder {
		d, ok := m.docs[id]
		if !ok || !m.matchesLocked(d, q) {
			continue
		}
		res = append(res, d)
	}
	return res, nil
}

func (m *MemoryStore) matchesLocked(d domain.Document, q FilterQuery) bool {
	if d.TenantID != q.TenantID {
		return false
	}
	if q.Kind != "" && d.Kind != q.Kind {
		return false
	}
	entries := m.meta[d.ID]
	if title := strings.TrimSpace(q.TitleQuery); title != "" {
		needle := strings.ToLower(title)
		found := false
		for _, entry := range entries {
			if entry.Key == "title" && strings.Contains(strings.ToLower(entry.Value), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for key, values := range q.Facets {
		if len(values) == 0 {
			continue
		}
		found := false
		for _, entry := range entries {
			if entry.Key != key {
				continue
			}
			for _, v := range values {
				if entry.Value == v {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(q.Years) > 0 {
		found := false
		for _, entry := range entries {
			if entry.Key != "publishing_date" {
				continue
			}
			year, ok := YearOf(entry.Value)
			if !ok {
				continue
			}
			for _, y := range q.Years {
				if year == y {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// FacetValueCounts counts distinct documents per value for a simple facet,
// tenant-wide, ordered by count descending (ties by value ascending).
func (m *MemoryStore) FacetValueCounts(tenantID string, kind domain.DocumentKind, key string) ([]domain.FacetCount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64)
	var order []string
	for _, id := range m.docOrder {
		d, ok := m.docs[id]
		if !ok || d.TenantID != tenantID {
			continue
		}
		if kind != "" && d.Kind != kind {
			continue
		}
		seen := make(map[string]bool)
		for _, entry := range m.meta[id] {
			if entry.Key != key || strings.TrimSpace(entry.Value) == "" || seen[entry.Value] {
				continue
			}
			seen[entry.Value] = true
			if _, ok := counts[entry.Value]; !ok {
				order = append(order, entry.Value)
			}
			counts[entry.Value]++
		}
	}
	return sortedCounts(counts, order, false), nil
}

// YearCounts counts distinct documents per publishing_date year within the
// scope selected by q.
func (m *MemoryStore) YearCounts(q FilterQuery) ([]domain.FacetCount, error) {
	docs, err := m.FilterDocuments(q)
	if err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[string]int64)
	var order []string
	for _, d := range docs {
		seen := make(map[string]bool)
		for _, entry := range m.meta[d.ID] {
			if entry.Key != "publishing_date" {
				continue
			}
			year, ok := YearOf(entry.Value)
			if !ok || seen[year] {
				continue
			}
			seen[year] = true
			if _, exists := counts[year]; !exists {
				order = append(order, year)
			}
			counts[year]++
		}
	}
	return sortedCounts(counts, order, true), nil
}

func sortedCounts(counts map[string]int64, order []string, descendingTies bool) []domain.FacetCount {
	res := make([]domain.FacetCount, 0, len(order))
	for _, value := range order {
		res = append(res, domain.FacetCount{Value: value, Count: counts[value]})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Count != res[j].Count {
			return res[i].Count > res[j].Count
		}
		if descendingTies {
			return res[i].Value > res[j].Value
		}
		return res[i].Value < res[j].Value
	})
	return res
}

// YearOf extracts the year component from a publishing date value,
// tolerating bare years ("2024") and full dates ("2024-01-15"). Blank or
// malformed values report false.
func YearOf(value string) (string, bool) {
	value = strings.TrimSpace(value)
	if len(value) < 4 {
		return "", false
	}
	year := value[:4]
	for _, r := range year {
		if !unicode.IsDigit(r) {
			return "", false
		}
	}
	return year, true
}
