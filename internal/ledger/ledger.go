package ledger

import (
	"fmt"

	"libreshelf/pkg/domain"
)

// CounterStore is the narrow persistence surface the ledger adjusts.
type CounterStore interface {
	// ApplyFileSizeChange persists the document's cached file_size and
	// atomically increments the tenant counter by delta in one transaction.
	ApplyFileSizeChange(documentID, tenantID string, newSize, delta int64) error
	// AdjustStorageUsed atomically increments the tenant counter.
	AdjustStorageUsed(tenantID string, delta int64) error
}

// Ledger maintains each tenant's storage_used counter as attachments are
// created, replaced, and removed. It is called explicitly by the document
// write path after the attachment write is durable, never from persistence
// hooks, so the ordering attach -> commit -> adjust stays visible in the
// caller. A failed adjustment is a correctness problem and always
// propagates; swallowing it would silently corrupt the counter.
type Ledger struct {
	store CounterStore
}

// New wires a ledger to its counter store.
func New(store CounterStore) *Ledger {
	return &Ledger{store: store}
}

// OnAttachmentChange records an attach or replace that moved the document's
// primary attachment from oldSize to newSize bytes. A zero delta is a no-op;
// otherwise the document's file_size and the tenant counter change together.
func (l *Ledger) OnAttachmentChange(doc domain.Document, oldSize, newSize int64) error {
	delta := newSize - oldSize
	if delta == 0 {
		return nil
	}
	if err := l.store.ApplyFileSizeChange(doc.ID, doc.TenantID, newSize, delta); err != nil {
		return fmt.Errorf("ledger: apply size change for document %s: %w", doc.ID, err)
	}
	return nil
}

// OnDocumentDeleted releases the bytes captured before the destroy
// transaction committed. Captured sizes of zero or less skip the decrement,
// which also keeps the counter from going negative on double deletes.
func (l *Ledger) OnDocumentDeleted(doc domain.Document, capturedSize int64) error {
	if capturedSize <= 0 {
		return nil
	}
	if err := l.store.AdjustStorageUsed(doc.TenantID, -capturedSize); err != nil {
		return fmt.Errorf("ledger: release %d bytes for tenant %s: %w", capturedSize, doc.TenantID, err)
	}
	return nil
}
