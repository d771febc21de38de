package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"libreshelf/pkg/domain"
)

const migrateLockID int64 = 58215821

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations under an advisory lock.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&TenantModel{}, &DocumentModel{}, &MetadataModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SaveTenant registers or updates a tenant.
func (s *GormStore) SaveTenant(t domain.Tenant) error {
	model := tenantToModel(t)
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "subdomain", "branding", "storage_total", "updated_at"}),
	}).Create(&model).Error
}

// GetTenant retrieves a tenant by ID.
func (s *GormStore) GetTenant(id string) (domain.Tenant, bool, error) {
	var model TenantModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Tenant{}, false, nil
		}
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

// GetTenantBySubdomain looks up a tenant by its unique subdomain.
func (s *GormStore) GetTenantBySubdomain(subdomain string) (domain.Tenant, bool, error) {
	var model TenantModel
	if err := s.db.First(&model, "subdomain = ?", subdomain).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Tenant{}, false, nil
		}
		return domain.Tenant{}, false, err
	}
	return tenantFromModel(model), true, nil
}

// AdjustStorageUsed issues an atomic relative increment on the tenant row.
// The column arithmetic happens in the database, so concurrent adjustments
// within one tenant cannot lose updates.
func (s *GormStore) AdjustStorageUsed(tenantID string, delta int64) error {
	res := s.db.Model(&TenantModel{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"storage_used": gorm.Expr("storage_used + ?", delta),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("adjust storage_used: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("adjust storage_used for %s: %w", tenantID, ErrTenantNotFound)
	}
	return nil
}

// SetStorageUsed overwrites the counter. Reconciliation only.
func (s *GormStore) SetStorageUsed(tenantID string, value int64) error {
	res := s.db.Model(&TenantModel{}).
		Where("id = ?", tenantID).
		Updates(map[string]any{
			"storage_used": value,
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("set storage_used: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("set storage_used for %s: %w", tenantID, ErrTenantNotFound)
	}
	return nil
}

// SumDocumentSizes recomputes the tenant's live attachment byte total.
func (s *GormStore) SumDocumentSizes(tenantID string) (int64, error) {
	var total sql.NullInt64
	if err := s.db.Model(&DocumentModel{}).
		Where("tenant_id = ?", tenantID).
		Select("SUM(file_size)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return total.Int64, nil
}

// SaveDocument stores or updates a document.
func (s *GormStore) SaveDocument(d domain.Document) error {
	model := documentToModel(d)
	return s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"tenant_id", "staff_id", "kind", "updated_at",
		}),
	}).Create(&model).Error
}

// GetDocument retrieves a document.
func (s *GormStore) GetDocument(id string) (domain.Document, bool, error) {
	var model DocumentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return domain.Document{}, false, nil
		}
		return domain.Document{}, false, err
	}
	return documentFromModel(model), true, nil
}

// ListDocuments returns a tenant's documents ordered by created_at.
func (s *GormStore) ListDocuments(tenantID string) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.db.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

// DeleteDocument removes a document and its metadata (cascade).
func (s *GormStore) DeleteDocument(id string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MetadataModel{}, "document_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&DocumentModel{}, "id = ?", id).Error
	})
}

// SetDocumentFile updates the primary attachment reference fields.
func (s *GormStore) SetDocumentFile(id string, file domain.Blob) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"file_key":          file.Key,
			"file_fingerprint":  file.Fingerprint,
			"file_name":         file.Filename,
			"file_content_type": file.ContentType,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// SetDocumentPreview attaches or replaces the derived preview reference.
func (s *GormStore) SetDocumentPreview(id string, preview domain.Blob) error {
	return s.db.Model(&DocumentModel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"preview_key":          preview.Key,
			"preview_fingerprint":  preview.Fingerprint,
			"preview_name":         preview.Filename,
			"preview_content_type": preview.ContentType,
			"preview_size":         preview.ByteSize,
			"updated_at":           time.Now().UTC(),
		}).Error
}

// ApplyFileSizeChange persists the cached file_size and adjusts the tenant
// counter in one transaction. The counter change is a relative SQL increment.
func (s *GormStore) ApplyFileSizeChange(documentID, tenantID string, newSize, delta int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&DocumentModel{}).
			Where("id = ?", documentID).
			Updates(map[string]any{
				"file_size":  newSize,
				"updated_at": time.Now().UTC(),
			}).Error; err != nil {
			return fmt.Errorf("update file_size: %w", err)
		}
		res := tx.Model(&TenantModel{}).
			Where("id = ?", tenantID).
			Updates(map[string]any{
				"storage_used": gorm.Expr("storage_used + ?", delta),
				"updated_at":   time.Now().UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("adjust storage_used: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("adjust storage_used for %s: %w", tenantID, ErrTenantNotFound)
		}
		return nil
	})
}

// ReplaceMetadata replaces all metadata rows for a document. Entries flagged
// for destruction are dropped rather than written.
func (s *GormStore) ReplaceMetadata(documentID string, entries []domain.Metadata) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MetadataModel{}, "document_id = ?", documentID).Error; err != nil {
			return err
		}
		models := make([]MetadataModel, 0, len(entries))
		for _, entry := range entries {
			if entry.MarkedForDestruction {
				continue
			}
			model := metadataToModel(entry)
			model.DocumentID = documentID
			models = append(models, model)
		}
		if len(models) == 0 {
			return nil
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// ListMetadata returns a document's metadata ordered by created_at.
func (s *GormStore) ListMetadata(documentID string) ([]domain.Metadata, error) {
	var models []MetadataModel
	if err := s.db.Where("document_id = ?", documentID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Metadata, 0, len(models))
	for _, m := range models {
		res = append(res, metadataFromModel(m))
	}
	return res, nil
}

// FilterDocuments runs the faceted library query. Restrictions combine
// conjunctively across facet keys and disjunctively within a key's values;
// EXISTS subqueries keep the result set free of duplicates.
func (s *GormStore) FilterDocuments(q FilterQuery) ([]domain.Document, error) {
	var models []DocumentModel
	if err := s.applyFilter(q).Order("document_models.created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Document, 0, len(models))
	for _, m := range models {
		res = append(res, documentFromModel(m))
	}
	return res, nil
}

func (s *GormStore) applyFilter(q FilterQuery) *gorm.DB {
	tx := s.db.Model(&DocumentModel{}).Where("document_models.tenant_id = ?", q.TenantID)
	if q.Kind != "" {
		tx = tx.Where("document_models.kind = ?", string(q.Kind))
	}
	if strings.TrimSpace(q.TitleQuery) != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(q.TitleQuery)) + "%"
		tx = tx.Where(
			"EXISTS (SELECT 1 FROM metadata_models m WHERE m.document_id = document_models.id AND m.key = 'title' AND LOWER(m.value) LIKE ?)",
			pattern,
		)
	}
	for key, values := range q.Facets {
		if len(values) == 0 {
			continue
		}
		tx = tx.Where(
			"EXISTS (SELECT 1 FROM metadata_models m WHERE m.document_id = document_models.id AND m.key = ? AND m.value IN ?)",
			key, values,
		)
	}
	if len(q.Years) > 0 {
		tx = tx.Where(
			"EXISTS (SELECT 1 FROM metadata_models m WHERE m.document_id = document_models.id AND m.key = 'publishing_date' AND substring(trim(m.value) from 1 for 4) IN ?)",
			q.Years,
		)
	}
	return tx
}

type facetCountRow struct {
	Value string
	Count int64
}

// FacetValueCounts counts distinct documents per value for a simple facet,
// tenant-wide regardless of active filters, ordered by count descending.
func (s *GormStore) FacetValueCounts(tenantID string, kind domain.DocumentKind, key string) ([]domain.FacetCount, error) {
	var rows []facetCountRow
	tx := s.db.Table("metadata_models AS m").
		Select("m.value AS value, COUNT(DISTINCT m.document_id) AS count").
		Joins("JOIN document_models d ON d.id = m.document_id").
		Where("d.tenant_id = ? AND m.key = ? AND trim(m.value) <> ''", tenantID, key)
	if kind != "" {
		tx = tx.Where("d.kind = ?", string(kind))
	}
	if err := tx.Group("m.value").Order("count DESC, value ASC").Scan(&rows).Error; err != nil {
		return nil, err
	}
	return facetCountsFromRows(rows), nil
}

// YearCounts counts distinct documents per publishing_date year within the
// currently filtered scope. Values may be bare years or full ISO dates;
// blanks are excluded.
func (s *GormStore) YearCounts(q FilterQuery) ([]domain.FacetCount, error) {
	sub := s.applyFilter(q).Select("document_models.id")
	var rows []facetCountRow
	if err := s.db.Table("metadata_models AS m").
		Select("substring(trim(m.value) from 1 for 4) AS value, COUNT(DISTINCT m.document_id) AS count").
		Where("m.key = 'publishing_date' AND trim(m.value) <> ''").
		Where("m.document_id IN (?)", sub).
		Group("substring(trim(m.value) from 1 for 4)").
		Order("count DESC, value DESC").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return facetCountsFromRows(rows), nil
}

func facetCountsFromRows(rows []facetCountRow) []domain.FacetCount {
	res := make([]domain.FacetCount, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.FacetCount{Value: row.Value, Count: row.Count})
	}
	return res
}

func tenantToModel(t domain.Tenant) TenantModel {
	branding, _ := json.Marshal(t.Branding)
	return TenantModel{
		ID:           t.ID,
		Name:         t.Name,
		Subdomain:    t.Subdomain,
		Branding:     branding,
		StorageUsed:  t.StorageUsed,
		StorageTotal: t.StorageTotal,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func tenantFromModel(m TenantModel) domain.Tenant {
	var branding map[string]string
	if len(m.Branding) > 0 {
		_ = json.Unmarshal(m.Branding, &branding)
	}
	return domain.Tenant{
		ID:           m.ID,
		Name:         m.Name,
		Subdomain:    m.Subdomain,
		Branding:     branding,
		StorageUsed:  m.StorageUsed,
		StorageTotal: m.StorageTotal,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func documentToModel(d domain.Document) DocumentModel {
	return DocumentModel{
		ID:                 d.ID,
		TenantID:           d.TenantID,
		StaffID:            d.StaffID,
		Kind:               string(d.Kind),
		FileKey:            d.File.Key,
		FileFingerprint:    d.File.Fingerprint,
		FileName:           d.File.Filename,
		FileContentType:    d.File.ContentType,
		FileSize:           d.FileSize,
		PreviewKey:         d.Preview.Key,
		PreviewFingerprint: d.Preview.Fingerprint,
		PreviewName:        d.Preview.Filename,
		PreviewContentType: d.Preview.ContentType,
		PreviewSize:        d.Preview.ByteSize,
		CreatedAt:          d.CreatedAt,
		UpdatedAt:          d.UpdatedAt,
	}
}

func documentFromModel(m DocumentModel) domain.Document {
	return domain.Document{
		ID:       m.ID,
		TenantID: m.TenantID,
		StaffID:  m.StaffID,
		Kind:     domain.DocumentKind(m.Kind),
		File: domain.Blob{
			Key:         m.FileKey,
			Fingerprint: m.FileFingerprint,
			ByteSize:    m.FileSize,
			ContentType: m.FileContentType,
			Filename:    m.FileName,
		},
		FileSize: m.FileSize,
		Preview: domain.Blob{
			Key:         m.PreviewKey,
			Fingerprint: m.PreviewFingerprint,
			ByteSize:    m.PreviewSize,
			ContentType: m.PreviewContentType,
			Filename:    m.PreviewName,
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func metadataToModel(entry domain.Metadata) MetadataModel {
	return MetadataModel{
		ID:         entry.ID,
		DocumentID: entry.DocumentID,
		Key:        entry.Key,
		Value:      entry.Value,
		CreatedAt:  entry.CreatedAt,
		UpdatedAt:  entry.UpdatedAt,
	}
}

func metadataFromModel(m MetadataModel) domain.Metadata {
	return domain.Metadata{
		ID:         m.ID,
		DocumentID: m.DocumentID,
		Key:        m.Key,
		Value:      m.Value,
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
