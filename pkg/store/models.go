package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type TenantModel struct {
	ID           string         `gorm:"primaryKey"`
	Name         string         `gorm:"not null"`
	Subdomain    string         `gorm:"uniqueIndex;not null"`
	Branding     datatypes.JSON `gorm:"type:jsonb"`
	StorageUsed  int64          `gorm:"not null;default:0"`
	StorageTotal int64          `gorm:"not null;default:0"`
	CreatedAt    time.Time      `gorm:"not null"`
	UpdatedAt    time.Time
}

type DocumentModel struct {
	ID                 string `gorm:"primaryKey"`
	TenantID           string `gorm:"not null;index"`
	StaffID            string `gorm:"index"`
	Kind               string `gorm:"not null"`
	FileKey            string
	FileFingerprint    string
	FileName           string
	FileContentType    string
	FileSize           int64 `gorm:"not null;default:0;index"`
	PreviewKey         string
	PreviewFingerprint string
	PreviewName        string
	PreviewContentType string
	PreviewSize        int64     `gorm:"not null;default:0"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

type MetadataModel struct {
	ID         string    `gorm:"primaryKey"`
	DocumentID string    `gorm:"not null;uniqueIndex:idx_metadata_document_key"`
	Key        string    `gorm:"not null;uniqueIndex:idx_metadata_document_key"`
	Value      string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time
}
