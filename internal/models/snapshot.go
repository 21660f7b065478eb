package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ArchiveSnapshot stores a gzip-compressed JSON image of one extraction
// window, kept alongside the relational rows for replay and audits.
type ArchiveSnapshot struct {
	ID          uuid.UUID `gorm:"primaryKey;type:uuid" json:"id"`
	SourceTable string    `gorm:"column:table_name;not null;index" json:"tableName"`

	WindowStart time.Time `gorm:"column:window_start;not null;index" json:"windowStart"`
	WindowEnd   time.Time `gorm:"column:window_end;not null" json:"windowEnd"`

	RecordCount      int    `gorm:"column:record_count;default:0" json:"recordCount"`
	RawBytes         int64  `gorm:"column:raw_bytes;default:0" json:"rawBytes"`
	CompressedBytes  int64  `gorm:"column:compressed_bytes;default:0" json:"compressedBytes"`
	CompressionLevel int    `gorm:"column:compression_level;default:0" json:"compressionLevel"`
	Compressed       []byte `gorm:"column:compressed;type:bytea" json:"-"`

	Metadata datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata"`

	CreatedAt time.Time `gorm:"column:created_at" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"-"`
}

// TableName specifies the table name
func (ArchiveSnapshot) TableName() string {
	return "etl_archive_snapshot"
}

// BeforeCreate assigns the snapshot id
func (s *ArchiveSnapshot) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Ratio returns compressed size as a fraction of raw size.
func (s *ArchiveSnapshot) Ratio() float64 {
	if s.RawBytes == 0 {
		return 0
	}
	return float64(s.CompressedBytes) / float64(s.RawBytes)
}
