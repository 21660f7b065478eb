package archive

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/xelth-com/snowetlgo/internal/models"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// Archiver keeps a gzip-compressed JSON snapshot of every extraction
// window next to the relational rows. Snapshots make it possible to
// replay or audit a window without re-fetching from the source system.
type Archiver struct {
	db    *gorm.DB
	level int
}

// New creates an archiver. level is a gzip compression level; values
// outside the valid range fall back to BestCompression.
func New(db *gorm.DB, level int) *Archiver {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.BestCompression
	}
	return &Archiver{db: db, level: level}
}

// Compress serializes records to compact JSON and gzips the result.
// Returns the compressed payload and the raw (uncompressed) size.
func (a *Archiver) Compress(recs []servicenow.Record) (compressed []byte, rawBytes int64, err error) {
	raw, err := json.Marshal(recs)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to serialize records: %w", err)
	}

	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, a.level)
	if err != nil {
		return nil, 0, err
	}
	if _, err := zw.Write(raw); err != nil {
		return nil, 0, err
	}
	if err := zw.Close(); err != nil {
		return nil, 0, err
	}
	return buf.Bytes(), int64(len(raw)), nil
}

// Decompress reverses Compress.
func (a *Archiver) Decompress(compressed []byte) ([]servicenow.Record, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var recs []servicenow.Record
	if err := json.NewDecoder(zr).Decode(&recs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return recs, nil
}

// Save stores a snapshot for one table and window, replacing any
// earlier snapshot of the same table and window start. Re-running an
// extraction therefore overwrites its snapshot instead of duplicating it.
func (a *Archiver) Save(table string, windowStart, windowEnd time.Time, recs []servicenow.Record) (*models.ArchiveSnapshot, error) {
	compressed, rawBytes, err := a.Compress(recs)
	if err != nil {
		return nil, err
	}

	snap := &models.ArchiveSnapshot{
		SourceTable:      table,
		WindowStart:      windowStart.UTC(),
		WindowEnd:        windowEnd.UTC(),
		RecordCount:      len(recs),
		RawBytes:         rawBytes,
		CompressedBytes:  int64(len(compressed)),
		CompressionLevel: a.level,
		Compressed:       compressed,
	}

	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("table_name = ? AND window_start = ?", snap.SourceTable, snap.WindowStart).
			Delete(&models.ArchiveSnapshot{}).Error; err != nil {
			return err
		}
		return tx.Create(snap).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save snapshot for %s: %w", table, err)
	}

	log.Printf("📦 Archived %s: %d records, %d → %d bytes (%.1f%%)",
		table, snap.RecordCount, snap.RawBytes, snap.CompressedBytes, snap.Ratio()*100)
	return snap, nil
}

// Load fetches and decompresses the snapshot of one table and window
// start. Returns gorm.ErrRecordNotFound when no snapshot exists.
func (a *Archiver) Load(table string, windowStart time.Time) ([]servicenow.Record, *models.ArchiveSnapshot, error) {
	var snap models.ArchiveSnapshot
	err := a.db.
		Where("table_name = ? AND window_start = ?", table, windowStart.UTC()).
		First(&snap).Error
	if err != nil {
		return nil, nil, err
	}

	recs, err := a.Decompress(snap.Compressed)
	if err != nil {
		return nil, nil, err
	}
	return recs, &snap, nil
}

// List returns snapshot metadata for one table, newest first, without
// the compressed payloads.
func (a *Archiver) List(table string, limit int) ([]models.ArchiveSnapshot, error) {
	var snaps []models.ArchiveSnapshot
	q := a.db.
		Select("id", "table_name", "window_start", "window_end",
			"record_count", "raw_bytes", "compressed_bytes", "compression_level", "created_at").
		Order("window_start DESC")
	if table != "" {
		q = q.Where("table_name = ?", table)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&snaps).Error; err != nil {
		return nil, err
	}
	return snaps, nil
}
