package store

import (
	"database/sql"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

// Store is the relational side of the ETL: dynamically-shaped entity
// tables (one text column per source field) plus the lookups the sync
// engine needs for change detection.
type Store struct {
	db *gorm.DB
}

// New creates a store over an established GORM connection.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Typed columns; everything else is stored as text, matching whatever
// shape the table API returns.
var timestampColumns = map[string]struct{}{
	"etl_created_at": {},
	"etl_updated_at": {},
}

// Fingerprints returns persisted etl_hash values keyed by id. A table
// that was never created yields an empty map, not an error.
func (s *Store) Fingerprints(table string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 || !s.hasTable(table) {
		return out, nil
	}

	rows, err := s.db.Table(table).
		Select("sys_id, etl_hash").
		Where("sys_id IN ?", ids).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, hash sql.NullString
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, err
		}
		if id.Valid {
			out[id.String] = hash.String
		}
	}
	return out, rows.Err()
}

// MaxUpdatedAt returns the newest etl_updated_at in a table. ok is
// false for an empty or missing table — "never synced" is a value, not
// an error.
func (s *Store) MaxUpdatedAt(table string) (time.Time, bool, error) {
	if !s.hasTable(table) {
		return time.Time{}, false, nil
	}

	var max sql.NullTime
	row := s.db.Table(table).Select("MAX(etl_updated_at)").Row()
	if err := row.Scan(&max); err != nil {
		return time.Time{}, false, err
	}
	if !max.Valid {
		return time.Time{}, false, nil
	}
	return max.Time, true, nil
}

// IDs returns the identifier set of a table.
func (s *Store) IDs(table string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	if !s.hasTable(table) {
		return out, nil
	}

	var ids []string
	if err := s.db.Table(table).Pluck("sys_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// DistinctRefValues returns the distinct non-null, non-empty values of
// one reference column in a dependent table.
func (s *Store) DistinctRefValues(table, column string) ([]string, error) {
	if !s.hasTable(table) {
		return nil, nil
	}

	var values []string
	err := s.db.Table(table).
		Distinct(quoteIdent(column)).
		Where(fmt.Sprintf("%s IS NOT NULL AND %s <> ''", quoteIdent(column), quoteIdent(column))).
		Pluck(quoteIdent(column), &values).Error
	if err != nil {
		return nil, err
	}
	return values, nil
}

// DisplayNames resolves ids to the name column of a reference table,
// used for display-value enrichment of dependent records.
func (s *Store) DisplayNames(table string, ids []string) (map[string]string, error) {
	out := make(map[string]string, len(ids))
	if len(ids) == 0 || !s.hasTable(table) {
		return out, nil
	}

	rows, err := s.db.Table(table).
		Select("sys_id, name").
		Where("sys_id IN ?", ids).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id, name sql.NullString
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		if id.Valid {
			out[id.String] = name.String
		}
	}
	return out, rows.Err()
}

// Upsert writes records into their entity table, creating the table and
// any new columns on demand. Conflicting rows are updated in place;
// etl_created_at keeps its original value.
func (s *Store) Upsert(table string, recs []servicenow.Record) error {
	if len(recs) == 0 {
		return nil
	}

	columns := columnUnion(recs)
	if err := s.ensureTable(table, columns); err != nil {
		return fmt.Errorf("failed to prepare table %s: %w", table, err)
	}

	rows := make([]map[string]interface{}, 0, len(recs))
	for _, rec := range recs {
		row := make(map[string]interface{}, len(columns))
		for _, col := range columns {
			row[col] = sqlValue(rec[col])
		}
		rows = append(rows, row)
	}

	var updatable []string
	for _, col := range columns {
		if col != servicenow.IDField && col != "etl_created_at" {
			updatable = append(updatable, col)
		}
	}

	return s.db.Table(table).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: servicenow.IDField}},
		DoUpdates: clause.AssignmentColumns(updatable),
	}).Create(rows).Error
}

// TableSize reports row count and on-disk size of an entity table, used
// by the storage analyzer. Missing tables report zeros.
func (s *Store) TableSize(table string) (records int64, bytes int64, err error) {
	if !s.hasTable(table) {
		return 0, 0, nil
	}
	if err = s.db.Table(table).Count(&records).Error; err != nil {
		return 0, 0, err
	}
	row := s.db.Raw("SELECT pg_total_relation_size(?)", table).Row()
	if err = row.Scan(&bytes); err != nil {
		return 0, 0, err
	}
	return records, bytes, nil
}

func (s *Store) hasTable(table string) bool {
	return s.db.Migrator().HasTable(table)
}

func (s *Store) ensureTable(table string, columns []string) error {
	create := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s TEXT PRIMARY KEY)", quoteIdent(table), servicenow.IDField)
	if err := s.db.Exec(create).Error; err != nil {
		return err
	}
	for _, col := range columns {
		if col == servicenow.IDField {
			continue
		}
		colType := "TEXT"
		if _, ok := timestampColumns[col]; ok {
			colType = "TIMESTAMPTZ"
		}
		alter := fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", quoteIdent(table), quoteIdent(col), colType)
		if err := s.db.Exec(alter).Error; err != nil {
			return err
		}
	}
	return nil
}

// columnUnion collects every field name seen across the record set, so
// sparse records still land in a single statement shape.
func columnUnion(recs []servicenow.Record) []string {
	seen := make(map[string]struct{})
	for _, rec := range recs {
		for k := range rec {
			seen[k] = struct{}{}
		}
	}
	columns := make([]string, 0, len(seen))
	for k := range seen {
		columns = append(columns, k)
	}
	sort.Strings(columns)
	return columns
}

func sqlValue(v interface{}) interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case time.Time:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func quoteIdent(name string) string {
	return `"` + name + `"`
}
