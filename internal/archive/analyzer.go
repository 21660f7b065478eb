package archive

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strconv"

	"gorm.io/gorm"

	"github.com/xelth-com/snowetlgo/internal/models"
	"github.com/xelth-com/snowetlgo/internal/store"
)

// TableReport compares the relational footprint of one table with its
// compressed-snapshot footprint.
type TableReport struct {
	Table           string
	Rows            int64
	RelationalBytes int64
	Snapshots       int64
	RawBytes        int64
	CompressedBytes int64
}

// Ratio returns compressed snapshot size as a fraction of raw JSON size.
func (r TableReport) Ratio() float64 {
	if r.RawBytes == 0 {
		return 0
	}
	return float64(r.CompressedBytes) / float64(r.RawBytes)
}

// Analyzer produces storage comparisons between the normalized tables
// and the JSON archive, to answer "what does keeping raw snapshots
// actually cost us".
type Analyzer struct {
	db    *gorm.DB
	store *store.Store
}

// NewAnalyzer creates a storage analyzer.
func NewAnalyzer(db *gorm.DB, st *store.Store) *Analyzer {
	return &Analyzer{db: db, store: st}
}

// Analyze builds one report per table that has either relational rows
// or snapshots, sorted by table name.
func (a *Analyzer) Analyze(tables []string) ([]TableReport, error) {
	byTable := make(map[string]*TableReport)
	for _, t := range tables {
		byTable[t] = &TableReport{Table: t}
	}

	type snapAgg struct {
		TableName  string `gorm:"column:table_name"`
		Count      int64  `gorm:"column:count"`
		Raw        int64  `gorm:"column:raw"`
		Compressed int64  `gorm:"column:compressed"`
	}
	var aggs []snapAgg
	err := a.db.Model(&models.ArchiveSnapshot{}).
		Select("table_name, COUNT(*) AS count, COALESCE(SUM(raw_bytes), 0) AS raw, COALESCE(SUM(compressed_bytes), 0) AS compressed").
		Group("table_name").
		Scan(&aggs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate snapshots: %w", err)
	}
	for _, agg := range aggs {
		rep, ok := byTable[agg.TableName]
		if !ok {
			rep = &TableReport{Table: agg.TableName}
			byTable[agg.TableName] = rep
		}
		rep.Snapshots = agg.Count
		rep.RawBytes = agg.Raw
		rep.CompressedBytes = agg.Compressed
	}

	for name, rep := range byTable {
		rows, bytes, err := a.store.TableSize(name)
		if err != nil {
			return nil, fmt.Errorf("failed to size table %s: %w", name, err)
		}
		rep.Rows = rows
		rep.RelationalBytes = bytes
	}

	reports := make([]TableReport, 0, len(byTable))
	for _, rep := range byTable {
		if rep.Rows == 0 && rep.Snapshots == 0 {
			continue
		}
		reports = append(reports, *rep)
	}
	sort.Slice(reports, func(i, j int) bool { return reports[i].Table < reports[j].Table })
	return reports, nil
}

// Print writes a human-readable comparison to stdout.
func (a *Analyzer) Print(reports []TableReport) {
	fmt.Println("📊 Storage comparison: relational vs compressed JSON archive")
	fmt.Printf("%-20s %10s %14s %10s %14s %14s %8s\n",
		"TABLE", "ROWS", "REL BYTES", "SNAPS", "RAW JSON", "COMPRESSED", "RATIO")
	var totalRel, totalRaw, totalComp int64
	for _, r := range reports {
		fmt.Printf("%-20s %10d %14d %10d %14d %14d %7.1f%%\n",
			r.Table, r.Rows, r.RelationalBytes, r.Snapshots, r.RawBytes, r.CompressedBytes, r.Ratio()*100)
		totalRel += r.RelationalBytes
		totalRaw += r.RawBytes
		totalComp += r.CompressedBytes
	}
	fmt.Printf("%-20s %10s %14d %10s %14d %14d\n", "TOTAL", "", totalRel, "", totalRaw, totalComp)
}

// ExportCSV writes the reports to a CSV file for spreadsheet analysis.
func (a *Analyzer) ExportCSV(reports []TableReport, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"table", "rows", "relational_bytes", "snapshots", "raw_bytes", "compressed_bytes", "ratio"}); err != nil {
		return err
	}
	for _, r := range reports {
		row := []string{
			r.Table,
			strconv.FormatInt(r.Rows, 10),
			strconv.FormatInt(r.RelationalBytes, 10),
			strconv.FormatInt(r.Snapshots, 10),
			strconv.FormatInt(r.RawBytes, 10),
			strconv.FormatInt(r.CompressedBytes, 10),
			strconv.FormatFloat(r.Ratio(), 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return w.Error()
}
