package etl

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/xelth-com/snowetlgo/internal/archive"
	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/database"
	"github.com/xelth-com/snowetlgo/internal/models"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
	"github.com/xelth-com/snowetlgo/internal/store"
	syncengine "github.com/xelth-com/snowetlgo/internal/sync"
)

// Orchestrator wires the table-API client, the sync engine and the
// relational store into complete ETL operations. Operations run
// strictly sequentially; there is exactly one in-flight request at any
// time, which keeps the load on the source instance predictable.
type Orchestrator struct {
	settings *config.SyncSettings
	client   *servicenow.Client
	stats    *servicenow.FetchStats
	db       *database.DB
	store    *store.Store
	resolver *syncengine.Resolver
	gaps     *syncengine.GapResolver
	diff     *syncengine.DiffFilter
	archiver *archive.Archiver
	runs     *RunLogger
	now      func() time.Time
}

// New assembles an orchestrator from loaded configuration and an open
// database connection.
func New(cfg *config.Config, settings *config.SyncSettings, db *database.DB) *Orchestrator {
	stats := &servicenow.FetchStats{}
	client := servicenow.NewClient(
		cfg.ServiceNow.BaseURL,
		cfg.ServiceNow.Username,
		cfg.ServiceNow.Password,
		cfg.ServiceNow.PageLimit,
		cfg.ServiceNow.PageDelay,
		stats,
	)

	st := store.New(db.DB)
	o := &Orchestrator{
		settings: settings,
		client:   client,
		stats:    stats,
		db:       db,
		store:    st,
		resolver: syncengine.NewResolver(client, st),
		gaps:     syncengine.NewGapResolver(client, st, settings.BatchSize),
		diff:     syncengine.NewDiffFilter(st),
		runs:     NewRunLogger(db.DB),
		now:      time.Now,
	}
	if cfg.Archive.Enabled {
		o.archiver = archive.New(db.DB, cfg.Archive.CompressionLevel)
	}
	return o
}

// Migrate creates the bookkeeping tables (execution log, snapshots).
// Entity tables are created on demand by the store.
func (o *Orchestrator) Migrate() error {
	return o.db.AutoMigrate(&models.ExecutionLog{}, &models.ArchiveSnapshot{})
}

// SyncReferenceData refreshes users and companies, then repairs any
// references dangling from the incident table. forceFull bypasses
// watermarks and pulls the complete population.
func (o *Orchestrator) SyncReferenceData(ctx context.Context, forceFull bool) error {
	run := o.runs.Start("ref-sync", nil, nil)
	err := o.syncReferenceData(ctx, run, forceFull)
	run.Finish(o.takeStats(), err)
	return err
}

func (o *Orchestrator) syncReferenceData(ctx context.Context, run *Run, forceFull bool) error {
	if err := o.syncEntity(ctx, run, o.settings.Users, o.settings.UserRefs, forceFull); err != nil {
		return err
	}
	return o.syncEntity(ctx, run, o.settings.Companies, o.settings.CompanyRefs, forceFull)
}

// SyncCompanies refreshes only the company reference table, including
// its gap repair. Useful when company data changed out of band.
func (o *Orchestrator) SyncCompanies(ctx context.Context, forceFull bool) error {
	run := o.runs.Start("companies", nil, nil)
	err := o.syncEntity(ctx, run, o.settings.Companies, o.settings.CompanyRefs, forceFull)
	run.Finish(o.takeStats(), err)
	return err
}

// syncEntity runs one reference entity through resolve → upsert, then
// backfills ids the dependent table references but the entity table
// lacks. Gap repair runs even when the resolve produced nothing: the
// gap comes from earlier dependent-table loads, not from this fetch.
func (o *Orchestrator) syncEntity(ctx context.Context, run *Run, ent config.EntitySettings, refs config.ReferenceColumns, forceFull bool) error {
	res, err := o.resolver.Resolve(ctx, ent, forceFull)
	if err != nil {
		return err
	}
	if err := o.store.Upsert(ent.Table, res.Records); err != nil {
		return &syncengine.PersistError{Table: ent.Table, Err: err}
	}
	run.Record(ent.Table, len(res.Records))

	missing, err := o.gaps.FindGap(refs, ent.Table)
	if err != nil {
		return err
	}
	backfilled, err := o.gaps.ResolveGap(ctx, ent, missing)
	if err != nil {
		return err
	}
	if err := o.store.Upsert(ent.Table, backfilled); err != nil {
		return &syncengine.PersistError{Table: ent.Table, Err: err}
	}
	run.Record(ent.Table, len(backfilled))
	return nil
}

// ExtractIncidents pulls incidents updated inside [start, end] together
// with their tasks, SLA records and time-worked entries, enriches
// reference display values from the local tables, and persists
// everything.
func (o *Orchestrator) ExtractIncidents(ctx context.Context, start, end time.Time) error {
	run := o.runs.Start("incidents", &start, &end)
	err := o.extractIncidents(ctx, run, start, end)
	run.Finish(o.takeStats(), err)
	return err
}

func (o *Orchestrator) extractIncidents(ctx context.Context, run *Run, start, end time.Time) error {
	ent := o.settings.Incidents
	query := "sys_updated_on>=" + servicenow.FormatTime(start) +
		"^sys_updated_on<=" + servicenow.FormatTime(end)

	log.Printf("🎫 Extracting incidents updated %s .. %s", servicenow.FormatTime(start), servicenow.FormatTime(end))
	raw, err := o.client.FetchAll(ctx, ent.Resource, query, ent.Fields)
	if err != nil {
		return &syncengine.FetchError{Resource: ent.Resource, Err: err}
	}

	incidents := syncengine.Prepare(ent, raw, o.now())
	if err := o.enrichIncidents(incidents); err != nil {
		log.Printf("⚠️ Display-value enrichment skipped: %v", err)
	}
	if err := o.store.Upsert(ent.Table, incidents); err != nil {
		return &syncengine.PersistError{Table: ent.Table, Err: err}
	}
	run.Record(ent.Table, len(incidents))
	o.snapshot(ent.Table, start, end, incidents)
	log.Printf("✅ %d incidents persisted", len(incidents))

	if len(incidents) == 0 {
		return nil
	}

	ids := make([]string, 0, len(incidents))
	for _, rec := range incidents {
		ids = append(ids, rec.ID())
	}

	for _, rel := range o.settings.Related {
		relEnt := config.EntitySettings{Name: rel.Name, Resource: rel.Resource, Table: rel.Table, Fields: rel.Fields}
		raw, err := o.fetchByRef(ctx, rel.Resource, rel.RefColumn, ids, rel.Fields)
		if err != nil {
			return &syncengine.FetchError{Resource: rel.Resource, Err: err}
		}
		recs := syncengine.Prepare(relEnt, raw, o.now())
		if err := o.store.Upsert(rel.Table, recs); err != nil {
			return &syncengine.PersistError{Table: rel.Table, Err: err}
		}
		run.Record(rel.Table, len(recs))
		o.snapshot(rel.Table, start, end, recs)
		log.Printf("✅ %d %s persisted", len(recs), rel.Name)
	}
	return nil
}

// enrichIncidents fills the dv_ companion columns from the local
// reference tables, so downstream reporting never joins at read time.
func (o *Orchestrator) enrichIncidents(incidents []servicenow.Record) error {
	userCols := []string{"caller_id", "opened_by", "resolved_by", "assigned_to"}

	collect := func(cols []string) []string {
		seen := make(map[string]struct{})
		for _, rec := range incidents {
			for _, col := range cols {
				if v, ok := rec[col].(string); ok && v != "" {
					seen[v] = struct{}{}
				}
			}
		}
		ids := make([]string, 0, len(seen))
		for id := range seen {
			ids = append(ids, id)
		}
		return ids
	}

	userNames, err := o.store.DisplayNames(o.settings.Users.Table, collect(userCols))
	if err != nil {
		return err
	}
	companyNames, err := o.store.DisplayNames(o.settings.Companies.Table, collect([]string{"company"}))
	if err != nil {
		return err
	}

	for _, rec := range incidents {
		for _, col := range userCols {
			if id, ok := rec[col].(string); ok {
				if name, ok := userNames[id]; ok {
					rec["dv_"+col] = name
				}
			}
		}
		if id, ok := rec["company"].(string); ok {
			if name, ok := companyNames[id]; ok {
				rec["dv_company"] = name
			}
		}
	}
	return nil
}

// SyncConfigurationData refreshes the small full-snapshot tables (SLA
// definitions, assignment groups), suppressing unchanged rows.
func (o *Orchestrator) SyncConfigurationData(ctx context.Context) error {
	run := o.runs.Start("config-sync", nil, nil)
	err := o.syncConfigurationData(ctx, run)
	run.Finish(o.takeStats(), err)
	return err
}

func (o *Orchestrator) syncConfigurationData(ctx context.Context, run *Run) error {
	for _, ent := range o.settings.ConfigTables {
		log.Printf("⚙️ Refreshing %s", ent.Name)
		raw, err := o.client.FetchAll(ctx, ent.Resource, "", ent.Fields)
		if err != nil {
			return &syncengine.FetchError{Resource: ent.Resource, Err: err}
		}
		tagged := syncengine.Prepare(ent, raw, o.now())
		kept, _ := o.diff.FilterChanged(ent.Table, tagged)
		if err := o.store.Upsert(ent.Table, kept); err != nil {
			return &syncengine.PersistError{Table: ent.Table, Err: err}
		}
		run.Record(ent.Table, len(kept))
		log.Printf("✅ %s: %d fetched, %d written", ent.Name, len(raw), len(kept))
	}
	return nil
}

// FullWorkflow runs the complete pipeline: reference data, a window of
// incidents with children, then configuration tables.
func (o *Orchestrator) FullWorkflow(ctx context.Context, start, end time.Time, forceFull bool) error {
	run := o.runs.Start("full-etl", &start, &end)
	err := o.fullWorkflow(ctx, run, start, end, forceFull)
	run.Finish(o.takeStats(), err)
	return err
}

func (o *Orchestrator) fullWorkflow(ctx context.Context, run *Run, start, end time.Time, forceFull bool) error {
	if err := o.syncReferenceData(ctx, run, forceFull); err != nil {
		return err
	}
	if err := o.extractIncidents(ctx, run, start, end); err != nil {
		return err
	}
	return o.syncConfigurationData(ctx, run)
}

// QuickSync is the scheduled fast path: incremental reference sync plus
// the last daysBack days of incidents.
func (o *Orchestrator) QuickSync(ctx context.Context, daysBack int) error {
	if daysBack <= 0 {
		daysBack = 1
	}
	end := o.now()
	start := end.AddDate(0, 0, -daysBack)

	run := o.runs.Start("quick-sync", &start, &end)
	err := func() error {
		if err := o.syncReferenceData(ctx, run, false); err != nil {
			return err
		}
		return o.extractIncidents(ctx, run, start, end)
	}()
	run.Finish(o.takeStats(), err)
	return err
}

// History returns recent execution-log entries, newest first.
func (o *Orchestrator) History(limit int) ([]models.ExecutionLog, error) {
	return o.runs.History(limit)
}

// AnalyzeStorage prints the relational-vs-archive storage comparison
// and optionally exports it as CSV.
func (o *Orchestrator) AnalyzeStorage(csvPath string) error {
	tables := []string{
		o.settings.Users.Table,
		o.settings.Companies.Table,
		o.settings.Incidents.Table,
	}
	for _, rel := range o.settings.Related {
		tables = append(tables, rel.Table)
	}
	for _, ent := range o.settings.ConfigTables {
		tables = append(tables, ent.Table)
	}

	analyzer := archive.NewAnalyzer(o.db.DB, o.store)
	reports, err := analyzer.Analyze(tables)
	if err != nil {
		return err
	}
	analyzer.Print(reports)
	if csvPath != "" {
		if err := analyzer.ExportCSV(reports, csvPath); err != nil {
			return err
		}
		log.Printf("✅ Report exported to %s", csvPath)
	}
	return nil
}

// fetchByRef pulls records whose reference column matches any of the
// given ids, batched so the generated query stays within URL limits.
func (o *Orchestrator) fetchByRef(ctx context.Context, resource, column string, ids []string, fields []string) ([]servicenow.Record, error) {
	batchSize := o.settings.BatchSize
	if batchSize <= 0 {
		batchSize = 50
	}

	var all []servicenow.Record
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		parts := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			parts = append(parts, column+"="+id)
		}
		batch, err := o.client.FetchAll(ctx, resource, strings.Join(parts, "^OR"), fields)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
	}
	return all, nil
}

// snapshot archives a record set when the JSON archive is enabled.
// Archive failures are logged, not fatal: the relational rows are
// already safe.
func (o *Orchestrator) snapshot(table string, start, end time.Time, recs []servicenow.Record) {
	if o.archiver == nil || len(recs) == 0 {
		return
	}
	if _, err := o.archiver.Save(table, start, end, recs); err != nil {
		log.Printf("⚠️ Snapshot of %s failed: %v", table, err)
	}
}

// takeStats snapshots and resets the request counters, so each logged
// run reports only its own API traffic.
func (o *Orchestrator) takeStats() servicenow.FetchStats {
	snapshot := *o.stats
	*o.stats = servicenow.FetchStats{}
	return snapshot
}
