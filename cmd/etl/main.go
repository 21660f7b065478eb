package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xelth-com/snowetlgo/internal/buildinfo"
	"github.com/xelth-com/snowetlgo/internal/config"
	"github.com/xelth-com/snowetlgo/internal/database"
	"github.com/xelth-com/snowetlgo/internal/etl"
	"github.com/xelth-com/snowetlgo/internal/servicenow"
)

const usage = `snowetl - incremental ServiceNow → PostgreSQL extraction

Usage: snowetl <command> [flags]

Commands:
  ref-sync     Sync users and companies (incremental by default)
  companies    Sync only companies
  incidents    Extract incidents and children for a time window
  config-sync  Refresh SLA definitions and assignment groups
  full-etl     Reference data + incident window + configuration
  quick-sync   Incremental references + last 24h of incidents
  analyze      Compare relational vs archived storage footprint
  history      Show recent ETL runs
  version      Print build information

Flags:
  --full            Force a full sync instead of incremental
  --start, --end    Incident window bounds (2006-01-02 or "2006-01-02 15:04:05")
  --days N          Incident window: last N days (default 1)
  --csv PATH        analyze: also export the report as CSV
  --limit N         history: number of runs to show (default 20)
`

func main() {
	if len(os.Args) < 2 {
		fmt.Print(usage)
		os.Exit(2)
	}
	command := os.Args[1]

	if command == "version" {
		fmt.Println(buildinfo.String())
		return
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	full := flags.Bool("full", false, "force a full sync")
	startArg := flags.String("start", "", "window start")
	endArg := flags.String("end", "", "window end")
	days := flags.Int("days", 1, "window: last N days")
	csvPath := flags.String("csv", "", "CSV export path")
	limit := flags.Int("limit", 20, "history entries to show")
	flags.Parse(os.Args[2:])

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	settings := config.LoadSyncSettings()

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	orch := etl.New(cfg, settings, db)
	if err := orch.Migrate(); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	start, end, err := window(*startArg, *endArg, *days)
	if err != nil {
		log.Fatalf("Invalid window: %v", err)
	}

	switch command {
	case "ref-sync":
		err = orch.SyncReferenceData(ctx, *full)
	case "companies":
		err = orch.SyncCompanies(ctx, *full)
	case "incidents":
		err = orch.ExtractIncidents(ctx, start, end)
	case "config-sync":
		err = orch.SyncConfigurationData(ctx)
	case "full-etl":
		err = orch.FullWorkflow(ctx, start, end, *full)
	case "quick-sync":
		err = orch.QuickSync(ctx, *days)
	case "analyze":
		err = orch.AnalyzeStorage(*csvPath)
	case "history":
		err = printHistory(orch, *limit)
	default:
		fmt.Print(usage)
		os.Exit(2)
	}

	if err != nil {
		log.Fatalf("❌ %s failed: %v", command, err)
	}
	log.Printf("✅ %s completed", command)
}

// window derives the incident extraction window. Explicit --start/--end
// win; otherwise the window is the last --days days ending now.
func window(startArg, endArg string, days int) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	start := now.AddDate(0, 0, -days)
	end := now

	var err error
	if startArg != "" {
		if start, err = parseTime(startArg); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if endArg != "" {
		if end, err = parseTime(endArg); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("window end %s is before start %s", end, start)
	}
	return start, end, nil
}

func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(servicenow.TimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func printHistory(orch *etl.Orchestrator, limit int) error {
	entries, err := orch.History(limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No runs recorded yet")
		return nil
	}

	fmt.Printf("%-36s %-12s %-8s %-20s %8s %6s %8s\n",
		"ID", "OPERATION", "STATUS", "STARTED", "MS", "API", "SUCCESS")
	for _, e := range entries {
		fmt.Printf("%-36s %-12s %-8s %-20s %8d %6d %7.1f%%\n",
			e.ID, e.Operation, e.Status,
			e.StartedAt.Format("2006-01-02 15:04:05"),
			e.Duration, e.APIRequests, e.APISuccessRate)
		if e.ErrorDetail != "" {
			fmt.Printf("    ⚠️ %s\n", e.ErrorDetail)
		}
	}
	return nil
}
