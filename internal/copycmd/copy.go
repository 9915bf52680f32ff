package copycmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/ledger"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/notify"
	"github.com/lehigh-university-libraries/cvat2sly/internal/pipeline"
	"github.com/lehigh-university-libraries/cvat2sly/internal/report"
	"github.com/lehigh-university-libraries/cvat2sly/internal/storage"
	"github.com/lehigh-university-libraries/cvat2sly/internal/supervisely"
)

func newNotifier(cfg config.Config) notify.Notifier {
	if cfg.MQTTBroker == "" {
		return notify.Nop{}
	}
	n, err := notify.NewMQTT(cfg.MQTTBroker, cfg.MQTTTopic)
	if err != nil {
		slog.Warn("Notifications disabled", "error", err)
		return notify.Nop{}
	}
	return n
}

func executeCopy(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	rctx := context.WithoutCancel(ctx)

	source := cvat.NewClient(cfg.CVAT.Server, cfg.CVAT.Username, cfg.CVAT.Password)
	version, err := source.CheckConnection(rctx)
	if err != nil {
		return fmt.Errorf("failed to connect to CVAT: %w", err)
	}
	slog.Info("Connected to CVAT", "server", cfg.CVAT.Server, "version", version)

	all, err := source.List(rctx, cvat.Query{Op: cvat.ListProjects})
	if err != nil {
		return err
	}
	projects, err := config.SelectProjects(all, cfg.ProjectIDs)
	if err != nil {
		return err
	}
	if len(projects) == 0 {
		slog.Warn("No projects to copy")
		return nil
	}

	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	runID, err := led.StartRun(rctx)
	if err != nil {
		return err
	}
	notifier := newNotifier(cfg)
	defer notifier.Close()

	state := config.RunState{RunID: runID, WorkspaceID: cfg.Supervisely.WorkspaceID, Projects: projects}
	slog.Info("Starting copy", "run_id", runID, "projects", len(projects), "workspace_id", state.WorkspaceID)

	dest := supervisely.NewClient(cfg.Supervisely.Server, cfg.Supervisely.Token)
	p := pipeline.New(cfg, state, source, dest,
		pipeline.WithRecorder(led),
		pipeline.WithNotifier(notifier),
	)
	results, runErr := p.Run(ctx)

	summary := report.Summarize(results)
	if err := led.FinishRun(rctx, runID, summary.Copied, summary.Failed); err != nil {
		slog.Error("Failed to finish run in ledger", "run_id", runID, "error", err)
	}
	if err := notifier.Notify(notify.Event{RunID: runID, Kind: "run", State: "finished", Detail: fmt.Sprintf("copied=%d failed=%d", summary.Copied, summary.Failed)}); err != nil {
		slog.Warn("Failed to publish run event", "error", err)
	}

	if err := writeReports(cfg, runID, results); err != nil {
		slog.Error("Failed to write report", "error", err)
	}
	printResults(results, summary, p.Store())

	if runErr != nil {
		return fmt.Errorf("run %s interrupted: %w", runID, runErr)
	}
	return nil
}

func writeReports(cfg config.Config, runID string, results []models.ProjectResult) error {
	r := report.New(report.RunConfig{
		RunID:       runID,
		CVATServer:  cfg.CVAT.Server,
		SlyServer:   cfg.Supervisely.Server,
		WorkspaceID: cfg.Supervisely.WorkspaceID,
		Timestamp:   time.Now().Format("2006-01-02_15-04-05"),
	}, results)

	path, err := report.SaveYAML(cfg.ReportDir, r)
	if err != nil {
		return err
	}
	slog.Info("Report saved", "path", path)

	rows := report.TaskRows(runID, results)
	if len(rows) == 0 {
		return nil
	}
	parquetPath := strings.TrimSuffix(path, filepath.Ext(path)) + ".parquet"
	if err := report.WriteTasks(parquetPath, rows); err != nil {
		return err
	}
	slog.Info("Task report saved", "path", parquetPath, "rows", len(rows))
	return nil
}

func printResults(results []models.ProjectResult, summary report.Summary, store *storage.DestinationStore) {
	fmt.Println("========================================")
	fmt.Println("CVAT to Supervisely Copy Results")
	fmt.Println("========================================")
	for _, res := range results {
		fmt.Printf("\n[%s] %d %s\n", res.Status, res.ProjectID, res.Name)
		if res.Error != "" {
			fmt.Printf("  Error: %s\n", res.Error)
		}
		for _, t := range res.Tasks {
			if t.Error != "" {
				fmt.Printf("  task %d %s: %s\n", t.TaskID, t.State, t.Error)
			}
		}
	}
	if ids := store.SourceIDs(); len(ids) > 0 {
		fmt.Println("\nDestination projects:")
		for _, id := range ids {
			urls, _ := store.Get(id)
			for _, u := range urls {
				fmt.Printf("  %d -> %s\n", id, u)
			}
		}
	}
	fmt.Println()
	fmt.Printf("Projects copied: %d\n", summary.Copied)
	fmt.Printf("Projects failed: %d\n", summary.Failed)
	fmt.Printf("Tasks done:      %d/%d\n", summary.TasksDone, summary.Tasks)
	fmt.Printf("Labels dropped:  %d\n", summary.Dropped)
}
