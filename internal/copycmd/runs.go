package copycmd

import (
	"context"
	"fmt"
	"time"

	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/ledger"
	"github.com/lehigh-university-libraries/cvat2sly/internal/report"
)

func executeRuns(ctx context.Context, cfg config.Config, runID string, limit int) error {
	led, err := ledger.Open(cfg.LedgerPath)
	if err != nil {
		return err
	}
	defer led.Close()

	if runID != "" {
		return printRun(ctx, led, runID)
	}

	runs, err := led.ListRuns(ctx, limit)
	if err != nil {
		return err
	}
	fmt.Printf("%-36s  %-19s  %-19s  %6s  %6s\n", "RUN", "STARTED", "FINISHED", "COPIED", "FAILED")
	for _, r := range runs {
		finished := "-"
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		fmt.Printf("%-36s  %-19s  %-19s  %6d  %6d\n", r.ID, r.StartedAt.Local().Format(time.DateTime), finished, r.Copied, r.Failed)
	}
	return nil
}

func printRun(ctx context.Context, led *ledger.Ledger, runID string) error {
	projects, err := led.Projects(ctx, runID)
	if err != nil {
		return err
	}
	events, err := led.TaskHistory(ctx, runID)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s\n\n", runID)
	for _, p := range projects {
		fmt.Printf("[%s] %d %s\n", p.Status, p.ProjectID, p.Name)
		for _, u := range p.URLs {
			fmt.Printf("  %s\n", u)
		}
	}
	fmt.Println("\nTask history:")
	for _, e := range events {
		line := fmt.Sprintf("  %s  project %d task %d  %s", e.At.Local().Format(time.DateTime), e.ProjectID, e.TaskID, e.State)
		if e.Detail != "" {
			line += "  " + e.Detail
		}
		fmt.Println(line)
	}
	return nil
}

func executeTasks(path string, failedOnly bool) error {
	rows, err := report.LoadTasks(path)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if failedOnly && r.Error == "" {
			continue
		}
		fmt.Printf("%d/%d %-16s %-9s attempts=%d items=%d labels=%d dropped=%d %s\n",
			r.ProjectID, r.TaskID, r.State, r.DataType, r.Attempts, r.Items, r.Labels, r.Dropped, r.Error)
	}
	return nil
}
