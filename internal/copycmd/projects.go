package copycmd

import (
	"context"
	"fmt"

	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

func executeProjects(ctx context.Context, cfg config.Config, withTasks bool) error {
	if err := cfg.ValidateSource(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	client := cvat.NewClient(cfg.CVAT.Server, cfg.CVAT.Username, cfg.CVAT.Password)
	return listProjects(ctx, client, withTasks)
}

func listProjects(ctx context.Context, client cvat.Lister, withTasks bool) error {
	projects, err := client.List(ctx, cvat.Query{Op: cvat.ListProjects})
	if err != nil {
		return err
	}
	fmt.Printf("%-6s %-10s %-12s %s\n", "ID", "STATUS", "OWNER", "NAME")
	for _, p := range projects {
		fmt.Printf("%-6d %-10s %-12s %s\n", p.ID, p.Status, p.Owner.Username, p.Name)
		if !withTasks {
			continue
		}
		tasks, err := client.List(ctx, cvat.Query{Op: cvat.ListTasksForProject, ProjectID: p.ID})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			fmt.Printf("    task %-6d %-9s %5d frames  %s\n", t.ID, t.DataType(), t.Size, t.Name)
		}
	}
	return nil
}
