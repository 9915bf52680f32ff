package copycmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
)

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// NewCopyCmd creates the copy command
func NewCopyCmd() *cobra.Command {
	var projects string
	var dev bool
	var includeCuboids bool

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy CVAT projects into a Supervisely workspace",
		Long: `Download every task of the selected CVAT projects as "CVAT for images 1.1"
archives, convert their annotations and upload them to Supervisely.

Each source project becomes one destination project per media kind:
"From CVAT <name> (images)" and "From CVAT <name> (videos)".
A YAML and a Parquet report are written when the run finishes and every
task transition is stored in the run ledger.`,
		Example: `  # Copy every project
  cvat2sly copy

  # Copy two projects and keep the downloaded archives
  cvat2sly copy --projects 3,5 --dev`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if projects != "" {
				ids, err := config.ParseIDs(projects)
				if err != nil {
					return fmt.Errorf("invalid --projects: %w", err)
				}
				cfg.ProjectIDs = ids
			}
			if cmd.Flags().Changed("dev") {
				cfg.Dev = dev
			}
			if cmd.Flags().Changed("cuboids") {
				cfg.IncludeCuboids = includeCuboids
			}
			return executeCopy(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&projects, "projects", "", "Comma-separated CVAT project ids (default all)")
	cmd.Flags().BoolVar(&dev, "dev", false, "Keep downloaded archives and unpacked files")
	cmd.Flags().BoolVar(&includeCuboids, "cuboids", false, "Report cuboids as unsupported instead of ignoring them")

	return cmd
}

// NewProjectsCmd creates the projects command
func NewProjectsCmd() *cobra.Command {
	var withTasks bool

	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List CVAT projects",
		Example: `  # List projects and their tasks
  cvat2sly projects --tasks`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeProjects(cmd.Context(), cfg, withTasks)
		},
	}

	cmd.Flags().BoolVar(&withTasks, "tasks", false, "Also list the tasks of each project")

	return cmd
}

// NewConvertCmd creates the convert command
func NewConvertCmd() *cobra.Command {
	var output string
	var videoMode bool

	cmd := &cobra.Command{
		Use:   "convert ARCHIVE...",
		Short: "Convert CVAT task archives into a local Supervisely project",
		Long: `Convert downloaded "CVAT for images 1.1" task archives without contacting
either server. Each archive becomes one dataset of the output project directory,
which also receives a meta.json with every class and tag meta found.`,
		Example: `  # Convert two image task archives
  cvat2sly convert 12_cars_imageset.zip 13_bikes_imageset.zip --output ./sly-project

  # Convert a video task (needs ffmpeg)
  cvat2sly convert 14_drive_video.zip --video --output ./sly-videos`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeConvert(cmd.Context(), cfg, args, output, videoMode)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "./sly-project", "Output project directory")
	cmd.Flags().BoolVar(&videoMode, "video", false, "Treat archives as video tasks")

	return cmd
}

// NewRunsCmd creates the runs command
func NewRunsCmd() *cobra.Command {
	var limit int
	var runID string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recorded copy runs",
		Example: `  # List the latest runs
  cvat2sly runs

  # Show the task history and projects of one run
  cvat2sly runs --run 5f1c...`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return executeRuns(cmd.Context(), cfg, runID, limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of runs to list")
	cmd.Flags().StringVar(&runID, "run", "", "Show details of one run")

	cmd.AddCommand(newRunsTasksCmd())
	return cmd
}

func newRunsTasksCmd() *cobra.Command {
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "tasks REPORT.parquet",
		Short: "Print the task rows of a Parquet run report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeTasks(args[0], failedOnly)
		},
	}

	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only show failed tasks")
	return cmd
}
