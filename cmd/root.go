package cmd

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/lehigh-university-libraries/cvat2sly/internal/copycmd"
)

func NewRootCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "cvat2sly",
		Short: "Copy CVAT annotation projects into Supervisely",
		Long: `cvat2sly migrates annotated images and videos from a CVAT server into a
Supervisely workspace.

Settings come from an optional YAML file (--config) and the environment;
a .env file in the working directory is loaded first.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))
		},
	}

	cmd.PersistentFlags().String("config", "", "Path to a YAML config file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")

	cmd.AddCommand(copycmd.NewCopyCmd())
	cmd.AddCommand(copycmd.NewProjectsCmd())
	cmd.AddCommand(copycmd.NewConvertCmd())
	cmd.AddCommand(copycmd.NewRunsCmd())

	return cmd
}
