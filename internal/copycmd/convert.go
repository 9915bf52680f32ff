package copycmd

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/pipeline"
)

func executeConvert(ctx context.Context, cfg config.Config, archives []string, outDir string, videoMode bool) error {
	dt := cvat.DataImageSet
	if videoMode {
		dt = cvat.DataVideo
	}

	p := pipeline.New(cfg, config.RunState{}, nil, nil)
	meta := annotation.ProjectMeta{}
	failed := 0
	for _, archive := range archives {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, tr, err := p.ExportTask(ctx, archive, dt, outDir, meta)
		meta = next
		if err != nil {
			failed++
			slog.Error("Failed to convert archive", "archive", archive, "error", err)
			continue
		}
		fmt.Printf("%s: %d items, %d labels, %d tags, %d dropped\n", tr.Name, tr.Items, tr.Labels, tr.Tags, tr.Dropped)
	}

	if err := pipeline.WriteJSON(filepath.Join(outDir, "meta.json"), meta); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d archives failed to convert", failed, len(archives))
	}
	return nil
}
