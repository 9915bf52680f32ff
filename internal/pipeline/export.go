package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/schema"
)

// localMeta accepts every schema update; the meta is written once at the end
type localMeta struct{}

func (localMeta) UpdateMeta(context.Context, int, annotation.ProjectMeta) error { return nil }

// ExportTask converts a task archive into a dataset of a local Supervisely
// project directory at outDir. Images go to {dataset}/img, videos to
// {dataset}/video, annotations to {dataset}/ann. The returned meta includes
// every class and tag meta the task added.
func (p *Pipeline) ExportTask(ctx context.Context, archivePath string, dt cvat.DataType, outDir string, meta annotation.ProjectMeta) (annotation.ProjectMeta, models.TaskResult, error) {
	name := DatasetName(archivePath)
	tr := models.TaskResult{Name: name, DataType: string(dt)}
	pt := pendingTask{archive: archivePath}

	task, err := p.unpack(ctx, 0, pt, &tr)
	if err != nil {
		return meta, tr, err
	}
	dsDir := filepath.Join(outDir, name)

	if dt == cvat.DataVideo {
		meta, err = p.exportVideo(ctx, task, name, dsDir, meta, &tr)
	} else {
		meta, err = p.exportImages(task, dsDir, meta, &tr)
	}
	if err != nil {
		return meta, tr, err
	}
	tr.State = models.TaskDone
	slog.Info("Exported task", "dataset", name, "items", tr.Items, "labels", tr.Labels, "dropped", tr.Dropped)
	return meta, tr, nil
}

func (p *Pipeline) exportImages(task *cvat.Task, dsDir string, meta annotation.ProjectMeta, tr *models.TaskResult) (annotation.ProjectMeta, error) {
	objs, dropped := p.convertImages(task)
	tr.Dropped += dropped

	var err error
	for _, obj := range objs {
		meta, err = schema.Reconcile(context.Background(), localMeta{}, 0, meta, schema.LabelClasses(obj.Labels), schema.TagMetas(obj.Tags))
		if err != nil {
			return meta, err
		}
		if err := copyFile(obj.Path, filepath.Join(dsDir, "img", obj.Name)); err != nil {
			return meta, err
		}
		ann := annotation.Annotation{Size: obj.Size, Labels: obj.Labels, Tags: obj.Tags}
		if err := WriteJSON(filepath.Join(dsDir, "ann", obj.Name+".json"), ann); err != nil {
			return meta, err
		}
		tr.Items++
		tr.Labels += len(obj.Labels)
		tr.Tags += len(obj.Tags)
	}
	return meta, nil
}

func (p *Pipeline) exportVideo(ctx context.Context, task *cvat.Task, datasetName, dsDir string, meta annotation.ProjectMeta, tr *models.TaskResult) (annotation.ProjectMeta, error) {
	frames, ann, dropped, err := p.buildVideo(task)
	tr.Dropped += dropped
	if err != nil {
		return meta, err
	}

	classes := make([]annotation.ObjClass, 0, ann.Objects.Len())
	for _, obj := range ann.Objects.Objects() {
		classes = append(classes, obj.Class)
	}
	meta, err = schema.Reconcile(ctx, localMeta{}, 0, meta, classes, schema.TagMetas(ann.Tags))
	if err != nil {
		return meta, err
	}

	name := videoName(task, datasetName)
	videoDir := filepath.Join(dsDir, "video")
	if err := os.MkdirAll(videoDir, 0755); err != nil {
		return meta, fmt.Errorf("failed to create video directory: %w", err)
	}
	framePaths := make([]string, len(frames))
	for i, f := range frames {
		framePaths[i] = f.path
	}
	if err := p.enc.Encode(ctx, filepath.Join(videoDir, name), framePaths, ann.Size); err != nil {
		return meta, err
	}
	if err := WriteJSON(filepath.Join(dsDir, "ann", name+".json"), ann); err != nil {
		return meta, err
	}

	tr.Items = 1
	for _, f := range ann.Frames {
		tr.Labels += len(f.Figures)
	}
	tr.Tags = len(ann.Tags)
	return meta, nil
}

// WriteJSON writes v as indented JSON, creating parent directories
func WriteJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
