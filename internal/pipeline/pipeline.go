// Package pipeline copies CVAT projects into Supervisely, task by task.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/converter"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/notify"
	"github.com/lehigh-university-libraries/cvat2sly/internal/storage"
	"github.com/lehigh-university-libraries/cvat2sly/internal/supervisely"
	"github.com/lehigh-university-libraries/cvat2sly/internal/video"
)

// Source is the CVAT side of a copy
type Source interface {
	cvat.Lister
	Downloader
}

// Destination is the Supervisely side of a copy
type Destination interface {
	CreateProject(ctx context.Context, workspaceID int, name string, kind supervisely.ProjectType) (supervisely.Project, error)
	GetMeta(ctx context.Context, projectID int) (annotation.ProjectMeta, error)
	UpdateMeta(ctx context.Context, projectID int, meta annotation.ProjectMeta) error
	CreateDataset(ctx context.Context, projectID int, name string) (supervisely.Dataset, error)
	UploadImages(ctx context.Context, datasetID int, names, paths []string) ([]supervisely.Item, error)
	UploadAnnotations(ctx context.Context, datasetID int, imageIDs []int, anns []annotation.Annotation) error
	AddTagToImages(ctx context.Context, tagID int, imageIDs []int) error
	UploadVideo(ctx context.Context, datasetID int, name, path string) (supervisely.Item, error)
	UploadVideoAnnotation(ctx context.Context, videoID int, ann annotation.VideoAnnotation) error
}

// Recorder persists task transitions and project outcomes
type Recorder interface {
	RecordTaskState(ctx context.Context, runID string, projectID, taskID int, state models.TaskState, detail string) error
	RecordProject(ctx context.Context, runID string, p models.ProjectResult) error
}

// VideoEncoder composes frame images into a video file
type VideoEncoder interface {
	Encode(ctx context.Context, outPath string, framePaths []string, size annotation.Size) error
}

type nopRecorder struct{}

func (nopRecorder) RecordTaskState(context.Context, string, int, int, models.TaskState, string) error {
	return nil
}
func (nopRecorder) RecordProject(context.Context, string, models.ProjectResult) error { return nil }

// Option configures a Pipeline
type Option func(*Pipeline)

// WithRecorder writes every transition to rec
func WithRecorder(rec Recorder) Option {
	return func(p *Pipeline) { p.rec = rec }
}

// WithEncoder replaces the ffmpeg video encoder
func WithEncoder(enc VideoEncoder) Option {
	return func(p *Pipeline) { p.enc = enc }
}

// WithNotifier publishes progress events to n
func WithNotifier(n notify.Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

// WithStore registers destination URLs in store
func WithStore(store *storage.DestinationStore) Option {
	return func(p *Pipeline) { p.store = store }
}

// Pipeline runs one copy
type Pipeline struct {
	cfg      config.Config
	state    config.RunState
	src      Source
	dst      Destination
	rec      Recorder
	enc      VideoEncoder
	notifier notify.Notifier
	store    *storage.DestinationStore
	conv     *converter.Converter
}

// New creates a pipeline for the projects in state
func New(cfg config.Config, state config.RunState, src Source, dst Destination, opts ...Option) *Pipeline {
	enc := video.NewEncoder(cfg.FFmpegPath)
	if cfg.VideoCodec != "" {
		enc.Codec = cfg.VideoCodec
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultBatchSize
	}

	p := &Pipeline{
		cfg:      cfg,
		state:    state,
		src:      src,
		dst:      dst,
		rec:      nopRecorder{},
		enc:      enc,
		notifier: notify.Nop{},
		store:    storage.New(),
		conv:     converter.New(converter.Options{IncludeCuboids: cfg.IncludeCuboids}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Store returns the destination URL registry
func (p *Pipeline) Store() *storage.DestinationStore { return p.store }

// Run copies every selected project. A failed project never stops the run.
// Cancellation of ctx is checked between projects and tasks; calls already
// sent to either server are allowed to finish.
func (p *Pipeline) Run(ctx context.Context) ([]models.ProjectResult, error) {
	results := make([]models.ProjectResult, 0, len(p.state.Projects))
	var runErr error

	for _, project := range p.state.Projects {
		if err := ctx.Err(); err != nil {
			slog.Warn("Run cancelled, skipping remaining projects", "error", err)
			runErr = err
			break
		}
		res := p.CopyProject(ctx, project)
		if err := p.rec.RecordProject(context.WithoutCancel(ctx), p.state.RunID, res); err != nil {
			slog.Error("Failed to record project result", "project_id", project.ID, "error", err)
		}
		p.publish(notify.Event{Kind: "project", ProjectID: project.ID, State: string(res.Status), Detail: res.Error, URLs: res.URLs})
		results = append(results, res)
	}
	if runErr == nil {
		runErr = ctx.Err()
	}

	if !p.cfg.Dev && runErr == nil {
		for _, dir := range []string{p.cfg.ArchiveDir(), p.cfg.UnpackedDir()} {
			if err := os.RemoveAll(dir); err != nil {
				slog.Warn("Failed to remove work directory", "dir", dir, "error", err)
			}
		}
	}
	return results, runErr
}

// CopyProject downloads every task of a project, then creates one destination
// project per media kind and uploads the tasks of that kind into it.
func (p *Pipeline) CopyProject(ctx context.Context, project cvat.Entity) models.ProjectResult {
	rctx := context.WithoutCancel(ctx)
	res := models.ProjectResult{ProjectID: project.ID, Name: project.Name, Status: models.ProjectFailed}
	slog.Info("Copying project", "project_id", project.ID, "name", project.Name)

	tasks, err := p.src.List(rctx, cvat.Query{Op: cvat.ListTasksForProject, ProjectID: project.ID})
	if err != nil {
		res.Error = fmt.Sprintf("failed to list tasks: %v", err)
		slog.Error("Failed to list tasks", "project_id", project.ID, "error", err)
		return res
	}

	failed := false
	var downloaded []pendingTask
	for _, task := range tasks {
		if ctx.Err() != nil {
			failed = true
			res.Error = "run cancelled before all tasks were downloaded"
			break
		}
		tr := models.TaskResult{TaskID: task.ID, Name: task.Name, DataType: string(task.DataType())}
		p.transition(rctx, project.ID, &tr, models.TaskPending, "")
		p.transition(rctx, project.ID, &tr, models.TaskDownloading, "")

		dl, err := DownloadArchive(rctx, p.src, task, p.cfg.ArchiveDir(), RetryPolicy{MaxRetries: p.cfg.MaxDownloadRetries, Delay: p.cfg.RetryDelay})
		tr.Attempts, tr.Bytes = dl.Attempts, dl.Bytes
		if err != nil {
			failed = true
			tr.Error = err.Error()
			p.transition(rctx, project.ID, &tr, models.TaskDownloadFailed, tr.Error)
			slog.Error("Failed to download task", "task_id", task.ID, "error", err)
			res.Tasks = append(res.Tasks, tr)
			continue
		}
		p.transition(rctx, project.ID, &tr, models.TaskDownloaded, dl.Path)
		res.Tasks = append(res.Tasks, tr)
		downloaded = append(downloaded, pendingTask{entity: task, archive: dl.Path, result: len(res.Tasks) - 1})
	}

	if len(downloaded) == 0 {
		if res.Error == "" {
			res.Error = "no task archives were downloaded"
		}
		slog.Error("Project failed, nothing to upload", "project_id", project.ID, "tasks", len(tasks))
		return res
	}

	for _, dt := range []cvat.DataType{cvat.DataImageSet, cvat.DataVideo} {
		var group []pendingTask
		for _, pt := range downloaded {
			if pt.entity.DataType() == dt {
				group = append(group, pt)
			}
		}
		if len(group) == 0 {
			continue
		}
		if ctx.Err() != nil {
			failed = true
			res.Error = "run cancelled before all tasks were uploaded"
			break
		}
		if !p.copyGroup(ctx, project, dt, group, res.Tasks) {
			failed = true
		}
	}

	res.URLs, _ = p.store.Get(project.ID)
	if !failed {
		res.Status = models.ProjectCopied
	}
	slog.Info("Finished project", "project_id", project.ID, "status", res.Status, "urls", res.URLs)
	return res
}

type pendingTask struct {
	entity  cvat.Entity
	archive string
	result  int
}

func destinationName(project cvat.Entity, dt cvat.DataType) (string, supervisely.ProjectType) {
	if dt == cvat.DataVideo {
		return fmt.Sprintf("From CVAT %s (videos)", project.Name), supervisely.ProjectVideos
	}
	return fmt.Sprintf("From CVAT %s (images)", project.Name), supervisely.ProjectImages
}

// copyGroup uploads tasks of one media kind into a fresh destination project
// and reports whether every task succeeded
func (p *Pipeline) copyGroup(ctx context.Context, project cvat.Entity, dt cvat.DataType, group []pendingTask, results []models.TaskResult) bool {
	rctx := context.WithoutCancel(ctx)
	name, kind := destinationName(project, dt)

	dest, err := p.dst.CreateProject(rctx, p.state.WorkspaceID, name, kind)
	if err != nil {
		slog.Error("Failed to create destination project", "name", name, "error", err)
		p.failGroup(rctx, project.ID, group, results, err)
		return false
	}
	p.store.Add(project.ID, dest.URL)
	slog.Info("Created destination project", "name", dest.Name, "id", dest.ID, "url", dest.URL)

	meta, err := p.dst.GetMeta(rctx, dest.ID)
	if err != nil {
		slog.Error("Failed to read destination meta", "project_id", dest.ID, "error", err)
		p.failGroup(rctx, project.ID, group, results, err)
		return false
	}

	ok := true
	for _, pt := range group {
		if ctx.Err() != nil {
			return false
		}
		tr := &results[pt.result]
		var next annotation.ProjectMeta
		if dt == cvat.DataVideo {
			next, err = p.copyVideoTask(rctx, project.ID, dest.ID, meta, pt, tr)
		} else {
			next, err = p.copyImageTask(rctx, project.ID, dest.ID, meta, pt, tr)
		}
		meta = next
		if err != nil {
			ok = false
			tr.Error = err.Error()
			p.transition(rctx, project.ID, tr, models.TaskUploadFailed, tr.Error)
			slog.Error("Failed to copy task", "task_id", pt.entity.ID, "error", err)
		} else {
			p.transition(rctx, project.ID, tr, models.TaskDone, "")
		}
		p.cleanupTask(pt)
	}
	return ok
}

func (p *Pipeline) failGroup(ctx context.Context, projectID int, group []pendingTask, results []models.TaskResult, err error) {
	for _, pt := range group {
		tr := &results[pt.result]
		tr.Error = err.Error()
		p.transition(ctx, projectID, tr, models.TaskUploadFailed, tr.Error)
		p.cleanupTask(pt)
	}
}

// unpack extracts a task archive and reads its content
func (p *Pipeline) unpack(ctx context.Context, projectID int, pt pendingTask, tr *models.TaskResult) (*cvat.Task, error) {
	p.transition(ctx, projectID, tr, models.TaskUnpacking, "")
	dir := filepath.Join(p.cfg.UnpackedDir(), DatasetName(pt.archive))
	if err := cvat.Unpack(pt.archive, dir); err != nil {
		return nil, err
	}
	p.transition(ctx, projectID, tr, models.TaskParsing, "")
	return cvat.ReadTask(dir)
}

func (p *Pipeline) cleanupTask(pt pendingTask) {
	if p.cfg.Dev {
		return
	}
	dir := filepath.Join(p.cfg.UnpackedDir(), DatasetName(pt.archive))
	for _, path := range []string{pt.archive, dir} {
		if err := os.RemoveAll(path); err != nil {
			slog.Warn("Failed to remove task files", "path", path, "error", err)
		}
	}
}

func (p *Pipeline) transition(ctx context.Context, projectID int, tr *models.TaskResult, state models.TaskState, detail string) {
	tr.State = state
	if state.Terminal() {
		slog.Info("Task finished", "project_id", projectID, "task_id", tr.TaskID, "state", state, "items", tr.Items, "dropped", tr.Dropped)
	} else {
		slog.Debug("Task state", "project_id", projectID, "task_id", tr.TaskID, "state", state)
	}
	if err := p.rec.RecordTaskState(ctx, p.state.RunID, projectID, tr.TaskID, state, detail); err != nil {
		slog.Error("Failed to record task state", "task_id", tr.TaskID, "state", state, "error", err)
	}
	p.publish(notify.Event{Kind: "task", ProjectID: projectID, TaskID: tr.TaskID, State: string(state), Detail: detail})
}

func (p *Pipeline) publish(e notify.Event) {
	e.RunID = p.state.RunID
	e.At = time.Now()
	if err := p.notifier.Notify(e); err != nil {
		slog.Warn("Failed to publish event", "kind", e.Kind, "error", err)
	}
}

var (
	_ Source      = (*cvat.Client)(nil)
	_ Destination = (*supervisely.Client)(nil)
)
