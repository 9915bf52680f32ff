package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/converter"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/images"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/schema"
	"github.com/lehigh-university-libraries/cvat2sly/internal/video"
)

type videoFrame struct {
	index  int
	path   string
	result converter.Result
}

// buildVideo converts the frames of a video task, ordered by frame index.
// A frame without a valid index fails the whole video, since the remaining
// figures could no longer be matched to encoded frames.
func (p *Pipeline) buildVideo(task *cvat.Task) ([]videoFrame, annotation.VideoAnnotation, int, error) {
	frames := make([]videoFrame, 0, len(task.Images))
	dropped := 0
	for i, img := range task.Images {
		res, err := p.conv.ConvertImage(img, cvat.DataVideo)
		if err != nil {
			return nil, annotation.VideoAnnotation{}, dropped, fmt.Errorf("failed to convert frame %s: %w", img.Name, err)
		}
		dropped += res.Dropped
		frames = append(frames, videoFrame{index: *res.Frame, path: video.FramePath(task.Paths[i]), result: res})
	}
	if len(frames) == 0 {
		return nil, annotation.VideoAnnotation{}, dropped, fmt.Errorf("no usable frames")
	}
	sort.SliceStable(frames, func(i, j int) bool { return frames[i].index < frames[j].index })

	var size annotation.Size
	for _, f := range frames {
		if f.result.HasSize {
			size = f.result.Size
			break
		}
	}
	if size.Height == 0 {
		s, err := images.Dimensions(frames[0].path)
		if err != nil {
			return nil, annotation.VideoAnnotation{}, dropped, fmt.Errorf("failed to determine video size: %w", err)
		}
		size = s
	}

	ann := annotation.VideoAnnotation{
		Size:        size,
		FramesCount: len(frames),
		Objects:     &annotation.VideoObjectSet{},
	}
	for _, f := range frames {
		for _, l := range f.result.Labels {
			ann.Objects.Add(l.Class)
		}
		if len(f.result.Labels) > 0 {
			ann.Frames = append(ann.Frames, annotation.Frame{Index: f.index, Figures: f.result.Labels})
		}
		ann.Tags = append(ann.Tags, f.result.Tags...)
	}
	return frames, ann, dropped, nil
}

// videoName returns the upload name of a task video, always with an .mp4 extension
func videoName(task *cvat.Task, datasetName string) string {
	name := datasetName
	if task.Source != "" {
		name = filepath.Base(task.Source)
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".mp4"
}

func (p *Pipeline) copyVideoTask(ctx context.Context, projectID, destID int, meta annotation.ProjectMeta, pt pendingTask, tr *models.TaskResult) (annotation.ProjectMeta, error) {
	task, err := p.unpack(ctx, projectID, pt, tr)
	if err != nil {
		return meta, err
	}

	p.transition(ctx, projectID, tr, models.TaskConverting, "")
	frames, ann, dropped, err := p.buildVideo(task)
	tr.Dropped += dropped
	if err != nil {
		return meta, fmt.Errorf("task %d: %w", pt.entity.ID, err)
	}

	p.transition(ctx, projectID, tr, models.TaskSchemaReconciling, "")
	classes := make([]annotation.ObjClass, 0, ann.Objects.Len())
	for _, obj := range ann.Objects.Objects() {
		classes = append(classes, obj.Class)
	}
	meta, err = schema.Reconcile(ctx, p.dst, destID, meta, classes, schema.TagMetas(ann.Tags))
	if err != nil {
		return meta, err
	}

	p.transition(ctx, projectID, tr, models.TaskUploading, "")
	datasetName := DatasetName(pt.archive)
	name := videoName(task, datasetName)
	outPath := filepath.Join(task.Dir, name)

	framePaths := make([]string, len(frames))
	for i, f := range frames {
		framePaths[i] = f.path
	}
	if err := p.enc.Encode(ctx, outPath, framePaths, ann.Size); err != nil {
		return meta, err
	}

	ds, err := p.dst.CreateDataset(ctx, destID, datasetName)
	if err != nil {
		return meta, err
	}
	item, err := p.dst.UploadVideo(ctx, ds.ID, name, outPath)
	if err != nil {
		return meta, err
	}
	if err := p.dst.UploadVideoAnnotation(ctx, item.ID, ann); err != nil {
		return meta, err
	}

	tr.Items = 1
	for _, f := range ann.Frames {
		tr.Labels += len(f.Figures)
	}
	tr.Tags = len(ann.Tags)
	slog.Info("Uploaded video", "dataset", ds.Name, "video", name, "frames", ann.FramesCount, "objects", ann.Objects.Len())
	return meta, nil
}
