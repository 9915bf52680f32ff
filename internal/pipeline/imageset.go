package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/images"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/schema"
)

// imageObject is one converted image ready for upload
type imageObject struct {
	Name   string
	Path   string
	Size   annotation.Size
	Labels []annotation.Label
	Tags   []annotation.Tag
}

// convertImages turns every parsed image into an imageObject. Images that
// cannot be sized or are missing on disk are dropped.
func (p *Pipeline) convertImages(task *cvat.Task) ([]imageObject, int) {
	objs := make([]imageObject, 0, len(task.Images))
	dropped := 0
	for i, img := range task.Images {
		filePath := task.Paths[i]
		if _, err := os.Stat(filePath); err != nil {
			slog.Error("Image file not found, skipping", "image", img.Name, "path", filePath)
			dropped++
			continue
		}

		res, err := p.conv.ConvertImage(img, cvat.DataImageSet)
		if err != nil {
			slog.Error("Failed to convert image, skipping", "image", img.Name, "error", err)
			dropped++
			continue
		}
		dropped += res.Dropped

		size := res.Size
		if !res.HasSize {
			size, err = images.Dimensions(filePath)
			if err != nil {
				slog.Error("Failed to read image size, skipping", "image", img.Name, "error", err)
				dropped++
				continue
			}
		}

		objs = append(objs, imageObject{
			Name:   path.Base(img.Name),
			Path:   filePath,
			Size:   size,
			Labels: res.Labels,
			Tags:   res.Tags,
		})
	}
	return objs, dropped
}

func (p *Pipeline) copyImageTask(ctx context.Context, projectID, destID int, meta annotation.ProjectMeta, pt pendingTask, tr *models.TaskResult) (annotation.ProjectMeta, error) {
	task, err := p.unpack(ctx, projectID, pt, tr)
	if err != nil {
		return meta, err
	}

	p.transition(ctx, projectID, tr, models.TaskConverting, "")
	objs, dropped := p.convertImages(task)
	tr.Dropped += dropped
	if len(objs) == 0 {
		return meta, fmt.Errorf("task %d has no usable images", pt.entity.ID)
	}

	p.transition(ctx, projectID, tr, models.TaskSchemaReconciling, "")
	for _, obj := range objs {
		meta, err = schema.Reconcile(ctx, p.dst, destID, meta, schema.LabelClasses(obj.Labels), schema.TagMetas(obj.Tags))
		if err != nil {
			return meta, err
		}
	}

	p.transition(ctx, projectID, tr, models.TaskUploading, "")
	name := DatasetName(pt.archive)
	ds, err := p.dst.CreateDataset(ctx, destID, name)
	if err != nil {
		return meta, err
	}
	slog.Info("Uploading images", "dataset", ds.Name, "images", len(objs), "batch_size", p.cfg.BatchSize)

	tagged := newTagIndex()
	for start := 0; start < len(objs); start += p.cfg.BatchSize {
		end := min(start+p.cfg.BatchSize, len(objs))
		batch := objs[start:end]

		names := make([]string, len(batch))
		paths := make([]string, len(batch))
		anns := make([]annotation.Annotation, len(batch))
		for i, obj := range batch {
			names[i], paths[i] = obj.Name, obj.Path
			anns[i] = annotation.Annotation{Size: obj.Size, Labels: obj.Labels}
		}

		items, err := p.dst.UploadImages(ctx, ds.ID, names, paths)
		if err != nil {
			return meta, err
		}
		if len(items) != len(batch) {
			return meta, fmt.Errorf("uploaded %d images but server returned %d", len(batch), len(items))
		}
		ids := make([]int, len(items))
		for i, item := range items {
			ids[i] = item.ID
			for _, tag := range batch[i].Tags {
				tagged.add(tag.Meta.Name, item.ID)
			}
		}

		if err := p.dst.UploadAnnotations(ctx, ds.ID, ids, anns); err != nil {
			return meta, err
		}
		slog.Debug("Uploaded batch", "dataset", ds.Name, "from", start, "to", end)

		tr.Items += len(batch)
		for _, obj := range batch {
			tr.Labels += len(obj.Labels)
		}
	}

	for _, tagName := range tagged.order {
		tagID, err := schema.ResolveTagID(ctx, p.dst, destID, tagName)
		if err != nil {
			return meta, err
		}
		ids := tagged.images[tagName]
		if err := p.dst.AddTagToImages(ctx, tagID, ids); err != nil {
			return meta, err
		}
		tr.Tags += len(ids)
	}
	return meta, nil
}

// tagIndex groups image ids by tag name in first-seen order
type tagIndex struct {
	order  []string
	images map[string][]int
}

func newTagIndex() *tagIndex {
	return &tagIndex{images: make(map[string][]int)}
}

func (t *tagIndex) add(name string, imageID int) {
	ids, seen := t.images[name]
	if !seen {
		t.order = append(t.order, name)
	}
	for _, id := range ids {
		if id == imageID {
			return
		}
	}
	t.images[name] = append(ids, imageID)
}
