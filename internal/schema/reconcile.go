// Package schema keeps a destination project schema in step with the
// classes and tag metas found during conversion.
package schema

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

// Updater pushes a full project meta to the destination
type Updater interface {
	UpdateMeta(ctx context.Context, projectID int, meta annotation.ProjectMeta) error
}

// Fetcher reads the current project meta from the destination
type Fetcher interface {
	GetMeta(ctx context.Context, projectID int) (annotation.ProjectMeta, error)
}

// Reconcile adds every class and tag meta not yet in meta, pushing the
// updated meta after each single addition so the class exists remotely
// before anything referencing it is uploaded. Classes are compared by name
// and shape, tag metas by name. The returned meta must be passed to the
// next call; meta itself is never modified.
func Reconcile(ctx context.Context, up Updater, projectID int, meta annotation.ProjectMeta, classes []annotation.ObjClass, tags []annotation.TagMeta) (annotation.ProjectMeta, error) {
	for _, class := range classes {
		if meta.HasClass(class) {
			continue
		}
		slog.Debug("Object class not found in project meta, adding", "class", class.Name, "shape", class.Shape)
		next := meta.AddClass(class)
		if err := up.UpdateMeta(ctx, projectID, next); err != nil {
			return meta, fmt.Errorf("failed to add class %s to project %d: %w", class.Name, projectID, err)
		}
		meta = next
	}

	for _, tag := range tags {
		if meta.HasTagMeta(tag) {
			continue
		}
		slog.Debug("Tag meta not found in project meta, adding", "tag", tag.Name)
		next := meta.AddTagMeta(tag)
		if err := up.UpdateMeta(ctx, projectID, next); err != nil {
			return meta, fmt.Errorf("failed to add tag meta %s to project %d: %w", tag.Name, projectID, err)
		}
		meta = next
	}

	return meta, nil
}

// LabelClasses returns the classes of labels in order
func LabelClasses(labels []annotation.Label) []annotation.ObjClass {
	classes := make([]annotation.ObjClass, 0, len(labels))
	for _, l := range labels {
		classes = append(classes, l.Class)
	}
	return classes
}

// TagMetas returns the metas of tags in order
func TagMetas(tags []annotation.Tag) []annotation.TagMeta {
	metas := make([]annotation.TagMeta, 0, len(tags))
	for _, t := range tags {
		metas = append(metas, t.Meta)
	}
	return metas
}

// ResolveTagID returns the server-assigned id of a tag meta. Locally built
// metas never carry ids, so the meta is always fetched again.
func ResolveTagID(ctx context.Context, f Fetcher, projectID int, name string) (int, error) {
	meta, err := f.GetMeta(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch meta of project %d: %w", projectID, err)
	}
	tag, ok := meta.TagMeta(name)
	if !ok {
		return 0, fmt.Errorf("tag meta %s not found in project %d", name, projectID)
	}
	if tag.ID == 0 {
		return 0, fmt.Errorf("tag meta %s in project %d has no id", name, projectID)
	}
	return tag.ID, nil
}
