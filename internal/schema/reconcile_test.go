package schema

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

type fakeRemote struct {
	metas   []annotation.ProjectMeta
	failOn  int
	current annotation.ProjectMeta
}

func (f *fakeRemote) UpdateMeta(_ context.Context, _ int, meta annotation.ProjectMeta) error {
	if f.failOn > 0 && len(f.metas)+1 == f.failOn {
		return errors.New("remote unavailable")
	}
	f.metas = append(f.metas, meta)
	f.current = meta
	return nil
}

func (f *fakeRemote) GetMeta(_ context.Context, _ int) (annotation.ProjectMeta, error) {
	return f.current, nil
}

func classNames(m annotation.ProjectMeta) []string {
	var names []string
	for _, c := range m.Classes {
		names = append(names, c.Name+"/"+string(c.Shape))
	}
	return names
}

func TestReconcileAddsOncePerIdentity(t *testing.T) {
	remote := &fakeRemote{}
	classes := []annotation.ObjClass{
		annotation.NewObjClass("car_rectangle", annotation.GeometryRectangle),
		annotation.NewObjClass("car_rectangle", annotation.GeometryRectangle),
		annotation.NewObjClass("car_polygon", annotation.GeometryPolygon),
	}
	tags := []annotation.TagMeta{annotation.NewTagMeta("night"), annotation.NewTagMeta("night")}

	meta, err := Reconcile(context.Background(), remote, 1, annotation.ProjectMeta{}, classes, tags)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}

	want := []string{"car_rectangle/rectangle", "car_polygon/polygon"}
	if diff := cmp.Diff(want, classNames(meta)); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}
	if len(meta.Tags) != 1 {
		t.Errorf("Expected 1 tag meta, got %d", len(meta.Tags))
	}
	// one remote push per new class or tag, each carrying everything before it
	if len(remote.metas) != 3 {
		t.Fatalf("Expected 3 remote updates, got %d", len(remote.metas))
	}
	if len(remote.metas[0].Classes) != 1 || len(remote.metas[1].Classes) != 2 || len(remote.metas[2].Tags) != 1 {
		t.Error("Remote updates were not incremental")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	remote := &fakeRemote{}
	classes := []annotation.ObjClass{annotation.NewObjClass("car_rectangle", annotation.GeometryRectangle)}
	tags := []annotation.TagMeta{annotation.NewTagMeta("night")}

	first, err := Reconcile(context.Background(), remote, 1, annotation.ProjectMeta{}, classes, tags)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	calls := len(remote.metas)

	second, err := Reconcile(context.Background(), remote, 1, first, classes, tags)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(remote.metas) != calls {
		t.Errorf("Expected no remote calls on second pass, got %d", len(remote.metas)-calls)
	}
	if diff := cmp.Diff(classNames(first), classNames(second)); diff != "" {
		t.Errorf("schema changed on second pass (-first +second):\n%s", diff)
	}
	if len(second.Tags) != len(first.Tags) {
		t.Errorf("tag metas changed on second pass")
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	base := annotation.ProjectMeta{}.AddClass(annotation.NewObjClass("a_point", annotation.GeometryPoint))
	_, err := Reconcile(context.Background(), &fakeRemote{}, 1, base,
		[]annotation.ObjClass{annotation.NewObjClass("b_point", annotation.GeometryPoint)}, nil)
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if len(base.Classes) != 1 {
		t.Errorf("Expected caller meta untouched, got %d classes", len(base.Classes))
	}
}

func TestReconcileRemoteFailure(t *testing.T) {
	remote := &fakeRemote{failOn: 2}
	classes := []annotation.ObjClass{
		annotation.NewObjClass("a_point", annotation.GeometryPoint),
		annotation.NewObjClass("b_point", annotation.GeometryPoint),
	}

	meta, err := Reconcile(context.Background(), remote, 1, annotation.ProjectMeta{}, classes, nil)
	if err == nil {
		t.Fatal("Expected error from failing remote")
	}
	if len(meta.Classes) != 1 {
		t.Errorf("Expected meta to hold only the pushed class, got %d", len(meta.Classes))
	}
}

func TestResolveTagID(t *testing.T) {
	remote := &fakeRemote{current: annotation.ProjectMeta{Tags: []annotation.TagMeta{{ID: 42, Name: "night"}, {Name: "local"}}}}

	id, err := ResolveTagID(context.Background(), remote, 1, "night")
	if err != nil {
		t.Fatalf("ResolveTagID failed: %v", err)
	}
	if id != 42 {
		t.Errorf("Expected id 42, got %d", id)
	}
	if _, err := ResolveTagID(context.Background(), remote, 1, "missing"); err == nil {
		t.Error("Expected error for unknown tag")
	}
	if _, err := ResolveTagID(context.Background(), remote, 1, "local"); err == nil {
		t.Error("Expected error for tag without id")
	}
}
