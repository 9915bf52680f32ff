package copycmd

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
	"github.com/lehigh-university-libraries/cvat2sly/internal/report"
	"github.com/lehigh-university-libraries/cvat2sly/internal/storage"
)

const pointsXML = `<annotations>
  <image id="0" name="a.jpg" width="10" height="8">
    <points label="eye" points="1,2;3,4"/>
  </image>
</annotations>`

func writeArchive(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	zw := zip.NewWriter(f)
	for name, data := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(data)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestExecuteConvertWritesMeta(t *testing.T) {
	dir := t.TempDir()
	archive := filepath.Join(dir, "3_faces_imageset.zip")
	writeArchive(t, archive, map[string]string{
		"annotations.xml": pointsXML,
		"images/a.jpg":    "not decoded, size is declared",
	})

	cfg := config.Default()
	cfg.WorkDir = filepath.Join(dir, "work")
	out := filepath.Join(dir, "out")

	if err := executeConvert(context.Background(), cfg, []string{archive}, out, false); err != nil {
		t.Fatalf("executeConvert failed: %v", err)
	}

	raw, err := os.ReadFile(filepath.Join(out, "meta.json"))
	if err != nil {
		t.Fatalf("Expected meta.json: %v", err)
	}
	var meta struct {
		Classes []struct {
			Title string `json:"title"`
			Shape string `json:"shape"`
		} `json:"classes"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("invalid meta.json: %v", err)
	}
	if len(meta.Classes) != 1 || meta.Classes[0].Title != "eye_point" || meta.Classes[0].Shape != "point" {
		t.Errorf("Unexpected meta: %s", raw)
	}
	if _, err := os.Stat(filepath.Join(out, "3_faces_imageset", "ann", "a.jpg.json")); err != nil {
		t.Errorf("Expected annotation file: %v", err)
	}
}

func TestExecuteConvertReportsFailures(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.WorkDir = filepath.Join(dir, "work")

	err := executeConvert(context.Background(), cfg, []string{filepath.Join(dir, "missing.zip")}, filepath.Join(dir, "out"), false)
	if err == nil {
		t.Error("Expected error for missing archive")
	}
}

type fakeLister struct {
	queries []cvat.Query
}

func (f *fakeLister) List(_ context.Context, q cvat.Query) ([]cvat.Entity, error) {
	f.queries = append(f.queries, q)
	if q.Op == cvat.ListProjects {
		return []cvat.Entity{{ID: 1, Name: "cars"}, {ID: 2, Name: "faces"}}, nil
	}
	return []cvat.Entity{{ID: 10 + q.ProjectID, Name: "t"}}, nil
}

func TestListProjectsWithTasks(t *testing.T) {
	lister := &fakeLister{}
	if err := listProjects(context.Background(), lister, true); err != nil {
		t.Fatalf("listProjects failed: %v", err)
	}
	if len(lister.queries) != 3 {
		t.Errorf("Expected 3 queries, got %d", len(lister.queries))
	}
	if lister.queries[2].Op != cvat.ListTasksForProject || lister.queries[2].ProjectID != 2 {
		t.Errorf("Unexpected last query: %+v", lister.queries[2])
	}
}

func TestWriteReports(t *testing.T) {
	cfg := config.Default()
	cfg.ReportDir = t.TempDir()
	results := []models.ProjectResult{{
		ProjectID: 1, Name: "cars", Status: models.ProjectCopied,
		Tasks: []models.TaskResult{{TaskID: 7, State: models.TaskDone, Items: 3}},
	}}

	if err := writeReports(cfg, "run-1", results); err != nil {
		t.Fatalf("writeReports failed: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(cfg.ReportDir, "run-*.parquet"))
	if len(matches) != 1 {
		t.Fatalf("Expected one parquet report, got %v", matches)
	}
	rows, err := report.LoadTasks(matches[0])
	if err != nil {
		t.Fatalf("LoadTasks failed: %v", err)
	}
	if len(rows) != 1 || rows[0].RunID != "run-1" || rows[0].Items != 3 {
		t.Errorf("Unexpected rows: %+v", rows)
	}
}

func TestPrintResultsListsDestinations(t *testing.T) {
	store := storage.New()
	store.Add(2, "https://sly/projects/9/datasets")
	store.Add(1, "https://sly/projects/8/datasets")

	stdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w
	printResults(nil, report.Summary{}, store)
	w.Close()
	os.Stdout = stdout

	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	first := strings.Index(string(out), "1 -> https://sly/projects/8/datasets")
	second := strings.Index(string(out), "2 -> https://sly/projects/9/datasets")
	if first < 0 || second < first {
		t.Errorf("Expected destinations ordered by source id, got:\n%s", out)
	}
}
