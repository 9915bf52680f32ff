package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
	"github.com/lehigh-university-libraries/cvat2sly/internal/config"
	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

func TestExportImageTask(t *testing.T) {
	cfg := testConfig(t)
	archive := filepath.Join(t.TempDir(), "7_street_imageset.zip")
	data := makeArchive(t, map[string][]byte{
		"annotations.xml": []byte(boxAndTagXML),
		"images/a.png":    pngBytes(t),
	})
	if err := os.WriteFile(archive, data, 0644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()

	p := New(cfg, config.RunState{}, nil, nil)
	meta, tr, err := p.ExportTask(context.Background(), archive, cvat.DataImageSet, out, annotation.ProjectMeta{})
	if err != nil {
		t.Fatalf("ExportTask failed: %v", err)
	}
	if tr.Items != 1 || tr.Labels != 1 || tr.Tags != 1 {
		t.Errorf("Unexpected task result: %+v", tr)
	}
	if len(meta.Classes) != 1 || len(meta.Tags) != 1 {
		t.Errorf("Expected one class and one tag meta, got %d/%d", len(meta.Classes), len(meta.Tags))
	}

	if _, err := os.Stat(filepath.Join(out, "7_street_imageset", "img", "a.png")); err != nil {
		t.Errorf("Expected copied image: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(out, "7_street_imageset", "ann", "a.png.json"))
	if err != nil {
		t.Fatalf("Expected annotation file: %v", err)
	}
	var ann struct {
		Size    map[string]int   `json:"size"`
		Objects []map[string]any `json:"objects"`
		Tags    []map[string]any `json:"tags"`
	}
	if err := json.Unmarshal(raw, &ann); err != nil {
		t.Fatalf("invalid annotation JSON: %v", err)
	}
	if ann.Size["height"] != 4 || len(ann.Objects) != 1 || len(ann.Tags) != 1 {
		t.Errorf("Unexpected annotation: %s", raw)
	}
}

func TestExportVideoTask(t *testing.T) {
	cfg := testConfig(t)
	archive := filepath.Join(t.TempDir(), "8_drive_video.zip")
	data := makeArchive(t, map[string][]byte{
		"annotations.xml":         []byte(videoXML),
		"images/frame_000000.png": pngBytes(t),
		"images/frame_000001.png": pngBytes(t),
	})
	if err := os.WriteFile(archive, data, 0644); err != nil {
		t.Fatal(err)
	}
	out := t.TempDir()
	enc := &fakeEncoder{}

	p := New(cfg, config.RunState{}, nil, nil, WithEncoder(enc))
	meta, tr, err := p.ExportTask(context.Background(), archive, cvat.DataVideo, out, annotation.ProjectMeta{})
	if err != nil {
		t.Fatalf("ExportTask failed: %v", err)
	}
	if tr.Items != 1 || tr.Labels != 3 {
		t.Errorf("Unexpected task result: %+v", tr)
	}
	if len(meta.Classes) != 2 {
		t.Errorf("Expected two classes, got %d", len(meta.Classes))
	}
	for _, p := range []string{"video/clip.mp4", "ann/clip.mp4.json"} {
		if _, err := os.Stat(filepath.Join(out, "8_drive_video", p)); err != nil {
			t.Errorf("Expected %s: %v", p, err)
		}
	}
}
