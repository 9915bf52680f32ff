package cvat

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNoImages is returned when an unpacked task has no images directory content
var ErrNoImages = errors.New("no images found in task archive")

const (
	annotationsFile = "annotations.xml"
	imagesDir       = "images"
)

// Task is the parsed content of one unpacked task archive
type Task struct {
	Dir string
	// Images and Paths are parallel; Paths[i] is the local file of Images[i]
	Images []Image
	Paths  []string
	// Source is the original media name from meta/task/source, if any
	Source string
	// Annotated is false when the archive had no annotations.xml
	Annotated bool
}

// Unpack extracts a zip archive into dest, dropping OS junk entries
func Unpack(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create unpack directory: %w", err)
	}
	root, err := filepath.Abs(dest)
	if err != nil {
		return fmt.Errorf("failed to resolve unpack directory: %w", err)
	}

	for _, f := range r.File {
		if isJunk(f.Name) {
			continue
		}
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

func isJunk(name string) bool {
	for _, part := range strings.Split(name, "/") {
		if part == "__MACOSX" || part == ".DS_Store" {
			return true
		}
	}
	return false
}

// ReadTask reads an unpacked task directory. A missing annotations.xml is not
// an error: every file under images/ is returned as an unlabeled image.
func ReadTask(dir string) (*Task, error) {
	imgDir := filepath.Join(dir, imagesDir)
	files, err := listFiles(imgDir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", imgDir, ErrNoImages)
	}
	slog.Debug("Found images in task", "dir", imgDir, "count", len(files))

	task := &Task{Dir: dir}
	xmlPath := filepath.Join(dir, annotationsFile)
	if _, err := os.Stat(xmlPath); errors.Is(err, os.ErrNotExist) {
		slog.Warn("Can't find annotations.xml, images will be uploaded without labels", "dir", dir)
		for _, rel := range files {
			task.Images = append(task.Images, Image{Name: rel})
			task.Paths = append(task.Paths, filepath.Join(imgDir, filepath.FromSlash(rel)))
		}
		return task, nil
	}

	doc, err := ParseAnnotationsFile(xmlPath)
	if err != nil {
		return nil, err
	}
	task.Annotated = true
	task.Source = strings.TrimSpace(doc.Source)
	task.Images = doc.Images
	for _, img := range doc.Images {
		task.Paths = append(task.Paths, filepath.Join(imgDir, filepath.FromSlash(img.Name)))
	}
	return task, nil
}

// listFiles returns the slash-separated paths of all regular files under dir, sorted
func listFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoImages)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	sort.Strings(files)
	return files, nil
}
