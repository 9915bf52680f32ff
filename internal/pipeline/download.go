package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

// ErrEmptyArchive is returned when every download attempt produced zero bytes
var ErrEmptyArchive = errors.New("downloaded archive is empty")

// Downloader streams a task export archive
type Downloader interface {
	DownloadDataset(ctx context.Context, taskID int, w io.Writer) (int64, error)
}

// RetryPolicy bounds archive downloads. Only zero-byte archives are retried.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// Download is the outcome of DownloadArchive
type Download struct {
	Path     string
	Attempts int
	Bytes    int64
}

// ArchiveName returns the file name of a task archive: {taskID}_{taskName}_{kind}.zip
func ArchiveName(task cvat.Entity) string {
	name := strings.NewReplacer("/", "_", "\\", "_").Replace(task.Name)
	return strconv.Itoa(task.ID) + "_" + name + "_" + string(task.DataType()) + ".zip"
}

// DatasetName returns the archive file name without its extension
func DatasetName(archivePath string) string {
	base := filepath.Base(archivePath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DownloadArchive downloads the export of a task into dir. It makes one
// attempt plus at most policy.MaxRetries retries, and retries only when the
// archive came back empty. Transport and status errors are returned at once.
func DownloadArchive(ctx context.Context, src Downloader, task cvat.Entity, dir string, policy RetryPolicy) (Download, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return Download{}, fmt.Errorf("failed to create archive directory: %w", err)
	}
	destPath := filepath.Join(dir, ArchiveName(task))
	dl := Download{Path: destPath}

	for dl.Attempts <= policy.MaxRetries {
		if dl.Attempts > 0 {
			slog.Warn("Archive is empty, retrying", "task_id", task.ID, "attempt", dl.Attempts, "max_retries", policy.MaxRetries)
			if policy.Delay > 0 {
				select {
				case <-ctx.Done():
					return dl, ctx.Err()
				case <-time.After(policy.Delay):
				}
			}
		}
		dl.Attempts++

		n, err := downloadOnce(ctx, src, task.ID, destPath)
		if err != nil {
			return dl, err
		}
		if n > 0 {
			dl.Bytes = n
			slog.Info("Downloaded task archive", "task_id", task.ID, "path", destPath, "bytes", n, "attempts", dl.Attempts)
			return dl, nil
		}
	}

	return dl, fmt.Errorf("task %d after %d attempts: %w", task.ID, dl.Attempts, ErrEmptyArchive)
}

// downloadOnce writes into a temporary file and moves it into place only when
// it holds data
func downloadOnce(ctx context.Context, src Downloader, taskID int, destPath string) (int64, error) {
	tempPath := destPath + ".tmp"
	out, err := os.Create(tempPath)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	n, err := src.DownloadDataset(ctx, taskID, out)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil || n == 0 {
		os.Remove(tempPath)
		if err != nil {
			return 0, fmt.Errorf("download failed: %w", err)
		}
		return 0, nil
	}

	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return 0, fmt.Errorf("failed to move file: %w", err)
	}
	return n, nil
}
