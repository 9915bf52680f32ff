package report

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
)

func sampleProjects() []models.ProjectResult {
	return []models.ProjectResult{
		{
			ProjectID: 1,
			Name:      "cars",
			Status:    models.ProjectCopied,
			URLs:      []string{"https://sly/projects/5/datasets", "https://sly/projects/6/datasets"},
			Tasks: []models.TaskResult{
				{TaskID: 10, Name: "photos", DataType: "imageset", State: models.TaskDone, Items: 3, Labels: 7, Dropped: 1},
				{TaskID: 11, Name: "clip", DataType: "video", State: models.TaskDone, Items: 30, Labels: 12},
			},
		},
		{
			ProjectID: 2,
			Name:      "empty",
			Status:    models.ProjectFailed,
			Error:     "no task was downloaded",
			Tasks: []models.TaskResult{
				{TaskID: 20, Name: "gone", DataType: "imageset", State: models.TaskDownloadFailed, Attempts: 11},
			},
		},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleProjects())
	assert.Equal(t, Summary{
		Projects:    2,
		Copied:      1,
		Failed:      1,
		Tasks:       3,
		TasksDone:   2,
		TasksFailed: 1,
		Labels:      19,
		Dropped:     1,
	}, s)
}

func TestSaveYAML(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	r := New(RunConfig{RunID: "run-1", WorkspaceID: 4, Timestamp: "2026-01-02_03-04-05"}, sampleProjects())

	path, err := SaveYAML(dir, r)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run-2026-01-02_03-04-05.yaml"), path)

	loaded, err := LoadYAML(path)
	require.NoError(t, err)
	assert.Equal(t, r.Summary, loaded.Summary)
	require.Len(t, loaded.Projects, 2)
	assert.Len(t, loaded.Projects[0].URLs, 2)
	assert.Equal(t, "no task was downloaded", loaded.Projects[1].Error)
}

func TestTaskParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.parquet")
	rows := TaskRows("run-1", sampleProjects())
	require.Len(t, rows, 3)
	assert.Equal(t, "cars", rows[1].ProjectName)

	require.NoError(t, WriteTasks(path, rows))

	loaded, err := LoadTasks(path)
	require.NoError(t, err)
	require.Len(t, loaded, 3)
	assert.Equal(t, "DOWNLOAD_FAILED", loaded[2].State)
	assert.Equal(t, 11, loaded[2].Attempts)
	assert.Equal(t, 30, loaded[1].Items)
}
