package report

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
)

// TaskRow is one task of a run, flattened for columnar analysis
type TaskRow struct {
	RunID       string `parquet:"run_id"`
	ProjectID   int    `parquet:"project_id"`
	ProjectName string `parquet:"project_name"`
	TaskID      int    `parquet:"task_id"`
	TaskName    string `parquet:"task_name"`
	DataType    string `parquet:"data_type"`
	State       string `parquet:"state"`
	Attempts    int    `parquet:"attempts"`
	Bytes       int64  `parquet:"bytes"`
	Items       int    `parquet:"items"`
	Labels      int    `parquet:"labels"`
	Tags        int    `parquet:"tags"`
	Dropped     int    `parquet:"dropped"`
	Error       string `parquet:"error"`
}

// TaskRows flattens the tasks of every project
func TaskRows(runID string, projects []models.ProjectResult) []TaskRow {
	var rows []TaskRow
	for _, p := range projects {
		for _, t := range p.Tasks {
			rows = append(rows, TaskRow{
				RunID:       runID,
				ProjectID:   p.ProjectID,
				ProjectName: p.Name,
				TaskID:      t.TaskID,
				TaskName:    t.Name,
				DataType:    t.DataType,
				State:       string(t.State),
				Attempts:    t.Attempts,
				Bytes:       t.Bytes,
				Items:       t.Items,
				Labels:      t.Labels,
				Tags:        t.Tags,
				Dropped:     t.Dropped,
				Error:       t.Error,
			})
		}
	}
	return rows
}

// WriteTasks writes task rows to a Parquet file
func WriteTasks(path string, rows []TaskRow) error {
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("failed to write parquet file: %w", err)
	}
	return nil
}

// LoadTasks reads task rows from a Parquet file
func LoadTasks(path string) ([]TaskRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}
	slog.Debug("Parquet file opened", "path", path, "num_rows", pf.NumRows())

	reader := parquet.NewGenericReader[TaskRow](pf)
	defer reader.Close()

	var out []TaskRow
	batch := make([]TaskRow, 128)
	for {
		n, err := reader.Read(batch)
		out = append(out, batch[:n]...)
		if err != nil {
			break
		}
	}
	return out, nil
}
