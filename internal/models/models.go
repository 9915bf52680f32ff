package models

import "time"

// TaskState is a step of the per-task pipeline
type TaskState string

const (
	TaskPending           TaskState = "PENDING"
	TaskDownloading       TaskState = "DOWNLOADING"
	TaskDownloaded        TaskState = "DOWNLOADED"
	TaskDownloadFailed    TaskState = "DOWNLOAD_FAILED"
	TaskUnpacking         TaskState = "UNPACKING"
	TaskParsing           TaskState = "PARSING"
	TaskConverting        TaskState = "CONVERTING"
	TaskSchemaReconciling TaskState = "SCHEMA_RECONCILING"
	TaskUploading         TaskState = "UPLOADING"
	TaskDone              TaskState = "DONE"
	TaskUploadFailed      TaskState = "UPLOAD_FAILED"
)

// Terminal reports whether no further transition follows the state
func (s TaskState) Terminal() bool {
	return s == TaskDone || s == TaskDownloadFailed || s == TaskUploadFailed
}

// ProjectStatus is the outcome of copying one source project
type ProjectStatus string

const (
	ProjectCopied ProjectStatus = "COPIED"
	ProjectFailed ProjectStatus = "FAILED"
)

// TaskResult summarizes one source task
type TaskResult struct {
	TaskID   int       `json:"task_id" yaml:"task_id"`
	Name     string    `json:"name" yaml:"name"`
	DataType string    `json:"data_type" yaml:"data_type"`
	State    TaskState `json:"state" yaml:"state"`
	Attempts int       `json:"attempts" yaml:"attempts"`
	Bytes    int64     `json:"bytes" yaml:"bytes"`
	Items    int       `json:"items" yaml:"items"`
	Labels   int       `json:"labels" yaml:"labels"`
	Tags     int       `json:"tags" yaml:"tags"`
	Dropped  int       `json:"dropped" yaml:"dropped"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// ProjectResult summarizes one source project and every destination project made from it
type ProjectResult struct {
	ProjectID int           `json:"project_id" yaml:"project_id"`
	Name      string        `json:"name" yaml:"name"`
	Status    ProjectStatus `json:"status" yaml:"status"`
	URLs      []string      `json:"urls,omitempty" yaml:"urls,omitempty"`
	Tasks     []TaskResult  `json:"tasks,omitempty" yaml:"tasks,omitempty"`
	Error     string        `json:"error,omitempty" yaml:"error,omitempty"`
}

// RunSummary is one recorded run of the copy command
type RunSummary struct {
	ID         string     `json:"id" yaml:"id"`
	StartedAt  time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Copied     int        `json:"copied" yaml:"copied"`
	Failed     int        `json:"failed" yaml:"failed"`
}

// TaskEvent is one recorded task state transition
type TaskEvent struct {
	RunID     string    `json:"run_id" yaml:"run_id"`
	ProjectID int       `json:"project_id" yaml:"project_id"`
	TaskID    int       `json:"task_id" yaml:"task_id"`
	State     TaskState `json:"state" yaml:"state"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}
