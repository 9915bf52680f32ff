package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/cvat2sly/internal/models"
)

// Summary holds aggregate counts of a run
type Summary struct {
	Projects    int `yaml:"projects"`
	Copied      int `yaml:"copied"`
	Failed      int `yaml:"failed"`
	Tasks       int `yaml:"tasks"`
	TasksDone   int `yaml:"tasksdone"`
	TasksFailed int `yaml:"tasksfailed"`
	Labels      int `yaml:"labels"`
	Dropped     int `yaml:"dropped"`
}

// RunConfig is the configuration section of a report
type RunConfig struct {
	RunID       string `yaml:"runid"`
	CVATServer  string `yaml:"cvatserver"`
	SlyServer   string `yaml:"slyserver"`
	WorkspaceID int    `yaml:"workspaceid"`
	Timestamp   string `yaml:"timestamp"`
}

// Report is the complete record of one copy run
type Report struct {
	Config   RunConfig              `yaml:"config"`
	Summary  Summary                `yaml:"summary"`
	Projects []models.ProjectResult `yaml:"projects"`
}

// Summarize counts project and task outcomes
func Summarize(projects []models.ProjectResult) Summary {
	var s Summary
	s.Projects = len(projects)
	for _, p := range projects {
		switch p.Status {
		case models.ProjectCopied:
			s.Copied++
		case models.ProjectFailed:
			s.Failed++
		}
		for _, t := range p.Tasks {
			s.Tasks++
			s.Labels += t.Labels
			s.Dropped += t.Dropped
			switch t.State {
			case models.TaskDone:
				s.TasksDone++
			case models.TaskDownloadFailed, models.TaskUploadFailed:
				s.TasksFailed++
			}
		}
	}
	return s
}

// New builds a report for the given run
func New(cfg RunConfig, projects []models.ProjectResult) Report {
	if cfg.Timestamp == "" {
		cfg.Timestamp = time.Now().Format("2006-01-02_15-04-05")
	}
	return Report{Config: cfg, Summary: Summarize(projects), Projects: projects}
}

// SaveYAML writes the report into dir and returns the file path
func SaveYAML(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports directory: %w", err)
	}

	data, err := yaml.Marshal(&r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("run-%s.yaml", r.Config.Timestamp))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return path, nil
}

// LoadYAML reads a report written by SaveYAML
func LoadYAML(path string) (Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Report{}, fmt.Errorf("failed to read report: %w", err)
	}
	var r Report
	if err := yaml.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("failed to parse report: %w", err)
	}
	return r, nil
}
