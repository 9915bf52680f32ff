package cvat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DataType is the media kind of a task
type DataType string

const (
	DataImageSet DataType = "imageset"
	DataVideo    DataType = "video"
)

// DatasetFormat is the export format requested for task archives
const DatasetFormat = "CVAT for images 1.1"

// Operation selects what a List call returns
type Operation int

const (
	ListProjects Operation = iota
	ListTasksForProject
)

func (o Operation) String() string {
	switch o {
	case ListProjects:
		return "list-projects"
	case ListTasksForProject:
		return "list-tasks-for-project"
	default:
		return "unknown"
	}
}

// Query is a typed listing request
type Query struct {
	Op        Operation
	ProjectID int
}

// Entity is a project or task as listed by the server
type Entity struct {
	Kind   string `json:"-"`
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
	Mode   string `json:"mode,omitempty"`
	Size   int    `json:"size,omitempty"`
	URL    string `json:"url"`
	Owner  struct {
		Username string `json:"username"`
	} `json:"owner"`
}

// DataType reports the task media kind. Interpolation-mode tasks were created
// from a video; everything else is an image set.
func (e Entity) DataType() DataType {
	if e.Mode == "interpolation" {
		return DataVideo
	}
	return DataImageSet
}

// Lister lists source entities
type Lister interface {
	List(ctx context.Context, q Query) ([]Entity, error)
}

// Client is a minimal CVAT REST client
type Client struct {
	BaseURL    string
	Username   string
	Password   string
	httpClient *http.Client
}

// NewClient creates a new CVAT client
func NewClient(baseURL, username, password string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Username: username,
		Password: password,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// CheckConnection calls the server about endpoint and returns the server version
func (c *Client) CheckConnection(ctx context.Context) (string, error) {
	slog.Debug("Checking CVAT connection", "server", c.BaseURL)
	var about struct {
		Version string `json:"version"`
	}
	if err := c.getJSON(ctx, c.BaseURL+"/api/server/about", &about); err != nil {
		return "", fmt.Errorf("failed to connect to CVAT: %w", err)
	}
	slog.Info("Connected to CVAT", "version", about.Version)
	return about.Version, nil
}

// List returns all entities for the query, following pagination
func (c *Client) List(ctx context.Context, q Query) ([]Entity, error) {
	var (
		next string
		kind string
	)
	switch q.Op {
	case ListProjects:
		next = c.BaseURL + "/api/projects?page_size=100"
		kind = "project"
	case ListTasksForProject:
		next = fmt.Sprintf("%s/api/tasks?project_id=%d&page_size=100", c.BaseURL, q.ProjectID)
		kind = "task"
	default:
		return nil, fmt.Errorf("unsupported operation: %d", q.Op)
	}

	slog.Debug("Listing CVAT entities", "operation", q.Op, "project_id", q.ProjectID)

	var entities []Entity
	for next != "" {
		var page struct {
			Count   int      `json:"count"`
			Next    *string  `json:"next"`
			Results []Entity `json:"results"`
		}
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("failed to %s: %w", q.Op, err)
		}
		for _, e := range page.Results {
			e.Kind = kind
			entities = append(entities, e)
		}
		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return entities, nil
}

// DownloadDataset streams the task export archive into w and returns the number
// of bytes written. The server answers 202 while it is still preparing the
// export; that is reported as zero bytes so callers can retry.
func (c *Client) DownloadDataset(ctx context.Context, taskID int, w io.Writer) (int64, error) {
	q := url.Values{}
	q.Set("format", DatasetFormat)
	q.Set("action", "download")
	u := c.BaseURL + "/api/tasks/" + strconv.Itoa(taskID) + "/dataset?" + q.Encode()

	resp, err := c.do(ctx, u)
	if err != nil {
		return 0, fmt.Errorf("failed to download task %d: %w", taskID, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusAccepted, http.StatusCreated:
		slog.Debug("Export is not ready yet", "task_id", taskID, "status", resp.StatusCode)
		return 0, nil
	default:
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("CVAT API returned status %d: %s", resp.StatusCode, string(body))
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("failed to read archive of task %d: %w", taskID, err)
	}
	return n, nil
}

func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.Username, c.Password)
	req.Header.Set("Accept", "application/json")
	return c.httpClient.Do(req)
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	resp, err := c.do(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("CVAT API returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
