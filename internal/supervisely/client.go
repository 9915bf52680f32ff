package supervisely

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lehigh-university-libraries/cvat2sly/internal/annotation"
)

// ProjectType is the media kind of a destination project
type ProjectType string

const (
	ProjectImages ProjectType = "images"
	ProjectVideos ProjectType = "videos"
)

// Project is a created destination project
type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"-"`
}

// Dataset is a created dataset
type Dataset struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Item is an uploaded image or video
type Item struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client talks to the Supervisely public API
type Client struct {
	BaseURL    string
	Token      string
	httpClient *http.Client
}

// NewClient creates a new Supervisely client
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
	}
}

// ProjectURL returns the web location of a project
func (c *Client) ProjectURL(projectID int) string {
	return fmt.Sprintf("%s/projects/%d/datasets", c.BaseURL, projectID)
}

// CreateProject creates a project, letting the server rename it on conflict
func (c *Client) CreateProject(ctx context.Context, workspaceID int, name string, kind ProjectType) (Project, error) {
	var p Project
	err := c.post(ctx, "projects.add", map[string]any{
		"workspaceId":          workspaceID,
		"name":                 name,
		"type":                 kind,
		"changeNameIfConflict": true,
	}, &p)
	if err != nil {
		return Project{}, fmt.Errorf("failed to create project %s: %w", name, err)
	}
	p.URL = c.ProjectURL(p.ID)
	slog.Debug("Created project", "name", p.Name, "id", p.ID, "type", kind)
	return p, nil
}

// GetMeta fetches the project meta, including server-assigned tag ids
func (c *Client) GetMeta(ctx context.Context, projectID int) (annotation.ProjectMeta, error) {
	var meta annotation.ProjectMeta
	if err := c.post(ctx, "projects.meta", map[string]any{"id": projectID}, &meta); err != nil {
		return annotation.ProjectMeta{}, fmt.Errorf("failed to get meta of project %d: %w", projectID, err)
	}
	return meta, nil
}

// UpdateMeta replaces the project meta
func (c *Client) UpdateMeta(ctx context.Context, projectID int, meta annotation.ProjectMeta) error {
	if err := c.post(ctx, "projects.meta.update", map[string]any{"id": projectID, "meta": meta}, nil); err != nil {
		return fmt.Errorf("failed to update meta of project %d: %w", projectID, err)
	}
	return nil
}

// CreateDataset creates a dataset, letting the server rename it on conflict
func (c *Client) CreateDataset(ctx context.Context, projectID int, name string) (Dataset, error) {
	var ds Dataset
	err := c.post(ctx, "datasets.add", map[string]any{
		"projectId":            projectID,
		"name":                 name,
		"changeNameIfConflict": true,
	}, &ds)
	if err != nil {
		return Dataset{}, fmt.Errorf("failed to create dataset %s: %w", name, err)
	}
	return ds, nil
}

// UploadImages uploads image files and registers them in the dataset.
// The returned items are in the order of names.
func (c *Client) UploadImages(ctx context.Context, datasetID int, names, paths []string) ([]Item, error) {
	if len(names) != len(paths) {
		return nil, fmt.Errorf("got %d names for %d paths", len(names), len(paths))
	}
	hashes, err := c.uploadFiles(ctx, "images.bulk.upload", paths)
	if err != nil {
		return nil, err
	}

	entries := make([]map[string]string, len(names))
	for i := range names {
		entries[i] = map[string]string{"name": names[i], "hash": hashes[i]}
	}
	var items []Item
	if err := c.post(ctx, "images.bulk.add", map[string]any{"datasetId": datasetID, "images": entries}, &items); err != nil {
		return nil, fmt.Errorf("failed to add images to dataset %d: %w", datasetID, err)
	}
	return items, nil
}

// UploadAnnotations attaches one annotation to each image id
func (c *Client) UploadAnnotations(ctx context.Context, datasetID int, imageIDs []int, anns []annotation.Annotation) error {
	if len(imageIDs) != len(anns) {
		return fmt.Errorf("got %d annotations for %d images", len(anns), len(imageIDs))
	}
	entries := make([]map[string]any, len(anns))
	for i := range anns {
		entries[i] = map[string]any{"imageId": imageIDs[i], "annotation": anns[i]}
	}
	if err := c.post(ctx, "annotations.bulk.add", map[string]any{"datasetId": datasetID, "annotations": entries}, nil); err != nil {
		return fmt.Errorf("failed to upload annotations: %w", err)
	}
	return nil
}

// AddTagToImages assigns the tag meta to every image id
func (c *Client) AddTagToImages(ctx context.Context, tagID int, imageIDs []int) error {
	if err := c.post(ctx, "image-tags.bulk.add-to-image", map[string]any{"tagId": tagID, "ids": imageIDs}, nil); err != nil {
		return fmt.Errorf("failed to add tag %d to images: %w", tagID, err)
	}
	return nil
}

// UploadVideo uploads a video file and registers it in the dataset
func (c *Client) UploadVideo(ctx context.Context, datasetID int, name, path string) (Item, error) {
	hashes, err := c.uploadFiles(ctx, "videos.bulk.upload", []string{path})
	if err != nil {
		return Item{}, err
	}
	var items []Item
	err = c.post(ctx, "videos.bulk.add", map[string]any{
		"datasetId": datasetID,
		"videos":    []map[string]string{{"name": name, "hash": hashes[0]}},
	}, &items)
	if err != nil {
		return Item{}, fmt.Errorf("failed to add video to dataset %d: %w", datasetID, err)
	}
	if len(items) != 1 {
		return Item{}, fmt.Errorf("expected 1 uploaded video, got %d", len(items))
	}
	return items[0], nil
}

// UploadVideoAnnotation appends objects, frames and tags to a video
func (c *Client) UploadVideoAnnotation(ctx context.Context, videoID int, ann annotation.VideoAnnotation) error {
	if err := c.post(ctx, "videos.annotations.append", map[string]any{"videoId": videoID, "annotation": ann}, nil); err != nil {
		return fmt.Errorf("failed to upload annotation of video %d: %w", videoID, err)
	}
	return nil
}

func (c *Client) endpoint(method string) string {
	return c.BaseURL + "/public/api/v3/" + method
}

func (c *Client) post(ctx context.Context, method string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, method, out)
}

func (c *Client) do(req *http.Request, method string, out any) error {
	req.Header.Set("x-api-key", c.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s returned status %d: %s", method, resp.StatusCode, string(body))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return nil
}

// uploadFiles streams files as a multipart body keyed by content hash
func (c *Client) uploadFiles(ctx context.Context, method string, paths []string) ([]string, error) {
	hashes := make([]string, len(paths))
	for i, p := range paths {
		h, err := fileHash(p)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeParts(mw, hashes, paths))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.do(req, method, nil); err != nil {
		pr.Close()
		return nil, fmt.Errorf("failed to upload files: %w", err)
	}
	return hashes, nil
}

func writeParts(mw *multipart.Writer, hashes, paths []string) error {
	for i, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", p, err)
		}
		part, err := mw.CreateFormFile(hashes[i], filepath.Base(p))
		if err == nil {
			_, err = io.Copy(part, f)
		}
		f.Close()
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", p, err)
		}
	}
	return mw.Close()
}

func fileHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
