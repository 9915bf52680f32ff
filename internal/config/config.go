package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lehigh-university-libraries/cvat2sly/internal/cvat"
)

const (
	DefaultMaxDownloadRetries = 10
	DefaultBatchSize          = 50
	DefaultWorkDir            = "cvat2sly-work"
	DefaultMQTTTopic          = "cvat2sly"
)

// CVAT holds source server credentials
type CVAT struct {
	Server   string `yaml:"server"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// Supervisely holds destination server settings
type Supervisely struct {
	Server      string `yaml:"server"`
	Token       string `yaml:"token"`
	WorkspaceID int    `yaml:"workspaceid"`
}

// Config is the complete tool configuration
type Config struct {
	CVAT        CVAT        `yaml:"cvat"`
	Supervisely Supervisely `yaml:"supervisely"`

	// ProjectIDs selects source projects; empty means all
	ProjectIDs []int `yaml:"projects"`

	WorkDir    string `yaml:"workdir"`
	ReportDir  string `yaml:"reportdir"`
	LedgerPath string `yaml:"ledger"`
	// Dev keeps downloaded and unpacked files after the run
	Dev bool `yaml:"dev"`

	MaxDownloadRetries int           `yaml:"maxdownloadretries"`
	RetryDelay         time.Duration `yaml:"retrydelay"`
	BatchSize          int           `yaml:"batchsize"`
	IncludeCuboids     bool          `yaml:"includecuboids"`

	FFmpegPath string `yaml:"ffmpeg"`
	VideoCodec string `yaml:"videocodec"`

	MQTTBroker string `yaml:"mqttbroker"`
	MQTTTopic  string `yaml:"mqtttopic"`
}

// Default returns a config with every default applied
func Default() Config {
	return Config{
		WorkDir:            DefaultWorkDir,
		ReportDir:          "reports",
		LedgerPath:         filepath.Join(DefaultWorkDir, "ledger.db"),
		MaxDownloadRetries: DefaultMaxDownloadRetries,
		RetryDelay:         2 * time.Second,
		BatchSize:          DefaultBatchSize,
		FFmpegPath:         "ffmpeg",
		MQTTTopic:          DefaultMQTTTopic,
	}
}

// Load reads the optional YAML file at path, then applies environment overrides
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for key, dst := range map[string]*string{
		"CVAT_SERVER_ADDRESS": &c.CVAT.Server,
		"CVAT_USERNAME":       &c.CVAT.Username,
		"CVAT_PASSWORD":       &c.CVAT.Password,
		"SERVER_ADDRESS":      &c.Supervisely.Server,
		"API_TOKEN":           &c.Supervisely.Token,
		"CVAT2SLY_WORKDIR":    &c.WorkDir,
		"CVAT2SLY_LEDGER":     &c.LedgerPath,
		"CVAT2SLY_REPORTDIR":  &c.ReportDir,
		"FFMPEG_PATH":         &c.FFmpegPath,
		"MQTT_BROKER":         &c.MQTTBroker,
		"MQTT_TOPIC":          &c.MQTTTopic,
	} {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	if v, ok := lookup("WORKSPACE_ID"); ok && v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WORKSPACE_ID %q: %w", v, err)
		}
		c.Supervisely.WorkspaceID = id
	}
	if v, ok := lookup("CVAT2SLY_DEV"); ok && v != "" {
		dev, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid CVAT2SLY_DEV %q: %w", v, err)
		}
		c.Dev = dev
	}
	if v, ok := lookup("CVAT2SLY_PROJECTS"); ok && v != "" {
		ids, err := ParseIDs(v)
		if err != nil {
			return fmt.Errorf("invalid CVAT2SLY_PROJECTS: %w", err)
		}
		c.ProjectIDs = ids
	}
	return nil
}

// ParseIDs parses a comma-separated list of ids
func ParseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ValidateSource checks what is needed to talk to CVAT
func (c Config) ValidateSource() error {
	var errs []error
	if c.CVAT.Server == "" {
		errs = append(errs, errors.New("CVAT server address is required"))
	}
	if c.CVAT.Username == "" || c.CVAT.Password == "" {
		errs = append(errs, errors.New("CVAT username and password are required"))
	}
	return errors.Join(errs...)
}

// Validate checks everything the copy command needs
func (c Config) Validate() error {
	errs := []error{c.ValidateSource()}
	if c.Supervisely.Server == "" || c.Supervisely.Token == "" {
		errs = append(errs, errors.New("Supervisely server address and API token are required"))
	}
	if c.Supervisely.WorkspaceID <= 0 {
		errs = append(errs, errors.New("Supervisely workspace id is required"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch size must be positive, got %d", c.BatchSize))
	}
	if c.MaxDownloadRetries < 0 {
		errs = append(errs, fmt.Errorf("max download retries must not be negative, got %d", c.MaxDownloadRetries))
	}
	return errors.Join(errs...)
}

// ArchiveDir is where task archives are downloaded
func (c Config) ArchiveDir() string { return filepath.Join(c.WorkDir, "archives") }

// UnpackedDir is where task archives are extracted
func (c Config) UnpackedDir() string { return filepath.Join(c.WorkDir, "unpacked") }

// RunState is the explicit state of one copy run, passed to the pipeline
type RunState struct {
	RunID       string
	WorkspaceID int
	Projects    []cvat.Entity
}

// SelectProjects keeps the projects whose ids are listed; an empty list keeps all
func SelectProjects(all []cvat.Entity, ids []int) ([]cvat.Entity, error) {
	if len(ids) == 0 {
		return all, nil
	}
	byID := make(map[int]cvat.Entity, len(all))
	for _, p := range all {
		byID[p.ID] = p
	}
	selected := make([]cvat.Entity, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("project %d not found on CVAT server", id)
		}
		selected = append(selected, p)
	}
	return selected, nil
}
