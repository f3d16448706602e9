package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	UploadDir string `toml:"upload_dir"`
	WorkDir   string `toml:"work_dir"`
	LogDir    string `toml:"log_dir"`
}

// Store contains configuration for the job record store.
type Store struct {
	Path                 string `toml:"path"`
	RetentionDays        int    `toml:"retention_days"`
	SweepIntervalSeconds int    `toml:"sweep_interval_seconds"`
}

// Queue contains work queue concurrency and retry configuration.
type Queue struct {
	TranscodeConcurrency int `toml:"transcode_concurrency"`
	UploadConcurrency    int `toml:"upload_concurrency"`
	UploadFanout         int `toml:"upload_fanout"`
	MaxAttempts          int `toml:"max_attempts"`
}

// Transcode contains configuration for the ffmpeg collaborator.
type Transcode struct {
	FFmpegBinary  string   `toml:"ffmpeg_binary"`
	FFprobeBinary string   `toml:"ffprobe_binary"`
	Preset        string   `toml:"preset"`
	CRF           int      `toml:"crf"`
	SegmentTime   int      `toml:"segment_time"`
	AllowedTypes  []string `toml:"allowed_types"`
}

// Storage contains configuration for the object storage backend.
type Storage struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
}

// Notify contains configuration for the outbound status callback.
type Notify struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Recovery contains configuration for the stale upload reconciler.
type Recovery struct {
	StaleThresholdMinutes int `toml:"stale_threshold_minutes"`
	SweepIntervalMinutes  int `toml:"sweep_interval_minutes"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the root application configuration.
type Config struct {
	Paths     Paths     `toml:"paths"`
	Store     Store     `toml:"store"`
	Queue     Queue     `toml:"queue"`
	Transcode Transcode `toml:"transcode"`
	Storage   Storage   `toml:"storage"`
	Notify    Notify    `toml:"notify"`
	Recovery  Recovery  `toml:"recovery"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the expected location of the user config file.
func DefaultConfigPath() string {
	return expandPath("~/.config/slipstream/config.toml")
}

// SampleConfig returns the embedded sample configuration text.
func SampleConfig() string {
	return sampleConfig
}

// Load reads configuration from path (or the default location when path is
// empty), layering file values over defaults. A missing file is not an error;
// defaults apply. The returned bool reports whether a file was loaded.
func Load(path string) (*Config, bool, error) {
	cfg := Default()

	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	} else {
		resolved = expandPath(resolved)
	}

	loaded := false
	data, err := os.ReadFile(resolved)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, false, fmt.Errorf("parse config %s: %w", resolved, err)
		}
		loaded = true
	case errors.Is(err, fs.ErrNotExist):
		// defaults only
	default:
		return nil, false, fmt.Errorf("read config %s: %w", resolved, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, loaded, err
	}
	return &cfg, loaded, nil
}

func (c *Config) normalize() {
	c.Paths.UploadDir = expandPath(c.Paths.UploadDir)
	c.Paths.WorkDir = expandPath(c.Paths.WorkDir)
	c.Paths.LogDir = expandPath(c.Paths.LogDir)
	c.Store.Path = expandPath(c.Store.Path)
	if c.Store.Path == "" && c.Paths.LogDir != "" {
		c.Store.Path = filepath.Join(c.Paths.LogDir, "jobs.db")
	}
}

// EnsureDirectories creates the configured working directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.UploadDir, c.Paths.WorkDir, c.Paths.LogDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// LockPath returns the daemon single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "slipstream.lock")
}

func expandPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return ""
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			if trimmed == "~" {
				return home
			}
			return filepath.Join(home, trimmed[2:])
		}
	}
	return trimmed
}
