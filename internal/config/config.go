package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/TheerasakPing/thai-video-downloader/internal/models"
)

// Defaults chosen to be conservative; all of them can be overridden from the
// config file.
const (
	DefaultMaxConcurrent    = 2
	DefaultSegmentWorkers   = 4
	DefaultSegmentRetries   = 5
	DefaultBackoffBase      = 500 * time.Millisecond
	DefaultFetchTimeout     = 30 * time.Second
	DefaultResolveTimeout   = 45 * time.Second
	DefaultQuietPeriod      = 5 * time.Second
	DefaultEventInterval    = 250 * time.Millisecond
	DefaultHistoryLimit     = 100
	DefaultListenAddr       = ":8080"
	DefaultLogLevel         = "info"
	DefaultUserAgent        = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	MaxConcurrentUpperBound = 5
)

// Config holds the fully processed application configuration.
type Config struct {
	ListenAddr  string `json:"listenAddr"`
	LogLevel    string `json:"logLevel"`
	DownloadDir string `json:"downloadDir"`
	UserAgent   string `json:"userAgent"`

	// MaxConcurrent bounds the number of items downloading at once, 1..5.
	MaxConcurrent int `json:"maxConcurrent"`
	// SegmentWorkers bounds parallel segment fetches within one task.
	SegmentWorkers int `json:"segmentWorkers"`
	// SegmentRetries bounds attempts per segment before the task fails.
	SegmentRetries int `json:"segmentRetries"`

	BackoffBase    Duration `json:"backoffBase"`
	FetchTimeout   Duration `json:"fetchTimeout"`
	ResolveTimeout Duration `json:"resolveTimeout"`
	QuietPeriod    Duration `json:"quietPeriod"`
	// EventInterval bounds the progress event rate per task.
	EventInterval Duration `json:"eventInterval"`

	HistoryPath  string `json:"historyPath"`
	HistoryLimit int    `json:"historyLimit"`
	Headless     bool   `json:"headless"`
}

// Duration unmarshals Go duration strings like "500ms" from JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Std returns the plain time.Duration value.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return &Config{
		ListenAddr:     DefaultListenAddr,
		LogLevel:       DefaultLogLevel,
		DownloadDir:    filepath.Join(home, "Downloads"),
		UserAgent:      DefaultUserAgent,
		MaxConcurrent:  DefaultMaxConcurrent,
		SegmentWorkers: DefaultSegmentWorkers,
		SegmentRetries: DefaultSegmentRetries,
		BackoffBase:    Duration(DefaultBackoffBase),
		FetchTimeout:   Duration(DefaultFetchTimeout),
		ResolveTimeout: Duration(DefaultResolveTimeout),
		QuietPeriod:    Duration(DefaultQuietPeriod),
		EventInterval:  Duration(DefaultEventInterval),
		HistoryPath:    filepath.Join(home, ".vdfetch", "download_history.json"),
		HistoryLimit:   DefaultHistoryLimit,
		Headless:       true,
	}
}

// Load reads and parses the configuration file from the given path, filling
// unset fields with defaults and validating the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the scheduler cannot honor.
func (c *Config) Validate() error {
	if c.MaxConcurrent < 1 || c.MaxConcurrent > MaxConcurrentUpperBound {
		return fmt.Errorf("%w: got %d", models.ErrConcurrencyLimitInvalid, c.MaxConcurrent)
	}
	if c.SegmentWorkers < 1 {
		return fmt.Errorf("segment workers must be at least 1, got %d", c.SegmentWorkers)
	}
	if c.SegmentRetries < 1 {
		return fmt.Errorf("segment retries must be at least 1, got %d", c.SegmentRetries)
	}
	return nil
}
