package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all dashagent configuration.
// Relative paths are resolved against the workspace root.
type Config struct {
	Name string `yaml:"name"`

	// Layout document location
	Project ProjectConfig `yaml:"project"`

	// Snapshot store
	Backup BackupConfig `yaml:"backup"`

	// File target rules
	Files FilesConfig `yaml:"files"`

	// Tabular dataset used by inspect_column and panel column checks
	Dataset DatasetConfig `yaml:"dataset"`

	// Batch execution
	Execution ExecutionConfig `yaml:"execution"`

	// Command history
	Journal JournalConfig `yaml:"journal"`

	// Layout watcher
	Watch WatchConfig `yaml:"watch"`

	// Planner (language model)
	LLM LLMConfig `yaml:"llm"`

	Logging LoggingConfig `yaml:"logging"`
}

// ProjectConfig locates the layout document.
type ProjectConfig struct {
	LayoutFile string `yaml:"layout_file"`
}

// BackupConfig configures the snapshot store.
type BackupConfig struct {
	Dir      string `yaml:"dir"`
	Compress bool   `yaml:"compress"` // zstd-compress snapshots
}

// FilesConfig configures which project files commands may write.
type FilesConfig struct {
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// DatasetConfig configures the tabular dataset.
type DatasetConfig struct {
	Path       string `yaml:"path"`  // .csv, .db, .sqlite, .sqlite3
	Table      string `yaml:"table"` // required for SQLite sources
	RowLimit   int    `yaml:"row_limit"`
	SampleMode string `yaml:"sample_mode"` // head, random
	Top        int    `yaml:"top"`
}

// ExecutionConfig configures batch execution.
type ExecutionConfig struct {
	Policy string `yaml:"policy"` // stop, continue, atomic
}

// JournalConfig configures the command history database.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// WatchConfig configures the layout watcher.
type WatchConfig struct {
	Debounce string `yaml:"debounce"`
}

// LLMConfig configures the planner.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "dashagent",

		Project: ProjectConfig{
			LayoutFile: "layout.json",
		},

		Backup: BackupConfig{
			Dir: ".backups",
		},

		Files: FilesConfig{
			AllowedExtensions: []string{".py", ".json", ".md", ".txt", ".yml", ".yaml"},
		},

		Dataset: DatasetConfig{
			RowLimit:   100000,
			SampleMode: "head",
			Top:        20,
		},

		Execution: ExecutionConfig{
			Policy: "stop",
		},

		Journal: JournalConfig{
			Enabled: true,
			Path:    ".dashagent/journal.db",
		},

		Watch: WatchConfig{
			Debounce: "250ms",
		},

		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			Timeout:  "60s",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file location for a workspace.
func DefaultPath(workspace string) string {
	return filepath.Join(workspace, ".dashagent", "config.yaml")
}

// Load loads configuration from a YAML file.
// A missing file yields the defaults. Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	// "categories: {}" means the same as no categories.
	if len(cfg.Logging.Categories) == 0 {
		cfg.Logging.Categories = nil
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// ValidPolicies lists the supported batch failure policies.
var ValidPolicies = []string{"stop", "continue", "atomic"}

// ValidSampleModes lists the supported dataset sampling modes.
var ValidSampleModes = []string{"head", "random"}

// ValidProviders lists the supported planner providers.
var ValidProviders = []string{"gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Project.LayoutFile) == "" {
		return fmt.Errorf("project.layout_file must not be empty")
	}
	if strings.TrimSpace(c.Backup.Dir) == "" {
		return fmt.Errorf("backup.dir must not be empty")
	}
	if !slices.Contains(ValidPolicies, c.Execution.Policy) {
		return fmt.Errorf("invalid execution policy: %s (valid: %v)", c.Execution.Policy, ValidPolicies)
	}
	if !slices.Contains(ValidSampleModes, c.Dataset.SampleMode) {
		return fmt.Errorf("invalid dataset sample_mode: %s (valid: %v)", c.Dataset.SampleMode, ValidSampleModes)
	}
	if c.Dataset.RowLimit < 0 {
		return fmt.Errorf("dataset.row_limit must be >= 0, got %d", c.Dataset.RowLimit)
	}
	if c.Dataset.Top <= 0 {
		return fmt.Errorf("dataset.top must be > 0, got %d", c.Dataset.Top)
	}
	for _, ext := range c.Files.AllowedExtensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("allowed extension %q must start with a dot", ext)
		}
	}
	if c.LLM.Provider != "" && !slices.Contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	return nil
}

// Resolve joins a configured path onto the workspace unless it is absolute.
func Resolve(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}

// GetLLMTimeout returns the planner timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// GetWatchDebounce returns the watcher debounce window.
func (c *Config) GetWatchDebounce() time.Duration {
	d, err := time.ParseDuration(c.Watch.Debounce)
	if err != nil || d <= 0 {
		return 250 * time.Millisecond
	}
	return d
}
