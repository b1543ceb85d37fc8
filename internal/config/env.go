package config

import (
	"fmt"
	"strconv"

	"github.com/caarlos0/env/v11"
)

// envOverrides lists the environment variables that override file settings.
type envOverrides struct {
	LayoutFile   string `env:"DASHAGENT_LAYOUT"`
	BackupDir    string `env:"DASHAGENT_BACKUP_DIR"`
	Dataset      string `env:"DASHAGENT_DATASET"`
	DatasetTable string `env:"DASHAGENT_DATASET_TABLE"`
	Policy       string `env:"DASHAGENT_POLICY"`
	Debug        string `env:"DASHAGENT_DEBUG"`
	Model        string `env:"DASHAGENT_MODEL"`
	GeminiAPIKey string `env:"GEMINI_API_KEY"`
	GoogleAPIKey string `env:"GOOGLE_API_KEY"`
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.LayoutFile != "" {
		c.Project.LayoutFile = o.LayoutFile
	}
	if o.BackupDir != "" {
		c.Backup.Dir = o.BackupDir
	}
	if o.Dataset != "" {
		c.Dataset.Path = o.Dataset
	}
	if o.DatasetTable != "" {
		c.Dataset.Table = o.DatasetTable
	}
	if o.Policy != "" {
		c.Execution.Policy = o.Policy
	}
	if o.Debug != "" {
		debug, err := strconv.ParseBool(o.Debug)
		if err != nil {
			return fmt.Errorf("parse env: DASHAGENT_DEBUG: %w", err)
		}
		c.Logging.DebugMode = debug
	}
	if o.Model != "" {
		c.LLM.Model = o.Model
	}

	// GOOGLE_API_KEY is checked first so GEMINI_API_KEY wins when both are set
	if o.GoogleAPIKey != "" {
		c.LLM.APIKey = o.GoogleAPIKey
	}
	if o.GeminiAPIKey != "" {
		c.LLM.APIKey = o.GeminiAPIKey
	}
	return nil
}
