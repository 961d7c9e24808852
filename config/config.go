package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Settings holds everything read from the INI config file. Command-line flags
// may override individual fields after loading.
type Settings struct {
	WorkspacePath       string
	TrustProgressRecord bool
	WorkerCount         int
	RequestDelayMs      int
	RequestTimeoutS     int
	SentenceRemovalFile string
}

const (
	// EnvWorkspaceRoot overrides General.workspace_path when set.
	EnvWorkspaceRoot = "WNA_WORKSPACE_ROOT"

	defaultWorkspace = "workspace"
	defaultWorkers   = 4
	defaultDelayMs   = 100
	defaultTimeoutS  = 15
)

// Load reads the INI config at path, creating it with defaults if it does not
// exist. Malformed or missing values never fail the run; defaults are
// substituted and a warning is logged.
func Load(path string) (*Settings, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetDefault("general.workspace_path", defaultWorkspace)
	v.SetDefault("general.trust_progress_record", true)
	v.SetDefault("general.worker_count", defaultWorkers)
	v.SetDefault("general.request_delay_ms", defaultDelayMs)
	v.SetDefault("general.request_timeout_s", defaultTimeoutS)
	v.SetDefault("sentenceremoval.default_sentence_removal_file", "")

	if err := v.ReadInConfig(); err != nil {
		if os.IsNotExist(err) || isNotFound(err) {
			log.Printf("[Config] No config file at %s, creating with defaults", path)
			if dir := filepath.Dir(path); dir != "." {
				if mkErr := os.MkdirAll(dir, 0755); mkErr != nil {
					return nil, fmt.Errorf("failed to create config directory: %w", mkErr)
				}
			}
			if writeErr := v.WriteConfigAs(path); writeErr != nil {
				// Config is advisory; continue with defaults
				log.Printf("[Config] Could not write default config: %v", writeErr)
			}
		} else {
			log.Printf("[Config] Failed to read %s, using defaults: %v", path, err)
		}
	}

	s := &Settings{
		WorkspacePath:       v.GetString("general.workspace_path"),
		TrustProgressRecord: v.GetBool("general.trust_progress_record"),
		WorkerCount:         v.GetInt("general.worker_count"),
		RequestDelayMs:      v.GetInt("general.request_delay_ms"),
		RequestTimeoutS:     v.GetInt("general.request_timeout_s"),
		SentenceRemovalFile: v.GetString("sentenceremoval.default_sentence_removal_file"),
	}

	if s.WorkerCount < 1 {
		log.Printf("[Config] Invalid worker_count %d, using %d", s.WorkerCount, defaultWorkers)
		s.WorkerCount = defaultWorkers
	}
	if s.RequestDelayMs < 0 {
		s.RequestDelayMs = defaultDelayMs
	}
	if s.RequestTimeoutS <= 0 {
		s.RequestTimeoutS = defaultTimeoutS
	}

	// Environment override takes precedence over the file
	if env := os.Getenv(EnvWorkspaceRoot); env != "" {
		log.Printf("[Config] %s set, workspace is %s", EnvWorkspaceRoot, env)
		s.WorkspacePath = env
	}

	// Relative workspace paths resolve against the working directory
	if !filepath.IsAbs(s.WorkspacePath) {
		if abs, err := filepath.Abs(s.WorkspacePath); err == nil {
			s.WorkspacePath = abs
		}
	}

	return s, nil
}

func isNotFound(err error) bool {
	_, ok := err.(viper.ConfigFileNotFoundError)
	return ok
}

// DefaultPath returns the conventional config file location in the working
// directory.
func DefaultPath() string {
	return "wna.ini"
}
