// Package config loads the run configuration. The file is JSON or YAML (JSON
// is valid YAML), unknown keys are rejected, and every field has a
// documented default except the database path.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/agentic-research/commentprep/internal/sanitize"
	"github.com/agentic-research/commentprep/internal/store"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPath = "./config.json"

	configPathEnv  = "COMMENTPREP_CONFIG"
	dbPathEnv      = "COMMENTPREP_DB_PATH"
	inputFolderEnv = "COMMENTPREP_INPUT_FOLDER"
	threadsEnv     = "COMMENTPREP_THREADS"
	logLevelEnv    = "COMMENTPREP_LOG_LEVEL"
)

// Config is the immutable run configuration.
type Config struct {
	SQLiteDBPath     string           `yaml:"sqlite_db_path"`
	ThreadCount      int              `yaml:"thread_count"`
	InputFolderPath  string           `yaml:"input_folder_path"`
	FillDatabase     bool             `yaml:"fill_database"`
	SanitizeComments bool             `yaml:"sanitize_comments"`
	Sanitize         sanitize.Options `yaml:"sanitize_comments_parameters"`

	// BatchSize is the number of records per insert transaction.
	BatchSize int `yaml:"batch_size"`
	// LeaseSize is the number of rows claimed per lease.
	LeaseSize int `yaml:"lease_size"`
	// MaxInFlight caps leased batches not yet written back.
	MaxInFlight   int           `yaml:"max_in_flight"`
	RetryAttempts int           `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`
	BusyTimeout   time.Duration `yaml:"busy_timeout"`
	// IndexIfAbsent makes index creation idempotent.
	IndexIfAbsent      bool `yaml:"index_if_absent"`
	SkipMalformedLines bool `yaml:"skip_malformed_lines"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// Error is a missing or invalid option. It is always fatal.
type Error struct {
	Field  string
	Reason string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return "config: " + e.Reason
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

// Default returns the configuration used for absent keys.
func Default() Config {
	return Config{
		ThreadCount:   runtime.NumCPU(),
		BatchSize:     100_000,
		LeaseSize:     10_000,
		MaxInFlight:   20,
		RetryAttempts: 50,
		RetryDelay:    time.Second,
		BusyTimeout:   5 * time.Second,
		IndexIfAbsent: true,
		LogLevel:      "info",
	}
}

// Path resolves the configuration file: explicit flag, then environment,
// then DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(configPathEnv); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the file at path, applies environment overrides and validates.
func Load(path string) (Config, error) {
	cfg, err := LoadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile is Load without validation, for commands that only need the
// sanitization options.
func LoadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &Error{Reason: fmt.Sprintf("read %s: %v", path, err)}
	}
	cfg, err := Parse(raw)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.applyEnvOverrides(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes raw over the defaults without validating.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, &Error{Reason: err.Error()}
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv(dbPathEnv); v != "" {
		c.SQLiteDBPath = v
	}
	if v := os.Getenv(inputFolderEnv); v != "" {
		c.InputFolderPath = v
	}
	if v := os.Getenv(threadsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &Error{Field: threadsEnv, Reason: "not an integer"}
		}
		c.ThreadCount = n
	}
	if v := os.Getenv(logLevelEnv); v != "" {
		c.LogLevel = v
	}
	return nil
}

// Validate fails fast on options that would only break mid-run.
func (c Config) Validate() error {
	switch {
	case c.SQLiteDBPath == "":
		return &Error{Field: "sqlite_db_path", Reason: "required"}
	case c.ThreadCount < 1:
		return &Error{Field: "thread_count", Reason: "must be at least 1"}
	case c.FillDatabase && c.InputFolderPath == "":
		return &Error{Field: "input_folder_path", Reason: "required when fill_database is set"}
	case c.BatchSize < 1:
		return &Error{Field: "batch_size", Reason: "must be at least 1"}
	case c.LeaseSize < 1:
		return &Error{Field: "lease_size", Reason: "must be at least 1"}
	case c.MaxInFlight < 1:
		return &Error{Field: "max_in_flight", Reason: "must be at least 1"}
	case c.RetryAttempts < 1:
		return &Error{Field: "retry_attempts", Reason: "must be at least 1"}
	case c.RetryDelay < 0:
		return &Error{Field: "retry_delay", Reason: "must not be negative"}
	case c.BusyTimeout < 0:
		return &Error{Field: "busy_timeout", Reason: "must not be negative"}
	}
	if err := store.ValidatePath(c.SQLiteDBPath); err != nil {
		return &Error{Field: "sqlite_db_path", Reason: err.Error()}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &Error{Field: "log_level", Reason: err.Error()}
	}
	if c.FillDatabase {
		if fi, err := os.Stat(c.InputFolderPath); err != nil || !fi.IsDir() {
			return &Error{Field: "input_folder_path", Reason: fmt.Sprintf("%q is not a directory", c.InputFolderPath)}
		}
	}
	return c.validateSanitize()
}

func (c Config) validateSanitize() error {
	if !c.SanitizeComments {
		return nil
	}
	p := c.Sanitize
	field := func(name string) string { return "sanitize_comments_parameters." + name }
	switch {
	case p.PunctuationRemoval && p.PunctuationString == "":
		return &Error{Field: field("punctuation_string"), Reason: "required when punctuation_removal is set"}
	case p.NameEntityRemoval && p.NameEntityPlaceholder == "":
		return &Error{Field: field("name_entity_placeholder"), Reason: "required when name_entity_removal is set"}
	case p.NumberRemoval && p.NumberPlaceholder == "":
		return &Error{Field: field("number_placeholder"), Reason: "required when number_removal is set"}
	case len(p.Wordlist) > sanitize.WordlistThreshold && p.UnknownWordPlaceholder == "":
		return &Error{Field: field("unknown_word_placeholder"), Reason: "required when a wordlist is given"}
	case p.AddEndOfUtteranceToken && p.EndOfUtteranceToken == "":
		return &Error{Field: field("end_of_utterance_token"), Reason: "required when add_end_of_utterance_token is set"}
	}
	return nil
}

// ParseLevel maps a level name onto slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level %q", s)
	}
}
