// Package config loads coach settings from defaults, an optional YAML file,
// a .env file and the process environment, in increasing precedence.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"

	"github.com/jamesainslie/go-writecoach/dataset"
	"github.com/jamesainslie/go-writecoach/feedback"
	"github.com/jamesainslie/go-writecoach/internal/retry"
	"github.com/jamesainslie/go-writecoach/scoring"
)

// Scorer backends.
const (
	ScorerONNX   = "onnx"
	ScorerRemote = "remote"
)

// DefaultFile is the YAML file read when COACH_CONFIG is unset.
const DefaultFile = "coach.yaml"

type Config struct {
	LogLevel string `yaml:"log_level" env:"COACH_LOG_LEVEL"`

	Scoring  ScoringConfig  `yaml:"scoring"`
	Level    LevelConfig    `yaml:"level"`
	Feedback FeedbackConfig `yaml:"feedback"`
	Output   OutputConfig   `yaml:"output"`
	Server   ServerConfig   `yaml:"server"`
	Watch    WatchConfig    `yaml:"watch"`
	Prep     PrepConfig     `yaml:"prep"`
}

type ScoringConfig struct {
	Backend       string        `yaml:"backend" env:"COACH_SCORER"`
	ModelPath     string        `yaml:"model_path" env:"COACH_SCORER_MODEL"`
	TokenizerPath string        `yaml:"tokenizer_path" env:"COACH_SCORER_TOKENIZER"`
	ONNXLibrary   string        `yaml:"onnx_library" env:"ONNXRUNTIME_LIB"`
	PoolSize      int           `yaml:"pool_size" env:"COACH_POOL_SIZE"`
	MaxTokens     int           `yaml:"max_tokens" env:"COACH_MAX_TOKENS"`
	BackendURL    string        `yaml:"backend_url" env:"BACKEND_URL"`
	Timeout       time.Duration `yaml:"timeout" env:"COACH_SCORER_TIMEOUT"`
	Scale         ScaleConfig   `yaml:"scale"`
	Retry         retry.Config  `yaml:"retry"`
}

type ScaleConfig struct {
	Slope     float64 `yaml:"slope" env:"COACH_SCALE_SLOPE"`
	Intercept float64 `yaml:"intercept" env:"COACH_SCALE_INTERCEPT"`
	Min       float64 `yaml:"min" env:"COACH_SCALE_MIN"`
	Max       float64 `yaml:"max" env:"COACH_SCALE_MAX"`
	Step      float64 `yaml:"step" env:"COACH_SCALE_STEP"`
}

// Scale converts to a scoring.Scale.
func (s ScaleConfig) Scale() scoring.Scale {
	return scoring.Scale(s)
}

// LevelConfig configures the optional overall-level classifier. It is
// disabled while ModelPath is empty.
type LevelConfig struct {
	ModelPath string `yaml:"model_path" env:"COACH_LEVEL_MODEL"`
	VocabPath string `yaml:"vocab_path" env:"COACH_LEVEL_VOCAB"`
	LabelsDir string `yaml:"labels_dir" env:"COACH_LEVEL_LABELS"`
}

// Enabled reports whether a level model is configured.
func (l LevelConfig) Enabled() bool {
	return l.ModelPath != ""
}

type FeedbackConfig struct {
	Provider          string        `yaml:"provider" env:"COACH_FEEDBACK_PROVIDER"`
	Model             string        `yaml:"model" env:"COACH_FEEDBACK_MODEL"`
	BaseURL           string        `yaml:"base_url" env:"COACH_FEEDBACK_URL"`
	Temperature       float64       `yaml:"temperature" env:"COACH_FEEDBACK_TEMPERATURE"`
	MaxTokens         int64         `yaml:"max_tokens" env:"COACH_FEEDBACK_MAX_TOKENS"`
	RequestsPerMinute int           `yaml:"requests_per_minute" env:"COACH_FEEDBACK_RPM"`
	Timeout           time.Duration `yaml:"timeout" env:"COACH_FEEDBACK_TIMEOUT"`
	Retry             retry.Config  `yaml:"retry"`

	OpenAIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
	AnthropicKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	GeminiKey    string `yaml:"-" env:"GEMINI_API_KEY"`
}

// APIKey returns the key for the selected provider and the variable it is
// read from.
func (f FeedbackConfig) APIKey() (key, variable string) {
	switch f.Provider {
	case feedback.ProviderOpenAI:
		return f.OpenAIKey, "OPENAI_API_KEY"
	case feedback.ProviderAnthropic:
		return f.AnthropicKey, "ANTHROPIC_API_KEY"
	case feedback.ProviderGemini:
		return f.GeminiKey, "GEMINI_API_KEY"
	}
	return "", ""
}

// ClientConfig returns the feedback client configuration.
func (f FeedbackConfig) ClientConfig(scale scoring.Scale) feedback.Config {
	key, _ := f.APIKey()
	return feedback.Config{
		Provider:          f.Provider,
		Model:             f.Model,
		APIKey:            key,
		BaseURL:           f.BaseURL,
		Temperature:       f.Temperature,
		MaxTokens:         f.MaxTokens,
		Timeout:           f.Timeout,
		RequestsPerMinute: f.RequestsPerMinute,
		Retry:             f.Retry,
		Scale:             scale,
	}
}

type OutputConfig struct {
	// Location is a directory or gs://bucket/prefix for feedback records.
	Location string `yaml:"location" env:"COACH_OUTPUT"`
	// HistoryDB is a sqlite file indexing saved records. Empty disables it.
	HistoryDB string `yaml:"history_db" env:"COACH_HISTORY_DB"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr" env:"COACH_ADDR"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"COACH_READ_TIMEOUT"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"COACH_WRITE_TIMEOUT"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" env:"COACH_MAX_BODY_BYTES"`
}

type WatchConfig struct {
	Inbox     string `yaml:"inbox" env:"COACH_INBOX"`
	Processed string `yaml:"processed" env:"COACH_PROCESSED"`
	Schedule  string `yaml:"schedule" env:"COACH_WATCH_SCHEDULE"`
}

type PrepConfig struct {
	Corpus         string         `yaml:"corpus" env:"COACH_CORPUS"`
	Out            string         `yaml:"out" env:"COACH_PREP_OUT"`
	Seed           uint64         `yaml:"seed" env:"COACH_SEED"`
	Ratios         dataset.Ratios `yaml:"ratios"`
	SkipIncomplete bool           `yaml:"skip_incomplete" env:"COACH_SKIP_INCOMPLETE"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Scoring: ScoringConfig{
			Backend:       ScorerONNX,
			ModelPath:     "models/scorer.onnx",
			TokenizerPath: "models/tokenizer.model",
			MaxTokens:     512,
			BackendURL:    "http://localhost:8000",
			Timeout:       60 * time.Second,
			Scale:         ScaleConfig(scoring.DefaultScale),
			Retry:         retry.DefaultConfig(),
		},
		Feedback: FeedbackConfig{
			Provider:    feedback.ProviderOpenAI,
			Temperature: 0.7,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
			Retry:       retry.DefaultConfig(),
		},
		Output: OutputConfig{
			Location: "essay_feedback",
		},
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 3 * time.Minute,
			MaxBodyBytes: 1 << 20,
		},
		Watch: WatchConfig{
			Inbox:     "inbox",
			Processed: "inbox/processed",
			Schedule:  "@every 1m",
		},
		Prep: PrepConfig{
			Corpus: "data/essays.csv",
			Out:    "data/prepared",
			Seed:   42,
			Ratios: dataset.DefaultRatios,
		},
	}
}

// Source says where Load reads settings from.
type Source struct {
	// File is the YAML file. Empty means COACH_CONFIG, then DefaultFile;
	// only an explicitly named file must exist.
	File string
	// DotEnv is the .env file. Empty means ".env". A missing file is
	// ignored.
	DotEnv string
	// Lookuper reads the environment. Nil means the process environment.
	Lookuper envconfig.Lookuper
}

// Load reads settings from the default sources.
func Load(ctx context.Context) (*Config, error) {
	return LoadFrom(ctx, Source{})
}

// LoadFrom reads settings from src. Real environment variables win over
// the .env file, which wins over the YAML file.
func LoadFrom(ctx context.Context, src Source) (*Config, error) {
	lookuper := src.Lookuper
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	dotenvPath := src.DotEnv
	if dotenvPath == "" {
		dotenvPath = ".env"
	}
	dotenv, err := godotenv.Read(dotenvPath)
	switch {
	case err == nil:
		lookuper = envconfig.MultiLookuper(lookuper, envconfig.MapLookuper(dotenv))
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading %s: %w", dotenvPath, err)
	}

	cfg := Default()

	file, explicit := src.File, src.File != ""
	if !explicit {
		if v, ok := lookuper.Lookup("COACH_CONFIG"); ok && v != "" {
			file, explicit = v, true
		} else {
			file = DefaultFile
		}
	}
	if err := cfg.readYAML(file, explicit); err != nil {
		return nil, err
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         lookuper,
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}

	cfg.Feedback.Provider = strings.ToLower(cfg.Feedback.Provider)
	cfg.Scoring.Backend = strings.ToLower(cfg.Scoring.Backend)
	return cfg, nil
}

func (c *Config) readYAML(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings needed to grade essays.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Scoring.Backend {
	case ScorerONNX:
		if c.Scoring.ModelPath == "" || c.Scoring.TokenizerPath == "" {
			errs = append(errs, errors.New("onnx scorer needs model_path and tokenizer_path"))
		}
	case ScorerRemote:
		if c.Scoring.BackendURL == "" {
			errs = append(errs, errors.New("remote scorer needs BACKEND_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown scorer backend %q", c.Scoring.Backend))
	}
	if err := c.Scoring.Scale.Scale().Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Scoring.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("scoring retry: %w", err))
	}

	if c.Level.Enabled() && (c.Level.VocabPath == "" || c.Level.LabelsDir == "") {
		errs = append(errs, errors.New("level model needs vocab_path and labels_dir"))
	}

	if !slices.Contains(feedback.Providers, c.Feedback.Provider) {
		errs = append(errs, fmt.Errorf("unknown feedback provider %q (want one of %s)",
			c.Feedback.Provider, strings.Join(feedback.Providers, ", ")))
	} else if feedback.NeedsAPIKey(c.Feedback.Provider) {
		if key, variable := c.Feedback.APIKey(); key == "" {
			errs = append(errs, fmt.Errorf("%s not found; set it in the environment or .env file", variable))
		}
	} else if c.Feedback.BaseURL == "" {
		errs = append(errs, errors.New("remote feedback provider needs COACH_FEEDBACK_URL"))
	}
	if c.Feedback.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("requests per minute cannot be negative"))
	}
	if err := c.Feedback.Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("feedback retry: %w", err))
	}

	if c.Output.Location == "" {
		errs = append(errs, errors.New("output location is required"))
	}

	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c *Config) SlogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return lvl, nil
}

// MaskKey shows the first five and last four characters of an API key.
func MaskKey(key string) string {
	if len(key) < 12 {
		return strings.Repeat("*", len(key))
	}
	return key[:5] + "..." + key[len(key)-4:]
}
