package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"

	"pdfrag/internal/chunker"
	"pdfrag/internal/domain"
	"pdfrag/internal/retrieval"
	"pdfrag/internal/retry"
)

// ProviderConfig selects the embedding/generation backend.
type ProviderConfig struct {
	Type            string `yaml:"type" env:"PDFRAG_PROVIDER"`
	BaseURL         string `yaml:"base_url" env:"PDFRAG_BASE_URL"`
	APIKeyEnv       string `yaml:"api_key_env" env:"PDFRAG_API_KEY_ENV"`
	EmbeddingModel  string `yaml:"embedding_model" env:"PDFRAG_EMBEDDING_MODEL"`
	GenerationModel string `yaml:"generation_model" env:"PDFRAG_GENERATION_MODEL"`
	TimeoutSecs     int    `yaml:"timeout_secs" env:"PDFRAG_TIMEOUT_SECS"`
}

// RetryConfig is the overload backoff shared by embedding and generation calls.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" env:"PDFRAG_RETRY_MAX_ATTEMPTS"`
	BaseDelayMS int `yaml:"base_delay_ms" env:"PDFRAG_RETRY_BASE_DELAY_MS"`
	CapDelayMS  int `yaml:"cap_delay_ms" env:"PDFRAG_RETRY_CAP_DELAY_MS"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string  `yaml:"type" env:"PDFRAG_CHUNKER"`
	DefaultHeading    string  `yaml:"default_heading" env:"PDFRAG_DEFAULT_HEADING"`
	HeadingMaxLen     int     `yaml:"heading_max_len" env:"PDFRAG_HEADING_MAX_LEN"`
	HeadingCapRatio   float64 `yaml:"heading_cap_ratio" env:"PDFRAG_HEADING_CAP_RATIO"`
	FixedSize         int     `yaml:"fixed_size" env:"PDFRAG_FIXED_SIZE"`
	FixedMinLen       int     `yaml:"fixed_min_len" env:"PDFRAG_FIXED_MIN_LEN"`
	SentencesPerChunk int     `yaml:"sentences_per_chunk" env:"PDFRAG_SENTENCES_PER_CHUNK"`
	OverlapSentences  int     `yaml:"overlap_sentences" env:"PDFRAG_OVERLAP_SENTENCES"`
}

// RetrievalConfig holds the similarity thresholds and context size.
type RetrievalConfig struct {
	RelevantThreshold float64 `yaml:"relevant_threshold" env:"PDFRAG_RELEVANT_THRESHOLD"`
	PartialThreshold  float64 `yaml:"partial_threshold" env:"PDFRAG_PARTIAL_THRESHOLD"`
	TopK              int     `yaml:"top_k" env:"PDFRAG_TOP_K"`
}

// Load policies.
const (
	PolicySkipIfLoaded = "skip_if_loaded"
	PolicySkipSameID   = "skip_same_id"
	PolicyAlways       = "always"
)

// LoadConfig controls document loading.
type LoadConfig struct {
	Policy      string `yaml:"policy" env:"PDFRAG_LOAD_POLICY"`
	Concurrency int    `yaml:"concurrency" env:"PDFRAG_LOAD_CONCURRENCY"`
	DefaultPath string `yaml:"default_path" env:"PDFRAG_DEFAULT_PATH"`
	// DocumentRoot is the directory HTTP load requests may read from. Empty limits
	// them to DefaultPath.
	DocumentRoot string `yaml:"document_root" env:"PDFRAG_DOCUMENT_ROOT"`
	// SummarySentences is the length of the summary stored with each document.
	SummarySentences int `yaml:"summary_sentences" env:"PDFRAG_SUMMARY_SENTENCES"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr             string `yaml:"addr" env:"PDFRAG_ADDR"`
	ReadTimeoutSecs  int    `yaml:"read_timeout_secs" env:"PDFRAG_READ_TIMEOUT_SECS"`
	// WriteTimeoutSecs of 0 derives the timeout from the retry schedule.
	WriteTimeoutSecs int `yaml:"write_timeout_secs" env:"PDFRAG_WRITE_TIMEOUT_SECS"`
}

type LogConfig struct {
	Level  string `yaml:"level" env:"PDFRAG_LOG_LEVEL"`
	Format string `yaml:"format" env:"PDFRAG_LOG_FORMAT"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Provider  ProviderConfig  `yaml:"provider"`
	Retry     RetryConfig     `yaml:"retry"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Load      LoadConfig      `yaml:"load"`
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads a config from path over the defaults and applies PDFRAG_* environment
// overrides. Keys absent from the file keep their defaults; keys present keep their
// value, zero included. A missing file yields the defaults.
func Load(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfrag/config.yaml and loads them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err != nil {
		if err := Save(userPath, defaultConfig()); err != nil {
			return nil, "", err
		}
	}
	cfg, err := Load(userPath)
	return cfg, userPath, err
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Provider: ProviderConfig{
			Type:            "openai",
			APIKeyEnv:       "OPENAI_API_KEY",
			EmbeddingModel:  "text-embedding-3-small",
			GenerationModel: "gpt-4o-mini",
			TimeoutSecs:     30,
		},
		Retry: RetryConfig{
			MaxAttempts: retry.DefaultMaxAttempts,
			BaseDelayMS: int(retry.DefaultBaseDelay / time.Millisecond),
			CapDelayMS:  int(retry.DefaultCapDelay / time.Millisecond),
		},
		Chunker: ChunkerConfig{
			Type:              chunker.TypeAuto,
			DefaultHeading:    domain.DefaultHeading,
			HeadingMaxLen:     chunker.DefaultHeadingMaxLen,
			HeadingCapRatio:   chunker.DefaultHeadingCapRatio,
			FixedSize:         chunker.DefaultFixedSize,
			FixedMinLen:       chunker.DefaultFixedMinLen,
			SentencesPerChunk: 5,
		},
		Retrieval: RetrievalConfig{
			RelevantThreshold: retrieval.DefaultRelevantThreshold,
			PartialThreshold:  retrieval.DefaultPartialThreshold,
			TopK:              retrieval.DefaultTopK,
		},
		Load: LoadConfig{
			Policy:           PolicySkipIfLoaded,
			Concurrency:      1,
			SummarySentences: 3,
		},
		Server: ServerConfig{
			Addr:            ":5000",
			ReadTimeoutSecs: 15,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Validate rejects settings that cannot work together.
func (c *AppConfig) Validate() error {
	var errs []error
	switch c.Provider.Type {
	case "openai", "tfidf":
	default:
		errs = append(errs, fmt.Errorf("unknown provider: %s", c.Provider.Type))
	}
	if _, err := chunker.New(c.ChunkerConfig()); err != nil {
		errs = append(errs, err)
	}
	rt := c.Retrieval
	if rt.PartialThreshold >= rt.RelevantThreshold {
		errs = append(errs, fmt.Errorf("retrieval.partial_threshold (%.2f) must be below relevant_threshold (%.2f)", rt.PartialThreshold, rt.RelevantThreshold))
	}
	if rt.TopK < 1 {
		errs = append(errs, fmt.Errorf("retrieval.top_k must be positive, got %d", rt.TopK))
	}
	switch c.Load.Policy {
	case PolicySkipIfLoaded, PolicySkipSameID, PolicyAlways:
	default:
		errs = append(errs, fmt.Errorf("unknown load policy: %s", c.Load.Policy))
	}
	if c.Load.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("load.concurrency must be positive, got %d", c.Load.Concurrency))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("retry.max_attempts counts the first call and must be at least 1, got %d", c.Retry.MaxAttempts))
	}
	if c.Retry.BaseDelayMS < 0 || c.Retry.CapDelayMS < 0 || c.Provider.TimeoutSecs < 0 {
		errs = append(errs, errors.New("retry delays and provider.timeout_secs must not be negative"))
	}
	if c.Server.ReadTimeoutSecs < 0 || c.Server.WriteTimeoutSecs < 0 {
		errs = append(errs, errors.New("server timeouts must not be negative"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format: %s", c.Log.Format))
	}
	return errors.Join(errs...)
}

func (c *AppConfig) ChunkerConfig() chunker.Config {
	return chunker.Config{
		Type:              c.Chunker.Type,
		DefaultHeading:    c.Chunker.DefaultHeading,
		HeadingMaxLen:     c.Chunker.HeadingMaxLen,
		HeadingCapRatio:   c.Chunker.HeadingCapRatio,
		FixedSize:         c.Chunker.FixedSize,
		FixedMinLen:       c.Chunker.FixedMinLen,
		SentencesPerChunk: c.Chunker.SentencesPerChunk,
		OverlapSentences:  c.Chunker.OverlapSentences,
	}
}

func (c *AppConfig) RetryPolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = c.Retry.MaxAttempts
	p.BaseDelay = time.Duration(c.Retry.BaseDelayMS) * time.Millisecond
	p.CapDelay = time.Duration(c.Retry.CapDelayMS) * time.Millisecond
	return p
}

func (c *AppConfig) RetrievalPolicy() retrieval.Policy {
	return retrieval.Policy{
		RelevantThreshold: c.Retrieval.RelevantThreshold,
		PartialThreshold:  c.Retrieval.PartialThreshold,
		TopK:              c.Retrieval.TopK,
	}
}

// ProviderTimeout bounds every single provider call.
func (c *AppConfig) ProviderTimeout() time.Duration {
	return time.Duration(c.Provider.TimeoutSecs) * time.Second
}

// WriteTimeout is the HTTP write timeout. Unless set explicitly it covers a chat
// request whose question embedding and answer generation both run the full retry
// schedule, each attempt hitting the provider timeout. Without a provider timeout
// no bound exists and the result is 0, which http.Server reads as none.
func (c *AppConfig) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSecs > 0 {
		return time.Duration(c.Server.WriteTimeoutSecs) * time.Second
	}
	if c.ProviderTimeout() == 0 {
		return 0
	}
	p := c.RetryPolicy()
	attempts := max(p.MaxAttempts, 1)
	perCall := time.Duration(attempts) * c.ProviderTimeout()
	for i := 1; i < attempts; i++ {
		perCall += p.Backoff(i)
	}
	return 2*perCall + writeTimeoutSlack
}

const writeTimeoutSlack = 10 * time.Second
