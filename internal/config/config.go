package config

import (
	"time"

	"github.com/spf13/viper"

	"seedforge/internal/logging"
)

// Config holds every tunable of the synthesis pipeline. All fields have
// working defaults; environment variables override them.
type Config struct {
	// Depth extension
	MaxHops int `mapstructure:"max_hops"`

	// Width extension
	MinGroupSize        int     `mapstructure:"min_group_size"`
	MaxGroupSize        int     `mapstructure:"max_group_size"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`

	// Atomic generation
	AtomicityThreshold      float64 `mapstructure:"atomicity_threshold"`
	MaxConclusionsPerCorpus int     `mapstructure:"max_conclusions_per_corpus"`

	// Verification
	QualityThreshold           float64 `mapstructure:"quality_threshold"`
	VerificationTimeoutSec     int     `mapstructure:"verification_timeout_sec"`
	MaxConcurrentVerifications int     `mapstructure:"max_concurrent_verifications"`

	// Concurrency
	ParallelWorkers      int `mapstructure:"parallel_workers"`
	MaxConcurrentBatches int `mapstructure:"max_concurrent_batches"`
	BatchSize            int `mapstructure:"batch_size"`

	// Adaptive control
	SuccessRateWindowSize int     `mapstructure:"success_rate_window_size"`
	PassRateLowBand       float64 `mapstructure:"pass_rate_low_band"`
	PassRateHighBand      float64 `mapstructure:"pass_rate_high_band"`

	// Infrastructure
	RedisURL      string `mapstructure:"redis_url"`
	ToolsBaseURL  string `mapstructure:"tools_base_url"`
	LLMProvider   string `mapstructure:"llm_provider"`
	LLMModel      string `mapstructure:"llm_model"`
	LLMBaseURL    string `mapstructure:"llm_base_url"`
	LLMAPIKey     string `mapstructure:"llm_api_key"`
	LLMTimeoutSec int    `mapstructure:"llm_timeout_sec"`

	// Ledger
	LedgerDir string `mapstructure:"ledger_dir"`
}

// VerificationTimeout returns the wall clock for live task execution.
func (c Config) VerificationTimeout() time.Duration {
	return time.Duration(c.VerificationTimeoutSec) * time.Second
}

// LLMTimeout returns the per-call LLM deadline.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.LLMTimeoutSec) * time.Second
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxHops:                    3,
		MinGroupSize:               2,
		MaxGroupSize:               3,
		SimilarityThreshold:        0.6,
		AtomicityThreshold:         0.8,
		MaxConclusionsPerCorpus:    20,
		QualityThreshold:           0.75,
		VerificationTimeoutSec:     60,
		MaxConcurrentVerifications: 5,
		ParallelWorkers:            4,
		MaxConcurrentBatches:       3,
		BatchSize:                  10,
		SuccessRateWindowSize:      100,
		PassRateLowBand:            0.6,
		PassRateHighBand:           0.85,
		RedisURL:                   "redis://localhost:6379/0",
		ToolsBaseURL:               "http://localhost:8700",
		LLMProvider:                "openai",
		LLMModel:                   "gpt-4o-mini",
		LLMTimeoutSec:              120,
		LedgerDir:                  "seed_tasks",
	}
}

// Load reads configuration from the environment, falling back to defaults.
// Invalid values never abort startup: the offending key is logged and the
// default kept.
func Load(logger logging.Logger) Config {
	logger = logging.OrNop(logger)
	def := Default()

	v := viper.New()
	v.SetEnvPrefix("")
	v.AutomaticEnv()

	v.SetDefault("max_hops", def.MaxHops)
	v.SetDefault("min_group_size", def.MinGroupSize)
	v.SetDefault("max_group_size", def.MaxGroupSize)
	v.SetDefault("similarity_threshold", def.SimilarityThreshold)
	v.SetDefault("atomicity_threshold", def.AtomicityThreshold)
	v.SetDefault("max_conclusions_per_corpus", def.MaxConclusionsPerCorpus)
	v.SetDefault("quality_threshold", def.QualityThreshold)
	v.SetDefault("verification_timeout_sec", def.VerificationTimeoutSec)
	v.SetDefault("max_concurrent_verifications", def.MaxConcurrentVerifications)
	v.SetDefault("parallel_workers", def.ParallelWorkers)
	v.SetDefault("max_concurrent_batches", def.MaxConcurrentBatches)
	v.SetDefault("batch_size", def.BatchSize)
	v.SetDefault("success_rate_window_size", def.SuccessRateWindowSize)
	v.SetDefault("pass_rate_low_band", def.PassRateLowBand)
	v.SetDefault("pass_rate_high_band", def.PassRateHighBand)
	v.SetDefault("redis_url", def.RedisURL)
	v.SetDefault("tools_base_url", def.ToolsBaseURL)
	v.SetDefault("llm_provider", def.LLMProvider)
	v.SetDefault("llm_model", def.LLMModel)
	v.SetDefault("llm_base_url", def.LLMBaseURL)
	v.SetDefault("llm_api_key", def.LLMAPIKey)
	v.SetDefault("llm_timeout_sec", def.LLMTimeoutSec)
	v.SetDefault("ledger_dir", def.LedgerDir)

	cfg := def
	if err := v.Unmarshal(&cfg); err != nil {
		logger.Warn("config unmarshal failed, using defaults: %v", err)
		return def
	}
	return sanitize(cfg, def, logger)
}

// sanitize clamps out-of-range values back to their defaults.
func sanitize(cfg, def Config, logger logging.Logger) Config {
	if cfg.MaxHops < 1 {
		logger.Warn("max_hops %d invalid, using %d", cfg.MaxHops, def.MaxHops)
		cfg.MaxHops = def.MaxHops
	}
	if cfg.MinGroupSize < 2 {
		logger.Warn("min_group_size %d invalid, using %d", cfg.MinGroupSize, def.MinGroupSize)
		cfg.MinGroupSize = def.MinGroupSize
	}
	if cfg.MaxGroupSize < cfg.MinGroupSize {
		logger.Warn("max_group_size %d below min_group_size, using %d", cfg.MaxGroupSize, def.MaxGroupSize)
		cfg.MaxGroupSize = def.MaxGroupSize
	}
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = def.SimilarityThreshold
	}
	if cfg.AtomicityThreshold <= 0 || cfg.AtomicityThreshold > 1 {
		cfg.AtomicityThreshold = def.AtomicityThreshold
	}
	if cfg.QualityThreshold <= 0 || cfg.QualityThreshold > 1 {
		cfg.QualityThreshold = def.QualityThreshold
	}
	if cfg.ParallelWorkers < 1 {
		cfg.ParallelWorkers = def.ParallelWorkers
	}
	if cfg.MaxConcurrentVerifications < 1 {
		cfg.MaxConcurrentVerifications = def.MaxConcurrentVerifications
	}
	if cfg.MaxConcurrentBatches < 1 {
		cfg.MaxConcurrentBatches = def.MaxConcurrentBatches
	}
	if cfg.VerificationTimeoutSec < 1 {
		cfg.VerificationTimeoutSec = def.VerificationTimeoutSec
	}
	if cfg.LLMTimeoutSec < 1 {
		cfg.LLMTimeoutSec = def.LLMTimeoutSec
	}
	if cfg.SuccessRateWindowSize < 1 {
		cfg.SuccessRateWindowSize = def.SuccessRateWindowSize
	}
	if cfg.PassRateLowBand <= 0 || cfg.PassRateLowBand >= cfg.PassRateHighBand || cfg.PassRateHighBand > 1 {
		cfg.PassRateLowBand = def.PassRateLowBand
		cfg.PassRateHighBand = def.PassRateHighBand
	}
	return cfg
}
