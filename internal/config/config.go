// Package config handles configuration loading and management for Quill.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for Quill.
type Config struct {
	Anthropic  AnthropicConfig  `mapstructure:"anthropic"`
	Selector   SelectorConfig   `mapstructure:"selector"`
	Router     RouterConfig     `mapstructure:"router"`
	Limits     LimitsConfig     `mapstructure:"limits"`
	Timeouts   TimeoutsConfig   `mapstructure:"timeouts"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Validation ValidationConfig `mapstructure:"validation"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	// UseBedrock routes API calls through AWS Bedrock instead of the direct API.
	UseBedrock bool `mapstructure:"use_bedrock"`
	// AWSRegion is the Bedrock region (e.g. "us-west-2").
	AWSRegion string `mapstructure:"aws_region"`
	// AWSProfile is the optional AWS shared-config profile.
	AWSProfile string `mapstructure:"aws_profile"`
}

// SelectorConfig holds worker-selection scoring settings.
type SelectorConfig struct {
	// CapabilityWeight weights capability-tag overlap with the task domain.
	CapabilityWeight float64 `mapstructure:"capability_weight"`
	// PerformanceWeight weights the worker's rolling performance score.
	PerformanceWeight float64 `mapstructure:"performance_weight"`
	// LoadWeight weights the inverse of current in-flight load.
	LoadWeight float64 `mapstructure:"load_weight"`
	// MinScore is the floor below which no worker qualifies.
	MinScore float64 `mapstructure:"min_score"`
	// MaxParallelWorkers caps workers selected in parallel mode.
	MaxParallelWorkers int `mapstructure:"max_parallel_workers"`
	// MaxJaccard is the pairwise capability-overlap ceiling for parallel
	// selection; workers more similar than this are considered redundant.
	MaxJaccard float64 `mapstructure:"max_jaccard"`
}

// RouterConfig holds provider-routing scoring settings.
type RouterConfig struct {
	QualityWeight     float64 `mapstructure:"quality_weight"`
	CostWeight        float64 `mapstructure:"cost_weight"`
	LatencyWeight     float64 `mapstructure:"latency_weight"`
	ReliabilityWeight float64 `mapstructure:"reliability_weight"`
	// BreakerFailureThreshold is consecutive failures before a circuit opens.
	BreakerFailureThreshold int `mapstructure:"breaker_failure_threshold"`
	// BreakerCooldown is how long an open circuit waits before half-open.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// LimitsConfig holds concurrency and retry limits.
type LimitsConfig struct {
	// PerWorkflowConcurrency bounds parallel invocations within one workflow.
	PerWorkflowConcurrency int `mapstructure:"per_workflow_concurrency"`
	// GlobalConcurrency bounds parallel invocations across all workflows.
	GlobalConcurrency int `mapstructure:"global_concurrency"`
	// MaxRetries is the number of additional attempts after a failed one.
	MaxRetries int `mapstructure:"max_retries"`
}

// TimeoutsConfig holds timeout settings.
type TimeoutsConfig struct {
	// Approval is how long a pending approval request stays open.
	Approval time.Duration `mapstructure:"approval"`
	// Execution is the per-attempt provider call timeout.
	Execution time.Duration `mapstructure:"execution"`
}

// ClassifierConfig holds task-classification settings.
type ClassifierConfig struct {
	// VoteThreshold is the confidence below which extra samples are taken.
	VoteThreshold float64 `mapstructure:"vote_threshold"`
	// HumanThreshold is the confidence below which classification escalates
	// to a human instead of proceeding.
	HumanThreshold float64 `mapstructure:"human_threshold"`
	// MaxSamples is the number of classification samples for majority vote.
	MaxSamples int `mapstructure:"max_samples"`
}

// ValidationConfig holds output-validation settings.
type ValidationConfig struct {
	// MinOutputChars rejects aggregate outputs shorter than this.
	MinOutputChars int `mapstructure:"min_output_chars"`
}

// Load loads configuration from XDG paths, project overrides, and environment
// variables. Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.quill.yaml in current directory or parent)
// 3. User config (~/.config/quill/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("selector.min_score", cfg.Selector.MinScore)
	v.Set("limits.per_workflow_concurrency", cfg.Limits.PerWorkflowConcurrency)
	v.Set("limits.global_concurrency", cfg.Limits.GlobalConcurrency)
	v.Set("limits.max_retries", cfg.Limits.MaxRetries)
	v.Set("timeouts.approval", cfg.Timeouts.Approval.String())
	v.Set("timeouts.execution", cfg.Timeouts.Execution.String())

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.use_bedrock", false)

	v.SetDefault("selector.capability_weight", 0.5)
	v.SetDefault("selector.performance_weight", 0.3)
	v.SetDefault("selector.load_weight", 0.2)
	v.SetDefault("selector.min_score", 0.35)
	v.SetDefault("selector.max_parallel_workers", 3)
	v.SetDefault("selector.max_jaccard", 0.6)

	v.SetDefault("router.quality_weight", 0.4)
	v.SetDefault("router.cost_weight", 0.2)
	v.SetDefault("router.latency_weight", 0.15)
	v.SetDefault("router.reliability_weight", 0.25)
	v.SetDefault("router.breaker_failure_threshold", 3)
	v.SetDefault("router.breaker_cooldown", "1m")

	v.SetDefault("limits.per_workflow_concurrency", 3)
	v.SetDefault("limits.global_concurrency", 8)
	v.SetDefault("limits.max_retries", 2)

	v.SetDefault("timeouts.approval", "30m")
	v.SetDefault("timeouts.execution", "5m")

	v.SetDefault("classifier.vote_threshold", 0.7)
	v.SetDefault("classifier.human_threshold", 0.5)
	v.SetDefault("classifier.max_samples", 3)

	v.SetDefault("validation.min_output_chars", 40)
}

// getUserConfigDir returns the XDG config directory for Quill.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quill")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quill")
	}
	return filepath.Join(home, ".config", "quill")
}

// findProjectConfig searches for .quill.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quill.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{},
		Selector: SelectorConfig{
			CapabilityWeight:   0.5,
			PerformanceWeight:  0.3,
			LoadWeight:         0.2,
			MinScore:           0.35,
			MaxParallelWorkers: 3,
			MaxJaccard:         0.6,
		},
		Router: RouterConfig{
			QualityWeight:           0.4,
			CostWeight:              0.2,
			LatencyWeight:           0.15,
			ReliabilityWeight:       0.25,
			BreakerFailureThreshold: 3,
			BreakerCooldown:         time.Minute,
		},
		Limits: LimitsConfig{
			PerWorkflowConcurrency: 3,
			GlobalConcurrency:      8,
			MaxRetries:             2,
		},
		Timeouts: TimeoutsConfig{
			Approval:  30 * time.Minute,
			Execution: 5 * time.Minute,
		},
		Classifier: ClassifierConfig{
			VoteThreshold:  0.7,
			HumanThreshold: 0.5,
			MaxSamples:     3,
		},
		Validation: ValidationConfig{
			MinOutputChars: 40,
		},
	}
}
