package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify Quill configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/quill/config.yaml
Project-specific overrides can be placed in .quill.yaml
Worker, provider, and grant catalogs live next to the config file.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	fmt.Printf("anthropic.api_key: %s (%s)\n",
		config.MaskAPIKey(cfg.Anthropic.APIKey), config.GetAPIKeySource(cfg))
	fmt.Printf("anthropic.use_bedrock: %t\n", cfg.Anthropic.UseBedrock)
	fmt.Printf("selector.min_score: %.2f\n", cfg.Selector.MinScore)
	fmt.Printf("selector.max_parallel_workers: %d\n", cfg.Selector.MaxParallelWorkers)
	fmt.Printf("router.breaker_failure_threshold: %d\n", cfg.Router.BreakerFailureThreshold)
	fmt.Printf("router.breaker_cooldown: %s\n", cfg.Router.BreakerCooldown)
	fmt.Printf("limits.per_workflow_concurrency: %d\n", cfg.Limits.PerWorkflowConcurrency)
	fmt.Printf("limits.global_concurrency: %d\n", cfg.Limits.GlobalConcurrency)
	fmt.Printf("limits.max_retries: %d\n", cfg.Limits.MaxRetries)
	fmt.Printf("timeouts.approval: %s\n", cfg.Timeouts.Approval)
	fmt.Printf("timeouts.execution: %s\n", cfg.Timeouts.Execution)
	fmt.Printf("classifier.human_threshold: %.2f\n", cfg.Classifier.HumanThreshold)
	fmt.Printf("validation.min_output_chars: %d\n", cfg.Validation.MinOutputChars)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		return config.MaskAPIKey(cfg.Anthropic.APIKey), nil
	case "anthropic.use_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseBedrock), nil
	case "anthropic.aws_region":
		return cfg.Anthropic.AWSRegion, nil
	case "selector.min_score":
		return strconv.FormatFloat(cfg.Selector.MinScore, 'f', 2, 64), nil
	case "selector.max_parallel_workers":
		return strconv.Itoa(cfg.Selector.MaxParallelWorkers), nil
	case "router.breaker_failure_threshold":
		return strconv.Itoa(cfg.Router.BreakerFailureThreshold), nil
	case "router.breaker_cooldown":
		return cfg.Router.BreakerCooldown.String(), nil
	case "limits.per_workflow_concurrency":
		return strconv.Itoa(cfg.Limits.PerWorkflowConcurrency), nil
	case "limits.global_concurrency":
		return strconv.Itoa(cfg.Limits.GlobalConcurrency), nil
	case "limits.max_retries":
		return strconv.Itoa(cfg.Limits.MaxRetries), nil
	case "timeouts.approval":
		return cfg.Timeouts.Approval.String(), nil
	case "timeouts.execution":
		return cfg.Timeouts.Execution.String(), nil
	case "classifier.human_threshold":
		return strconv.FormatFloat(cfg.Classifier.HumanThreshold, 'f', 2, 64), nil
	case "validation.min_output_chars":
		return strconv.Itoa(cfg.Validation.MinOutputChars), nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch strings.ToLower(key) {
	case "anthropic.api_key":
		if err := config.ValidateAPIKey(value); err != nil {
			return err
		}
		cfg.Anthropic.APIKey = value
	case "anthropic.use_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean for use_bedrock: %w", err)
		}
		cfg.Anthropic.UseBedrock = b
	case "anthropic.aws_region":
		cfg.Anthropic.AWSRegion = value
	case "selector.min_score":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid number for min_score: %w", err)
		}
		cfg.Selector.MinScore = f
	case "limits.per_workflow_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for per_workflow_concurrency: %w", err)
		}
		cfg.Limits.PerWorkflowConcurrency = n
	case "limits.global_concurrency":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for global_concurrency: %w", err)
		}
		cfg.Limits.GlobalConcurrency = n
	case "limits.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid value for max_retries: %w", err)
		}
		cfg.Limits.MaxRetries = n
	case "timeouts.approval":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.approval: %w", err)
		}
		cfg.Timeouts.Approval = d
	case "timeouts.execution":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration for timeouts.execution: %w", err)
		}
		cfg.Timeouts.Execution = d
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
