// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/refinement-engine/internal/ai"
	"github.com/pdiddy/refinement-engine/internal/secrets"
	"github.com/pdiddy/refinement-engine/pkg/types"
)

// setDefaults registers every scalar key so that environment variables such
// as REFINEMENT_ENGINE_AI_MODEL are picked up by Unmarshal.
func setDefaults() {
	d := types.DefaultConfig()

	viper.SetDefault("refine.max_iterations", d.Refine.MaxIterations)
	viper.SetDefault("refine.verbose", d.Refine.Verbose)
	viper.SetDefault("refine.operators", d.Refine.Operators)

	viper.SetDefault("ai.provider", string(d.AI.Provider))
	viper.SetDefault("ai.model", d.AI.Model)
	viper.SetDefault("ai.api_key", d.AI.APIKey)
	viper.SetDefault("ai.base_url", d.AI.BaseURL)
	viper.SetDefault("ai.max_retries", d.AI.MaxRetries)
	viper.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	viper.SetDefault("ai.requests_per_second", d.AI.RequestsPerSecond)
	viper.SetDefault("ai.cache_ttl", d.AI.CacheTTL)
	viper.SetDefault("ai.timeout", d.AI.Timeout)

	viper.SetDefault("extraction.documents_dir", d.Extraction.DocumentsDir)
	viper.SetDefault("extraction.knowledge_dir", d.Extraction.KnowledgeDir)

	viper.SetDefault("knowledge_base.knowledge_dir", d.KnowledgeBase.KnowledgeDir)
	viper.SetDefault("knowledge_base.max_results", d.KnowledgeBase.MaxResults)
}

// loadConfig returns the effective configuration: defaults, then config
// file, then environment, then flags bound to viper keys.
func loadConfig() (types.Config, error) {
	cfg := types.DefaultConfig()
	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// newBackend builds the configured AI backend, resolving the API key from
// flags/config, the provider's environment variable, or .secrets/.
func newBackend(cfg types.AIConfig) (ai.Backend, error) {
	switch cfg.Provider {
	case types.ProviderOpenAI:
		cfg.APIKey = secrets.Resolve(cfg.APIKey, loadedSecrets, secrets.OpenAIAPIKey, "OPENAI_API_KEY")
	default:
		cfg.APIKey = secrets.Resolve(cfg.APIKey, loadedSecrets, secrets.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("no API key for provider %q: set ai.api_key, the provider environment variable, or a .secrets/ key file", cfg.Provider)
	}
	return ai.New(cfg, logger)
}

// bindAIFlags adds the provider/model flags shared by commands that call a
// model.
func bindAIFlags(cmd *cobra.Command) {
	cmd.Flags().String("provider", "", "AI provider: claude or openai")
	cmd.Flags().String("model", "", "AI model identifier")
}

// applyAIFlags overrides provider and model when the flags were given.
func applyAIFlags(cmd *cobra.Command, cfg *types.AIConfig) {
	if cmd.Flags().Changed("provider") {
		p, _ := cmd.Flags().GetString("provider")
		cfg.Provider = types.AIProvider(strings.ToLower(p))
	}
	if cmd.Flags().Changed("model") {
		cfg.Model, _ = cmd.Flags().GetString("model")
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Show prints the configuration after merging defaults, the config file,
REFINEMENT_ENGINE_* environment variables and flags. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AI.APIKey != "" {
			cfg.AI.APIKey = "********"
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshaling configuration: %w", err)
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}
