// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the refinement-engine CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/refinement-engine/internal/secrets"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets map[string]string

// logger is configured in PersistentPreRunE from --verbose.
var logger = slog.New(slog.DiscardHandler)

// rootCmd is the base command for the refinement-engine CLI.
var rootCmd = &cobra.Command{
	Use:   "refinement-engine",
	Short: "Refine extracted knowledge states to a fixed point",
	Long: `refinement-engine improves a structured knowledge state (claims with
evidence, confidence and relationships) by applying an ordered pipeline of
operators until a full pass changes nothing or the iteration budget runs out.

Extract states from Markdown documents with extract, refine them with refine,
inspect a saved run with analyze, and keep states in a searchable claim base
with knowledge.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logger = newLogger(viper.GetBool("refine.verbose"))

		s, err := secrets.Load(".secrets/")
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			logger.Debug("loaded secrets", "keys", keys)
		}
		return nil
	},
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./refinement-engine.yaml or ~/.config/refinement-engine/config.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "log engine diagnostics at info level and enable debug logging")
	viper.BindPFlag("refine.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("refinement-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "refinement-engine"))
		}
	}

	setDefaults()
	viper.SetEnvPrefix("REFINEMENT_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
