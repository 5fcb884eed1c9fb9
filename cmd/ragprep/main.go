// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the ragprep CLI. It turns PDF
// documents into tagged, size-bounded text nodes for RAG indexing.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is configured from --log-format and --verbose before any
// subcommand runs.
var logger = slog.New(slog.DiscardHandler)

// rootCmd is the base command for the ragprep CLI.
var rootCmd = &cobra.Command{
	Use:   "ragprep",
	Short: "Prepare PDF documents for RAG ingestion",
	Long: `ragprep converts PDF documents into clean, size-bounded, tagged text
nodes. Each document passes through conversion, cleaning, Vietnamese
normalization, chunking, audit and tagging, and is written as
<doc_id>_lightrag.json with plain-text review exports.

Processed documents can be stored in a local SQLite full-text index and
searched or exported from there.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("log-format")
		verbose, _ := cmd.Flags().GetBool("verbose")
		l, err := newLogger(os.Stderr, format, verbose)
		if err != nil {
			return err
		}
		logger = l
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./ragprep.yaml or ~/.config/ragprep/ragprep.yaml)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format: text or json")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("raw-dir", "data/raw", "directory holding input PDFs")
	rootCmd.PersistentFlags().String("processed-dir", "data/processed", "directory receiving processed JSON")
	rootCmd.PersistentFlags().String("export-dir", "data/exported", "directory receiving text exports")
	rootCmd.PersistentFlags().String("index-dir", "data/index", "directory holding nodes.db")

	bindFlags(rootCmd, map[string]string{
		"raw-dir":       "paths.raw_dir",
		"processed-dir": "paths.processed_dir",
		"export-dir":    "paths.export_dir",
		"index-dir":     "index.dir",
	})
}

func initConfig() {
	// A missing .env is not an error.
	_ = godotenv.Load()

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("ragprep")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "ragprep"))
		}
	}

	configureViper(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
