// Package cmd provides the CLI commands for storyvec.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/storyvec/internal/config"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/logging"
	"github.com/Aman-CERP/storyvec/internal/profiling"
	"github.com/Aman-CERP/storyvec/pkg/version"
)

// skipConfigAnnotation marks commands that run without loading configuration.
const skipConfigAnnotation = "storyvec/skip-config"

// Process-wide state set up once by PersistentPreRunE.
var (
	configPath     string
	debugMode      bool
	loadedConfig   *config.Config
	logger         *slog.Logger
	loggingCleanup func()

	profileOpts profiling.Options
	profile     *profiling.Session
)

// NewRootCmd creates the root command for the storyvec CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storyvec",
		Short: "Semantic search over caption and story archives",
		Long: `storyvec extracts text from YAML caption and story files, embeds it with
a local or Ollama-hosted model, stores the vectors in Qdrant (or an embedded
HNSW store) and serves semantic search over HTTP.

Configuration is read from --config, $CONFIG_PATH, or ./config.yml.
EMBEDDING_BACKEND and QDRANT_URL override the file.`,
		Version:           version.Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
		PersistentPostRun: func(*cobra.Command, []string) { teardown() },
	}

	cmd.SetVersionTemplate("storyvec version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: $CONFIG_PATH or ./config.yml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to stderr")
	cmd.PersistentFlags().StringVar(&profileOpts.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Mem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newHealthCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setup starts requested profiles, loads configuration and installs the
// process logger.
func setup(cmd *cobra.Command, _ []string) error {
	if profileOpts.Enabled() {
		p, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profile = p
	}

	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[skipConfigAnnotation] == "true" {
			return nil
		}
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}

	l, cleanup, err := logging.Setup(cfg.LoggingSetup(debugMode))
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	loadedConfig = cfg
	logger = l
	loggingCleanup = cleanup
	slog.SetDefault(l)

	logger.Debug("config_loaded",
		slog.String("source", cfg.Source),
		slog.String("embedding_backend", cfg.Embeddings.Backend),
		slog.String("store_backend", cfg.Store.Backend))
	return nil
}

func teardown() {
	if profile != nil {
		if err := profile.Stop(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write profiles: %v\n", err)
		}
		profile = nil
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command and prints any error for the terminal.
func Execute() error {
	err := NewRootCmd().Execute()
	teardown()
	if err != nil {
		fmt.Fprint(os.Stderr, sverrors.FormatForCLI(err))
	}
	return err
}
