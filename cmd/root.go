package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	cfgpkg "github.com/KaramelBytes/healthrisk-cli/internal/config"
)

var (
	// Global flags
	cfgFile      string
	debug        bool
	flagLogLevel string
	// Normalization overrides (override config if set)
	flagBoolPolicy     string
	flagCategoryPolicy string

	// Loaded configuration
	cfg *cfgpkg.Global
	// logger is rebuilt on every invocation from flags and config.
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "healthrisk",
	Short: "Health risk CLI: clean patient vitals, train risk models, predict risk levels",
	Long: `healthrisk normalizes a patient vital-signs dataset, fits a linear regression on the
ordinal risk level and a 4-cluster k-means model, reports their metrics, and predicts the risk
of new patients. Trained models can be saved, listed and served over HTTP.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	// Persistent global flags available to all subcommands
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ~/.healthrisk/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagBoolPolicy, "bool-policy", "", "unrecognized booleans: default_false|null_then_drop|reject (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagCategoryPolicy, "category-policy", "", "unknown categories: null_then_drop|reject (overrides config)")
	rootCmd.SilenceErrors = true
}

func loadConfig() {
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: fall back to defaults
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config, using defaults: %v\n", err)
		c = cfgpkg.Default()
	}
	cfg = c

	// Apply CLI overrides if provided
	f := rootCmd.PersistentFlags()
	if f.Changed("log-level") && flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	if f.Changed("bool-policy") && flagBoolPolicy != "" {
		cfg.BoolPolicy = flagBoolPolicy
	}
	if f.Changed("category-policy") && flagCategoryPolicy != "" {
		cfg.CategoryPolicy = flagCategoryPolicy
	}

	l, err := newLogger(cfg.LogLevel, debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "⚠ Warning: %v\n", err)
		l = zap.NewNop()
	}
	logger = l
}

// newLogger builds a development logger for --debug and a console production logger otherwise.
func newLogger(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	zc := zap.NewProductionConfig()
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.DisableStacktrace = true
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}
