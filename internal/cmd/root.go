package cmd

import (
	"os"

	"github.com/nametidy/nametidy/internal/config"
	"github.com/nametidy/nametidy/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "nametidy",
	Short: "A tool for batch-normalizing file names",
	Long: `nametidy scans a directory tree, computes normalized names for every file
(diacritic removal, case conversion, special-character cleanup, whitespace
collapse), resolves naming conflicts, and applies the renames as one batch
that can be undone later.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

var verbosity int

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (repeatable)")
}

// loadConfig reads the user configuration once per invocation.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger builds the CLI logger, letting -v override the configured level.
func newLogger(cfg *config.Config) zerolog.Logger {
	if verbosity > 0 {
		return logging.NewTestLogger(os.Stderr, verbosity)
	}
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	return logging.New(os.Stderr, level)
}
