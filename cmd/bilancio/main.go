package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bilancio/internal/config"
	"bilancio/internal/log"
)

// Build info - injected via ldflags
var (
	Version = "dev"
	Commit  = "unknown"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:           "bilancio",
	Short:         "Username checks and monthly income/expense charts",
	Long:          `bilancio serves a small widget that validates usernames and charts a year of income against expenses. The same checks and charts are available from the command line.`,
	Version:       Version + " (" + Commit + ")",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := loaded.Validate(); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

func newLogger(component string) *log.Logger {
	return log.New(log.Config{
		Level:     cfg.SlogLevel(),
		Component: component,
		Output:    os.Stderr,
	})
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errInvalidUsername) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
