// cmd/textagents/root.go
package main

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"textagents/internal/common/config"
	"textagents/internal/common/logger"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "textagents",
	Short: "Run text-defined agents from the command line",
	Long: `textagents loads agent definition files (a TOML header between --- lines
followed by a prompt template) and runs them against a model provider,
returning structured output that matches the declared fields.

Provider API keys are read from the environment or a .env file.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		config.LoadEnvFile()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log model attempts to stderr")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(infoCmd)
	rootCmd.AddCommand(validateCmd)
}

// Execute runs the root command and exits 1 on any error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		reportError(os.Stderr, err)
		os.Exit(1)
	}
}

// invalidDefinitionError marks a failure that the validate command reports
// with its own prefix.
type invalidDefinitionError struct {
	err error
}

func (e *invalidDefinitionError) Error() string { return e.err.Error() }
func (e *invalidDefinitionError) Unwrap() error { return e.err }

func reportError(w io.Writer, err error) {
	var invalid *invalidDefinitionError
	if stderrors.As(err, &invalid) {
		fmt.Fprintf(w, "Invalid agent definition: %v\n", invalid.err)
		return
	}
	fmt.Fprintf(w, "Error: %v\n", err)
}

func cliLogger() logger.Logger {
	if !verbose {
		return logger.NewNoOpLogger()
	}
	return logger.NewStructured("debug", "console")
}
