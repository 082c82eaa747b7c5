// cmd/textagents/validate.go
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"textagents/internal/agent"
	"textagents/internal/common/errors"
)

var validateCmd = &cobra.Command{
	Use:   "validate <agent-file>",
	Short: "Validate an agent definition without running it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		report, err := agent.Validate(args[0])
		if err != nil {
			if errors.IsCode(err, errors.ErrCodeAgentNotFound) {
				return err
			}
			return &invalidDefinitionError{err: err}
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Valid agent definition: %s\n", report.Path)
		fmt.Fprintf(w, "  Name: %s\n", report.Name)
		fmt.Fprintf(w, "  Model: %s\n", report.Model)
		fmt.Fprintf(w, "  Output fields: %d\n", len(report.OutputFields))
		fmt.Fprintf(w, "  Input placeholders: %d\n", len(report.Placeholders))
		return nil
	},
}
