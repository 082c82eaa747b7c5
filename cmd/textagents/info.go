// cmd/textagents/info.go
package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"textagents/internal/common/errors"
	"textagents/internal/spec"
)

var infoCmd = &cobra.Command{
	Use:   "info <agent-file>",
	Short: "Show information about an agent definition",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := spec.ParseFile(args[0])
		if err != nil {
			return err
		}
		printInfo(cmd.OutOrStdout(), args[0], s)
		return nil
	},
}

func printInfo(w io.Writer, path string, s *spec.Specification) {
	name := s.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	fmt.Fprintf(w, "Agent: %s\n", name)
	fmt.Fprintf(w, "Model: %s\n", s.Model)
	fmt.Fprintf(w, "Retries: %d\n", s.Retries)

	if s.Instructions != "" {
		fmt.Fprintf(w, "\nInstructions: %s\n", preview(s.Instructions, 100))
	}

	fmt.Fprintln(w, "\nInputs:")
	if len(s.InputDefinitions) > 0 {
		for _, in := range s.InputDefinitions {
			fmt.Fprintf(w, "  %s: %s%s%s\n", in.Name, in.Type, optionalNote(in.Optional), descNote(in.Description))
		}
	} else {
		magic := make(map[string]bool, len(errors.MagicVariableNames))
		for _, m := range errors.MagicVariableNames {
			magic[m] = true
		}
		for _, p := range s.AllPlaceholders() {
			if !magic[p] {
				fmt.Fprintf(w, "  %s: str (from template)\n", p)
			}
		}
	}

	fmt.Fprintln(w, "\nOutput fields:")
	for _, f := range s.OutputFields {
		enum := ""
		if f.HasEnum() {
			enum = " [" + joinValues(f.Enum) + "]"
		}
		fmt.Fprintf(w, "  %s: %s%s%s%s\n", f.Name, f.Type, enum, optionalNote(f.Optional), descNote(f.Description))
	}

	fmt.Fprintf(w, "\nPrompt template (%d chars):\n", len(s.PromptTemplate))
	fmt.Fprintf(w, "  %s\n", preview(s.PromptTemplate, 200))
}

func optionalNote(optional bool) string {
	if optional {
		return " (optional)"
	}
	return ""
}

func descNote(desc string) string {
	if desc == "" {
		return ""
	}
	return " - " + desc
}
