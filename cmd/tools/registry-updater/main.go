// cmd/tools/registry-updater/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var registryPath string

var rootCmd = &cobra.Command{
	Use:   "registry-updater",
	Short: "Maintain the agent registry served by agent-worker",
	Long: `registry-updater adds, updates and validates entries in the agent registry.

Examples:
  registry-updater add -f agents/sentiment.txt --task-type agent-sentiment
  registry-updater update --id sentiment --field model --value openai:gpt-4o-mini
  registry-updater sync --dir agents
  registry-updater validate --path configs/agents.yaml`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&registryPath, "path", "p", "configs/agents.yaml", "Path to registry file (.yaml, .yml or .json)")

	rootCmd.AddCommand(newAddCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newValidateCmd())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
