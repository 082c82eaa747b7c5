// cmd/textagents/run.go
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"textagents/internal/agent"
)

var runCmd = &cobra.Command{
	Use:   "run <agent-file> [--inputs file.json] [--format json|pretty] [--model id] [--<input> value ...]",
	Short: "Run an agent with the given inputs",
	Long: `Run an agent definition and print its structured output.

Inputs can be provided via:
  --inputs, -i   JSON file with all inputs
  --<name> value individual inputs; dashes in the name become underscores
  --<name> @path read the input value from a file

Examples:
  textagents run agents/sentiment.txt --text "I love it" --stars 5
  textagents run agents/code_review.txt --code @main.go --format pretty
  textagents run agents/sentiment.txt -i inputs.json -m openai:gpt-4o-mini`,
	// Input names are only known once the definition is parsed.
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := parseRunArgs(args)
		if err != nil {
			return err
		}
		if opts.help {
			return cmd.Help()
		}
		if opts.verbose {
			verbose = true
		}
		return runAgent(cmd, opts)
	},
}

type runOptions struct {
	file       string
	inputsFile string
	format     string
	model      string
	inputs     map[string]interface{}
	verbose    bool
	help       bool
}

// parseRunArgs splits the run command line into known options and agent inputs.
// An input flag with no value, or followed by another flag, is ignored.
func parseRunArgs(args []string) (*runOptions, error) {
	opts := &runOptions{format: "json", inputs: map[string]interface{}{}}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		if !strings.HasPrefix(arg, "-") || arg == "-" || strings.HasPrefix(arg, "---") {
			if opts.file == "" {
				opts.file = arg
			}
			continue
		}

		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		next := func() (string, bool) {
			if hasValue {
				return value, true
			}
			if i+1 >= len(args) || strings.HasPrefix(args[i+1], "--") {
				return "", false
			}
			i++
			return args[i], true
		}

		switch name {
		case "h", "help":
			opts.help = true
		case "v", "verbose":
			opts.verbose = true
		case "i", "inputs":
			v, ok := next()
			if !ok {
				return nil, fmt.Errorf("flag --inputs needs a file path")
			}
			opts.inputsFile = v
		case "f", "format":
			v, ok := next()
			if !ok {
				return nil, fmt.Errorf("flag --format needs a value")
			}
			opts.format = v
		case "m", "model":
			v, ok := next()
			if !ok {
				return nil, fmt.Errorf("flag --model needs a value")
			}
			opts.model = v
		default:
			if !strings.HasPrefix(arg, "--") {
				return nil, fmt.Errorf("unknown shorthand flag: %s", arg)
			}
			if v, ok := next(); ok {
				opts.inputs[strings.ReplaceAll(name, "-", "_")] = v
			}
		}
	}

	if opts.help {
		return opts, nil
	}
	if opts.file == "" {
		return nil, fmt.Errorf("missing agent file argument")
	}
	if opts.format != "json" && opts.format != "pretty" {
		return nil, fmt.Errorf("unknown output format %q (expected json or pretty)", opts.format)
	}
	return opts, nil
}

func runAgent(cmd *cobra.Command, opts *runOptions) error {
	inputs, err := collectInputs(opts)
	if err != nil {
		return err
	}

	loadOpts := []agent.Option{agent.WithLogger(cliLogger())}
	if opts.model != "" {
		loadOpts = append(loadOpts, agent.WithModelOverride(opts.model))
	}
	a, err := agent.Load(opts.file, loadOpts...)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Run(cmd.Context(), inputs)
	if err != nil {
		return err
	}

	order := a.Schema().PropertyNames()
	if opts.format == "pretty" {
		printPretty(cmd.OutOrStdout(), order, res.Output)
		return nil
	}
	return printJSON(cmd.OutOrStdout(), order, res.Output)
}

// collectInputs merges the --inputs file with individual flags; flags win.
func collectInputs(opts *runOptions) (map[string]interface{}, error) {
	inputs := map[string]interface{}{}

	if opts.inputsFile != "" {
		data, err := os.ReadFile(opts.inputsFile)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("Inputs file not found: %s", opts.inputsFile)
			}
			return nil, fmt.Errorf("reading inputs file: %w", err)
		}
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&inputs); err != nil {
			return nil, fmt.Errorf("parsing inputs file %s: %w", opts.inputsFile, err)
		}
	}

	for k, v := range opts.inputs {
		inputs[k] = v
	}
	return inputs, nil
}

// printJSON writes output as indented JSON with keys in field order.
func printJSON(w io.Writer, order []string, output map[string]interface{}) error {
	var buf bytes.Buffer
	buf.WriteString("{")
	written := 0
	for _, name := range orderedKeys(order, output) {
		value, err := json.Marshal(output[name])
		if err != nil {
			return fmt.Errorf("encoding field %s: %w", name, err)
		}
		key, _ := json.Marshal(name)
		if written > 0 {
			buf.WriteString(",")
		}
		buf.Write(key)
		buf.WriteString(":")
		buf.Write(value)
		written++
	}
	buf.WriteString("}")

	var out bytes.Buffer
	if err := json.Indent(&out, buf.Bytes(), "", "  "); err != nil {
		return err
	}
	out.WriteString("\n")
	_, err := out.WriteTo(w)
	return err
}

// orderedKeys lists the keys of output present in order, followed by any others.
func orderedKeys(order []string, output map[string]interface{}) []string {
	keys := make([]string, 0, len(output))
	seen := make(map[string]bool, len(output))
	for _, name := range order {
		if _, ok := output[name]; ok {
			keys = append(keys, name)
			seen[name] = true
		}
	}
	var rest []string
	for name := range output {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	return append(keys, rest...)
}
