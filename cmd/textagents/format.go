// cmd/textagents/format.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

const longValueWidth = 100

var (
	passLabel = color.New(color.FgGreen, color.Bold).SprintFunc()
	failLabel = color.New(color.FgRed, color.Bold).SprintFunc()
	fieldName = color.New(color.FgCyan).SprintFunc()
)

// printPretty writes one field per line. Booleans read PASS or FAIL and long
// strings move to their own indented line.
func printPretty(w io.Writer, order []string, output map[string]interface{}) {
	for _, name := range orderedKeys(order, output) {
		switch v := output[name].(type) {
		case bool:
			label := failLabel("FAIL")
			if v {
				label = passLabel("PASS")
			}
			fmt.Fprintf(w, "%s: %s\n", fieldName(name), label)
		case string:
			if utf8.RuneCountInString(v) > longValueWidth {
				fmt.Fprintf(w, "%s:\n  %s\n", fieldName(name), v)
			} else {
				fmt.Fprintf(w, "%s: %s\n", fieldName(name), v)
			}
		default:
			fmt.Fprintf(w, "%s: %s\n", fieldName(name), plain(v))
		}
	}
}

func plain(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// preview cuts s to n runes, marking the cut with "...".
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

func joinValues(values []interface{}) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ", ")
}
