// internal/spec/frontmatter.go
package spec

import "strings"

const delimiter = "---"

// SplitFrontMatter separates the TOML header from the prompt body.
//
// The content must start with "---" and the header ends at the next line whose
// trimmed text is exactly "---". When either delimiter is missing, ok is false
// and the whole content is returned as the body.
func SplitFrontMatter(content string) (header, body string, ok bool) {
	if !strings.HasPrefix(content, delimiter) {
		return "", content, false
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == delimiter {
			return strings.Join(lines[1:i], "\n"), strings.Join(lines[i+1:], "\n"), true
		}
	}
	return "", content, false
}
