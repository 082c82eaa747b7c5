// internal/spec/parser_test.go
package spec

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/internal/common/errors"
)

const validAgent = `---
[agent]
model = "openai:gpt-5"
name = "judge"
instructions = "You are a careful reviewer. Today is {CURRENT_DATE}."
retries = 3

[agent.settings]
temperature = 0.2
max_tokens = 512

[agent.input_type]
user_input = "str"
count = { type = "int", optional = true, description = "How many" }

[agent.output_type]
name = "Verdict"
description = "Review verdict"
reasoning = { type = "str", description = "Explanation" }
score = { type = "float", ge = 0, le = 1.0 }
is_valid = { description = "Whether valid" }
severity = { type = "int", enum = [1, 2, 3, 4, 5] }
tags = { type = "list[str]", min_items = 1, max_items = 3, optional = true }
---
Evaluate: {user_input}
`

func TestParse_FullDefinition(t *testing.T) {
	s, err := Parse(validAgent, "agents/judge.txt")
	require.NoError(t, err)

	assert.Equal(t, "openai:gpt-5", s.Model)
	assert.Equal(t, "judge", s.Name)
	assert.Equal(t, "Evaluate: {user_input}", s.PromptTemplate)
	assert.Equal(t, 3, s.Retries)
	assert.Equal(t, "Verdict", s.OutputTypeName)
	assert.Equal(t, "Review verdict", s.OutputTypeDescription)
	assert.Equal(t, 0.2, s.Settings["temperature"])
	assert.Equal(t, 512, s.Settings["max_tokens"])
	assert.Equal(t, "agents/judge.txt", s.SourcePath)

	names := make([]string, len(s.OutputFields))
	for i, f := range s.OutputFields {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"reasoning", "is_valid", "score", "severity", "tags"}, names)

	score, ok := s.Field("score")
	require.True(t, ok)
	require.NotNil(t, score.GE)
	require.NotNil(t, score.LE)
	assert.Equal(t, 0.0, *score.GE)
	assert.Equal(t, 1.0, *score.LE)
	assert.Nil(t, score.GT)

	severity, _ := s.Field("severity")
	assert.Equal(t, []interface{}{1, 2, 3, 4, 5}, severity.Enum)

	tags, _ := s.Field("tags")
	assert.True(t, tags.Optional)
	assert.Equal(t, 1, *tags.MinItems)
	assert.Equal(t, 3, *tags.MaxItems)

	require.Len(t, s.InputDefinitions, 2)
	assert.Equal(t, InputSpec{Name: "count", Type: TypeInt, Description: "How many", Optional: true}, s.InputDefinitions[0])
	assert.Equal(t, InputSpec{Name: "user_input", Type: TypeStr}, s.InputDefinitions[1])

	assert.Equal(t, []string{"user_input"}, s.Placeholders())
	assert.Equal(t, []string{"CURRENT_DATE"}, s.InstructionPlaceholders())
	assert.Equal(t, []string{"CURRENT_DATE", "user_input"}, s.AllPlaceholders())
}

func TestParse_MinimalScenario(t *testing.T) {
	content := "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nreasoning = { type = \"str\" }\nis_valid = {}\n---\nEvaluate: {input}"

	s, err := Parse(content, "")
	require.NoError(t, err)

	require.Len(t, s.OutputFields, 2)
	assert.Equal(t, "reasoning", s.OutputFields[0].Name)
	assert.Equal(t, TypeStr, s.OutputFields[0].Type)
	assert.Equal(t, "is_valid", s.OutputFields[1].Name)
	assert.Equal(t, TypeBool, s.OutputFields[1].Type)
	assert.Equal(t, DefaultRetries, s.Retries)
	assert.Equal(t, DefaultOutputTypeName, s.OutputTypeName)
	assert.Empty(t, s.InputDefinitions)
}

func TestParse_DefinitionErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantMsg string
	}{
		{
			name:    "no front matter",
			content: "Evaluate: {input}",
			wantMsg: "Missing required section '[agent]'",
		},
		{
			name:    "unclosed front matter",
			content: "---\n[agent]\nmodel = \"m\"\nEvaluate: {input}",
			wantMsg: "Missing required section '[agent]'",
		},
		{
			name:    "invalid toml",
			content: "---\n[agent\n---\nEvaluate: {input}",
			wantMsg: "Invalid TOML in front-matter",
		},
		{
			name:    "missing model",
			content: "---\n[agent]\nname = \"x\"\n---\nEvaluate: {input}",
			wantMsg: "Missing required field 'model' in [agent] section.",
		},
		{
			name:    "empty body",
			content: "---\n[agent]\nmodel = \"m\"\n---\n   \n",
			wantMsg: "No prompt body found",
		},
		{
			name:    "no placeholders",
			content: "---\n[agent]\nmodel = \"m\"\n---\nEvaluate this.",
			wantMsg: "Prompt body has no {placeholders}.",
		},
		{
			name:    "no output fields",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nname = \"Out\"\ndescription = \"d\"\n---\nEvaluate: {input}",
			wantMsg: "No fields defined in [agent.output_type].",
		},
		{
			name:    "unsupported type",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nx = { type = \"dict\" }\n---\nEvaluate: {input}",
			wantMsg: "Unsupported type 'dict' for field 'x'.",
		},
		{
			name:    "bad input shape",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.input_type]\ncount = 5\n[agent.output_type]\nok = {}\n---\nEvaluate: {count}",
			wantMsg: "Invalid input_type for 'count': expected table or string, got integer.",
		},
		{
			name:    "negative retries",
			content: "---\n[agent]\nmodel = \"m\"\nretries = -1\n[agent.output_type]\nok = {}\n---\nEvaluate: {input}",
			wantMsg: "must be zero or greater, got -1.\n\nExample:\n  [agent]\n  retries = 2",
		},
		{
			name:    "retries not an integer",
			content: "---\n[agent]\nmodel = \"m\"\nretries = \"three\"\n[agent.output_type]\nok = {}\n---\nEvaluate: {input}",
			wantMsg: "Invalid value for 'retries' in [agent]: expected integer, got string.\n\nExample:\n  retries = 2",
		},
		{
			name:    "enum not an array",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nlevel = { type = \"str\", enum = \"low\" }\n---\nEvaluate: {input}",
			wantMsg: "expected array, got string.\n\nExample:\n  enum = [\"low\", \"medium\", \"high\"]",
		},
		{
			name:    "pattern not a string",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\ncode = { type = \"str\", pattern = 5 }\n---\nEvaluate: {input}",
			wantMsg: "expected string, got integer.\n\nExample:\n  pattern = ",
		},
		{
			name:    "settings not a table",
			content: "---\n[agent]\nmodel = \"m\"\nsettings = 3\n[agent.output_type]\nok = {}\n---\nEvaluate: {input}",
			wantMsg: "Example:\n  settings = { temperature = 0.2, max_tokens = 1024 }",
		},
		{
			name:    "constraint not a number",
			content: "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nscore = { type = \"float\", ge = \"low\" }\n---\nEvaluate: {input}",
			wantMsg: "Example:\n  ge = 0.5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Parse(tt.content, "")
			require.Error(t, err)
			assert.Nil(t, s)
			assert.Contains(t, err.Error(), tt.wantMsg)
			assert.True(t, stderrors.Is(err, errors.ErrDefinition))
			assert.True(t, stderrors.Is(err, errors.ErrTextAgents))
		})
	}
}

func TestParse_PlaceholderOnlyInInstructions(t *testing.T) {
	content := "---\n[agent]\nmodel = \"m\"\ninstructions = \"Focus on {topic}\"\n[agent.output_type]\nok = {}\n---\nReview the document."

	s, err := Parse(content, "")
	require.NoError(t, err)
	assert.Empty(t, s.Placeholders())
	assert.Equal(t, []string{"topic"}, s.AllPlaceholders())
}

func TestParse_NonTableOutputValuesSkipped(t *testing.T) {
	content := "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nstray = \"str\"\nok = {}\n---\n{input}"

	s, err := Parse(content, "")
	require.NoError(t, err)
	require.Len(t, s.OutputFields, 1)
	assert.Equal(t, "ok", s.OutputFields[0].Name)
}

func TestParse_EnumKeepsDeclarationOrderWithoutTypeCheck(t *testing.T) {
	content := "---\n[agent]\nmodel = \"m\"\n[agent.output_type]\nlevel = { type = \"str\", enum = [\"high\", 2, \"low\"] }\n---\n{input}"

	s, err := Parse(content, "")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"high", 2, "low"}, s.OutputFields[0].Enum)
}

func TestSplitFrontMatter(t *testing.T) {
	header, body, ok := SplitFrontMatter("---\na = 1\n  ---  \nbody\n---\nmore")
	assert.True(t, ok)
	assert.Equal(t, "a = 1", header)
	assert.Equal(t, "body\n---\nmore", body)

	_, body, ok = SplitFrontMatter("plain prompt {x}")
	assert.False(t, ok)
	assert.Equal(t, "plain prompt {x}", body)
}

func TestSortFields(t *testing.T) {
	fields := []FieldSpec{{Name: "zeta"}, {Name: "alpha"}, {Name: "reasoning"}, {Name: "beta"}}
	SortFields(fields)
	assert.Equal(t, "reasoning", fields[0].Name)
	assert.Equal(t, "alpha", fields[1].Name)
	assert.Equal(t, "beta", fields[2].Name)
	assert.Equal(t, "zeta", fields[3].Name)
}

func TestParseFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "judge.txt")
	require.NoError(t, os.WriteFile(path, []byte(validAgent), 0o600))

	s, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, s.SourcePath)

	_, err = ParseFile(filepath.Join(dir, "missing.txt"))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeAgentNotFound))
	assert.Contains(t, err.Error(), "Agent file not found")
}

func TestWithModel(t *testing.T) {
	s, err := Parse(validAgent, "")
	require.NoError(t, err)

	other := s.WithModel("anthropic:claude-sonnet-4-5")
	assert.Equal(t, "anthropic:claude-sonnet-4-5", other.Model)
	assert.Equal(t, "openai:gpt-5", s.Model)
}
