package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"textagents/pkg/registry"
)

const summarizer = `---
[agent]
model = "openai:gpt-4o-mini"
name = "summarizer"

[agent.input_type]
text = "str"
max_words = { type = "int", optional = true }

[agent.output_type]
summary = { type = "str" }
---
Summarize in at most {max_words} words:
{text}
`

const classifier = `---
[agent]
model = "anthropic:claude-sonnet-4-5"

[agent.output_type]
label = { type = "str", enum = ["bug", "feature"] }
---
Classify: {ticket}
`

func workspace(t *testing.T) (dir, regPath string) {
	t.Helper()
	dir = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "agents"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "configs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "summarizer.txt"), []byte(summarizer), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "agents", "ticket_classifier.txt"), []byte(classifier), 0o600))
	return dir, filepath.Join(dir, "configs", "agents.yaml")
}

func TestAddAgent(t *testing.T) {
	dir, regPath := workspace(t)

	entry, err := addAgent(regPath, &addOptions{
		file:    filepath.Join(dir, "agents", "summarizer.txt"),
		timeout: "90s",
		tags:    "text, nlp",
	})
	require.NoError(t, err)

	assert.Equal(t, "summarizer", entry.ID)
	assert.Equal(t, "Summarizer", entry.DisplayName)
	assert.Equal(t, "agent-summarizer", entry.TaskType)
	assert.Equal(t, "../agents/summarizer.txt", entry.File)
	assert.Equal(t, []string{"max_words", "text"}, entry.Inputs)
	assert.Equal(t, []string{"summary"}, entry.Outputs)
	assert.Equal(t, []string{"text", "nlp"}, entry.Tags)
	assert.True(t, entry.Enabled)

	reg, err := registry.LoadRegistry(regPath)
	require.NoError(t, err)
	require.Len(t, reg.Agents, 1)
	assert.Equal(t, filepath.Join(dir, "agents", "summarizer.txt"), reg.Agents[0].ResolveFile(regPath))

	_, err = addAgent(regPath, &addOptions{file: filepath.Join(dir, "agents", "summarizer.txt")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestAddAgent_InvalidDefinition(t *testing.T) {
	dir, regPath := workspace(t)
	bad := filepath.Join(dir, "agents", "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte("no header {x}"), 0o600))

	_, err := addAgent(regPath, &addOptions{file: bad})
	require.Error(t, err)
	_, statErr := os.Stat(regPath)
	assert.True(t, os.IsNotExist(statErr), "registry is not written on failure")
}

func TestUpdateAgent(t *testing.T) {
	dir, regPath := workspace(t)
	_, err := addAgent(regPath, &addOptions{file: filepath.Join(dir, "agents", "summarizer.txt")})
	require.NoError(t, err)

	require.NoError(t, updateAgent(regPath, "summarizer", "model", "openai:gpt-4o"))
	require.NoError(t, updateAgent(regPath, "summarizer", "enabled", "false"))

	reg, err := registry.LoadRegistry(regPath)
	require.NoError(t, err)
	assert.Equal(t, "openai:gpt-4o", reg.Agents[0].Model)
	assert.False(t, reg.Agents[0].Enabled)

	assert.ErrorContains(t, updateAgent(regPath, "nope", "model", "x"), "not found")
	assert.ErrorContains(t, updateAgent(regPath, "summarizer", "color", "red"), "unknown field")
	assert.ErrorContains(t, updateAgent(regPath, "summarizer", "timeout", "soon"), "invalid timeout")
}

func TestSyncDir(t *testing.T) {
	dir, regPath := workspace(t)

	added, refreshed, err := syncDir(regPath, filepath.Join(dir, "agents"))
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.Zero(t, refreshed)

	require.NoError(t, updateAgent(regPath, "ticket_classifier", "model", "openai:gpt-4o"))

	added, refreshed, err = syncDir(regPath, filepath.Join(dir, "agents"))
	require.NoError(t, err)
	assert.Zero(t, added)
	assert.Equal(t, 2, refreshed)

	reg, err := registry.LoadRegistry(regPath)
	require.NoError(t, err)
	e, ok := reg.Find("ticket_classifier")
	require.True(t, ok)
	assert.Equal(t, "openai:gpt-4o", e.Model, "overrides survive a sync")
	assert.Equal(t, []string{"ticket"}, e.Inputs)
	assert.Equal(t, "agent-ticket-classifier", e.TaskType)
}

func TestValidateRegistry(t *testing.T) {
	dir, regPath := workspace(t)
	_, _, err := syncDir(regPath, filepath.Join(dir, "agents"))
	require.NoError(t, err)

	n, err := validateRegistry(regPath)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, os.Remove(filepath.Join(dir, "agents", "summarizer.txt")))
	_, err = validateRegistry(regPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agent summarizer")
}

func TestTaskTypeFor(t *testing.T) {
	assert.Equal(t, "agent-ticket-classifier", taskTypeFor("ticket_classifier"))
	assert.Equal(t, "agent-review-v2", taskTypeFor("review.v2"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ticket Classifier", displayName("ticket_classifier"))
	assert.Equal(t, "Code Review V2", displayName("code-review.v2"))
}
