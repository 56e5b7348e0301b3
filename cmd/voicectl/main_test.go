package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func run(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out := &lockedBuffer{}
	cmd := rootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetOut(out)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	archive := filepath.Join(dir, "archive")
	path := filepath.Join(dir, "voice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("observers: [noop]\nsession:\n  archive_dir: "+archive+"\n"), 0o600))
	return path, archive
}

func TestChatAndExport(t *testing.T) {
	config, _ := writeConfig(t)

	out := run(t, "please generate smart code\nwhat time is it\nsing a song\n/relationship\n/history\n/quit\n",
		"chat", "--config", config, "--log-level", "error")

	assert.Contains(t, out, "assistant> Smarty Core has finished generate.")
	assert.Contains(t, out, "assistant> Clock has finished check the time.")
	assert.Contains(t, out, "shared 3")
	assert.Contains(t, out, "[utterance] user: sing a song")

	match := regexp.MustCompile(`session (\S+)`).FindStringSubmatch(out)
	require.Len(t, match, 2)
	id := match[1]

	listed := run(t, "", "export", "--list", "--config", config, "--log-level", "error")
	assert.Equal(t, id+"\n", listed)

	raw := run(t, "", "export", id, "--config", config, "--log-level", "error")
	var exp struct {
		SessionID string           `json:"sessionId"`
		Messages  []map[string]any `json:"messages"`
	}
	require.NoError(t, json.Unmarshal([]byte(raw), &exp))
	assert.Equal(t, id, exp.SessionID)
	assert.Len(t, exp.Messages, 6)
}

func TestChat_InactiveCapability(t *testing.T) {
	config, _ := writeConfig(t)

	out := run(t, "take a note\nactivate notes and take a note\n/quit\n",
		"chat", "--config", config, "--log-level", "error")

	assert.Contains(t, out, "Notes is switched off right now.")
	assert.Contains(t, out, "Notes is now active and has finished record.")
}

func TestExport_RequiresArchive(t *testing.T) {
	cmd := rootCmd()
	cmd.SetArgs([]string{"export", "abc", "--log-level", "error"})
	cmd.SetOut(&bytes.Buffer{})
	assert.Error(t, cmd.Execute())
}

func TestVersion(t *testing.T) {
	assert.Contains(t, run(t, "", "version"), Version)
}
