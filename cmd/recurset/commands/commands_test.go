package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"recurset/internal/config"
	"recurset/internal/source"
)

const dailyRule = "DURATION:PT1H\nDTSTART:20200101T090000Z\nRRULE:FREQ=DAILY;COUNT=3"

func writeRule(t *testing.T, dir, text string) string {
	t.Helper()
	path := filepath.Join(dir, "rule.txt")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--config", configPath}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestNormalizeCommand(t *testing.T) {
	t.Run("file", func(t *testing.T) {
		path := writeRule(t, t.TempDir(), "duration:PT1H\ndtstart:20200101T090000Z\nrrule:FREQ=DAILY;COUNT=3")
		out, err := run(t, "", "normalize", path)
		require.NoError(t, err)
		assert.Equal(t, dailyRule+"\n", out)
	})

	t.Run("stdin", func(t *testing.T) {
		out, err := run(t, "DURATION:PT30M\nRDATE:20200101T090000Z", "normalize", "-")
		require.NoError(t, err)
		assert.Equal(t, "DURATION:PT30M\nRDATE:20200101T090000Z\n", out)
	})

	t.Run("parse error", func(t *testing.T) {
		path := writeRule(t, t.TempDir(), "BOGUS:1")
		_, err := run(t, "", "normalize", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unrecognized recurrence rule property")
	})

	t.Run("missing argument", func(t *testing.T) {
		_, err := run(t, "", "normalize")
		assert.Error(t, err)
	})
}

func TestQueryCommandsLeaveConfigUnwritten(t *testing.T) {
	dir := t.TempDir()
	rule := writeRule(t, dir, dailyRule)
	configPath := filepath.Join(dir, "config.yaml")

	for _, args := range [][]string{
		{"normalize", rule},
		{"info", rule},
		{"between", rule, "--from", "20200101T000000Z", "--until", "20200102T000000Z"},
		{"next", rule, "--after", "20200101T000000Z"},
	} {
		cmd := NewRootCommand()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--config", configPath}, args...))
		require.NoError(t, cmd.Execute(), args[0])

		_, err := os.Stat(configPath)
		assert.True(t, os.IsNotExist(err), "%s wrote %s", args[0], configPath)
	}
}

func TestInfoCommand(t *testing.T) {
	path := writeRule(t, t.TempDir(), dailyRule+"\nEXDATE:20200102T090000Z")
	out, err := run(t, "", "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "sources:     1\n")
	assert.Contains(t, out, "exclusions:  1\n")
	assert.Contains(t, out, "unbounded:   false\n")
	assert.Contains(t, out, "first start: 2020-01-01T09:00:00Z\n")
	assert.Contains(t, out, "last end:    2020-01-03T10:00:00Z\n")
	assert.Contains(t, out, "min length:  PT1H\n")
}

func TestInfoCommand_Unbounded(t *testing.T) {
	path := writeRule(t, t.TempDir(), "DTSTART:20200101T090000Z\nRRULE:FREQ=DAILY")
	out, err := run(t, "", "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unbounded:   true\n")
	assert.Contains(t, out, "last end:    -\n")
}

func TestBetweenCommand(t *testing.T) {
	path := writeRule(t, t.TempDir(), dailyRule+"\nEXDATE:20200102T090000Z")

	out, err := run(t, "", "between", path, "--from", "2020-01-01T00:00:00Z", "--days", "5")
	require.NoError(t, err)
	assert.Equal(t,
		"2020-01-01T09:00:00Z/2020-01-01T10:00:00Z\n2020-01-03T09:00:00Z/2020-01-03T10:00:00Z\n", out)

	_, err = run(t, "", "between", path, "--from", "20200102T000000Z", "--until", "20200101T000000Z")
	assert.Error(t, err)

	_, err = run(t, "", "between", path, "--from", "soon")
	assert.Error(t, err)
}

func TestNextCommand(t *testing.T) {
	path := writeRule(t, t.TempDir(), dailyRule)

	out, err := run(t, "", "next", path, "--after", "2020-01-01T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-02T09:00:00Z/2020-01-02T10:00:00Z\n", out)

	out, err = run(t, "", "next", path, "--after", "2020-02-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "none\n", out)
}

func TestLimitFlag(t *testing.T) {
	path := writeRule(t, t.TempDir(), "DTSTART:20200101T090000Z\nRRULE:FREQ=DAILY;COUNT=20")

	out, err := run(t, "", "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unbounded:   false\n")

	out, err = run(t, "", "--limit", "5", "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, "unbounded:   true\n")
}

func TestWatcherTick(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.CacheDir = filepath.Join(dir, "cache")
	cfg.Rules = []config.RuleConfig{
		{ID: "daily", Path: writeRule(t, dir, dailyRule)},
		{ID: "missing", Path: filepath.Join(dir, "missing.txt")},
	}

	var out bytes.Buffer
	w := &watcher{
		cfg:    cfg,
		loader: source.NewLoader(cfg.CacheDir),
		out:    &out,
		now:    func() time.Time { return time.Date(2020, 1, 2, 9, 30, 0, 0, time.UTC) },
	}

	err := w.tick(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "daily\t2020-01-03T09:00:00Z/2020-01-03T10:00:00Z\n", out.String())

	out.Reset()
	w.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }
	cfg.Rules = cfg.Rules[:1]
	require.NoError(t, w.tick(context.Background()))
	assert.Equal(t, "daily\tnone\n", out.String())
}
