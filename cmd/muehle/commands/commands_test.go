package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"muehle-agent/internal/agent"
	"muehle-agent/internal/domain"
	"muehle-agent/internal/infra/config"
)

// writeConfig writes a config that keeps the store and logs in a temp dir.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	data := "logger:\n  level: warn\n  format: text\n  output: discard\n" +
		"metrics:\n  enabled: false\n" +
		"store:\n  path: " + filepath.Join(dir, "games.db") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))
	return path
}

// run executes the CLI with args and returns what it printed.
func run(t *testing.T, cfgPath string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"--config", cfgPath}, args...))

	err := root.ExecuteContext(context.Background())
	if appCtx != nil {
		require.NoError(t, appCtx.Close(context.Background()))
		appCtx = nil
	}
	return out.String(), errOut.String(), err
}

var answerRe = regexp.MustCompile(`^(-|\d+) \d+ (-|\d+) score=-?\d+ depth=\d+$`)

func TestAnalyze_Stdin(t *testing.T) {
	cfg := writeConfig(t)
	in := "P W EEEEEEEEEEEEEEEEEEEEEEEE\n\nnot a query\nP B WEEEEEEEEEEEEEEEEEEEEEEE\n"

	out, errOut, err := run(t, cfg, in, "analyze", "-d", "easy")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2, out)
	for _, l := range lines {
		assert.Regexp(t, answerRe, l)
	}
	assert.Contains(t, errOut, "error:")
}

func TestAnalyze_Args(t *testing.T) {
	cfg := writeConfig(t)
	out, _, err := run(t, cfg, "", "analyze", "-d", "medium", "M W WWEEEEEEBBEEEEEEWEEEEEBE")
	require.NoError(t, err)
	assert.Regexp(t, answerRe, strings.TrimSpace(out))
}

func TestAnalyze_RejectsOff(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := run(t, cfg, "", "analyze", "-d", "off", "P W EEEEEEEEEEEEEEEEEEEEEEEE")
	assert.Error(t, err)
}

func TestSelfPlayThenHistory(t *testing.T) {
	cfg := writeConfig(t)

	out, _, err := run(t, cfg, "", "selfplay", "-n", "2", "--white", "easy", "--black", "easy", "--max-plies", "12")
	require.NoError(t, err)
	assert.Contains(t, out, "draws")

	out, _, err = run(t, cfg, "", "history", "list", "--json")
	require.NoError(t, err)
	var games []domain.GameRecord
	require.NoError(t, json.Unmarshal([]byte(out), &games))
	require.Len(t, games, 2)
	for _, g := range games {
		assert.Equal(t, domain.SourceSelfPlay, g.Source)
		assert.Equal(t, "Easy", g.White)
		assert.NotEmpty(t, g.Winner)
	}

	out, _, err = run(t, cfg, "", "history", "list", "--source", domain.SourceLocal)
	require.NoError(t, err)
	assert.Contains(t, out, "no games recorded")

	out, _, err = run(t, cfg, "", "history", "list")
	require.NoError(t, err)
	assert.Contains(t, out, games[0].ID)
	assert.Contains(t, out, "WINNER")

	out, _, err = run(t, cfg, "", "history", "show", games[0].ID)
	require.NoError(t, err)
	assert.Contains(t, out, "  1. White")
}

func TestHistoryShow_Unknown(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := run(t, cfg, "", "history", "show", "01JUNKNOWN")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestValidate_NotAModule(t *testing.T) {
	cfg := writeConfig(t)
	path := filepath.Join(t.TempDir(), "junk.wasm")
	require.NoError(t, os.WriteFile(path, []byte("not wasm"), 0o600))

	_, _, err := run(t, cfg, "", "validate", path)
	assert.ErrorIs(t, err, domain.ErrModuleLoad)
}

func TestHost_BlocksPrivateURL(t *testing.T) {
	cfg := writeConfig(t)
	f, err := os.OpenFile(cfg, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("host:\n  block_private_urls: true\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	_, _, err = run(t, cfg, "", "host", "--frames", "1", "http://127.0.0.1:9/guest.wasm")
	assert.ErrorIs(t, err, domain.ErrURLBlocked)
}

func TestServe_NothingEnabled(t *testing.T) {
	cfg := writeConfig(t)
	_, _, err := run(t, cfg, "", "serve")
	assert.ErrorContains(t, err, "nothing to serve")
}

func TestLevelsFromConfig(t *testing.T) {
	levels, err := levelsFromConfig(map[string]config.LevelConfig{
		"hard": {MaxDepth: 6, TimeBudget: time.Second},
	})
	require.NoError(t, err)
	assert.Equal(t, agent.Limits{MaxDepth: 6, TimeBudget: time.Second}, levels[agent.Hard])
	assert.Equal(t, agent.DefaultLevels()[agent.Easy], levels[agent.Easy])

	_, err = levelsFromConfig(map[string]config.LevelConfig{"brutal": {MaxDepth: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAnswerLines_StopsOnCancel(t *testing.T) {
	a := agent.New(agent.Deps{Searcher: agent.NewSearcher(1), Levels: agent.DefaultLevels(), Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	err := answerLines(ctx, a.NewLineSession(agent.Easy), strings.NewReader("P W EEEEEEEEEEEEEEEEEEEEEEEE\n"), &out, io.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, out.String())
}
