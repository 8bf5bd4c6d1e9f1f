package core

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/josephlewis42/msh/core/config"
	"github.com/sebdah/goldie/v2"
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

// scriptedInput replays lines and echoes them after the prompt like a
// terminal would.
type scriptedInput struct {
	lines  []string
	out    io.Writer
	prompt string
	resets int
}

func (in *scriptedInput) SetPrompt(prompt string) {
	in.prompt = prompt
}

func (in *scriptedInput) Readline() (string, error) {
	if len(in.lines) == 0 {
		return "", io.EOF
	}
	line := in.lines[0]
	in.lines = in.lines[1:]
	fmt.Fprintf(in.out, "%s%s\n", in.prompt, line)
	return line, nil
}

func (in *scriptedInput) ResetHistory() {
	in.resets++
}

// chanInput blocks until a line is sent or the channel is closed.
type chanInput struct {
	lines chan string
}

func (in *chanInput) SetPrompt(string) {}

func (in *chanInput) Readline() (string, error) {
	line, ok := <-in.lines
	if !ok {
		return "", io.EOF
	}
	return line, nil
}

func testConfig() *config.Configuration {
	cfg := config.Default()
	cfg.Prompt = "$ "
	return cfg
}

func runScript(t *testing.T, cfg *config.Configuration, lines ...string) (*Shell, *scriptedInput, string) {
	t.Helper()

	out := &lockedBuffer{}
	in := &scriptedInput{lines: lines, out: out}
	s := NewShell(cfg, in, out, out)

	status := s.Run()
	assert.Equal(t, 0, status)
	return s, in, out.String()
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(
		t,
		goldie.WithFixtureDir(filepath.Join("testdata", "golden")),
		goldie.WithDiffEngine(goldie.ColoredDiff),
		goldie.WithTestNameForDir(true),
	)
}

func TestShellTranscript(t *testing.T) {
	_, _, out := runScript(t, testConfig(),
		"echo hello",
		"# a comment",
		"",
		"cd /nonexistent",
		"nosuchcommand-msh",
		`echo "a b"   c`,
		"&",
		"exit",
		"echo unreachable",
	)

	newGoldie(t).Assert(t, "transcript", []byte(out))
}

func TestHelp(t *testing.T) {
	out := &lockedBuffer{}
	s := NewShell(testConfig(), &scriptedInput{}, out, out)

	assert.Equal(t, 0, Help(s, []string{"help"}))
	newGoldie(t).Assert(t, "help", []byte(out.String()))
}

func TestHelpTopics(t *testing.T) {
	stdout, stderr := &lockedBuffer{}, &lockedBuffer{}
	s := NewShell(testConfig(), &scriptedInput{}, stdout, stderr)

	assert.Equal(t, 0, Help(s, []string{"help", "cd"}))
	assert.Equal(t, "cd: change the shell working directory\n", stdout.String())

	assert.Equal(t, 1, Help(s, []string{"help", "nope"}))
	assert.Equal(t, "help: no help topics match `nope'.\n", stderr.String())
}

func TestBuiltinNames(t *testing.T) {
	assert.Equal(t, []string{"cd", "exit", "help", "history", "jobs"}, BuiltinNames())
}

func TestBackgroundJob(t *testing.T) {
	s, _, out := runScript(t, testConfig(), "sleep 0.2 &")

	assert.Regexp(t, regexp.MustCompile(`^\$ sleep 0.2 &\n\[1\] [0-9]+\n`), out)
	assert.Contains(t, out, "[1]+ Done                 sleep 0.2\n")
	assert.Equal(t, 0, s.Jobs().Len())
}

func TestExitDrainsJobs(t *testing.T) {
	s, _, out := runScript(t, testConfig(),
		"sleep 0.3 &",
		"sleep 0.1 &",
		"sleep 0.2 &",
		"exit",
	)

	for id := 1; id <= 3; id++ {
		assert.Regexp(t, regexp.MustCompile(fmt.Sprintf(`(?m)^\[%d\] [0-9]+$`, id)), out)
	}
	assert.Equal(t, 3, strings.Count(out, "+ Done"))
	assert.Equal(t, 0, s.Jobs().Len())
}

func TestCompletionWithoutInput(t *testing.T) {
	out := &lockedBuffer{}
	in := &chanInput{lines: make(chan string)}
	s := NewShell(testConfig(), in, out, out)

	status := make(chan int, 1)
	go func() {
		status <- s.Run()
	}()

	in.lines <- "sleep 0.1 &"

	// The completion line shows up while the shell waits for the next line.
	assert.Eventually(t, func() bool {
		return strings.Contains(out.String(), "[1]+ Done                 sleep 0.1\n")
	}, 5*time.Second, 10*time.Millisecond)

	close(in.lines)
	select {
	case code := <-status:
		assert.Equal(t, 0, code)
	case <-time.After(5 * time.Second):
		t.Fatal("shell didn't exit")
	}
	assert.Equal(t, 0, s.Jobs().Len())
}

func TestTableFullRunsInForeground(t *testing.T) {
	cfg := testConfig()
	cfg.MaxJobs = 1

	s, _, out := runScript(t, cfg,
		"sleep 0.3 &",
		"echo overflow &",
	)

	assert.Contains(t, out, "msh: job table full; running in foreground\n")
	assert.Contains(t, out, "overflow\n")
	assert.Equal(t, 1, strings.Count(out, "+ Done"))
	assert.Equal(t, 0, s.Jobs().Len())
}

func TestJobsBuiltin(t *testing.T) {
	_, _, out := runScript(t, testConfig(),
		"sleep 0.5 &",
		"jobs",
		"jobs -l",
		"jobs -x",
	)

	assert.Contains(t, out, "[1]  Running                 sleep 0.5\n")
	assert.Regexp(t, regexp.MustCompile(`\[1\]  [0-9]+ Running                 sleep 0.5\n`), out)
	assert.Contains(t, out, "usage: jobs [-l]")
}

func TestHistoryBuiltin(t *testing.T) {
	_, in, out := runScript(t, testConfig(),
		"echo one",
		"",
		"history",
		"history -c",
		"history",
	)

	assert.Contains(t, out, "$ history\n    0  echo one\n    1  history\n")
	assert.True(t, strings.HasSuffix(out, "$ history\n    0  history\n"), out)
	assert.Equal(t, 1, in.resets)
}

func TestCd(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() {
		os.Chdir(wd)
	})
	t.Setenv(EnvPWD, wd)
	t.Setenv(EnvOldPWD, "")

	stdout, stderr := &lockedBuffer{}, &lockedBuffer{}
	s := NewShell(testConfig(), &scriptedInput{}, stdout, stderr)

	samePath := func(t *testing.T, expected, actual string) {
		t.Helper()
		e, err := filepath.EvalSymlinks(expected)
		require.NoError(t, err)
		a, err := filepath.EvalSymlinks(actual)
		require.NoError(t, err)
		assert.Equal(t, e, a)
	}

	t.Run("dir", func(t *testing.T) {
		dir := t.TempDir()
		assert.Equal(t, 0, Cd(s, []string{"cd", dir}))

		now, err := os.Getwd()
		require.NoError(t, err)
		samePath(t, dir, now)
		samePath(t, dir, os.Getenv(EnvPWD))
		samePath(t, wd, os.Getenv(EnvOldPWD))
	})

	t.Run("home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv(EnvHome, home)
		assert.Equal(t, 0, Cd(s, []string{"cd"}))

		now, err := os.Getwd()
		require.NoError(t, err)
		samePath(t, home, now)
	})

	t.Run("home not set", func(t *testing.T) {
		t.Setenv(EnvHome, "")
		require.NoError(t, os.Unsetenv(EnvHome))

		assert.Equal(t, 1, Cd(s, []string{"cd"}))
		assert.Contains(t, stderr.String(), "cd: HOME not set\n")
	})

	t.Run("too many arguments", func(t *testing.T) {
		assert.Equal(t, 1, Cd(s, []string{"cd", "a", "b"}))
		assert.Contains(t, stderr.String(), "cd: too many arguments\n")
	})

	assert.Empty(t, stdout.String())
}

func TestExitInBackgroundStillExits(t *testing.T) {
	_, _, out := runScript(t, testConfig(), "exit &", "echo unreachable")
	assert.NotContains(t, out, "unreachable")
}

func TestLineTooLong(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLineLength = 8

	s, _, out := runScript(t, cfg, "echo 123456789", "true")
	assert.Contains(t, out, "msh: line too long\n")
	assert.Equal(t, []string{"true"}, s.history, "long lines aren't recorded")
}

func TestInterruptedForegroundCommand(t *testing.T) {
	start := time.Now()
	s, _, out := runScript(t, testConfig(),
		"sleep 0.2 &",
		`sh -c 'kill -INT $$; sleep 10'`,
		"echo after",
	)

	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Contains(t, out, "after\n")
	assert.Equal(t, 1, strings.Count(out, "+ Done"))
	assert.Equal(t, 0, s.Jobs().Len())
}

func TestPrompt(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	host, err := os.Hostname()
	require.NoError(t, err)

	t.Setenv(EnvUser, "tester")
	t.Setenv(EnvHome, wd)

	sign := "$"
	if os.Getuid() == 0 {
		sign = "#"
	}

	cases := map[string]struct {
		prompt   string
		expected string
	}{
		"default":   {"", DefaultPrompt},
		"plain":     {"> ", "> "},
		"user host": {`\u@\h `, "tester@" + host + " "},
		"home":      {`\w\$ `, "~" + sign + " "},
		"escapes":   {`\e[1m>\e[0m\t`, "\x1b[1m>\x1b[0m\t"},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			cfg := testConfig()
			cfg.Prompt = tc.prompt
			s := NewShell(cfg, &scriptedInput{}, io.Discard, io.Discard)
			assert.Equal(t, tc.expected, s.Prompt())
		})
	}
}

func TestPromptColor(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = false
	t.Cleanup(func() {
		color.NoColor = noColor
	})

	cfg := testConfig()
	cfg.Prompt = "msh> "
	cfg.ColorPrompt = true

	colored := NewShell(cfg, &scriptedInput{}, io.Discard, io.Discard, WithColor(true))
	assert.Equal(t, "\x1b[32;1mmsh> \x1b[0m", colored.Prompt())

	plain := NewShell(cfg, &scriptedInput{}, io.Discard, io.Discard, WithColor(false))
	assert.Equal(t, "msh> ", plain.Prompt())
}

func TestUnescape(t *testing.T) {
	cases := map[string]struct {
		in       string
		expected string
	}{
		"newline":   {`a\nb`, "a\nb"},
		"tab":       {`a\tb`, "a\tb"},
		"backslash": {`a\\b`, `a\b`},
		"octal":     {`\0101`, "A"},
		"hex":       {`\x41\x4a`, "AJ"},
		"escape":    {`\e[0m`, "\x1b[0m"},
		"plain":     {"msh> ", "msh> "},
	}

	for tn, tc := range cases {
		t.Run(tn, func(t *testing.T) {
			assert.Equal(t, tc.expected, unescape(tc.in))
		})
	}
}
