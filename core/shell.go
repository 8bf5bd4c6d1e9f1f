package core

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"os/user"
	"regexp"
	"strconv"
	"strings"

	"github.com/abiosoft/readline"
	"github.com/fatih/color"
	"github.com/josephlewis42/msh/core/config"
	"github.com/josephlewis42/msh/core/jobs"
	"github.com/josephlewis42/msh/core/logging"
	"github.com/josephlewis42/msh/core/proc"
	"github.com/josephlewis42/msh/core/shell"
	"github.com/rs/zerolog"
)

const (
	EnvHome   = "HOME"
	EnvPWD    = "PWD"
	EnvOldPWD = "OLDPWD"
	EnvUser   = "USER"

	DefaultPrompt = "msh> "
)

var (
	promptColor = color.New(color.FgGreen, color.Bold)
)

// Option configures a Shell.
type Option func(*shellOptions)

type shellOptions struct {
	childStdin    io.Reader
	childStdout   io.Writer
	childStderr   io.Writer
	childStdioSet bool
	color         bool
}

// WithChildStdio sets the standard streams external commands run with. By
// default they share the shell's own output writers and have no input.
func WithChildStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(o *shellOptions) {
		o.childStdin = stdin
		o.childStdout = stdout
		o.childStderr = stderr
		o.childStdioSet = true
	}
}

// WithColor enables the colored prompt if the configuration asks for it.
func WithColor(enabled bool) Option {
	return func(o *shellOptions) {
		o.color = enabled
	}
}

// Shell is the interpreter's scheduler loop. It owns the job table: it
// inserts jobs after background spawns and is the only receiver of process
// exits, so all job state changes and status lines happen on the goroutine
// running Run.
type Shell struct {
	input  Input
	stdout io.Writer
	stderr io.Writer

	configuration *config.Configuration
	colorPrompt   bool
	parser        shell.Parser
	launcher      *proc.Launcher
	table         *jobs.Table
	reaper        *jobs.Reaper
	log           zerolog.Logger

	interrupts chan os.Signal
	history    []string

	// Set to true to quit the shell
	Quit bool
}

// NewShell creates a shell reading from input and reporting to stdout and
// stderr.
func NewShell(configuration *config.Configuration, input Input, stdout, stderr io.Writer, opts ...Option) *Shell {
	o := shellOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if !o.childStdioSet {
		o.childStdout = stdout
		o.childStderr = stderr
	}

	s := &Shell{
		input:         input,
		stdout:        stdout,
		stderr:        stderr,
		configuration: configuration,
		colorPrompt:   o.color && configuration.ColorPrompt,
		parser:        shell.Parser{MaxLineLength: configuration.MaxLineLength},
		table:         jobs.NewTable(configuration.MaxJobs),
		log:           logging.Component("shell"),
		interrupts:    make(chan os.Signal, 1),
	}

	s.launcher = proc.NewLauncher(
		proc.WithStdio(o.childStdin, o.childStdout, o.childStderr),
		proc.WithNotifyBuffer(configuration.NotifyBuffer),
		proc.WithLogger(logging.Component("launcher")),
	)
	s.reaper = jobs.NewReaper(s.table, s.launcher.Exits(), stdout, stderr,
		jobs.WithReaperLogger(logging.Component("jobs")))

	return s
}

// Jobs returns the shell's job table.
func (s *Shell) Jobs() *jobs.Table {
	return s.table
}

type readResult struct {
	line string
	err  error
}

// readLoop reads one line for each prompt it receives so the terminal is
// only read while the shell is waiting for input.
func (s *Shell) readLoop(prompts <-chan string, lines chan<- readResult) {
	for prompt := range prompts {
		s.input.SetPrompt(prompt)
		line, err := s.input.Readline()
		lines <- readResult{line: line, err: err}
	}
}

// Run executes lines until end of input or exit, waits for any background
// jobs still running and returns the shell's exit status.
func (s *Shell) Run() int {
	// Catching SIGINT, rather than ignoring it, lets children start with the
	// default disposition.
	signal.Notify(s.interrupts, os.Interrupt)
	defer signal.Stop(s.interrupts)

	prompts := make(chan string)
	lines := make(chan readResult)
	defer close(prompts)
	go s.readLoop(prompts, lines)

	for !s.Quit {
		prompts <- s.Prompt()
		res := s.awaitLine(lines)

		switch {
		case res.err == io.EOF:
			s.Quit = true // Input closed, quit.

		case res.err == readline.ErrInterrupt:
			// Interrupt clears line.

		case res.err != nil:
			s.log.Warn().Err(res.err).Msg("readline failed")
			fmt.Fprintf(s.stderr, "msh: %v\n", res.err)
			s.Quit = true

		default:
			s.runLine(res.line)
		}

		s.reaper.Collect()
	}

	done := s.reaper.Drain()
	s.log.Debug().Int("jobs", len(done)).Msg("exiting")
	return 0
}

// awaitLine waits for the next line, reporting jobs that finish meanwhile.
func (s *Shell) awaitLine(lines <-chan readResult) readResult {
	for {
		select {
		case res := <-lines:
			return res
		case ex := <-s.launcher.Exits():
			s.reaper.Handle(ex)
		case sig := <-s.interrupts:
			s.log.Debug().Str("signal", sig.String()).Msg("interrupt at prompt")
		}
	}
}

func (s *Shell) runLine(line string) {
	cmd, ok, err := s.parser.Parse(line)
	switch {
	case errors.Is(err, shell.ErrLineTooLong):
		fmt.Fprintln(s.stderr, "msh: line too long")
		return
	case err != nil:
		fmt.Fprintf(s.stderr, "msh: %v\n", err)
		return
	case !ok:
		return // empty line or comment
	}

	s.history = append(s.history, strings.TrimRight(line, "\r\n"))

	// Builtins always run in the shell itself, even when marked with "&".
	if builtin, ok := AllBuiltins[cmd.Program]; ok {
		builtin.Main(s, cmd.Args)
		return
	}

	s.execute(cmd)
}

func (s *Shell) execute(cmd shell.Command) {
	p, err := s.launcher.Spawn(cmd)
	if err != nil {
		s.log.Warn().Err(err).Str("command", cmd.String()).Msg("launch failed")
		fmt.Fprintf(s.stderr, "msh: %v\n", err)
		return
	}

	if cmd.Background {
		job, err := s.table.Insert(p.Identity(), p.Command())
		if err == nil {
			s.log.Debug().Int("job", job.ID).Int("pid", p.PID()).Msg("job started")
			fmt.Fprint(s.stdout, jobs.FormatStarted(job))
			return
		}

		s.log.Warn().Err(err).Int("pid", p.PID()).Msg("couldn't track background job")
		fmt.Fprintf(s.stderr, "msh: %v; running in foreground\n", err)
	}

	s.reaper.WaitForeground(p, s.interrupts)
}

// Prompt renders the configured prompt.
func (s *Shell) Prompt() string {
	prompt := s.configuration.Prompt
	if prompt == "" {
		prompt = DefaultPrompt
	}

	username := os.Getenv(EnvUser)
	if username == "" {
		if u, err := user.Current(); err == nil {
			username = u.Username
		}
	}
	prompt = strings.ReplaceAll(prompt, `\u`, username)

	host, _ := os.Hostname()
	prompt = strings.ReplaceAll(prompt, `\h`, host)

	pwd, _ := os.Getwd()
	home := os.Getenv(EnvHome)
	if home != "" && strings.HasPrefix(pwd, home) {
		pwd = "~" + strings.TrimPrefix(pwd, home)
	}
	prompt = strings.ReplaceAll(prompt, `\w`, pwd)

	if os.Getuid() == 0 {
		prompt = strings.ReplaceAll(prompt, `\$`, "#")
	} else {
		prompt = strings.ReplaceAll(prompt, `\$`, "$")
	}

	prompt = unescape(prompt)
	if s.colorPrompt {
		prompt = promptColor.Sprint(prompt)
	}
	return prompt
}

var (
	unescapeOctal   = regexp.MustCompile(`\\0[0-7][0-7]?[0-7]?`)
	unescapeHex     = regexp.MustCompile(`\\x[0-9a-fA-F][0-9a-fA-F]?`)
	unescapeReplace = strings.NewReplacer(
		`\n`, "\n", // newline
		`\r`, "\r", // carriage return
		`\t`, "\t", // horizontal tab
		`\\`, `\`, // backslash literal
		`\a`, "\a", // alert
		`\e`, "\x1b", // escape
	)
)

func unescape(s string) string {
	s = unescapeReplace.Replace(s)
	s = unescapeOctal.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseUint(arg[2:], 8, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	s = unescapeHex.ReplaceAllStringFunc(s, func(arg string) string {
		out, err := strconv.ParseUint(arg[2:], 16, 8)
		if err != nil {
			return arg
		}
		return string(rune(out))
	})
	return s
}
