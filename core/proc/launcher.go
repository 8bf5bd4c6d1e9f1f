// Package proc starts external programs and reports their termination.
//
// Every process gets a waiter goroutine. The waiter is the only code that
// runs when a child terminates: it records the exit status, closes the
// process's Done channel, then publishes a fixed size Exit record on the
// Launcher's Exits channel. It never prints or touches job state; whoever
// receives from Exits does that.
//
// Children start with the default SIGINT disposition as long as the
// interpreter catches SIGINT with signal.Notify rather than ignoring it:
// caught signals are reset by execve, ignored ones are inherited.
package proc

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"

	"github.com/josephlewis42/msh/core/shell"
	"github.com/rs/zerolog"
)

// ExitNotFound is the conventional status of a command that couldn't be
// found or executed.
const ExitNotFound = 127

// DefaultNotifyBuffer is the default capacity of the Exits channel.
const DefaultNotifyBuffer = 64

// ErrEmptyCommand is returned when asked to spawn a command with no program.
var ErrEmptyCommand = errors.New("empty command")

// Kind classifies launch failures.
type Kind int

const (
	// KindExec means the program couldn't be found or executed.
	KindExec Kind = iota
	// KindStart means the OS refused to create the process.
	KindStart
)

func (k Kind) String() string {
	switch k {
	case KindExec:
		return "exec"
	case KindStart:
		return "start"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// LaunchError is returned by Spawn when no process could be started.
type LaunchError struct {
	Program string
	Kind    Kind
	Err     error
}

func (e *LaunchError) Error() string {
	if e.Kind == KindExec && errors.Is(e.Err, exec.ErrNotFound) {
		return fmt.Sprintf("%s: command not found", e.Program)
	}
	return fmt.Sprintf("%s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// ExitStatus returns the status a shell reports for the failed command.
func (e *LaunchError) ExitStatus() int {
	if e.Kind == KindExec {
		return ExitNotFound
	}
	return 1
}

// Option configures a Launcher.
type Option func(*Launcher)

// WithStdio sets the standard streams given to children. Nil values leave
// the respective stream connected to the null device, matching os/exec.
func WithStdio(stdin io.Reader, stdout, stderr io.Writer) Option {
	return func(l *Launcher) {
		l.stdin = stdin
		l.stdout = stdout
		l.stderr = stderr
	}
}

// WithNotifyBuffer sets the capacity of the Exits channel.
func WithNotifyBuffer(size int) Option {
	return func(l *Launcher) {
		if size > 0 {
			l.notifyBuffer = size
		}
	}
}

// WithLogger sets the logger used for lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Launcher) {
		l.log = logger
	}
}

// Launcher spawns processes and publishes their exits.
type Launcher struct {
	stdin          io.Reader
	stdout, stderr io.Writer
	notifyBuffer   int
	log            zerolog.Logger

	seq   atomic.Uint64
	exits chan Exit
}

// NewLauncher creates a launcher whose children inherit the interpreter's
// standard streams unless overridden.
func NewLauncher(opts ...Option) *Launcher {
	l := &Launcher{
		stdin:        os.Stdin,
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		notifyBuffer: DefaultNotifyBuffer,
		log:          zerolog.Nop(),
	}

	for _, opt := range opts {
		opt(l)
	}

	l.exits = make(chan Exit, l.notifyBuffer)
	return l
}

// Exits returns the channel every terminated child is published on, in
// the order they were reaped.
func (l *Launcher) Exits() <-chan Exit {
	return l.exits
}

// Spawn starts cmd with the interpreter's working directory and
// environment.
func (l *Launcher) Spawn(cmd shell.Command) (*Process, error) {
	if cmd.Program == "" || len(cmd.Args) == 0 {
		return nil, ErrEmptyCommand
	}

	path, err := exec.LookPath(cmd.Program)
	if err != nil {
		return nil, &LaunchError{Program: cmd.Program, Kind: KindExec, Err: err}
	}

	execCmd := &exec.Cmd{
		Path:   path,
		Args:   cmd.Args,
		Stdin:  l.stdin,
		Stdout: l.stdout,
		Stderr: l.stderr,
	}

	if err := execCmd.Start(); err != nil {
		return nil, &LaunchError{Program: cmd.Program, Kind: classify(err), Err: err}
	}

	p := &Process{
		id: Identity{
			PID: execCmd.Process.Pid,
			Seq: l.seq.Add(1),
		},
		command: cmd.String(),
		cmd:     execCmd,
		done:    make(chan struct{}),
	}

	l.log.Debug().
		Int("pid", p.id.PID).
		Uint64("seq", p.id.Seq).
		Str("command", p.command).
		Bool("background", cmd.Background).
		Msg("spawned")

	go l.wait(p)

	return p, nil
}

func (l *Launcher) wait(p *Process) {
	err := p.cmd.Wait()
	p.exit = exitFromWait(p.id, p.cmd.ProcessState, err)
	close(p.done)

	l.exits <- p.exit
}

// classify separates failures of the program image from failures to
// create a process at all.
func classify(err error) Kind {
	switch {
	case errors.Is(err, exec.ErrNotFound),
		errors.Is(err, fs.ErrNotExist),
		errors.Is(err, fs.ErrPermission),
		errors.Is(err, syscall.ENOEXEC),
		errors.Is(err, syscall.ENOTDIR),
		errors.Is(err, syscall.ELOOP),
		errors.Is(err, syscall.ENAMETOOLONG),
		errors.Is(err, syscall.ETXTBSY):
		return KindExec
	default:
		return KindStart
	}
}
