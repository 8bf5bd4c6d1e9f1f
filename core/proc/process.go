package proc

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
)

// Identity distinguishes one launched process from every other launched by
// the same Launcher, even if the kernel recycles its PID.
type Identity struct {
	PID int
	// Seq is assigned by the Launcher and strictly increases per launch.
	Seq uint64
}

// String returns the PID, which is what users see.
func (id Identity) String() string {
	return strconv.Itoa(id.PID)
}

// Exit is the fixed size record published when a process terminates.
type Exit struct {
	Identity Identity
	// Code is the exit status, or -1 if the process was killed by a signal.
	Code int
	// Signal is the terminating signal, zero if the process exited.
	Signal syscall.Signal
	// Err is set when waiting for the process failed for a reason other
	// than a non-zero exit.
	Err error
}

// Signaled reports whether the process was terminated by a signal.
func (e Exit) Signaled() bool {
	return e.Signal != 0
}

func exitFromWait(id Identity, state *os.ProcessState, err error) Exit {
	out := Exit{Identity: id, Code: -1}

	if state != nil {
		out.Code = state.ExitCode()
		if status, ok := state.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			out.Signal = status.Signal()
		}
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		out.Err = err
	}

	return out
}

// Process is a running or finished child.
type Process struct {
	id      Identity
	command string
	cmd     *exec.Cmd

	// exit is written once by the waiter before done is closed.
	exit Exit
	done chan struct{}
}

// Identity returns the process identity.
func (p *Process) Identity() Identity {
	return p.id
}

// PID returns the OS process ID.
func (p *Process) PID() int {
	return p.id.PID
}

// Command returns the printable command line.
func (p *Process) Command() string {
	return p.command
}

// Done returns a channel that is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exit blocks until the process has been reaped and returns its exit record.
func (p *Process) Exit() Exit {
	<-p.done
	return p.exit
}

// Signal sends a signal to the process.
func (p *Process) Signal(sig os.Signal) error {
	select {
	case <-p.done:
		return fmt.Errorf("process %d: %w", p.id.PID, os.ErrProcessDone)
	default:
	}
	return p.cmd.Process.Signal(sig)
}
