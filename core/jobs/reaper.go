package jobs

import (
	"fmt"
	"io"
	"os"

	"github.com/josephlewis42/msh/core/proc"
	"github.com/rs/zerolog"
)

// FormatStarted formats the line printed when a background job starts.
func FormatStarted(job Job) string {
	return fmt.Sprintf("[%d] %d\n", job.ID, job.Process.PID)
}

// FormatDone formats the line printed when a background job is reaped. The
// spacing matches the job control output of common shells.
func FormatDone(job Job) string {
	return fmt.Sprintf("[%d]+ Done                 %s\n", job.ID, job.Command)
}

// ReaperOption configures a Reaper.
type ReaperOption func(*Reaper)

// WithReaperLogger sets the logger for reap events.
func WithReaperLogger(logger zerolog.Logger) ReaperOption {
	return func(r *Reaper) {
		r.log = logger
	}
}

// Reaper turns exit records into job table updates and completion lines.
//
// A Reaper isn't safe for concurrent use. It must run on the goroutine
// that owns the table's inserts, which guarantees that a job is always
// inserted before its exit record can be handled.
type Reaper struct {
	table  *Table
	exits  <-chan proc.Exit
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger
}

// NewReaper creates a reaper reading exits and writing completion lines to
// stdout and wait failures to stderr.
func NewReaper(table *Table, exits <-chan proc.Exit, stdout, stderr io.Writer, opts ...ReaperOption) *Reaper {
	r := &Reaper{
		table:  table,
		exits:  exits,
		stdout: stdout,
		stderr: stderr,
		log:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WaitForeground blocks until p has been reaped. Interrupts received while
// waiting are acknowledged; the child is expected to die from its own
// default handling. Exit records are left on the channel, so background
// completions that race with p are reported by Collect afterwards.
func (r *Reaper) WaitForeground(p *proc.Process, interrupts <-chan os.Signal) proc.Exit {
	for {
		select {
		case <-p.Done():
			ex := p.Exit()
			if ex.Err != nil {
				r.reportWaitError(ex)
			}
			r.log.Debug().
				Int("pid", ex.Identity.PID).
				Int("code", ex.Code).
				Int("signal", int(ex.Signal)).
				Msg("foreground process exited")
			return ex

		case sig := <-interrupts:
			r.log.Debug().
				Int("pid", p.PID()).
				Str("signal", sig.String()).
				Msg("interrupt while waiting for foreground process")
		}
	}
}

// Handle processes one exit record. If the process was a tracked job the
// completion line is printed and the job is returned. Untracked processes
// were foreground children and are ignored.
func (r *Reaper) Handle(ex proc.Exit) (Job, bool) {
	job, ok := r.table.MarkDone(ex.Identity)
	if !ok {
		return Job{}, false
	}

	if ex.Err != nil {
		r.reportWaitError(ex)
	}

	r.log.Debug().
		Int("job", job.ID).
		Int("pid", ex.Identity.PID).
		Int("code", ex.Code).
		Int("signal", int(ex.Signal)).
		Msg("job done")

	fmt.Fprint(r.stdout, FormatDone(job))
	return job, true
}

// Collect handles every exit record that is immediately available without
// blocking and returns the jobs that completed.
func (r *Reaper) Collect() []Job {
	var done []Job
	for {
		select {
		case ex := <-r.exits:
			if job, ok := r.Handle(ex); ok {
				done = append(done, job)
			}
		default:
			return done
		}
	}
}

// Drain blocks until every tracked job has been reaped and returns them in
// completion order.
func (r *Reaper) Drain() []Job {
	if n := r.table.Len(); n > 0 {
		r.log.Debug().Int("jobs", n).Msg("waiting for background jobs")
	}

	var done []Job
	for r.table.Len() > 0 {
		if job, ok := r.Handle(<-r.exits); ok {
			done = append(done, job)
		}
	}
	return done
}

func (r *Reaper) reportWaitError(ex proc.Exit) {
	r.log.Warn().
		Err(ex.Err).
		Int("pid", ex.Identity.PID).
		Msg("wait failed")
	fmt.Fprintf(r.stderr, "msh: wait %d: %v\n", ex.Identity.PID, ex.Err)
}
