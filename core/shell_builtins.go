package core

import (
	"fmt"
	"os"
	"sort"

	"github.com/pborman/getopt/v2"
)

// AllBuiltins holds a list of all registered shell builtins
var AllBuiltins = make(map[string]ShellBuiltin)

// builtinSummaries holds the one line descriptions shown by help.
var builtinSummaries = make(map[string]string)

type ShellBuiltin interface {
	Main(s *Shell, args []string) int
}

type ShellBuiltinFunc func(s *Shell, args []string) int

func (f ShellBuiltinFunc) Main(s *Shell, args []string) int {
	return f(s, args)
}

var _ ShellBuiltin = (ShellBuiltinFunc)(nil)

// Cd is the cd shell builtin
func Cd(s *Shell, args []string) int {
	switch len(args) {
	case 1:
		home, ok := os.LookupEnv(EnvHome)
		if !ok || home == "" {
			fmt.Fprintf(s.stderr, "%s: HOME not set\n", args[0])
			return 1
		}
		args = append(args, home)
		fallthrough
	case 2:
		old, _ := os.Getwd()
		if err := os.Chdir(args[1]); err != nil {
			fmt.Fprintf(s.stderr, "%s: %v\n", args[0], err)
			return 1
		}

		pwd, err := os.Getwd()
		if err != nil {
			pwd = args[1]
		}
		os.Setenv(EnvOldPWD, old)
		os.Setenv(EnvPWD, pwd)
	default:
		fmt.Fprintf(s.stderr, "%s: too many arguments\n", args[0])
		return 1
	}
	return 0
}

// Exit quits the shell once background jobs finish.
func Exit(s *Shell, args []string) int {
	s.Quit = true
	return 0
}

// Jobs lists the running background jobs.
func Jobs(s *Shell, args []string) int {
	opts := getopt.New()
	long := opts.Bool('l', "list process IDs in addition to the normal information")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: jobs [-l]")
		fmt.Fprintln(w, "Display status of jobs.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return 1
	}

	for _, job := range s.table.List() {
		if *long {
			fmt.Fprintf(s.stdout, "[%d]  %d %-24s%s\n", job.ID, job.Process.PID, job.State, job.Command)
		} else {
			fmt.Fprintf(s.stdout, "[%d]  %-24s%s\n", job.ID, job.State, job.Command)
		}
	}
	return 0
}

func History(s *Shell, args []string) int {
	opts := getopt.New()
	clear := opts.Bool('c', "clear the history by deleting all entries")
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "Display or manipulate the history list")
		fmt.Fprintln(w, "Display the history list with line numbers.")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Options:")
		opts.PrintOptions(w)
		return 1
	}

	if *clear {
		if r, ok := s.input.(historyResetter); ok {
			r.ResetHistory()
		}
		s.history = nil
		return 0
	}

	for i, line := range s.history {
		fmt.Fprintf(s.stdout, "% 5d  %s\n", i, line)
	}
	return 0
}

func Help(s *Shell, args []string) int {
	opts := getopt.New()
	helpOpt := opts.BoolLong("help", 'h', "show help and exit")

	if err := opts.Getopt(args, nil); err != nil || *helpOpt {
		w := s.stderr
		if err != nil {
			fmt.Fprintln(w, err)
		}
		fmt.Fprintln(w, "usage: help [NAME...]")
		fmt.Fprintln(w, "Display information about builtin commands.")
		return 1
	}

	w := s.stdout
	if topics := opts.Args(); len(topics) > 0 {
		status := 0
		for _, name := range topics {
			summary, ok := builtinSummaries[name]
			if !ok {
				fmt.Fprintf(s.stderr, "help: no help topics match `%s'.\n", name)
				status = 1
				continue
			}
			fmt.Fprintf(w, "%s: %s\n", name, summary)
		}
		return status
	}

	fmt.Fprintln(w, "msh, a minimal job control shell")
	fmt.Fprintln(w, "These shell commands are defined internally.  Type `help' to see this list.")
	fmt.Fprintln(w, "Type `help name' to find out more about the function `name'.")
	fmt.Fprintln(w, "End a command with `&' to run it in the background.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Builtins:")
	fmt.Fprintln(w)

	for _, name := range BuiltinNames() {
		fmt.Fprintf(w, "%-10s%s\n", name, builtinSummaries[name])
	}

	return 0
}

// BuiltinNames returns the sorted names of all registered builtins.
func BuiltinNames() []string {
	var names []string
	for k := range AllBuiltins {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func register(name, summary string, f ShellBuiltinFunc) {
	AllBuiltins[name] = f
	builtinSummaries[name] = summary
}

func init() {
	register("cd", "change the shell working directory", Cd)
	register("exit", "exit the shell after background jobs finish", Exit)
	register("jobs", "display status of background jobs", Jobs)
	register("history", "display or clear the history list", History)
	register("help", "display information about builtin commands", Help)
}
