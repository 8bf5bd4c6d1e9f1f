package core

import (
	"io"

	"github.com/abiosoft/readline"
	"github.com/josephlewis42/msh/core/config"
)

// Input supplies command lines to the shell. *readline.Instance satisfies
// it.
type Input interface {
	SetPrompt(prompt string)
	// Readline blocks until a full line is available. It returns io.EOF
	// once input is exhausted and readline.ErrInterrupt if the line was
	// abandoned with Ctrl-C.
	Readline() (string, error)
}

// historyResetter is implemented by inputs that keep their own history.
type historyResetter interface {
	ResetHistory()
}

// Terminal describes the streams the line editor runs on.
type Terminal struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	IsTerminal bool
	Width      func() int
}

// NewReadlineInput creates the interactive line editor.
func NewReadlineInput(term Terminal, configuration *config.Configuration) (*readline.Instance, error) {
	cfg := &readline.Config{
		Stdin:        readline.NewCancelableStdin(term.Stdin),
		Stdout:       term.Stdout,
		Stderr:       term.Stderr,
		HistoryFile:  configuration.HistoryFile,
		HistoryLimit: configuration.HistoryLimit,
		FuncIsTerminal: func() bool {
			return term.IsTerminal
		},
	}

	if term.Width != nil {
		cfg.FuncGetWidth = term.Width
	}

	if err := cfg.Init(); err != nil {
		return nil, err
	}

	return readline.NewEx(cfg)
}
