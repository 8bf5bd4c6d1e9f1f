// Package shell turns input lines into command descriptors.
//
// Loosely follows the first steps of
// https://pubs.opengroup.org/onlinepubs/9699919799/utilities/V3_chap02.html
//
// 1. The shell reads its input one line at a time.
//
// 2. The shell breaks the input into words. Lines whose first non-blank
// character is '#' are comments and produce no command.
//
// 3. A trailing "&" word marks the command as asynchronous; it is removed
// before the command is executed.
//
// Expansions, redirections and compound commands are not supported.
package shell

import (
	"errors"
	"fmt"
	"strings"

	"github.com/anmitsu/go-shlex"
)

// DefaultMaxLineLength is used when a Parser has no limit configured.
const DefaultMaxLineLength = 4096

var (
	// ErrLineTooLong is returned for lines longer than the parser's limit.
	ErrLineTooLong = errors.New("line too long")
	// ErrSyntax is wrapped by all tokenizer failures.
	ErrSyntax = errors.New("syntax error")
)

// Command describes one simple command.
type Command struct {
	// Program is the name or path of the program to run, always Args[0].
	Program string
	// Args holds the argument vector including the program name.
	Args []string
	// Background is set when the line ended with a separate "&" word.
	Background bool
}

// String returns the printable command line used in job status messages.
func (c Command) String() string {
	return strings.Join(c.Args, " ")
}

// Parser splits lines into commands.
type Parser struct {
	// MaxLineLength is the longest accepted line in bytes, excluding the
	// trailing newline. Zero means DefaultMaxLineLength.
	MaxLineLength int
}

// IsBlank reports whether the line is empty, whitespace or a comment.
func IsBlank(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "" || strings.HasPrefix(trimmed, "#")
}

// Parse converts a line into a Command. ok is false for blank lines and
// comments, in which case cmd is the zero value and err is nil.
func (p Parser) Parse(line string) (cmd Command, ok bool, err error) {
	line = strings.TrimRight(line, "\r\n")

	limit := p.MaxLineLength
	if limit <= 0 {
		limit = DefaultMaxLineLength
	}
	if len(line) > limit {
		return Command{}, false, ErrLineTooLong
	}

	if IsBlank(line) {
		return Command{}, false, nil
	}

	words, err := shlex.Split(line, true)
	if err != nil {
		return Command{}, false, fmt.Errorf("%w: %v", ErrSyntax, err)
	}
	if len(words) == 0 {
		return Command{}, false, nil
	}

	if last := len(words) - 1; words[last] == "&" {
		cmd.Background = true
		words = words[:last]
	}

	if len(words) == 0 {
		return Command{}, false, fmt.Errorf("%w near unexpected token `&'", ErrSyntax)
	}

	cmd.Program = words[0]
	cmd.Args = words
	return cmd, true, nil
}
