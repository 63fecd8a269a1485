// Package ui is the terminal presentation of auctioneer. Commands talk to
// the UI interface; TerminalUI draws to a terminal and RecordingUI captures
// everything for tests.
package ui

import (
	"encoding/json"
	"io"
)

type Severity uint8

const (
	SeverityInfo Severity = iota
	SeveritySuccess
	SeverityWarn
	SeverityError
	SeverityCritical
)

// StyledText is a value with a severity. It marshals to its plain text so
// json output carries no escape codes.
type StyledText struct {
	Text     string
	Severity Severity
}

func (s StyledText) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Text)
}

// UI is everything a command may do with the operator.
type UI interface {
	// Style colours t for embedding in a line. Without colours it is t.Text.
	Style(t StyledText) string

	Info(format string, args ...any)
	Success(format string, args ...any)
	Warn(format string, args ...any)
	// Error reports a failure. It does not exit.
	Error(format string, args ...any)
	// Critical is for what the operator must read before signing.
	Critical(format string, args ...any)
	Section(title string)

	// KeyValue prints label/value pairs with the values aligned.
	KeyValue(rows [][2]string)
	// Table prints a bordered table. A nil header prints no header row.
	Table(headers []string, rows [][]string)

	// Spinner shows msg until the returned function is called.
	Spinner(msg string) func()

	// Ask reads one line, asking again until validate accepts it. A nil
	// validate accepts anything.
	Ask(validate func(string) error) string
	// Password reads a line without echoing it.
	Password(prompt string) (string, error)
	Confirm(prompt string, defaultYes bool) bool
	// Choose returns the 0-based index of the picked option.
	Choose(prompt string, options []string) int

	// Indent returns a child one level deeper that shares input and output.
	Indent() UI
	// Writer prefixes every line written to it with the current indentation.
	Writer() io.Writer
}
