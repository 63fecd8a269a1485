package ui

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// Entry is one recorded call. Value is the formatted text, or the input
// served for prompts.
type Entry struct {
	Method string
	Value  string
}

// sharedState is common to a RecordingUI and its indented children so they
// consume one input queue.
type sharedState struct {
	mu      sync.Mutex
	entries []Entry
	inputs  []string
	nextIdx int
	buf     *bytes.Buffer
	tables  [][][]string
}

// RecordingUI captures output and serves scripted input, in order, to Ask,
// Password, Confirm and Choose. Running out of input panics so a wrong
// script fails loudly.
type RecordingUI struct {
	shared      *sharedState
	indentLevel int
}

func NewRecordingUI(scriptedInputs ...string) *RecordingUI {
	return &RecordingUI{
		shared: &sharedState{
			inputs: scriptedInputs,
			buf:    &bytes.Buffer{},
		},
	}
}

func (r *RecordingUI) record(method, value string) {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	r.shared.entries = append(r.shared.entries, Entry{
		Method: method,
		Value:  value,
	})
}

func (r *RecordingUI) nextInput(caller string) string {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	if r.shared.nextIdx >= len(r.shared.inputs) {
		panic(fmt.Sprintf(
			"RecordingUI: no scripted input left for %s (consumed %d so far)",
			caller, r.shared.nextIdx,
		))
	}
	input := r.shared.inputs[r.shared.nextIdx]
	r.shared.nextIdx++
	return input
}

func (r *RecordingUI) Style(t StyledText) string {
	return t.Text
}

func (r *RecordingUI) Info(format string, args ...any) {
	r.record("Info", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Success(format string, args ...any) {
	r.record("Success", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Warn(format string, args ...any) {
	r.record("Warn", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Error(format string, args ...any) {
	r.record("Error", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Critical(format string, args ...any) {
	r.record("Critical", fmt.Sprintf(format, args...))
}

func (r *RecordingUI) Section(title string) {
	r.record("Section", title)
}

func (r *RecordingUI) KeyValue(rows [][2]string) {
	for _, row := range rows {
		r.record("KeyValue", row[0]+": "+row[1])
	}
}

// Table records each row joined with " | ". The raw rows are kept for
// Tables.
func (r *RecordingUI) Table(headers []string, rows [][]string) {
	r.shared.mu.Lock()
	r.shared.tables = append(r.shared.tables, rows)
	r.shared.mu.Unlock()
	for _, row := range rows {
		r.record("Table", strings.Join(row, " | "))
	}
}

func (r *RecordingUI) Spinner(msg string) func() {
	r.record("Spinner", msg)
	return func() {}
}

// Ask panics when the scripted input fails validate, since nobody could
// correct it.
func (r *RecordingUI) Ask(validate func(string) error) string {
	input := r.nextInput("Ask")
	r.record("Ask", input)
	if validate != nil {
		if err := validate(input); err != nil {
			panic(fmt.Sprintf(
				"RecordingUI: scripted input %q failed validation in Ask: %s",
				input, err,
			))
		}
	}
	return input
}

func (r *RecordingUI) Password(prompt string) (string, error) {
	r.record("Password", prompt)
	return r.nextInput("Password"), nil
}

// Confirm takes "y" or "yes" as true and "" as defaultYes.
func (r *RecordingUI) Confirm(prompt string, defaultYes bool) bool {
	r.record("Confirm", prompt)
	input := strings.ToLower(strings.TrimSpace(r.nextInput("Confirm")))
	if input == "" {
		return defaultYes
	}
	return input == "y" || input == "yes"
}

// Choose takes a 1-based index or the option's text.
func (r *RecordingUI) Choose(prompt string, options []string) int {
	r.record("Choose", prompt)
	input := r.nextInput("Choose")
	if idx, err := strconv.Atoi(strings.TrimSpace(input)); err == nil {
		if idx >= 1 && idx <= len(options) {
			return idx - 1
		}
	}
	for i, opt := range options {
		if strings.EqualFold(input, opt) {
			return i
		}
	}
	panic(fmt.Sprintf(
		"RecordingUI: scripted input %q does not match any option in Choose(%q, %v)",
		input, prompt, options,
	))
}

func (r *RecordingUI) Indent() UI {
	return &RecordingUI{
		shared:      r.shared,
		indentLevel: r.indentLevel + 1,
	}
}

// Writer ignores indentation.
func (r *RecordingUI) Writer() io.Writer {
	return r.shared.buf
}

func (r *RecordingUI) Entries() []Entry {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return append([]Entry{}, r.shared.entries...)
}

// Tables returns the rows of every Table call.
func (r *RecordingUI) Tables() [][][]string {
	r.shared.mu.Lock()
	defer r.shared.mu.Unlock()
	return append([][][]string{}, r.shared.tables...)
}

func (r *RecordingUI) InfoMessages() []string {
	return r.methodValues("Info")
}

func (r *RecordingUI) WarnMessages() []string {
	return r.methodValues("Warn")
}

func (r *RecordingUI) SuccessMessages() []string {
	return r.methodValues("Success")
}

func (r *RecordingUI) ErrorMessages() []string {
	return r.methodValues("Error")
}

func (r *RecordingUI) CriticalMessages() []string {
	return r.methodValues("Critical")
}

// HasMessage tells whether any entry contains substr, ignoring case.
func (r *RecordingUI) HasMessage(substr string) bool {
	lower := strings.ToLower(substr)
	for _, e := range r.Entries() {
		if strings.Contains(strings.ToLower(e.Value), lower) {
			return true
		}
	}
	return false
}

func (r *RecordingUI) Output() string {
	return r.shared.buf.String()
}

func (r *RecordingUI) methodValues(method string) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Method == method {
			out = append(out, e.Value)
		}
	}
	return out
}
