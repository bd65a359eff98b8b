// Package output formats human-facing CLI messages.
package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/labsearch/internal/ui"
)

// Message markers.
const (
	markSuccess = "✓"
	markWarning = "!"
	markError   = "✗"
)

// Writer writes status lines to a CLI stream. Colors are used only when
// the stream is a terminal and NO_COLOR is unset.
type Writer struct {
	out    io.Writer
	styles ui.Styles
}

// New creates a Writer for out.
func New(out io.Writer) *Writer {
	return NewWithColor(out, !ui.IsTTY(out) || ui.DetectNoColor())
}

// NewWithColor creates a Writer with an explicit color choice.
func NewWithColor(out io.Writer, noColor bool) *Writer {
	return &Writer{out: out, styles: ui.GetStyles(noColor)}
}

// Status prints msg after mark. An empty mark indents the line instead.
// Write errors are ignored for console output.
func (w *Writer) Status(mark, msg string) {
	if mark == "" {
		_, _ = fmt.Fprintf(w.out, "  %s\n", msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "%s %s\n", mark, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(mark, format string, args ...any) {
	w.Status(mark, fmt.Sprintf(format, args...))
}

// Success prints a success line.
func (w *Writer) Success(msg string) {
	w.Status(w.styles.Success.Render(markSuccess), msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line.
func (w *Writer) Warning(msg string) {
	w.Status(w.styles.Warning.Render(markWarning), msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Error prints an error line.
func (w *Writer) Error(msg string) {
	w.Status(w.styles.Error.Render(markError), msg)
}

// Errorf is Error with formatting.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Info prints an indented plain line.
func (w *Writer) Info(msg string) {
	w.Status("", msg)
}

// Infof is Info with formatting.
func (w *Writer) Infof(format string, args ...any) {
	w.Info(fmt.Sprintf(format, args...))
}

// Header prints a bold title.
func (w *Writer) Header(title string) {
	_, _ = fmt.Fprintln(w.out, w.styles.Header.Render(title))
}

// Field prints "label: value" with the label padded to width.
func (w *Writer) Field(label string, width int, value string) {
	pad := max(width-lipgloss.Width(label), 0)
	_, _ = fmt.Fprintf(w.out, "  %s:%s %s\n", w.styles.Label.Render(label), strings.Repeat(" ", pad), value)
}

// Dim renders s in the muted style.
func (w *Writer) Dim(s string) string {
	return w.styles.Dim.Render(s)
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}
