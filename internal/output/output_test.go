package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Markers(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"success", func(w *Writer) { w.Successf("indexed %d items", 3) }, "✓ indexed 3 items\n"},
		{"warning", func(w *Writer) { w.Warning("no records") }, "! no records\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %s", "disk") }, "✗ failed: disk\n"},
		{"info", func(w *Writer) { w.Infof("%s", "indented") }, "  indented\n"},
		{"status", func(w *Writer) { w.Statusf("*", "%d ready", 2) }, "* 2 ready\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given: a writer on a buffer
			buf := &bytes.Buffer{}
			w := New(buf)

			// When: writing one line
			tt.write(w)

			// Then: the line has the expected marker and no escape codes
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestWriter_FieldPadsLabels(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	w.Field("Provider", 10, "static")
	w.Field("Records", 10, "12")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Equal(t, []string{
		"  Provider:   static",
		"  Records:    12",
	}, lines)
}

func TestWriter_HeaderAndNewline(t *testing.T) {
	buf := &bytes.Buffer{}
	w := NewWithColor(buf, true)

	w.Header("Search Results")
	w.Newline()

	assert.Equal(t, "Search Results\n\n", buf.String())
	assert.Equal(t, "plain", w.Dim("plain"))
}

func TestNew_PipeHasNoColor(t *testing.T) {
	// A buffer is never a terminal
	buf := &bytes.Buffer{}
	New(buf).Success("ok")

	assert.NotContains(t, buf.String(), "\x1b[")
}
