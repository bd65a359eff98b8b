package mcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Aman-CERP/labsearch/internal/content"
	"github.com/Aman-CERP/labsearch/internal/index"
	"github.com/Aman-CERP/labsearch/internal/search"
)

func TestFormatSearchResults(t *testing.T) {
	assert.Equal(t, `No results found for "pcr"`, FormatSearchResults("pcr", nil))

	text := FormatSearchResults("pcr", []search.Result{
		{ID: "task-t1", ContentType: content.TypeTask, ContentID: "t1", ProjectTitle: "Unknown Project", Score: 0.5},
		{ID: "note-n1", ContentType: content.TypeNote, ContentID: "n1", ProjectTitle: "P", Title: "qPCR notes", Score: 0.4},
	})

	assert.Contains(t, text, "Found 2 results")
	assert.Contains(t, text, "### 1. task-t1")
	assert.Contains(t, text, "### 2. qPCR notes")
	assert.Contains(t, text, "- **Project:** Unknown Project")
}

func TestFormatReindexReport(t *testing.T) {
	text := FormatReindexReport(&index.Report{Provider: "openai", Embedded: 5, Skipped: 2, Cleared: 1, Duration: time.Second})

	assert.Contains(t, text, "Embedded 5 of 5 changed items (2 unchanged) with openai in 1s")
	assert.Contains(t, text, "1 stored vector was cleared")
	assert.NotContains(t, text, "failed")
}
