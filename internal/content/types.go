// Package content turns research-workspace records into indexable items.
package content

import (
	"fmt"
	"strings"
)

// ContentType identifies the kind of record an item was extracted from.
type ContentType string

const (
	TypeProject   ContentType = "project"
	TypeTask      ContentType = "task"
	TypeNotebook  ContentType = "notebook"
	TypeReference ContentType = "reference"
	TypeProtocol  ContentType = "protocol"
	TypeResult    ContentType = "result"
	TypeNote      ContentType = "note"
)

// AllTypes lists every content type in extraction order.
var AllTypes = []ContentType{
	TypeProject, TypeTask, TypeNotebook, TypeReference, TypeProtocol, TypeResult, TypeNote,
}

// String implements fmt.Stringer.
func (t ContentType) String() string {
	return string(t)
}

// Valid reports whether t is a known content type.
func (t ContentType) Valid() bool {
	for _, v := range AllTypes {
		if v == t {
			return true
		}
	}
	return false
}

// ParseContentType parses a content type name, case-insensitively.
func ParseContentType(s string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown content type %q", s)
	}
	return t, nil
}

// Item is the normalized, embeddable view of one record.
// It is recomputed on every indexing pass and never stored on its own.
type Item struct {
	ID          string      `json:"id"`
	ContentType ContentType `json:"content_type"`
	ContentID   string      `json:"content_id"`
	ProjectID   string      `json:"project_id,omitempty"`
	Title       string      `json:"title"`
	Text        string      `json:"text"`
}

// ItemID derives the stable item id "{contentType}-{contentID}".
func ItemID(ct ContentType, contentID string) string {
	return string(ct) + "-" + contentID
}

// Project is a research project.
type Project struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Subtitle    string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Tasks maps kanban column name to the tasks in that column.
	Tasks map[string][]Task `json:"tasks,omitempty" yaml:"tasks,omitempty"`
}

// Task is a kanban task owned by a project.
type Task struct {
	ID          string `json:"id" yaml:"id"`
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// NotebookEntry is a lab-notebook entry.
type NotebookEntry struct {
	ID         string   `json:"id" yaml:"id"`
	ProjectID  string   `json:"projectId,omitempty" yaml:"projectId,omitempty"`
	Title      string   `json:"title" yaml:"title"`
	Content    string   `json:"content,omitempty" yaml:"content,omitempty"`
	Tags       []string `json:"tags,omitempty" yaml:"tags,omitempty"`
	IsArchived bool     `json:"isArchived,omitempty" yaml:"isArchived,omitempty"`
}

// AISummary is a generated summary attached to a reference.
type AISummary struct {
	Summary string `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Reference is a literature reference.
type Reference struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Authors   string     `json:"authors,omitempty" yaml:"authors,omitempty"`
	Abstract  string     `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	Notes     string     `json:"notes,omitempty" yaml:"notes,omitempty"`
	AISummary *AISummary `json:"aiSummary,omitempty" yaml:"aiSummary,omitempty"`
	Tags      []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Protocol is a lab protocol.
type Protocol struct {
	ID          string   `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Tags        []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Result is an experimental result. It has the same shape as a protocol.
type Result = Protocol

// Note is a research note: a specific aim, a misc note, or a project background.
type Note struct {
	ID               string `json:"id" yaml:"id"`
	Title            string `json:"title,omitempty" yaml:"title,omitempty"`
	Content          string `json:"content,omitempty" yaml:"content,omitempty"`
	Description      string `json:"description,omitempty" yaml:"description,omitempty"`
	Rationale        string `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Hypothesis       string `json:"hypothesis,omitempty" yaml:"hypothesis,omitempty"`
	Approach         string `json:"approach,omitempty" yaml:"approach,omitempty"`
	ExpectedOutcomes string `json:"expectedOutcomes,omitempty" yaml:"expectedOutcomes,omitempty"`
}

// ResearchNotes groups the notes kept for one project.
type ResearchNotes struct {
	Background   string `json:"background,omitempty" yaml:"background,omitempty"`
	SpecificAims []Note `json:"specificAims,omitempty" yaml:"specificAims,omitempty"`
	MiscNotes    []Note `json:"miscNotes,omitempty" yaml:"miscNotes,omitempty"`
}

// Workspace is a snapshot of every collaborator's records.
// Per-project collections are keyed by project id.
type Workspace struct {
	Projects   []Project                `json:"projects" yaml:"projects"`
	Notebook   []NotebookEntry          `json:"notebook,omitempty" yaml:"notebook,omitempty"`
	References map[string][]Reference   `json:"references,omitempty" yaml:"references,omitempty"`
	Protocols  map[string][]Protocol    `json:"protocols,omitempty" yaml:"protocols,omitempty"`
	Results    map[string][]Result      `json:"results,omitempty" yaml:"results,omitempty"`
	Notes      map[string]ResearchNotes `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// ProjectTitles maps project id to title.
func (w *Workspace) ProjectTitles() map[string]string {
	titles := make(map[string]string, len(w.Projects))
	for _, p := range w.Projects {
		titles[p.ID] = p.Title
	}
	return titles
}
