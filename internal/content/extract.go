package content

import (
	"context"
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// NoteKind distinguishes the three sources of research notes.
type NoteKind string

const (
	NoteBackground NoteKind = "background"
	NoteAim        NoteKind = "aim"
	NoteMisc       NoteKind = "misc"
)

// NoteRecord is a Note tagged with its kind.
type NoteRecord struct {
	Kind NoteKind
	Note Note
}

// ExtractContext carries owner information that some records do not hold.
type ExtractContext struct {
	ProjectID    string
	ProjectTitle string
}

// Extract maps one record to its Item. It never touches the network or
// storage. Absent optional fields are skipped rather than reported.
//
// Accepted record types per content type:
//
//	project   Project
//	task      Task (owner from ectx)
//	notebook  NotebookEntry
//	reference Reference (owner from ectx)
//	protocol  Protocol (owner from ectx)
//	result    Result (owner from ectx)
//	note      NoteRecord or Note (misc); owner from ectx
func Extract(ct ContentType, record any, ectx ExtractContext) (Item, error) {
	switch ct {
	case TypeProject:
		p, ok := record.(Project)
		if !ok {
			return Item{}, mismatch(ct, record)
		}
		return Item{
			ID:          ItemID(ct, p.ID),
			ContentType: ct,
			ContentID:   p.ID,
			ProjectID:   p.ID,
			Title:       p.Title,
			Text:        joinFields(p.Title, p.Subtitle, p.Description),
		}, nil

	case TypeTask:
		t, ok := record.(Task)
		if !ok {
			return Item{}, mismatch(ct, record)
		}
		return Item{
			ID:          ItemID(ct, t.ID),
			ContentType: ct,
			ContentID:   t.ID,
			ProjectID:   ectx.ProjectID,
			Title:       t.Title,
			Text:        joinFields(t.Title, t.Description, labelled("Project:", ectx.ProjectTitle)),
		}, nil

	case TypeNotebook:
		e, ok := record.(NotebookEntry)
		if !ok {
			return Item{}, mismatch(ct, record)
		}
		projectID := e.ProjectID
		if projectID == "" {
			projectID = ectx.ProjectID
		}
		return Item{
			ID:          ItemID(ct, e.ID),
			ContentType: ct,
			ContentID:   e.ID,
			ProjectID:   projectID,
			Title:       e.Title,
			Text:        joinFields(e.Title, e.Content, tags(e.Tags)),
		}, nil

	case TypeReference:
		r, ok := record.(Reference)
		if !ok {
			return Item{}, mismatch(ct, record)
		}
		var summary string
		if r.AISummary != nil {
			summary = r.AISummary.Summary
		}
		return Item{
			ID:          ItemID(ct, r.ID),
			ContentType: ct,
			ContentID:   r.ID,
			ProjectID:   ectx.ProjectID,
			Title:       r.Title,
			Text:        joinFields(r.Title, r.Authors, r.Abstract, r.Notes, summary, tags(r.Tags)),
		}, nil

	case TypeProtocol, TypeResult:
		p, ok := record.(Protocol)
		if !ok {
			return Item{}, mismatch(ct, record)
		}
		return Item{
			ID:          ItemID(ct, p.ID),
			ContentType: ct,
			ContentID:   p.ID,
			ProjectID:   ectx.ProjectID,
			Title:       p.Title,
			Text:        joinFields(p.Title, p.Description, tags(p.Tags)),
		}, nil

	case TypeNote:
		var nr NoteRecord
		switch v := record.(type) {
		case NoteRecord:
			nr = v
		case Note:
			nr = NoteRecord{Kind: NoteMisc, Note: v}
		default:
			return Item{}, mismatch(ct, record)
		}
		return extractNote(nr, ectx)

	default:
		return Item{}, apperrors.ValidationError(fmt.Sprintf("unsupported content type %q", ct), nil)
	}
}

func extractNote(nr NoteRecord, ectx ExtractContext) (Item, error) {
	n := nr.Note
	title := n.Title
	var contentID string

	switch nr.Kind {
	case NoteBackground:
		contentID = string(NoteBackground) + "-" + ectx.ProjectID
		title = "Background"
		if n.Content == "" && n.Description == "" {
			return Item{}, apperrors.ValidationError("background note has no content", nil)
		}
	case NoteAim, NoteMisc:
		contentID = string(nr.Kind) + "-" + n.ID
	default:
		return Item{}, apperrors.ValidationError(fmt.Sprintf("unknown note kind %q", nr.Kind), nil)
	}

	body := n.Content
	if body == "" {
		body = n.Description
	}

	return Item{
		ID:          ItemID(TypeNote, contentID),
		ContentType: TypeNote,
		ContentID:   contentID,
		ProjectID:   ectx.ProjectID,
		Title:       title,
		Text:        joinFields(n.Title, body, n.Rationale, n.Hypothesis, n.Approach, n.ExpectedOutcomes),
	}, nil
}

// ExtractAll enumerates every record in the workspace and extracts items
// in a fixed order: projects, tasks, notebook, references, protocols,
// results, notes. Per-project maps are walked in sorted key order so two
// passes over the same workspace produce the same sequence.
func ExtractAll(ws *Workspace) ([]Item, error) {
	if ws == nil {
		return nil, nil
	}

	var items []Item
	add := func(ct ContentType, record any, ectx ExtractContext) error {
		item, err := Extract(ct, record, ectx)
		if err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}

	for _, p := range ws.Projects {
		if err := add(TypeProject, p, ExtractContext{}); err != nil {
			return nil, err
		}
	}

	for _, p := range ws.Projects {
		ectx := ExtractContext{ProjectID: p.ID, ProjectTitle: p.Title}
		for _, column := range sortedKeys(p.Tasks) {
			for _, t := range p.Tasks[column] {
				if err := add(TypeTask, t, ectx); err != nil {
					return nil, err
				}
			}
		}
	}

	for _, e := range ws.Notebook {
		if e.IsArchived {
			continue
		}
		if err := add(TypeNotebook, e, ExtractContext{}); err != nil {
			return nil, err
		}
	}

	for _, pid := range sortedKeys(ws.References) {
		for _, r := range ws.References[pid] {
			if err := add(TypeReference, r, ExtractContext{ProjectID: pid}); err != nil {
				return nil, err
			}
		}
	}

	for _, pid := range sortedKeys(ws.Protocols) {
		for _, p := range ws.Protocols[pid] {
			if err := add(TypeProtocol, p, ExtractContext{ProjectID: pid}); err != nil {
				return nil, err
			}
		}
	}

	for _, pid := range sortedKeys(ws.Results) {
		for _, r := range ws.Results[pid] {
			if err := add(TypeResult, r, ExtractContext{ProjectID: pid}); err != nil {
				return nil, err
			}
		}
	}

	for _, pid := range sortedKeys(ws.Notes) {
		notes := ws.Notes[pid]
		ectx := ExtractContext{ProjectID: pid}
		if notes.Background != "" {
			bg := NoteRecord{Kind: NoteBackground, Note: Note{Content: notes.Background}}
			if err := add(TypeNote, bg, ectx); err != nil {
				return nil, err
			}
		}
		for _, aim := range notes.SpecificAims {
			if err := add(TypeNote, NoteRecord{Kind: NoteAim, Note: aim}, ectx); err != nil {
				return nil, err
			}
		}
		for _, n := range notes.MiscNotes {
			if err := add(TypeNote, NoteRecord{Kind: NoteMisc, Note: n}, ectx); err != nil {
				return nil, err
			}
		}
	}

	return items, nil
}

// Collect loads the workspace from src and extracts every item.
func Collect(ctx context.Context, src Source) ([]Item, error) {
	ws, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	return ExtractAll(ws)
}

// joinFields joins the non-empty fields with single spaces.
func joinFields(fields ...string) string {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ")
}

func labelled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + " " + value
}

func tags(t []string) string {
	return labelled("Tags:", joinFields(t...))
}

func mismatch(ct ContentType, record any) error {
	return apperrors.ValidationError(fmt.Sprintf("record of type %T cannot be extracted as %s", record, ct), nil)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
