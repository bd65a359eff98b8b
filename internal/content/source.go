package content

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	apperrors "github.com/Aman-CERP/labsearch/internal/errors"
)

// Source enumerates the current records of every collaborator.
// Implementations must not mutate the records they return.
type Source interface {
	Load(ctx context.Context) (*Workspace, error)
}

// FileSource reads a workspace export from disk. The format is chosen by
// extension: .yaml/.yml are YAML, anything else is JSON.
type FileSource struct {
	Path string
}

// NewFileSource returns a FileSource for path.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load implements Source. A missing file is an empty workspace, so a fresh
// install can run status and search before any records exist.
func (s *FileSource) Load(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Workspace{}, nil
		}
		return nil, apperrors.New(apperrors.ErrCodeWorkspaceNotFound,
			fmt.Sprintf("failed to read workspace %s", s.Path), err)
	}

	ws, err := Decode(data, filepath.Ext(s.Path))
	if err != nil {
		return nil, apperrors.New(apperrors.ErrCodeWorkspaceCorrupt,
			fmt.Sprintf("failed to parse workspace %s", s.Path), err).
			WithSuggestion("check that the file is a valid workspace export")
	}
	return ws, nil
}

// Decode parses a workspace export. ext selects the format (".yaml", ".yml"
// or anything else for JSON).
func Decode(data []byte, ext string) (*Workspace, error) {
	var ws Workspace
	if len(bytes.TrimSpace(data)) == 0 {
		return &ws, nil
	}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &ws); err != nil {
			return nil, err
		}
	default:
		if err := json.Unmarshal(data, &ws); err != nil {
			return nil, err
		}
	}
	return &ws, nil
}

// StaticSource serves a fixed workspace. Useful for embedding the engine in
// another program and in tests.
type StaticSource struct {
	Workspace *Workspace
}

// Load implements Source.
func (s StaticSource) Load(ctx context.Context) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.Workspace == nil {
		return &Workspace{}, nil
	}
	return s.Workspace, nil
}
