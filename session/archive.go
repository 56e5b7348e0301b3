package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const archiveExt = ".json"

// Archive keeps diagnostic exports of closed sessions as one JSON file per
// session under a root directory. Writes are atomic (temp file + rename).
type Archive struct {
	root string
}

// NewArchive creates an Archive rooted at root. The directory is created on
// first Save.
func NewArchive(root string) *Archive {
	return &Archive{root: root}
}

// Root returns the archive directory.
func (a *Archive) Root() string { return a.root }

func (a *Archive) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("%w: invalid session id %q", ErrArchiveEntry, id)
	}
	return filepath.Join(a.root, id+archiveExt), nil
}

// Save writes exp, replacing any earlier export for the same session.
func (a *Archive) Save(_ context.Context, exp Export) error {
	path, err := a.path(exp.SessionID)
	if err != nil {
		return err
	}

	data, err := exp.MarshalIndent()
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}

	if err := os.MkdirAll(a.root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}

	tmp, err := os.CreateTemp(a.root, ".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: %s: %v", ErrPersist, exp.SessionID, err)
	}
	return nil
}

// Load reads the export for session id.
func (a *Archive) Load(_ context.Context, id string) (Export, error) {
	path, err := a.path(id)
	if err != nil {
		return Export{}, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Export{}, fmt.Errorf("%w: %s", ErrArchiveEntry, id)
		}
		return Export{}, fmt.Errorf("%w: %s: %v", ErrPersist, id, err)
	}

	var exp Export
	if err := json.Unmarshal(data, &exp); err != nil {
		return Export{}, fmt.Errorf("%w: %s: %v", ErrPersist, id, err)
	}
	return exp, nil
}

// List returns archived session IDs in sorted order. A missing root is empty.
func (a *Archive) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrPersist, err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, archiveExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, archiveExt))
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes an archived export. Missing entries are not an error.
func (a *Archive) Delete(_ context.Context, id string) error {
	path, err := a.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %s: %v", ErrPersist, id, err)
	}
	return nil
}
