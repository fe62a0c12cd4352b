package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/bindpad/api/schemas"
)

type fileDocument struct {
	Binds []schemas.Bind `json:"binds" yaml:"binds"`
}

// FileRepository keeps every bind in one YAML or JSON document, chosen by
// the file extension. The whole file is rewritten on each change.
type FileRepository struct {
	path string
	log  *zap.Logger

	mu    sync.Mutex
	binds []schemas.Bind
}

// OpenFile loads path, treating a missing file as an empty store.
func OpenFile(path string, logger *zap.Logger) (*FileRepository, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &FileRepository{path: path, log: logger.Named("store.file"), binds: []schemas.Bind{}}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		r.log.Info("Bind file does not exist yet, starting empty", zap.String("path", path))
		return r, nil
	case err != nil:
		return nil, fmt.Errorf("failed to read bind file: %w", err)
	}

	var doc fileDocument
	if r.isJSON() {
		err = json.Unmarshal(raw, &doc)
	} else {
		err = yaml.Unmarshal(raw, &doc)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse bind file %s: %w", path, err)
	}
	if doc.Binds != nil {
		r.binds = doc.Binds
	}
	return r, nil
}

func (r *FileRepository) isJSON() bool {
	return strings.EqualFold(filepath.Ext(r.path), ".json")
}

func (r *FileRepository) List(_ context.Context) ([]schemas.Bind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.Bind, len(r.binds))
	copy(out, r.binds)
	return out, nil
}

func (r *FileRepository) Get(_ context.Context, id string) (schemas.Bind, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(id); i >= 0 {
		return r.binds[i], nil
	}
	return schemas.Bind{}, ErrNotFound
}

func (r *FileRepository) Put(_ context.Context, b schemas.Bind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := append([]schemas.Bind(nil), r.binds...)
	if i := r.index(b.ID); i >= 0 {
		r.binds[i] = b
	} else {
		r.binds = append(r.binds, b)
	}
	if err := r.save(); err != nil {
		r.binds = prev
		return err
	}
	return nil
}

func (r *FileRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(id)
	if i < 0 {
		return nil
	}
	prev := append([]schemas.Bind(nil), r.binds...)
	r.binds = append(r.binds[:i], r.binds[i+1:]...)
	if err := r.save(); err != nil {
		r.binds = prev
		return err
	}
	return nil
}

func (r *FileRepository) Close() error {
	return nil
}

func (r *FileRepository) index(id string) int {
	for i, b := range r.binds {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// save writes the document next to the target and renames it into place.
func (r *FileRepository) save() error {
	doc := fileDocument{Binds: r.binds}
	var (
		raw []byte
		err error
	)
	if r.isJSON() {
		raw, err = json.MarshalIndent(doc, "", "  ")
	} else {
		raw, err = yaml.Marshal(doc)
	}
	if err != nil {
		return fmt.Errorf("failed to encode binds: %w", err)
	}

	if dir := filepath.Dir(r.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create bind directory: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".binds-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write binds: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write binds: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("failed to replace bind file: %w", err)
	}
	return nil
}
