package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/dgallion1/notenscan/internal/layout"
	"github.com/dgallion1/notenscan/internal/pagestore"
)

const fileName = "boxes.json"

// Template is the title-page layout of one document: the detected or edited
// boxes, the role suggestions and the user's labels.
type Template struct {
	Boxes       []layout.Block     `json:"boxes"`
	Suggestions layout.Suggestions `json:"suggestions"`
	Labels      map[string]any     `json:"labels"`
}

type document struct {
	Template *Template `json:"template,omitempty"`
}

func (t *Template) normalize() {
	if t.Boxes == nil {
		t.Boxes = []layout.Block{}
	}
	if t.Suggestions == nil {
		t.Suggestions = layout.Suggestions{}
	}
	if t.Labels == nil {
		t.Labels = map[string]any{}
	}
}

// Store persists one template per task as JSON next to the task's pages.
// Access to a task's file is serialised; writes replace the file atomically.
type Store struct {
	pages *pagestore.Store

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewStore(pages *pagestore.Store) *Store {
	return &Store{pages: pages, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) path(task string) string {
	return filepath.Join(s.pages.TaskDir(task), fileName)
}

func (s *Store) lock(task string) func() {
	s.mu.Lock()
	l, ok := s.locks[task]
	if !ok {
		l = &sync.Mutex{}
		s.locks[task] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Forget drops the lock of a deleted task.
func (s *Store) Forget(task string) {
	s.mu.Lock()
	delete(s.locks, task)
	s.mu.Unlock()
}

// Load returns the stored template. found is false when none was saved yet.
func (s *Store) Load(task string) (t Template, found bool, err error) {
	defer s.lock(task)()
	return s.load(task)
}

// Save replaces the stored template.
func (s *Store) Save(task string, t Template) error {
	defer s.lock(task)()
	return s.save(task, t)
}

// Update loads the template, applies fn and saves the result under the
// task's lock. Nothing is written when fn fails.
func (s *Store) Update(task string, fn func(t *Template, found bool) error) (Template, error) {
	defer s.lock(task)()
	t, found, err := s.load(task)
	if err != nil {
		return Template{}, err
	}
	if err := fn(&t, found); err != nil {
		return Template{}, err
	}
	t.normalize()
	if err := s.save(task, t); err != nil {
		return Template{}, err
	}
	return t, nil
}

func (s *Store) load(task string) (Template, bool, error) {
	data, err := os.ReadFile(s.path(task))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			t := Template{}
			t.normalize()
			return t, false, nil
		}
		return Template{}, false, fmt.Errorf("read template: %w", err)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Template{}, false, fmt.Errorf("decode template: %w", err)
	}
	if doc.Template == nil {
		t := Template{}
		t.normalize()
		return t, false, nil
	}
	doc.Template.normalize()
	return *doc.Template, true, nil
}

func (s *Store) save(task string, t Template) error {
	t.normalize()
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(document{Template: &t}); err != nil {
		return fmt.Errorf("encode template: %w", err)
	}
	if err := pagestore.WriteFileAtomic(s.path(task), buf.Bytes()); err != nil {
		return fmt.Errorf("write template: %w", err)
	}
	return nil
}
