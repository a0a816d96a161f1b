package pagestore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a task directory or page image is missing.
var ErrNotFound = errors.New("not found")

const (
	pagesDir    = "pages"
	debugDir    = "debug"
	originalPDF = "original.pdf"
)

// Store lays out per-task files below a root directory:
//
//	<root>/<task>/original.pdf
//	<root>/<task>/pages/<task>_page_00001.png
//	<root>/<task>/debug/...                debug images
//	<root>/<task>/boxes.json               see package template
type Store struct {
	root string
}

func New(root string) *Store {
	return &Store{root: root}
}

func (s *Store) Root() string { return s.root }

// ValidTaskID reports whether id is safe to use as a directory name.
func ValidTaskID(id string) bool {
	return uuid.Validate(id) == nil
}

func (s *Store) TaskDir(task string) string {
	return filepath.Join(s.root, task)
}

func (s *Store) PagesDir(task string) string {
	return filepath.Join(s.root, task, pagesDir)
}

func (s *Store) DebugDir(task string) string {
	return filepath.Join(s.root, task, debugDir)
}

func (s *Store) OriginalPath(task string) string {
	return filepath.Join(s.root, task, originalPDF)
}

// PageFileName names page n (1-based). The zero padding keeps directory
// order equal to page order.
func PageFileName(task string, n int) string {
	return fmt.Sprintf("%s_page_%05d.png", task, n)
}

func (s *Store) PagePath(task string, n int) string {
	return filepath.Join(s.PagesDir(task), PageFileName(task, n))
}

// Prepare creates the task's page directory.
func (s *Store) Prepare(task string) error {
	if err := os.MkdirAll(s.PagesDir(task), 0o755); err != nil {
		return fmt.Errorf("create pages dir: %w", err)
	}
	return nil
}

// SaveOriginal stores the uploaded PDF.
func (s *Store) SaveOriginal(task string, data []byte) error {
	if err := s.Prepare(task); err != nil {
		return err
	}
	if err := os.WriteFile(s.OriginalPath(task), data, 0o644); err != nil {
		return fmt.Errorf("write original: %w", err)
	}
	return nil
}

// ExistingPage returns the path of page n or ErrNotFound.
func (s *Store) ExistingPage(task string, n int) (string, error) {
	p := s.PagePath(task, n)
	if _, err := os.Stat(p); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("page %d of task %s: %w", n, task, ErrNotFound)
		}
		return "", err
	}
	return p, nil
}

// ListPages returns the file names of all stored pages in page order.
// A task without pages yields an empty list.
func (s *Store) ListPages(task string) ([]string, error) {
	entries, err := os.ReadDir(s.PagesDir(task))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read pages dir: %w", err)
	}
	prefix := task + "_"
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".png") {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}

// PagePaths is ListPages with full paths.
func (s *Store) PagePaths(task string) ([]string, error) {
	names, err := s.ListPages(task)
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, n := range names {
		paths[i] = filepath.Join(s.PagesDir(task), n)
	}
	return paths, nil
}

// PageURLs returns the public URLs of all stored pages.
func (s *Store) PageURLs(baseURL, task string) ([]string, error) {
	names, err := s.ListPages(task)
	if err != nil {
		return nil, err
	}
	urls := make([]string, len(names))
	for i, n := range names {
		urls[i] = baseURL + "/static/" + task + "/" + pagesDir + "/" + n
	}
	return urls, nil
}

// RemoveTask deletes everything stored for task. A missing directory is fine.
func (s *Store) RemoveTask(task string) error {
	if !ValidTaskID(task) {
		return fmt.Errorf("invalid task id %q", task)
	}
	if err := os.RemoveAll(s.TaskDir(task)); err != nil {
		return fmt.Errorf("remove task dir: %w", err)
	}
	return nil
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
