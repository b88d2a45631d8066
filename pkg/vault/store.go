// Package vault is the document store: it enumerates markdown files under
// the vault root and reads and writes them as whole documents or single
// lines. Paths are always vault-relative with forward slashes.
package vault

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog"

	"github.com/mklimuk/task-pilot/pkg/logging"
)

// Store provides access to the markdown documents of one vault.
type Store struct {
	root    string
	include []string
	exclude []string
	log     zerolog.Logger
}

// NewStore creates a store rooted at the given directory. Include and
// exclude are doublestar glob patterns matched against relative paths; an
// empty include list matches every markdown file.
func NewStore(root string, include, exclude []string) *Store {
	if len(include) == 0 {
		include = []string{"**/*.md"}
	}
	return &Store{
		root:    root,
		include: include,
		exclude: exclude,
		log:     logging.Component("vault"),
	}
}

// Root returns the vault root directory.
func (s *Store) Root() string { return s.root }

// Name returns the vault name used in document backlinks.
func (s *Store) Name() string { return filepath.Base(s.root) }

func (s *Store) abs(path string) string {
	return filepath.Join(s.root, filepath.FromSlash(path))
}

// ListDocuments walks the vault and returns every relative path matching the
// include patterns and none of the exclude patterns.
func (s *Store) ListDocuments() ([]string, error) {
	var docs []string
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if s.matches(rel) {
			docs = append(docs, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk vault: %w", err)
	}
	return docs, nil
}

func (s *Store) matches(rel string) bool {
	included := false
	for _, p := range s.include {
		if ok, _ := doublestar.Match(p, rel); ok {
			included = true
			break
		}
	}
	if !included {
		return false
	}
	for _, p := range s.exclude {
		if ok, _ := doublestar.Match(p, rel); ok {
			return false
		}
	}
	return true
}

// Exists reports whether the document is present on disk.
func (s *Store) Exists(path string) bool {
	_, err := os.Stat(s.abs(path))
	return err == nil
}

// ModTime returns the document's last modification time.
func (s *Store) ModTime(path string) (time.Time, error) {
	info, err := os.Stat(s.abs(path))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	return info.ModTime(), nil
}

// Read returns the whole document text.
func (s *Store) Read(path string) (string, error) {
	data, err := os.ReadFile(s.abs(path))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// Lines returns the document split into lines without trailing newlines.
func (s *Store) Lines(path string) ([]string, error) {
	text, err := s.Read(path)
	if err != nil {
		return nil, err
	}
	return strings.Split(text, "\n"), nil
}

// Write replaces the whole document, creating parent directories as needed.
func (s *Store) Write(path, content string) error {
	abs := s.abs(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// WriteLines joins the lines back into a document and writes it.
func (s *Store) WriteLines(path string, lines []string) error {
	return s.Write(path, strings.Join(lines, "\n"))
}

// ReplaceLine rewrites a single line in place.
func (s *Store) ReplaceLine(path string, lineNo int, newLine string) error {
	lines, err := s.Lines(path)
	if err != nil {
		return err
	}
	if lineNo < 0 || lineNo >= len(lines) {
		return fmt.Errorf("line %d out of range in %s", lineNo, path)
	}
	lines[lineNo] = newLine
	return s.WriteLines(path, lines)
}

// DocumentName returns the base name without the markdown extension.
func DocumentName(path string) string {
	return strings.TrimSuffix(filepath.Base(path), ".md")
}

// StripFrontmatter removes a leading YAML frontmatter block. Identifier
// counts over the body must ignore ids stashed in frontmatter.
func StripFrontmatter(text string) string {
	if !strings.HasPrefix(text, "---") {
		return text
	}
	rest := text[3:]
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return text
	}
	after := rest[idx+len("\n---"):]
	if nl := strings.Index(after, "\n"); nl >= 0 {
		return after[nl+1:]
	}
	return ""
}
