// Package knowledge loads the flat file knowledge base and turns it into the
// system prompt every chat turn and voice call is grounded on.
package knowledge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/teilomillet/supportdesk/utils"
)

// DefaultCategory is used when a file name carries no category prefix.
const DefaultCategory = "general"

// Document is one knowledge base file.
type Document struct {
	Title    string `json:"title"`
	Content  string `json:"content"`
	Category string `json:"category"`
}

// Source yields the current knowledge base snapshot.
type Source interface {
	Load() ([]Document, error)
}

// Store reads the knowledge directory on every Load call.
type Store struct {
	dir        string
	extensions []string
	logger     utils.Logger
}

// NewStore creates a Store over dir. Only .txt and .md files are read.
func NewStore(dir string, logger utils.Logger) *Store {
	return &Store{
		dir:        dir,
		extensions: []string{".txt", ".md"},
		logger:     logger,
	}
}

// Dir returns the directory the store reads from.
func (s *Store) Dir() string {
	return s.dir
}

// Load reads every recognised file of the directory, in directory listing
// order. A missing directory yields no documents and no error.
func (s *Store) Load() ([]Document, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("Knowledge base directory not found", "dir", s.dir)
			return []Document{}, nil
		}
		return nil, fmt.Errorf("reading knowledge base directory: %w", err)
	}

	docs := make([]Document, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !s.supported(entry.Name()) {
			continue
		}

		content, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading knowledge document %s: %w", entry.Name(), err)
		}
		docs = append(docs, NewDocument(entry.Name(), string(content)))
	}

	s.logger.Debug("Knowledge base loaded", "dir", s.dir, "documents", len(docs))
	return docs, nil
}

func (s *Store) supported(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range s.extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// NewDocument derives a Document from a file name and its contents.
// "faq-shipping-times.md" becomes title "faq shipping times", category "faq".
func NewDocument(filename, content string) Document {
	base := strings.TrimSuffix(filename, filepath.Ext(filename))
	return Document{
		Title:    strings.ReplaceAll(base, "-", " "),
		Content:  content,
		Category: categoryOf(filename),
	}
}

func categoryOf(filename string) string {
	prefix, _, found := strings.Cut(filename, "-")
	if !found || prefix == "" {
		return DefaultCategory
	}
	return prefix
}

// Summary lists the loaded documents for debugging.
func Summary(docs []Document) string {
	if len(docs) == 0 {
		return "No knowledge base documents found."
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Loaded %d documents:", len(docs))
	for _, d := range docs {
		fmt.Fprintf(&sb, "\n- %s (%s)", d.Title, d.Category)
	}
	return sb.String()
}
