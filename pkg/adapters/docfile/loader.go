// Package docfile loads document files from disk. A document file is YAML:
// frontmatter fields at the top level and the ordered block list under
// "blocks". Compilation errors are reported with the file path attached.
package docfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/stanza/internal/compile"
	"github.com/aretw0/stanza/pkg/domain"
)

type rawDocument struct {
	ID        string           `yaml:"id"`
	Title     string           `yaml:"title"`
	Bind      []string         `yaml:"bind"`
	Variables map[string]any   `yaml:"variables"`
	Blocks    []map[string]any `yaml:"blocks"`
}

// Load reads and compiles one document file. The document ID defaults to the
// file name without its extension.
func Load(path string) (*domain.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	doc, err := Parse(data, stem(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

// Parse compiles document bytes. defaultID is used when the file carries no
// explicit id.
func Parse(data []byte, defaultID string) (*domain.Document, error) {
	var raw rawDocument
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	id := raw.ID
	if id == "" {
		id = defaultID
	}
	return compile.Document(id, domain.Frontmatter{
		Title:     raw.Title,
		Bind:      raw.Bind,
		Variables: raw.Variables,
	}, raw.Blocks)
}

// LoadDir loads every document file in a directory, keyed by document ID.
// Files are visited in name order so duplicate-ID detection is deterministic.
func LoadDir(dir string) (map[string]*domain.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read document directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	docs := make(map[string]*domain.Document, len(names))
	for _, name := range names {
		doc, err := Load(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if _, exists := docs[doc.ID]; exists {
			return nil, fmt.Errorf("%s: duplicate document id %q", name, doc.ID)
		}
		docs[doc.ID] = doc
	}
	return docs, nil
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
