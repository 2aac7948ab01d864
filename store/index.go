package store

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/pevans/archivist/logger"
)

// Record is one entry of the site index.
type Record struct {
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle"`
	LikeCount string `json:"like_count"`
	Date      string `json:"date"`
	FileLink  string `json:"file_link"`
	HTMLLink  string `json:"html_link"`
}

//go:embed templates/index.html.tmpl templates/essay-styles.css
var assets embed.FS

var indexTemplate = template.Must(template.ParseFS(assets, "templates/index.html.tmpl"))

// LoadIndex reads the index. A missing file is an empty index.
func (s *Store) LoadIndex() ([]Record, error) {
	data, err := os.ReadFile(s.IndexPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []Record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// MergeIndex appends each record not structurally equal to one already in
// the index, writes the union back and returns it. Existing entries keep
// their order.
//
// Equality is over the whole record, not the post URL: an edited post
// produces a second entry.
func (s *Store) MergeIndex(records []Record) ([]Record, error) {
	// Load existing index
	index, err := s.LoadIndex()
	if err != nil {
		return nil, err
	}

	// Append new records
	added := 0
	for _, r := range records {
		if containsRecord(index, r) {
			continue
		}
		index = append(index, r)
		added++
	}

	// Marshal to JSON
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(index); err != nil {
		return nil, fmt.Errorf("failed to marshal index: %w", err)
	}
	if err := writeReplace(s.IndexPath(), buf.Bytes()); err != nil {
		return nil, fmt.Errorf("failed to write index: %w", err)
	}

	s.log.Info("saved index",
		logger.String("path", s.IndexPath()),
		logger.Int("added", added),
		logger.Int("total", len(index)),
	)
	return index, nil
}

func containsRecord(index []Record, r Record) bool {
	for _, existing := range index {
		if existing == r {
			return true
		}
	}
	return false
}

// WriteIndexPage renders the browsable page for the complete index.
func (s *Store) WriteIndexPage(records []Record) error {
	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	var buf bytes.Buffer
	err = indexTemplate.Execute(&buf, struct {
		Site       string
		Stylesheet string
		Records    []Record
		Data       template.JS
	}{
		Site:       s.site,
		Stylesheet: StylesheetPath,
		Records:    records,
		// MarshalIndent escapes <, > and & so the data cannot close the
		// script element.
		Data: template.JS(data),
	})
	if err != nil {
		return fmt.Errorf("failed to render index page: %w", err)
	}

	if err := writeReplace(s.IndexPagePath(), buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write index page: %w", err)
	}
	s.log.Info("generated index page", logger.String("path", s.IndexPagePath()))
	return nil
}

// EnsureStylesheet writes the default stylesheet unless one is present.
func (s *Store) EnsureStylesheet() error {
	css, err := assets.ReadFile("templates/essay-styles.css")
	if err != nil {
		return err
	}
	_, err = WriteOnce(filepath.Join(s.dir, filepath.FromSlash(StylesheetPath)), string(css))
	return err
}

// writeReplace writes data to a temporary file and renames it over p so a
// crash never leaves a truncated index.
func writeReplace(p string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(p), "."+filepath.Base(p)+".*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), p)
}
