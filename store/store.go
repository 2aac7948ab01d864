package store

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pevans/archivist/logger"
)

// Layout inside a site directory.
const (
	MarkdownDir    = "markdown"
	HTMLDir        = "html"
	StylesheetPath = "assets/css/essay-styles.css"
	IndexPageName  = "index.html"
)

// Store is the archive of one site.
type Store struct {
	dir  string
	site string
	log  logger.Logger
}

// New creates the site directory for baseURL under root.
func New(root, baseURL string, log logger.Logger) (*Store, error) {
	site := SiteName(baseURL)
	dir := filepath.Join(root, site)

	for _, sub := range []string{MarkdownDir, HTMLDir, filepath.Dir(filepath.FromSlash(StylesheetPath))} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create site directory: %w", err)
		}
	}

	return &Store{
		dir:  dir,
		site: site,
		log:  logger.OrNop(log).With(logger.String("component", "store"), logger.String("site", site)),
	}, nil
}

// Site is the directory name derived from the base URL.
func (s *Store) Site() string { return s.site }

// Dir is the site directory.
func (s *Store) Dir() string { return s.dir }

// MarkdownPath is where the post at postURL is written.
func (s *Store) MarkdownPath(postURL string) string {
	return filepath.Join(s.dir, MarkdownDir, Slug(postURL)+".md")
}

// HTMLPath is where the mirror of the post at postURL is written.
func (s *Store) HTMLPath(postURL string) string {
	return filepath.Join(s.dir, HTMLDir, Slug(postURL)+".html")
}

// IndexPath is the site's JSON index.
func (s *Store) IndexPath() string {
	return filepath.Join(s.dir, s.site+".json")
}

// IndexPagePath is the browsable index page.
func (s *Store) IndexPagePath() string {
	return filepath.Join(s.dir, IndexPageName)
}

// Rel returns p relative to the site directory with forward slashes.
func (s *Store) Rel(p string) string {
	rel, err := filepath.Rel(s.dir, p)
	if err != nil {
		return filepath.ToSlash(p)
	}
	return filepath.ToSlash(rel)
}

// StylesheetHref is the stylesheet link for a page written at pagePath.
func (s *Store) StylesheetHref(pagePath string) string {
	rel, err := filepath.Rel(filepath.Dir(pagePath), filepath.Join(s.dir, filepath.FromSlash(StylesheetPath)))
	if err != nil {
		return StylesheetPath
	}
	return filepath.ToSlash(rel)
}

// Exists reports whether p is present.
func (s *Store) Exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// WriteOnce creates p with content unless it already exists, in which case
// it logs a notice and returns false.
func (s *Store) WriteOnce(p, content string) (bool, error) {
	written, err := WriteOnce(p, content)
	if err != nil {
		return false, err
	}
	if !written {
		s.log.Info("file already exists", logger.String("path", p))
	}
	return written, nil
}

// WriteFile replaces p with content. Used for derived artifacts.
func (s *Store) WriteFile(p, content string) error {
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.Rel(p), err)
	}
	return nil
}

// WriteOnce creates p with content. It returns false without touching the
// file when p already exists.
func WriteOnce(p, content string) (bool, error) {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil // Already written -- not an error
	}
	if err != nil {
		return false, fmt.Errorf("failed to create %s: %w", p, err)
	}

	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(p)
		return false, fmt.Errorf("failed to write %s: %w", p, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(p)
		return false, fmt.Errorf("failed to write %s: %w", p, err)
	}
	return true, nil
}

// Slug is the final path segment of postURL, ignoring any query, fragment
// or trailing slash.
func Slug(postURL string) string {
	p := postURL
	if u, err := url.Parse(postURL); err == nil && u.Path != "" {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return "index"
	}
	return path.Base(p)
}

// multiPartSuffixes are second-level labels of two-part public suffixes
// such as co.uk.
var multiPartSuffixes = map[string]bool{
	"co": true, "com": true, "net": true, "org": true, "gov": true, "edu": true,
}

// SiteName derives the site directory name from baseURL. Platform
// subdomains use the subdomain; custom domains use the registered name.
//
//	garymarcus.substack.com         -> garymarcus
//	www.thefitzwilliam.com          -> thefitzwilliam
//	newsletter.eng-leadership.com   -> eng-leadership
//	example.co.uk                   -> example
func SiteName(baseURL string) string {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Hostname()
	}
	parts := strings.Split(strings.ToLower(host), ".")

	n := len(parts)
	if n >= 2 && parts[n-2] == "substack" && parts[n-1] == "com" {
		return parts[0]
	}
	if n >= 2 {
		if parts[0] == "www" {
			parts = parts[1:]
			n = len(parts)
		}
		if n >= 3 && multiPartSuffixes[parts[n-2]] {
			return parts[n-3]
		}
		if n >= 2 {
			return parts[n-2]
		}
	}
	if n == 1 && parts[0] != "" {
		return parts[0]
	}
	return "unknown"
}
