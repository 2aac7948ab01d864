package extract

import (
	"errors"
	"fmt"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
)

// ErrMissingElement is matched by every *ElementError.
var ErrMissingElement = errors.New("required element not found")

// ElementError reports a required element absent from the page.
type ElementError struct {
	Field string
	// Tried lists the matchers evaluated, in priority order.
	Tried []string
}

func (e *ElementError) Error() string {
	return fmt.Sprintf("%s: no match for %s", e.Field, strings.Join(e.Tried, ", "))
}

func (e *ElementError) Unwrap() error { return ErrMissingElement }

// Defaults for optional fields.
const (
	NoSubtitle  = ""
	NoDate      = "Date not found"
	NoLikeCount = "0"
)

// Selectors are the priority-ordered matchers for each field. Within a list
// the first matcher that finds an element wins.
type Selectors struct {
	Title     []string `yaml:"title"`
	Subtitle  []string `yaml:"subtitle"`
	Date      []string `yaml:"date"`
	LikeCount []string `yaml:"like_count"`
	Content   []string `yaml:"content"`
}

// DefaultSelectors match the current post page layout. The title falls back
// to h2 because an embedded video demotes the heading.
func DefaultSelectors() Selectors {
	return Selectors{
		Title:    []string{"h1.post-title", "h2"},
		Subtitle: []string{"h3.subtitle"},
		Date: []string{
			".pencraft.pc-reset.color-pub-secondary-text-hGQ02T.line-height-20-t4M0El.font-meta-MWBumP.size-11-NuY2Zx.weight-medium-fw81nC.transform-uppercase-yKDgcq.reset-IxiVJZ.meta-EgzBVA",
			"time[datetime]",
		},
		LikeCount: []string{"a.post-ufi-button .label"},
		Content:   []string{"div.available-content"},
	}
}

// withDefaults fills empty lists from DefaultSelectors.
func (s Selectors) withDefaults() Selectors {
	d := DefaultSelectors()
	if len(s.Title) == 0 {
		s.Title = d.Title
	}
	if len(s.Subtitle) == 0 {
		s.Subtitle = d.Subtitle
	}
	if len(s.Date) == 0 {
		s.Date = d.Date
	}
	if len(s.LikeCount) == 0 {
		s.LikeCount = d.LikeCount
	}
	if len(s.Content) == 0 {
		s.Content = d.Content
	}
	return s
}

// Post is the extracted content of one page.
type Post struct {
	Title     string
	Subtitle  string
	Date      string
	LikeCount string
	// Body is the content container converted to Markdown.
	Body string
	// Markdown is the full document: metadata header followed by Body.
	Markdown string
}

// Extractor extracts posts. It is safe for sequential reuse.
type Extractor struct {
	selectors Selectors
	converter *md.Converter
	renderer  goldmark.Markdown
}

// New returns an Extractor using sel; empty lists fall back to the defaults.
func New(sel Selectors) *Extractor {
	converter := md.NewConverter("", true, nil)
	converter.AddRules(linkTargetRule)

	return &Extractor{
		selectors: sel.withDefaults(),
		converter: converter,
		renderer:  newRenderer(),
	}
}

var hrefWhitespace = strings.NewReplacer(" ", "%20", "\t", "%09", "\n", "%0A", "\r", "%0D")

// linkTargetRule percent-encodes whitespace in link targets, which would
// otherwise end the Markdown link destination early. It returns nil so the
// default link rule renders the element.
var linkTargetRule = md.Rule{
	Filter: []string{"a"},
	Replacement: func(content string, selec *goquery.Selection, opt *md.Options) *string {
		if href, ok := selec.Attr("href"); ok {
			href = strings.TrimSpace(href)
			selec.SetAttr("href", hrefWhitespace.Replace(href))
		}
		return nil
	},
}

// Extract parses html and returns the post. A missing title or content
// container yields an *ElementError.
func (e *Extractor) Extract(html string) (*Post, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse HTML: %w", err)
	}

	title := first(doc, e.selectors.Title)
	if title == nil {
		return nil, &ElementError{Field: "title", Tried: e.selectors.Title}
	}
	content := first(doc, e.selectors.Content)
	if content == nil {
		return nil, &ElementError{Field: "content", Tried: e.selectors.Content}
	}

	post := &Post{
		Title:     normalize(title.Text()),
		Subtitle:  textOr(doc, e.selectors.Subtitle, NoSubtitle),
		Date:      textOr(doc, e.selectors.Date, NoDate),
		LikeCount: textOr(doc, e.selectors.LikeCount, NoLikeCount),
	}
	if !isDigits(post.LikeCount) {
		post.LikeCount = NoLikeCount
	}

	outer, err := goquery.OuterHtml(content)
	if err != nil {
		return nil, fmt.Errorf("read content container: %w", err)
	}
	body, err := e.converter.ConvertString(outer)
	if err != nil {
		return nil, fmt.Errorf("convert content to markdown: %w", err)
	}
	post.Body = body
	post.Markdown = Document(post.Title, post.Subtitle, post.Date, post.LikeCount, body)

	return post, nil
}

// Document assembles the Markdown file: a metadata header then the body.
func Document(title, subtitle, date, likeCount, body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if subtitle != "" {
		fmt.Fprintf(&b, "## %s\n\n", subtitle)
	}
	fmt.Fprintf(&b, "**%s**\n\n", date)
	fmt.Fprintf(&b, "**Likes:** %s\n\n", likeCount)
	b.WriteString(body)
	return b.String()
}

// first returns the first selection matched by candidates in priority order.
func first(doc *goquery.Document, candidates []string) *goquery.Selection {
	for _, sel := range candidates {
		if strings.TrimSpace(sel) == "" {
			continue
		}
		if found := doc.Find(sel).First(); found.Length() > 0 {
			return found
		}
	}
	return nil
}

func textOr(doc *goquery.Document, candidates []string, fallback string) string {
	sel := first(doc, candidates)
	if sel == nil {
		return fallback
	}
	if text := normalize(sel.Text()); text != "" {
		return text
	}
	return fallback
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
