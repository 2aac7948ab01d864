package browser

import (
	"context"
	"strings"
)

// Selector locates elements on a page. Expressions beginning with "/" or
// "(" are XPath; anything else is a CSS selector.
type Selector string

// IsXPath reports whether the selector is an XPath expression.
func (s Selector) IsXPath() bool {
	expr := strings.TrimSpace(string(s))
	return strings.HasPrefix(expr, "/") || strings.HasPrefix(expr, "(")
}

func (s Selector) String() string {
	return string(s)
}

// Selectors converts plain strings into Selectors.
func Selectors(exprs ...string) []Selector {
	out := make([]Selector, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, Selector(e))
	}
	return out
}

// Browser is a single stateful browser session. None of its methods wait for
// elements to appear; callers poll through package wait.
type Browser interface {
	// Navigate loads url and waits for the document to load.
	Navigate(ctx context.Context, url string) error
	// Location returns the current document URL.
	Location(ctx context.Context) (string, error)
	// HTML returns the serialized document.
	HTML(ctx context.Context) (string, error)
	// Exists reports whether at least one element matches sel.
	Exists(ctx context.Context, sel Selector) (bool, error)
	// Visible reports whether the first element matching sel is displayed,
	// and returns its text.
	Visible(ctx context.Context, sel Selector) (visible bool, text string, err error)
	// Click activates the first element matching sel.
	Click(ctx context.Context, sel Selector) error
	// Fill clears the first element matching sel and types value into it.
	Fill(ctx context.Context, sel Selector, value string) error
	// Close ends the session.
	Close() error
}

// FirstExisting returns the first selector in candidates that matches an
// element, or "" when none do.
func FirstExisting(ctx context.Context, b Browser, candidates []Selector) (Selector, error) {
	for _, sel := range candidates {
		ok, err := b.Exists(ctx, sel)
		if err != nil {
			return "", err
		}
		if ok {
			return sel, nil
		}
	}
	return "", nil
}
