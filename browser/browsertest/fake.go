package browsertest

import (
	"context"
	"fmt"

	"github.com/pevans/archivist/browser"
)

// Element is an element on the fake page.
type Element struct {
	Hidden bool
	Text   string
}

// Fake is a browser.Browser whose page state is set directly by tests. Hooks
// let a test change the page in response to navigation, clicks or polling.
type Fake struct {
	// URL is the current location.
	URL string
	// Doc is returned by HTML.
	Doc string
	// Elements present on the current page.
	Elements map[browser.Selector]Element

	NavigateErr error
	HTMLErr     error

	OnNavigate func(f *Fake, url string)
	OnClick    func(f *Fake, sel browser.Selector)
	// OnLocation runs before each Location call returns.
	OnLocation func(f *Fake)

	Navigations []string
	Clicks      []browser.Selector
	Filled      map[browser.Selector]string
	Closed      bool
}

// NewFake returns an empty Fake.
func NewFake() *Fake {
	return &Fake{
		Elements: map[browser.Selector]Element{},
		Filled:   map[browser.Selector]string{},
	}
}

// Set replaces the current page's elements.
func (f *Fake) Set(elements map[browser.Selector]Element) {
	f.Elements = elements
}

func (f *Fake) Navigate(ctx context.Context, url string) error {
	f.Navigations = append(f.Navigations, url)
	if f.NavigateErr != nil {
		return f.NavigateErr
	}
	f.URL = url
	if f.OnNavigate != nil {
		f.OnNavigate(f, url)
	}
	return nil
}

func (f *Fake) Location(ctx context.Context) (string, error) {
	if f.OnLocation != nil {
		f.OnLocation(f)
	}
	return f.URL, nil
}

func (f *Fake) HTML(ctx context.Context) (string, error) {
	if f.HTMLErr != nil {
		return "", f.HTMLErr
	}
	return f.Doc, nil
}

func (f *Fake) Exists(ctx context.Context, sel browser.Selector) (bool, error) {
	_, ok := f.Elements[sel]
	return ok, nil
}

func (f *Fake) Visible(ctx context.Context, sel browser.Selector) (bool, string, error) {
	el, ok := f.Elements[sel]
	if !ok {
		return false, "", nil
	}
	return !el.Hidden, el.Text, nil
}

func (f *Fake) Click(ctx context.Context, sel browser.Selector) error {
	if _, ok := f.Elements[sel]; !ok {
		return fmt.Errorf("click %s: no such element", sel)
	}
	f.Clicks = append(f.Clicks, sel)
	if f.OnClick != nil {
		f.OnClick(f, sel)
	}
	return nil
}

func (f *Fake) Fill(ctx context.Context, sel browser.Selector, value string) error {
	if _, ok := f.Elements[sel]; !ok {
		return fmt.Errorf("fill %s: no such element", sel)
	}
	f.Filled[sel] = value
	return nil
}

func (f *Fake) Close() error {
	f.Closed = true
	return nil
}

var _ browser.Browser = (*Fake)(nil)
