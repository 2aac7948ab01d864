package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
)

// ChromeOptions configure a Chrome session.
type ChromeOptions struct {
	Headless bool
	// ExecPath is the browser binary. Empty uses the chromedp lookup.
	ExecPath string
	// RemoteURL attaches to an already running browser's DevTools websocket
	// instead of launching one. ExecPath and Headless are ignored when set.
	RemoteURL string
	UserAgent string
	// PageLoadTimeout bounds each navigation.
	PageLoadTimeout time.Duration
}

// Chrome is a Browser backed by a chromedp tab.
type Chrome struct {
	ctx             context.Context
	cancel          context.CancelFunc
	pageLoadTimeout time.Duration
}

// NewChrome launches (or attaches to) a browser and opens one tab.
func NewChrome(parent context.Context, opts ChromeOptions) (*Chrome, error) {
	var allocCtx context.Context
	var allocCancel context.CancelFunc

	if opts.RemoteURL != "" {
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(parent, opts.RemoteURL)
	} else {
		allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
		allocOpts = append(allocOpts,
			chromedp.Flag("headless", opts.Headless),
			chromedp.NoSandbox,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-blink-features", "AutomationControlled"),
			chromedp.Flag("enable-automation", false),
		)
		if opts.ExecPath != "" {
			allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
		}
		if opts.UserAgent != "" {
			allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(parent, allocOpts...)
	}

	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	// Starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	timeout := opts.PageLoadTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Chrome{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
		pageLoadTimeout: timeout,
	}, nil
}

// run executes actions on the tab, bounded by both the caller's ctx and the
// tab's own lifetime.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx := c.ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(runCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(runCtx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func queryOpts(sel Selector) []chromedp.QueryOption {
	if sel.IsXPath() {
		return []chromedp.QueryOption{chromedp.BySearch}
	}
	return []chromedp.QueryOption{chromedp.ByQuery}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, c.pageLoadTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var loc string
	if err := c.run(ctx, 0, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (c *Chrome) HTML(ctx context.Context) (string, error) {
	var html string
	if err := c.run(ctx, 0, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}
	return html, nil
}

// probeScript inspects the first element matching sel without waiting.
func probeScript(sel Selector) (string, error) {
	expr, err := json.Marshal(strings.TrimSpace(string(sel)))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(function(){
  const expr = %s;
  let n = null;
  if (%t) {
    n = document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  } else {
    n = document.querySelector(expr);
  }
  if (!n) { return {found: false, visible: false, text: ""}; }
  const visible = !!(n.offsetWidth || n.offsetHeight || n.getClientRects().length);
  return {found: true, visible: visible, text: n.innerText || n.textContent || ""};
})()`, expr, sel.IsXPath()), nil
}

type probeResult struct {
	Found   bool   `json:"found"`
	Visible bool   `json:"visible"`
	Text    string `json:"text"`
}

func (c *Chrome) probe(ctx context.Context, sel Selector) (probeResult, error) {
	var res probeResult
	script, err := probeScript(sel)
	if err != nil {
		return res, err
	}
	if err := c.run(ctx, 0, chromedp.Evaluate(script, &res)); err != nil {
		return res, fmt.Errorf("query %s: %w", sel, err)
	}
	return res, nil
}

func (c *Chrome) Exists(ctx context.Context, sel Selector) (bool, error) {
	res, err := c.probe(ctx, sel)
	return res.Found, err
}

func (c *Chrome) Visible(ctx context.Context, sel Selector) (bool, string, error) {
	res, err := c.probe(ctx, sel)
	if err != nil {
		return false, "", err
	}
	return res.Found && res.Visible, strings.TrimSpace(res.Text), nil
}

func (c *Chrome) Click(ctx context.Context, sel Selector) error {
	opts := append(queryOpts(sel), chromedp.NodeVisible)
	if err := c.run(ctx, c.pageLoadTimeout, chromedp.Click(string(sel), opts...)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) Fill(ctx context.Context, sel Selector, value string) error {
	opts := queryOpts(sel)
	if err := c.run(ctx, c.pageLoadTimeout,
		chromedp.Clear(string(sel), opts...),
		chromedp.SendKeys(string(sel), value, opts...),
	); err != nil {
		return fmt.Errorf("fill %s: %w", sel, err)
	}
	return nil
}

func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

var _ Browser = (*Chrome)(nil)
