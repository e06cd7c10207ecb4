package render

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/config"
	ilog "contact-scraper/pkg/log"
	"contact-scraper/pkg/utils"
)

const (
	chromeStartupTimeout  = 30 * time.Second
	chromeNavigateTimeout = 60 * time.Second
	chromeReadTimeout     = 15 * time.Second
	chromeElementTimeout  = 5 * time.Second
)

// ChromeOptions configures a headless Chrome session
type ChromeOptions struct {
	Browser     config.BrowserConfig
	UserAgent   string
	SettleDelay time.Duration // Extra wait after DOM ready so client-side scripts can render
}

// ChromeSession drives a single Chrome tab through chromedp
type ChromeSession struct {
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	settleDelay   time.Duration
	loaded        bool
	closeOnce     sync.Once
	log           *logrus.Entry
}

// allocatorOptions builds the Chrome flags. Based on chromedp's defaults so first-run
// prompts, background networking and similar noise stay disabled.
func allocatorOptions(opts ChromeOptions) []chromedp.ExecAllocatorOption {
	b := opts.Browser
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("headless", b.IsHeadless()),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(b.WindowWidth, b.WindowHeight),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if b.NoSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if b.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(b.ExecPath))
	}
	for _, f := range b.ExtraFlags {
		allocOpts = append(allocOpts, chromedp.Flag(f, true))
	}
	return allocOpts
}

// NewChromeSession launches Chrome and opens a tab. Launch failures wrap utils.ErrSessionSetup.
// The browser lives until Close or until parent is cancelled.
func NewChromeSession(parent context.Context, opts ChromeOptions, log *logrus.Entry) (*ChromeSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, allocatorOptions(opts)...)

	loggers := ilog.NewChromeLoggers(log)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(loggers.Logf),
		chromedp.WithErrorf(loggers.Errorf),
		chromedp.WithDebugf(loggers.Debugf),
	)

	s := &ChromeSession{
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		settleDelay:   opts.SettleDelay,
		log:           log,
	}

	// First Run starts the browser process
	startCtx, cancel := context.WithTimeout(browserCtx, chromeStartupTimeout)
	defer cancel()
	if err := chromedp.Run(startCtx); err != nil {
		s.Close()
		return nil, fmt.Errorf("%w: launching chrome: %w", utils.ErrSessionSetup, err)
	}

	log.WithFields(logrus.Fields{
		"headless": opts.Browser.IsHeadless(),
		"window":   fmt.Sprintf("%dx%d", opts.Browser.WindowWidth, opts.Browser.WindowHeight),
	}).Info("Chrome session started")
	return s, nil
}

// run executes actions in the tab, bounded by timeout and by the caller's ctx
func (s *ChromeSession) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.browserCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Navigate loads url and waits for the load event
func (s *ChromeSession) Navigate(ctx context.Context, url string) error {
	s.loaded = false
	if err := s.run(ctx, chromeNavigateTimeout, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("%w: navigate %s: %w", utils.ErrTargetFetch, url, err)
	}
	s.loaded = true
	return nil
}

// WaitForReady waits for the body element, then sleeps the settle delay
func (s *ChromeSession) WaitForReady(ctx context.Context, timeout time.Duration) bool {
	if !s.loaded {
		return false
	}
	if err := s.run(ctx, timeout, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		s.log.Debugf("Readiness wait failed: %v", err)
		return false
	}
	if s.settleDelay > 0 {
		if err := s.run(ctx, s.settleDelay+time.Second, chromedp.Sleep(s.settleDelay)); err != nil {
			return false
		}
	}
	return true
}

// BodyText returns the rendered innerText of the body
func (s *ChromeSession) BodyText(ctx context.Context) (string, error) {
	if !s.loaded {
		return "", utils.ErrNoSession
	}
	var text string
	if err := s.run(ctx, chromeReadTimeout, chromedp.Text("body", &text, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: reading body text: %w", utils.ErrTargetParse, err)
	}
	return text, nil
}

// FindElements returns the nodes matching selector. No match is not an error.
func (s *ChromeSession) FindElements(ctx context.Context, selector string) ([]Element, error) {
	if !s.loaded {
		return nil, utils.ErrNoSession
	}
	var nodes []*cdp.Node
	err := s.run(ctx, chromeReadTimeout, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0)))
	if err != nil {
		return nil, fmt.Errorf("%w: query %q: %w", utils.ErrTargetParse, selector, err)
	}
	elems := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		elems = append(elems, &chromeElement{session: s, node: n})
	}
	return elems, nil
}

// PageSource returns the outer HTML of the document element
func (s *ChromeSession) PageSource(ctx context.Context) (string, error) {
	if !s.loaded {
		return "", utils.ErrNoSession
	}
	var markup string
	if err := s.run(ctx, chromeReadTimeout, chromedp.OuterHTML("html", &markup, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("%w: reading page source: %w", utils.ErrTargetParse, err)
	}
	return markup, nil
}

// Close shuts the browser down. Only the first call has an effect.
func (s *ChromeSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = chromedp.Cancel(s.browserCtx)
		s.browserCancel()
		s.allocCancel()
		s.log.Info("Chrome session closed")
	})
	return err
}

// chromeElement wraps a DOM node captured by FindElements
type chromeElement struct {
	session *ChromeSession
	node    *cdp.Node
}

// Text returns the node's rendered innerText
func (e *chromeElement) Text(ctx context.Context) (string, error) {
	var text string
	err := e.session.run(ctx, chromeElementTimeout,
		chromedp.JavascriptAttribute([]cdp.NodeID{e.node.NodeID}, "innerText", &text, chromedp.ByNodeID))
	if err != nil {
		return "", err
	}
	return text, nil
}

// Attribute reads from the attributes captured with the node
func (e *chromeElement) Attribute(_ context.Context, name string) (string, error) {
	v, _ := e.node.Attribute(name)
	return v, nil
}
