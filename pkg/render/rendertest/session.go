// Package rendertest provides an in-memory render.Session for tests.
package rendertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"contact-scraper/pkg/render"
)

// ErrUnknownPage is returned by Navigate for URLs with no registered Page
var ErrUnknownPage = errors.New("rendertest: unknown page")

// Link is a fake anchor element
type Link struct {
	Text    string
	Href    string
	TextErr error
	HrefErr error
}

// Page describes what the fake session serves for one URL
type Page struct {
	Body        string
	BodyErr     error
	Links       []Link // Returned for every selector query
	FindErr     error  // Returned by FindElements instead of Links
	Source      string // PageSource; defaults to Body
	NavigateErr error  // Returned by Navigate
	NotReady    bool   // WaitForReady reports a timeout
	PanicOnBody bool   // BodyText panics
}

// Session is a scripted render.Session. Safe for inspection from the test goroutine.
type Session struct {
	mu      sync.Mutex
	pages   map[string]*Page
	current *Page

	Visits     []string
	VisitTimes []time.Time
	CloseCalls int
}

// NewSession creates a fake session serving pages keyed by URL
func NewSession(pages map[string]*Page) *Session {
	if pages == nil {
		pages = make(map[string]*Page)
	}
	return &Session{pages: pages}
}

// Navigate records the visit and switches to the page registered for url
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Visits = append(s.Visits, url)
	s.VisitTimes = append(s.VisitTimes, time.Now())
	s.current = nil
	if err := ctx.Err(); err != nil {
		return err
	}
	p, ok := s.pages[url]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPage, url)
	}
	if p.NavigateErr != nil {
		return p.NavigateErr
	}
	s.current = p
	return nil
}

func (s *Session) WaitForReady(_ context.Context, _ time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.current.NotReady
}

func (s *Session) BodyText(_ context.Context) (string, error) {
	s.mu.Lock()
	p := s.current
	s.mu.Unlock()
	if p == nil {
		return "", errors.New("rendertest: no page loaded")
	}
	if p.PanicOnBody {
		panic("rendertest: body read panic")
	}
	return p.Body, p.BodyErr
}

func (s *Session) FindElements(_ context.Context, _ string) ([]render.Element, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil, errors.New("rendertest: no page loaded")
	}
	if s.current.FindErr != nil {
		return nil, s.current.FindErr
	}
	elems := make([]render.Element, 0, len(s.current.Links))
	for _, l := range s.current.Links {
		elems = append(elems, fakeElement{link: l})
	}
	return elems, nil
}

func (s *Session) PageSource(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return "", errors.New("rendertest: no page loaded")
	}
	if s.current.Source != "" {
		return s.current.Source, nil
	}
	return s.current.Body, nil
}

func (s *Session) Close() error {
	s.mu.Lock()
	s.CloseCalls++
	s.mu.Unlock()
	return nil
}

// VisitCount returns how many times url was navigated to
func (s *Session) VisitCount(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.Visits {
		if v == url {
			n++
		}
	}
	return n
}

type fakeElement struct {
	link Link
}

func (e fakeElement) Text(_ context.Context) (string, error) {
	return e.link.Text, e.link.TextErr
}

func (e fakeElement) Attribute(_ context.Context, name string) (string, error) {
	if name != "href" {
		return "", nil
	}
	return e.link.Href, e.link.HrefErr
}
