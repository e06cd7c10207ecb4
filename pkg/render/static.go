package render

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/fetch"
	"contact-scraper/pkg/utils"
)

// StaticSession renders pages by fetching them over HTTP and parsing with goquery.
// No scripts run, so it only suits directories whose links are in the served HTML.
type StaticSession struct {
	fetcher   *fetch.Fetcher
	userAgent string
	doc       *goquery.Document
	raw       []byte
	log       *logrus.Entry
}

// NewStaticSession creates a StaticSession that fetches with fetcher
func NewStaticSession(fetcher *fetch.Fetcher, userAgent string, log *logrus.Entry) *StaticSession {
	return &StaticSession{fetcher: fetcher, userAgent: userAgent, log: log}
}

// Navigate fetches and parses url. On failure the previous page is discarded.
func (s *StaticSession) Navigate(ctx context.Context, url string) error {
	s.doc, s.raw = nil, nil

	body, finalURL, err := s.fetcher.GetBody(ctx, url, s.userAgent)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", utils.ErrTargetFetch, url, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %w: %s: %w", utils.ErrTargetParse, utils.ErrParsing, url, err)
	}
	doc.Url = finalURL
	s.doc, s.raw = doc, body
	return nil
}

// WaitForReady reports whether a page is loaded. Static pages are complete once fetched.
func (s *StaticSession) WaitForReady(_ context.Context, _ time.Duration) bool {
	return s.doc != nil
}

// BodyText returns the text nodes of the body, script and style excluded
func (s *StaticSession) BodyText(_ context.Context) (string, error) {
	if s.doc == nil {
		return "", utils.ErrNoSession
	}
	return visibleText(s.doc.Find("body")), nil
}

// FindElements returns matches for a CSS selector. An invalid selector matches nothing.
func (s *StaticSession) FindElements(_ context.Context, selector string) ([]Element, error) {
	if s.doc == nil {
		return nil, utils.ErrNoSession
	}
	sel := s.doc.Find(selector)
	elems := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, item *goquery.Selection) {
		elems = append(elems, staticElement{sel: item})
	})
	return elems, nil
}

// PageSource returns the markup exactly as served
func (s *StaticSession) PageSource(_ context.Context) (string, error) {
	if s.doc == nil {
		return "", utils.ErrNoSession
	}
	return string(s.raw), nil
}

// Close drops the current page
func (s *StaticSession) Close() error {
	s.doc, s.raw = nil, nil
	return nil
}

type staticElement struct {
	sel *goquery.Selection
}

func (e staticElement) Text(_ context.Context) (string, error) {
	return nodeText(e.sel), nil
}

func (e staticElement) Attribute(_ context.Context, name string) (string, error) {
	v, _ := e.sel.Attr(name)
	return v, nil
}
