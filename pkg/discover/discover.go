// Package discover finds the target sub-pages linked from a directory root page.
package discover

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/models"
	"contact-scraper/pkg/render"
	"contact-scraper/pkg/utils"
)

const linkSelector = "a[href]"

// Discoverer extracts targets from the root page. Markers are fixed at construction.
type Discoverer struct {
	markers      []string
	readyTimeout time.Duration
	log          *logrus.Entry
}

// NewDiscoverer creates a Discoverer keeping links whose href contains every marker
func NewDiscoverer(markers []string, readyTimeout time.Duration, log *logrus.Entry) *Discoverer {
	return &Discoverer{
		markers:      append([]string(nil), markers...),
		readyTimeout: readyTimeout,
		log:          log,
	}
}

// Matches reports whether href contains every marker
func (d *Discoverer) Matches(href string) bool {
	for _, m := range d.markers {
		if !strings.Contains(href, m) {
			return false
		}
	}
	return true
}

// Discover loads rootURL and returns its target links in page order, deduplicated by URL
// with the first occurrence kept. Any failure yields an empty slice, never an error.
func (d *Discoverer) Discover(ctx context.Context, session render.Session, rootURL string) []models.Target {
	targets := make([]models.Target, 0)
	rootLog := d.log.WithField("root_url", rootURL)

	base, err := url.Parse(rootURL)
	if err != nil {
		rootLog.Errorf("Invalid root URL: %v", err)
		return targets
	}

	rootLog.Info("Loading main page...")
	if err := session.Navigate(ctx, rootURL); err != nil {
		rootLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Error getting targets: %v", err)
		return targets
	}
	if !session.WaitForReady(ctx, d.readyTimeout) {
		rootLog.Warnf("Root page not ready after %v, reading what rendered", d.readyTimeout)
	}

	elems, err := session.FindElements(ctx, linkSelector)
	if err != nil {
		rootLog.WithField("error_type", utils.CategorizeError(err)).Errorf("Error querying links: %v", err)
		return targets
	}

	// Filter on the raw href so markers match as written in the page
	links := render.ReadLinks(ctx, elems, d.Matches)

	seen := make(map[string]struct{}, len(links))
	readErrs, skipped := 0, 0
	for _, res := range links {
		if res.Err != nil {
			readErrs++
			rootLog.Debugf("Skipping unreadable link: %v", res.Err)
			continue
		}
		name := strings.TrimSpace(res.Data.Text)
		target := resolve(base, res.Data.Href)
		if name == "" || target == "" {
			skipped++
			continue
		}
		if _, dup := seen[target]; dup {
			continue
		}
		seen[target] = struct{}{}
		targets = append(targets, models.Target{Name: name, URL: target})
	}

	rootLog.WithFields(logrus.Fields{
		"anchors":     len(elems),
		"targets":     len(targets),
		"read_errors": readErrs,
		"unnamed":     skipped,
	}).Info("Target discovery finished")
	return targets
}

// resolve makes href absolute against base. Returns "" for unusable hrefs.
func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	u, err := base.Parse(href)
	if err != nil {
		return ""
	}
	u.Fragment = ""
	return u.String()
}
