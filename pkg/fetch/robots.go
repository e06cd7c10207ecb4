package fetch

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/temoto/robotstxt"
)

// RobotsHandler fetches, caches and evaluates robots.txt per host
type RobotsHandler struct {
	fetcher     *Fetcher
	rateLimiter *RateLimiter
	userAgent   string
	delay       time.Duration
	robotsCache map[string]*robotstxt.RobotsData // hostname -> parsed data (nil = unavailable, allow all)
	robotsMu    sync.Mutex
	log         *logrus.Entry
}

// NewRobotsHandler creates a RobotsHandler. The rate limiter is shared with page fetches so
// the robots.txt request also counts against the politeness delay.
func NewRobotsHandler(fetcher *Fetcher, rateLimiter *RateLimiter, userAgent string, delay time.Duration, log *logrus.Entry) *RobotsHandler {
	return &RobotsHandler{
		fetcher:     fetcher,
		rateLimiter: rateLimiter,
		userAgent:   userAgent,
		delay:       delay,
		robotsCache: make(map[string]*robotstxt.RobotsData),
		log:         log,
	}
}

// GetRobotsData returns parsed robots.txt for the URL's host, fetching it once.
// Returns nil when the file is missing or unreadable.
func (rh *RobotsHandler) GetRobotsData(ctx context.Context, targetURL *url.URL) *robotstxt.RobotsData {
	host := targetURL.Host

	rh.robotsMu.Lock()
	data, found := rh.robotsCache[host]
	rh.robotsMu.Unlock()
	if found {
		return data
	}

	scheme := targetURL.Scheme
	if scheme != "http" && scheme != "https" {
		scheme = "https"
	}
	robotsURL := (&url.URL{Scheme: scheme, Host: host, Path: "/robots.txt"}).String()
	robotsLog := rh.log.WithField("robots_url", robotsURL)
	robotsLog.Info("Fetching robots.txt...")

	if err := rh.rateLimiter.ApplyDelay(ctx, targetURL.Hostname(), rh.delay); err != nil {
		return nil // Not cached, a later call may succeed
	}
	body, _, err := rh.fetcher.GetBody(ctx, robotsURL, rh.userAgent)
	rh.rateLimiter.UpdateLastRequestTime(targetURL.Hostname())

	if err == nil {
		data, err = robotstxt.FromBytes(body)
	}
	if err != nil {
		robotsLog.Warnf("robots.txt unavailable, allowing all: %v", err)
		data = nil
	} else {
		robotsLog.Info("Parsed robots.txt")
	}

	rh.robotsMu.Lock()
	rh.robotsCache[host] = data
	rh.robotsMu.Unlock()
	return data
}

// Allowed reports whether the configured user agent may fetch targetURL.
// Missing or unreadable robots.txt allows everything.
func (rh *RobotsHandler) Allowed(ctx context.Context, targetURL *url.URL) bool {
	data := rh.GetRobotsData(ctx, targetURL)
	if data == nil {
		return true
	}
	return data.TestAgent(targetURL.RequestURI(), rh.userAgent)
}
