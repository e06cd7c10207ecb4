package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"contact-scraper/pkg/utils"
)

// Validate checks AppConfig fields and applies sensible defaults.
// Returns collected warnings and any fatal error.
// Modifies receiver in place to apply defaults.
func (c *AppConfig) Validate() (warnings []string, err error) {
	// Renderer
	switch c.Renderer {
	case "":
		c.Renderer = RendererChrome
	case RendererChrome, RendererHTTP:
	default:
		return nil, fmt.Errorf("%w: unknown renderer %q (want %q or %q)",
			utils.ErrConfigValidation, c.Renderer, RendererChrome, RendererHTTP)
	}

	// DefaultUserAgent
	if c.DefaultUserAgent == "" {
		c.DefaultUserAgent = DefaultUserAgent
	}

	// PolitenessDelay must stay positive
	if c.PolitenessDelay <= 0 {
		warnings = append(warnings, fmt.Sprintf("politeness_delay should be > 0, defaulting to %v", DefaultPolitenessDelay))
		c.PolitenessDelay = DefaultPolitenessDelay
	}
	if c.PolitenessJitter < 0 {
		warnings = append(warnings, "politeness_jitter cannot be negative, setting to 0")
		c.PolitenessJitter = 0
	}

	// Readiness
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = DefaultReadyTimeout
	}
	if c.SettleDelay < 0 {
		warnings = append(warnings, "settle_delay cannot be negative, setting to 0")
		c.SettleDelay = 0
	} else if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}

	// OutputBaseDir
	if c.OutputBaseDir == "" {
		warnings = append(warnings, "output_base_dir is empty, defaulting to './output'")
		c.OutputBaseDir = "./output"
	}

	// StateDir
	if c.StateDir == "" {
		warnings = append(warnings, "state_dir is empty, defaulting to './crawler_state'")
		c.StateDir = "./crawler_state"
	}

	// MaxRetries
	if c.MaxRetries < 0 {
		warnings = append(warnings, "max_retries cannot be negative, setting to 0")
		c.MaxRetries = 0
	}
	if c.MaxRetries == 0 && c.InitialRetryDelay == 0 {
		c.MaxRetries = 2
	}

	// Retry delays (only if retries enabled)
	if c.MaxRetries > 0 {
		if c.InitialRetryDelay <= 0 {
			c.InitialRetryDelay = 1 * time.Second
		}
		if c.MaxRetryDelay <= 0 {
			c.MaxRetryDelay = 30 * time.Second
		}
	}

	if c.InitialRetryDelay > c.MaxRetryDelay && c.MaxRetryDelay > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"initial_retry_delay (%v) > max_retry_delay (%v), using max_retry_delay for initial",
			c.InitialRetryDelay, c.MaxRetryDelay))
		c.InitialRetryDelay = c.MaxRetryDelay
	}

	// GlobalCrawlTimeout
	if c.GlobalCrawlTimeout < 0 {
		warnings = append(warnings, "global_crawl_timeout cannot be negative, disabling timeout")
		c.GlobalCrawlTimeout = 0
	}

	// Browser window
	if c.Browser.WindowWidth <= 0 {
		c.Browser.WindowWidth = 1920
	}
	if c.Browser.WindowHeight <= 0 {
		c.Browser.WindowHeight = 1080
	}

	c.validateHTTPClientSettings()

	if c.EnableMetadataYAML && c.MetadataYAMLFilename == "" {
		c.MetadataYAMLFilename = DefaultMetadataFilename
	}

	return warnings, nil
}

// validateHTTPClientSettings applies defaults to HTTP client settings.
func (c *AppConfig) validateHTTPClientSettings() {
	h := &c.HTTPClientSettings
	if h.Timeout <= 0 {
		h.Timeout = 45 * time.Second
	}
	if h.MaxIdleConns <= 0 {
		h.MaxIdleConns = 20
	}
	if h.MaxIdleConnsPerHost <= 0 {
		h.MaxIdleConnsPerHost = 2
	}
	if h.IdleConnTimeout <= 0 {
		h.IdleConnTimeout = 90 * time.Second
	}
	if h.TLSHandshakeTimeout <= 0 {
		h.TLSHandshakeTimeout = 10 * time.Second
	}
	if h.ExpectContinueTimeout <= 0 {
		h.ExpectContinueTimeout = 1 * time.Second
	}
	if h.DialerTimeout <= 0 {
		h.DialerTimeout = 15 * time.Second
	}
	if h.DialerKeepAlive <= 0 {
		h.DialerKeepAlive = 30 * time.Second
	}
}

// Validate checks SiteConfig fields and applies defaults.
// Returns collected warnings and any fatal error.
// Marker sets are fixed here, nothing mutates them after load.
func (c *SiteConfig) Validate() (warnings []string, err error) {
	// Required: RootURL, absolute http(s)
	if c.RootURL == "" {
		return nil, fmt.Errorf("%w: site needs root_url", utils.ErrConfigValidation)
	}
	u, parseErr := url.Parse(c.RootURL)
	if parseErr != nil {
		return nil, fmt.Errorf("%w: invalid root_url %q: %w", utils.ErrConfigValidation, c.RootURL, parseErr)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: root_url %q must be an absolute http(s) URL", utils.ErrConfigValidation, c.RootURL)
	}

	// Renderer
	switch c.Renderer {
	case "", RendererChrome, RendererHTTP:
	default:
		return nil, fmt.Errorf("%w: unknown site renderer %q", utils.ErrConfigValidation, c.Renderer)
	}

	// Target markers: drop blanks, default when none left
	markers := make([]string, 0, len(c.TargetLinkMarkers))
	for _, m := range c.TargetLinkMarkers {
		if m = strings.TrimSpace(m); m != "" {
			markers = append(markers, m)
		}
	}
	if len(markers) == 0 {
		if len(c.TargetLinkMarkers) > 0 {
			warnings = append(warnings, "target_link_markers are all blank, using defaults")
		}
		markers = append(markers, DefaultTargetLinkMarkers...)
	}
	c.TargetLinkMarkers = markers

	if strings.TrimSpace(c.EntityLinkMarker) == "" {
		c.EntityLinkMarker = DefaultEntityLinkMarker
	}

	if c.PolitenessDelay < 0 {
		warnings = append(warnings, "Site politeness_delay cannot be negative, using global delay")
		c.PolitenessDelay = 0
	}

	if c.ReportFilename == "" {
		c.ReportFilename = DefaultReportFilename
	}
	if c.DebugFilename == "" {
		c.DebugFilename = DefaultDebugFilename
	}
	if c.TargetColumnHeader == "" {
		c.TargetColumnHeader = DefaultTargetColumn
	}
	if c.EntityColumnHeader == "" {
		c.EntityColumnHeader = DefaultEntityColumn
	}

	return warnings, nil
}
