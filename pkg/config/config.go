package config

import "time"

// Renderer selects the rendering session implementation
type Renderer string

const (
	RendererChrome Renderer = "chrome" // Headless Chrome via chromedp, executes page scripts
	RendererHTTP   Renderer = "http"   // Plain HTTP fetch parsed with goquery, for static pages
)

const (
	DefaultUserAgent        = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultPolitenessDelay  = 2 * time.Second
	DefaultReadyTimeout     = 10 * time.Second
	DefaultSettleDelay      = 3 * time.Second
	DefaultEntityLinkMarker = "/facility-finder/"
	DefaultReportFilename   = "facility_emails.csv"
	DefaultDebugFilename    = "debug_page_source.html"
	DefaultMetadataFilename = "metadata.yaml"
	DefaultTargetColumn     = "City"
	DefaultEntityColumn     = "Facilities"
)

// DefaultTargetLinkMarkers are substrings every target link href must contain
var DefaultTargetLinkMarkers = []string{"directory_search=1", "ill_directory_city="}

// SiteConfig holds configuration specific to a single directory site
type SiteConfig struct {
	RootURL            string        `yaml:"root_url"`
	TargetLinkMarkers  []string      `yaml:"target_link_markers,omitempty"` // All must appear in a target href
	EntityLinkMarker   string        `yaml:"entity_link_marker,omitempty"`  // Entity label links contain this and no query string
	Renderer           Renderer      `yaml:"renderer,omitempty"`            // Overrides the global renderer
	UserAgent          string        `yaml:"user_agent,omitempty"`
	PolitenessDelay    time.Duration `yaml:"politeness_delay,omitempty"`
	RespectRobots      *bool         `yaml:"respect_robots,omitempty"`
	ReportFilename     string        `yaml:"report_filename,omitempty"`
	DebugFilename      string        `yaml:"debug_filename,omitempty"`
	TargetColumnHeader string        `yaml:"target_column_header,omitempty"` // First CSV column, e.g. "City"
	EntityColumnHeader string        `yaml:"entity_column_header,omitempty"` // Third CSV column, e.g. "Facilities"
	EnableMetadataYAML *bool         `yaml:"enable_metadata_yaml,omitempty"`
}

// BrowserConfig holds settings for the headless Chrome session
type BrowserConfig struct {
	Headless     *bool    `yaml:"headless,omitempty"` // nil = true
	NoSandbox    bool     `yaml:"no_sandbox,omitempty"`
	ExecPath     string   `yaml:"exec_path,omitempty"`     // Empty = chromedp's lookup
	WindowWidth  int      `yaml:"window_width,omitempty"`  // Default 1920
	WindowHeight int      `yaml:"window_height,omitempty"` // Default 1080
	ExtraFlags   []string `yaml:"extra_flags,omitempty"`   // Bare flag names, set to true
}

// AppConfig holds the global application configuration
type AppConfig struct {
	DefaultUserAgent     string                `yaml:"default_user_agent"`
	Renderer             Renderer              `yaml:"renderer"`
	PolitenessDelay      time.Duration         `yaml:"politeness_delay"`
	PolitenessJitter     time.Duration         `yaml:"politeness_jitter,omitempty"` // Additive only, never shortens the delay
	ReadyTimeout         time.Duration         `yaml:"ready_timeout,omitempty"`
	SettleDelay          time.Duration         `yaml:"settle_delay,omitempty"` // Wait after DOM ready for scripts to render
	OutputBaseDir        string                `yaml:"output_base_dir"`
	StateDir             string                `yaml:"state_dir"`
	MaxRetries           int                   `yaml:"max_retries,omitempty"`
	InitialRetryDelay    time.Duration         `yaml:"initial_retry_delay,omitempty"`
	MaxRetryDelay        time.Duration         `yaml:"max_retry_delay,omitempty"`
	GlobalCrawlTimeout   time.Duration         `yaml:"global_crawl_timeout,omitempty"`
	RespectRobots        bool                  `yaml:"respect_robots,omitempty"`
	EnableMetadataYAML   bool                  `yaml:"enable_metadata_yaml,omitempty"`
	MetadataYAMLFilename string                `yaml:"metadata_yaml_filename,omitempty"`
	Browser              BrowserConfig         `yaml:"browser,omitempty"`
	HTTPClientSettings   HTTPClientConfig      `yaml:"http_client_settings,omitempty"`
	Sites                map[string]SiteConfig `yaml:"sites"`
}

// HTTPClientConfig holds settings for the shared HTTP client
type HTTPClientConfig struct {
	Timeout               time.Duration `yaml:"timeout,omitempty"`                 // Overall request timeout
	MaxIdleConns          int           `yaml:"max_idle_conns,omitempty"`          // Max total idle connections
	MaxIdleConnsPerHost   int           `yaml:"max_idle_conns_per_host,omitempty"` // Max idle connections per host
	IdleConnTimeout       time.Duration `yaml:"idle_conn_timeout,omitempty"`       // Timeout for idle connections
	TLSHandshakeTimeout   time.Duration `yaml:"tls_handshake_timeout,omitempty"`   // Timeout for TLS handshake
	ExpectContinueTimeout time.Duration `yaml:"expect_continue_timeout,omitempty"` // Timeout for 100-continue
	ForceAttemptHTTP2     *bool         `yaml:"force_attempt_http2,omitempty"`     // nil=default, true=force, false=disable
	DialerTimeout         time.Duration `yaml:"dialer_timeout,omitempty"`          // Connection dial timeout
	DialerKeepAlive       time.Duration `yaml:"dialer_keep_alive,omitempty"`       // TCP keep-alive interval
}

// IsHeadless reports the effective headless setting
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

// GetEffectiveRenderer returns the site renderer, falling back to the global one
func GetEffectiveRenderer(siteCfg SiteConfig, appCfg AppConfig) Renderer {
	if siteCfg.Renderer != "" {
		return siteCfg.Renderer
	}
	if appCfg.Renderer != "" {
		return appCfg.Renderer
	}
	return RendererChrome
}

// GetEffectiveUserAgent returns the site user agent, falling back to the global one
func GetEffectiveUserAgent(siteCfg SiteConfig, appCfg AppConfig) string {
	if siteCfg.UserAgent != "" {
		return siteCfg.UserAgent
	}
	if appCfg.DefaultUserAgent != "" {
		return appCfg.DefaultUserAgent
	}
	return DefaultUserAgent
}

// GetEffectivePolitenessDelay returns the delay between target fetches. Always > 0.
func GetEffectivePolitenessDelay(siteCfg SiteConfig, appCfg AppConfig) time.Duration {
	if siteCfg.PolitenessDelay > 0 {
		return siteCfg.PolitenessDelay
	}
	if appCfg.PolitenessDelay > 0 {
		return appCfg.PolitenessDelay
	}
	return DefaultPolitenessDelay
}

// GetEffectiveRespectRobots determines whether robots.txt is consulted before each target
func GetEffectiveRespectRobots(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.RespectRobots != nil {
		return *siteCfg.RespectRobots
	}
	return appCfg.RespectRobots
}

// GetEffectiveEnableMetadataYAML determines if YAML metadata should be generated.
func GetEffectiveEnableMetadataYAML(siteCfg SiteConfig, appCfg AppConfig) bool {
	if siteCfg.EnableMetadataYAML != nil {
		return *siteCfg.EnableMetadataYAML
	}
	return appCfg.EnableMetadataYAML
}

// GetEffectiveMetadataYAMLFilename determines the filename for the YAML metadata.
func GetEffectiveMetadataYAMLFilename(appCfg AppConfig) string {
	if appCfg.MetadataYAMLFilename != "" {
		return appCfg.MetadataYAMLFilename
	}
	return DefaultMetadataFilename
}
