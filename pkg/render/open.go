package render

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/fetch"
	"contact-scraper/pkg/utils"
)

// Options selects and configures a Session implementation
type Options struct {
	Renderer config.Renderer
	Chrome   ChromeOptions
	Fetcher  *fetch.Fetcher // Required for config.RendererHTTP
}

// Open creates the Session named by opts.Renderer. Failures wrap utils.ErrSessionSetup.
func Open(ctx context.Context, opts Options, log *logrus.Entry) (Session, error) {
	sessLog := log.WithField("renderer", opts.Renderer)
	switch opts.Renderer {
	case config.RendererChrome, "":
		s, err := NewChromeSession(ctx, opts.Chrome, sessLog)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.RendererHTTP:
		if opts.Fetcher == nil {
			return nil, fmt.Errorf("%w: http renderer needs a fetcher", utils.ErrSessionSetup)
		}
		sessLog.Info("Static HTTP session ready")
		return NewStaticSession(opts.Fetcher, opts.Chrome.UserAgent, sessLog), nil
	default:
		return nil, fmt.Errorf("%w: unknown renderer %q", utils.ErrSessionSetup, opts.Renderer)
	}
}
