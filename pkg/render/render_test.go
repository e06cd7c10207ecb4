package render

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/fetch"
	"contact-scraper/pkg/utils"
)

const directoryHTML = `<!DOCTYPE html>
<html><head><title>Finder</title><style>.x{color:red}</style></head>
<body>
  <h1>Facility Finder</h1>
  <script>var hidden = "script@example.com";</script>
  <table><tr><td>info@desertcare.org</td><td>(602) 555-1234</td></tr></table>
  <ul>
    <li><a href="?directory_search=1&ill_directory_city=Phoenix">  Phoenix </a></li>
    <li><a href="/facility-finder/desert-care/"><span>Desert</span> <b>Care</b></a></li>
    <li><a name="anchor-only">No href</a></li>
  </ul>
</body></html>`

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newTestFetcher(client *http.Client) *fetch.Fetcher {
	cfg := &config.AppConfig{MaxRetries: 0}
	return fetch.NewFetcher(client, cfg, testLogger())
}

func newDirectoryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/facility-finder/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(directoryHTML))
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestStaticSession_PageReads(t *testing.T) {
	server := newDirectoryServer(t)
	s := NewStaticSession(newTestFetcher(server.Client()), "test-agent", testLogger())
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, server.URL+"/facility-finder/"))
	assert.True(t, s.WaitForReady(ctx, time.Second))

	body, err := s.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, "info@desertcare.org\n(602) 555-1234")
	assert.NotContains(t, body, "script@example.com")
	assert.NotContains(t, body, "color:red")

	elems, err := s.FindElements(ctx, "a[href]")
	require.NoError(t, err)
	require.Len(t, elems, 2)

	text, err := elems[0].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Phoenix", text)
	href, err := elems[0].Attribute(ctx, "href")
	require.NoError(t, err)
	assert.Equal(t, "?directory_search=1&ill_directory_city=Phoenix", href)

	text, err = elems[1].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Desert Care", text)

	missing, err := elems[1].Attribute(ctx, "data-missing")
	require.NoError(t, err)
	assert.Empty(t, missing)

	src, err := s.PageSource(ctx)
	require.NoError(t, err)
	assert.Equal(t, directoryHTML, src)
}

func TestStaticSession_NoMatchesIsNotAnError(t *testing.T) {
	server := newDirectoryServer(t)
	s := NewStaticSession(newTestFetcher(server.Client()), "", testLogger())
	ctx := context.Background()
	require.NoError(t, s.Navigate(ctx, server.URL+"/facility-finder/"))

	elems, err := s.FindElements(ctx, "a.does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, elems)
}

func TestStaticSession_NavigateFailure(t *testing.T) {
	server := newDirectoryServer(t)
	s := NewStaticSession(newTestFetcher(server.Client()), "", testLogger())
	ctx := context.Background()

	require.NoError(t, s.Navigate(ctx, server.URL+"/facility-finder/"))
	err := s.Navigate(ctx, server.URL+"/gone")
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrTargetFetch)
	assert.ErrorIs(t, err, utils.ErrClientHTTPError)

	// Previous page must not leak into reads after a failed navigation
	assert.False(t, s.WaitForReady(ctx, time.Second))
	_, err = s.BodyText(ctx)
	assert.ErrorIs(t, err, utils.ErrNoSession)
	_, err = s.FindElements(ctx, "a")
	assert.ErrorIs(t, err, utils.ErrNoSession)
	_, err = s.PageSource(ctx)
	assert.ErrorIs(t, err, utils.ErrNoSession)
}

func TestStaticSession_CloseIsIdempotent(t *testing.T) {
	s := NewStaticSession(newTestFetcher(http.DefaultClient), "", testLogger())
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func TestVisibleText(t *testing.T) {
	t.Run("inline markup stays joined", func(t *testing.T) {
		doc, err := goquery.NewDocumentFromReader(stringsReader(
			`<div><p>Call  a@x.org</p><p>info@<span>desert</span>care.org <b>today</b></p>` +
				`<script>s@x.org</script><noscript>n@x.org</noscript><br>602-555-1234</div>`))
		require.NoError(t, err)
		assert.Equal(t, "Call a@x.org\ninfo@desertcare.org today\n602-555-1234", visibleText(doc.Find("div")))
		assert.Equal(t, "Call a@x.org info@desertcare.org today 602-555-1234", nodeText(doc.Find("div")))
	})

	t.Run("cells and list items never run together", func(t *testing.T) {
		doc, err := goquery.NewDocumentFromReader(stringsReader(
			"<table><tr><td>Desert Care</td><td>info@desertcare.org</td></tr></table>\n<ul><li>One</li><li>Two</li></ul>"))
		require.NoError(t, err)
		assert.Equal(t, "Desert Care\ninfo@desertcare.org\nOne\nTwo", visibleText(doc.Find("body")))
	})
}

type fakeElement struct {
	text, href       string
	textErr, hrefErr error
	textReads        *int
}

func (e fakeElement) Text(_ context.Context) (string, error) {
	if e.textReads != nil {
		*e.textReads++
	}
	return e.text, e.textErr
}

func (e fakeElement) Attribute(_ context.Context, _ string) (string, error) {
	return e.href, e.hrefErr
}

func TestReadLinks(t *testing.T) {
	stale := errors.New("stale element")
	textReads := 0
	elems := []Element{
		fakeElement{text: "Phoenix", href: "/a?x=1", textReads: &textReads},
		fakeElement{href: "/b", hrefErr: stale, textReads: &textReads},
		fakeElement{text: "Ignored", href: "/skip", textReads: &textReads},
		fakeElement{href: "/c?x=1", textErr: stale, textReads: &textReads},
	}
	keep := func(href string) bool { return href != "/skip" }

	results := ReadLinks(context.Background(), elems, keep)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.Equal(t, LinkData{Text: "Phoenix", Href: "/a?x=1"}, results[0].Data)

	assert.ErrorIs(t, results[1].Err, utils.ErrElementRead)
	assert.ErrorIs(t, results[1].Err, stale)

	assert.ErrorIs(t, results[2].Err, utils.ErrElementRead)
	assert.Equal(t, "Element_Read", utils.CategorizeError(results[2].Err))

	// Filtered and failed-href elements never have their text read
	assert.Equal(t, 2, textReads)
}

func TestReadLinks_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results := ReadLinks(ctx, []Element{fakeElement{href: "/a"}, fakeElement{href: "/b"}}, nil)
	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.Canceled)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Options{Renderer: config.RendererHTTP, Fetcher: newTestFetcher(http.DefaultClient)}, testLogger())
	require.NoError(t, err)
	assert.IsType(t, &StaticSession{}, s)
	assert.NoError(t, s.Close())

	_, err = Open(ctx, Options{Renderer: config.RendererHTTP}, testLogger())
	assert.ErrorIs(t, err, utils.ErrSessionSetup)

	_, err = Open(ctx, Options{Renderer: "lynx"}, testLogger())
	assert.ErrorIs(t, err, utils.ErrSessionSetup)
}

func TestAllocatorOptions(t *testing.T) {
	opts := ChromeOptions{
		Browser:   config.BrowserConfig{NoSandbox: true, ExecPath: "/usr/bin/chromium", WindowWidth: 800, WindowHeight: 600, ExtraFlags: []string{"disable-gpu"}},
		UserAgent: "ua",
	}
	base := len(allocatorOptions(ChromeOptions{Browser: config.BrowserConfig{WindowWidth: 800, WindowHeight: 600}}))
	// user agent, no-sandbox, exec path and one extra flag
	assert.Equal(t, base+4, len(allocatorOptions(opts)))
}

// TestChromeSession_Live needs a local Chrome; set CONTACT_SCRAPER_CHROME_TESTS=1 to run it.
func TestChromeSession_Live(t *testing.T) {
	if os.Getenv("CONTACT_SCRAPER_CHROME_TESTS") == "" {
		t.Skip("CONTACT_SCRAPER_CHROME_TESTS not set")
	}
	server := newDirectoryServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cfg := config.AppConfig{}
	_, err := cfg.Validate()
	require.NoError(t, err)
	cfg.Browser.NoSandbox = true

	s, err := NewChromeSession(ctx, ChromeOptions{Browser: cfg.Browser}, testLogger())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Navigate(ctx, server.URL+"/facility-finder/"))
	require.True(t, s.WaitForReady(ctx, 10*time.Second))

	body, err := s.BodyText(ctx)
	require.NoError(t, err)
	assert.Contains(t, body, "info@desertcare.org")

	elems, err := s.FindElements(ctx, "a[href]")
	require.NoError(t, err)
	require.Len(t, elems, 2)
	text, err := elems[1].Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Desert Care", text)

	none, err := s.FindElements(ctx, "a.does-not-exist")
	require.NoError(t, err)
	assert.Empty(t, none)

	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
