package discover

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-scraper/pkg/config"
	"contact-scraper/pkg/models"
	"contact-scraper/pkg/render/rendertest"
)

const rootURL = "https://www.example.org/facility-finder/"

func testLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

func newDiscoverer() *Discoverer {
	return NewDiscoverer(config.DefaultTargetLinkMarkers, time.Second, testLogger())
}

func cityLink(name, city string) rendertest.Link {
	return rendertest.Link{Text: name, Href: "?directory_search=1&ill_directory_city=" + city}
}

func TestDiscover_FiltersAndResolves(t *testing.T) {
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {Links: []rendertest.Link{
			cityLink("  Phoenix ", "Phoenix"),
			{Text: "Home", Href: "/"},
			{Text: "Only one marker", Href: "?directory_search=1"},
			cityLink("Mesa", "Mesa"),
			{Text: "Absolute", Href: "https://www.example.org/facility-finder/?directory_search=1&ill_directory_city=Tucson#top"},
		}},
	})

	got := newDiscoverer().Discover(context.Background(), session, rootURL)

	assert.Equal(t, []models.Target{
		{Name: "Phoenix", URL: rootURL + "?directory_search=1&ill_directory_city=Phoenix"},
		{Name: "Mesa", URL: rootURL + "?directory_search=1&ill_directory_city=Mesa"},
		{Name: "Absolute", URL: rootURL + "?directory_search=1&ill_directory_city=Tucson"},
	}, got)
	assert.Equal(t, []string{rootURL}, session.Visits)
}

func TestDiscover_DedupFirstOccurrenceWins(t *testing.T) {
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {Links: []rendertest.Link{
			cityLink("Phoenix", "Phoenix"),
			cityLink("Phoenix (footer)", "Phoenix"),
			cityLink("Mesa", "Mesa"),
		}},
	})

	got := newDiscoverer().Discover(context.Background(), session, rootURL)

	require.Len(t, got, 2)
	assert.Equal(t, "Phoenix", got[0].Name)
	assert.Equal(t, "Mesa", got[1].Name)
}

func TestDiscover_RepeatedRunsYieldSameUniqueTargets(t *testing.T) {
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {Links: []rendertest.Link{
			cityLink("Phoenix", "Phoenix"),
			cityLink("Mesa", "Mesa"),
			// Same target written absolute with a fragment
			{Text: "Phoenix again", Href: rootURL + "?directory_search=1&ill_directory_city=Phoenix#list"},
			cityLink("Mesa", "Mesa"),
			cityLink("Tucson", "Tucson"),
		}},
	})
	d := newDiscoverer()

	first := d.Discover(context.Background(), session, rootURL)
	second := d.Discover(context.Background(), session, rootURL)

	require.Len(t, first, 3)
	assert.Len(t, second, len(first))
	assert.Equal(t, first, second)
	for _, targets := range [][]models.Target{first, second} {
		seen := make(map[string]bool, len(targets))
		for _, target := range targets {
			assert.False(t, seen[target.URL], "duplicate target URL %s", target.URL)
			seen[target.URL] = true
		}
	}
}

func TestDiscover_SkipsEmptyNamesAndUnreadableLinks(t *testing.T) {
	stale := errors.New("stale element reference")
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {Links: []rendertest.Link{
			cityLink("   ", "Blank"),
			{Href: "?directory_search=1&ill_directory_city=Broken", TextErr: stale},
			{HrefErr: stale},
			cityLink("Tucson", "Tucson"),
		}},
	})

	got := newDiscoverer().Discover(context.Background(), session, rootURL)

	require.Len(t, got, 1)
	assert.Equal(t, "Tucson", got[0].Name)
}

func TestDiscover_FailuresYieldEmptySlice(t *testing.T) {
	tests := []struct {
		name string
		page *rendertest.Page
	}{
		{"navigation error", &rendertest.Page{NavigateErr: errors.New("net::ERR_CONNECTION_RESET")}},
		{"query error", &rendertest.Page{FindErr: errors.New("node not found")}},
		{"no matching links", &rendertest.Page{Links: []rendertest.Link{{Text: "Home", Href: "/"}}}},
		{"no links", &rendertest.Page{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := rendertest.NewSession(map[string]*rendertest.Page{rootURL: tt.page})
			got := newDiscoverer().Discover(context.Background(), session, rootURL)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestDiscover_NotReadyStillReads(t *testing.T) {
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {NotReady: true, Links: []rendertest.Link{cityLink("Phoenix", "Phoenix")}},
	})

	got := newDiscoverer().Discover(context.Background(), session, rootURL)
	require.Len(t, got, 1)
}

func TestDiscover_CustomMarkers(t *testing.T) {
	d := NewDiscoverer([]string{"region="}, time.Second, testLogger())
	session := rendertest.NewSession(map[string]*rendertest.Page{
		rootURL: {Links: []rendertest.Link{
			{Text: "North", Href: "/list?region=north"},
			cityLink("Phoenix", "Phoenix"),
		}},
	})

	got := d.Discover(context.Background(), session, rootURL)
	assert.Equal(t, []models.Target{{Name: "North", URL: "https://www.example.org/list?region=north"}}, got)
}

func TestMatches(t *testing.T) {
	d := newDiscoverer()
	assert.True(t, d.Matches("/x?directory_search=1&ill_directory_city=Mesa"))
	assert.True(t, d.Matches("?ill_directory_city=Mesa&directory_search=1"))
	assert.False(t, d.Matches("?directory_search=1"))
	assert.False(t, d.Matches(""))
}

func TestNewDiscoverer_CopiesMarkers(t *testing.T) {
	markers := []string{"a="}
	d := NewDiscoverer(markers, time.Second, testLogger())
	markers[0] = "changed"
	assert.True(t, d.Matches("?a=1"))
}
