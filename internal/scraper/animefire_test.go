package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/stealth"
)

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func newTestClient(server *httptest.Server) *AnimefireClient {
	fetcher := stealth.NewFetcher(stealth.Options{
		Client: server.Client(),
		Sleep:  noSleep,
	})
	return NewAnimefireClient(fetcher, server.URL)
}

// fakeFetcher serves canned pages keyed by URL.
type fakeFetcher struct {
	pages map[string]*stealth.Page
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, _ http.Header) (*stealth.Page, error) {
	f.calls = append(f.calls, url)
	page, ok := f.pages[url]
	if !ok {
		return nil, &stealth.NetworkError{URL: url, Err: stealth.ErrAllMethodsFailed}
	}
	return page, nil
}

func TestAnimefireSearchRetriesOnFailure(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}

		assert.Equal(t, "/pesquisar/naruto-shippuden", r.URL.Path)
		_, _ = fmt.Fprint(w, `
        <html>
            <body>
                <div class="row ml-1 mr-1">
                    <a href="/animes/naruto-shippuden-todos-os-episodios">Naruto Shippuden</a>
                </div>
            </body>
        </html>
        `)
	}))
	defer server.Close()

	client := newTestClient(server)

	results, err := client.SearchAnime(context.Background(), "Naruto Shippuden")
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.Equal(t, "Naruto Shippuden", results[0].Name)
	assert.Equal(t, server.URL+"/animes/naruto-shippuden-todos-os-episodios", results[0].URL)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestAnimefireSearchCardFallback(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `
        <div class="card_ani">
            <div class="div_img"><img src="/img/bleach.webp"></div>
            <h3 class="ani_name"><a href="/animes/bleach-todos-os-episodios">Bleach</a></h3>
        </div>`)
	}))
	defer server.Close()

	results, err := newTestClient(server).SearchAnime(context.Background(), "bleach")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Bleach", results[0].Name)
	assert.Equal(t, server.URL+"/img/bleach.webp", results[0].ImageURL)
}

func TestAnimefireSearchReturnsEmptySliceWhenNoMatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `<html><body><div class="nothing-here"></div></body></html>`)
	}))
	defer server.Close()

	results, err := newTestClient(server).SearchAnime(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnimefireSearchDetectsChallengePage(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprint(w, `
        <html>
            <head><title>Just a moment...</title></head>
            <body>
                <div id="cf-wrapper">Blocked</div>
            </body>
        </html>
        `)
	}))
	defer server.Close()

	_, err := newTestClient(server).SearchAnime(context.Background(), "naruto")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrChallenge)
	assert.Contains(t, err.Error(), "challenge")
}

func TestAnimefireURLGrammar(t *testing.T) {
	t.Parallel()

	client := NewAnimefireClient(&fakeFetcher{}, "")
	ep := models.EpisodeIdentity{AnimeName: "one-piece", EpisodeNumber: "1071"}

	assert.Equal(t, "https://animefire.plus/download/one-piece/1071", client.DownloadPageURL(ep))
	assert.Equal(t, "https://animefire.plus/animes/one-piece/1071", client.EpisodePageURL(ep))

	mirror := NewAnimefireClient(&fakeFetcher{}, "http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080/download/one-piece/1071", mirror.DownloadPageURL(ep))

	display := models.EpisodeIdentity{AnimeName: "One Piece", EpisodeNumber: "1"}
	assert.Equal(t, "https://animefire.plus/download/one-piece/1", client.DownloadPageURL(display))
	assert.Equal(t, "https://animefire.plus/animes/one-piece/1", client.EpisodePageURL(display))
}

func TestGetQualityLinks(t *testing.T) {
	t.Parallel()

	const pageURL = "https://animefire.plus/download/one-piece/1"
	fetcher := &fakeFetcher{pages: map[string]*stealth.Page{
		pageURL: {
			URL:        pageURL,
			StatusCode: http.StatusOK,
			Body:       `<a href="https://cdn.example/1_sd.mp4">SD</a><a href="https://cdn.example/1_hd.mp4">HD</a>`,
		},
	}}

	links, err := NewAnimefireClient(fetcher, "").GetQualityLinks(context.Background(), pageURL)
	require.NoError(t, err)
	assert.Equal(t, models.QualityLinkMap{
		"SD": "https://cdn.example/1_sd.mp4",
		"HD": "https://cdn.example/1_hd.mp4",
	}, links)
	assert.Equal(t, []string{pageURL}, fetcher.calls)
}

func TestGetQualityLinksEmptyPage(t *testing.T) {
	t.Parallel()

	const pageURL = "https://animefire.plus/download/x/1"

	tests := []struct {
		name    string
		page    *stealth.Page
		wantErr string
	}{
		{"loaded but empty", &stealth.Page{StatusCode: http.StatusOK, Body: "<p>nada</p>"}, ""},
		{"challenge", &stealth.Page{StatusCode: http.StatusOK, Body: `<form id="challenge-form"></form>`}, "challenge"},
		{"error status", &stealth.Page{StatusCode: http.StatusNotFound, Body: "not found"}, "404"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fetcher := &fakeFetcher{pages: map[string]*stealth.Page{pageURL: tt.page}}
			links, err := NewAnimefireClient(fetcher, "").GetQualityLinks(context.Background(), pageURL)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Empty(t, links)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestGetQualityLinksNetworkError(t *testing.T) {
	t.Parallel()

	_, err := NewAnimefireClient(&fakeFetcher{}, "").GetQualityLinks(context.Background(), "https://animefire.plus/download/x/1")
	require.Error(t, err)
	assert.ErrorIs(t, err, stealth.ErrAllMethodsFailed)
}

func TestListEpisodes(t *testing.T) {
	t.Parallel()

	const animeURL = "https://animefire.plus/animes/one-piece-todos-os-episodios"
	body := `<html><body>
		<div class="div_video_list">
			<a class="lEp epT divNumEp" href="https://animefire.plus/animes/one-piece/10">Episódio 10</a>
			<a class="lEp epT divNumEp" href="https://animefire.plus/animes/one-piece/2">Episódio 2</a>
			<a class="lEp epT divNumEp" href="https://animefire.plus/animes/one-piece/1">Episódio 1</a>
			<a class="lEp epT divNumEp" href="https://animefire.plus/animes/one-piece/2">Episódio 2</a>
		</div>
		<aside><a href="/animes/naruto/1">Naruto</a></aside>
	</body></html>`

	fetcher := &fakeFetcher{pages: map[string]*stealth.Page{
		animeURL: {StatusCode: http.StatusOK, Body: body},
	}}

	episodes, err := NewAnimefireClient(fetcher, "").ListEpisodes(context.Background(), animeURL)
	require.NoError(t, err)

	assert.Equal(t, []models.EpisodeIdentity{
		{AnimeName: "one-piece", EpisodeNumber: "1"},
		{AnimeName: "one-piece", EpisodeNumber: "2"},
		{AnimeName: "one-piece", EpisodeNumber: "10"},
	}, episodes)
}

func TestListEpisodesGenericFallbackDropsOtherAnime(t *testing.T) {
	t.Parallel()

	const animeURL = "https://animefire.plus/animes/bleach-todos-os-episodios"
	body := `<a href="/animes/bleach/2">2</a><a href="/animes/bleach/1">1</a>
		<a href="/animes/naruto/5">Naruto 5</a><a href="/animes/bleach-todos-os-episodios">todos</a>`

	fetcher := &fakeFetcher{pages: map[string]*stealth.Page{
		animeURL: {StatusCode: http.StatusOK, Body: body},
	}}

	episodes, err := NewAnimefireClient(fetcher, "").ListEpisodes(context.Background(), animeURL)
	require.NoError(t, err)
	assert.Equal(t, []models.EpisodeIdentity{
		{AnimeName: "bleach", EpisodeNumber: "1"},
		{AnimeName: "bleach", EpisodeNumber: "2"},
	}, episodes)
}

func TestResolveURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base, ref, want string
	}{
		{"https://animefire.plus/download/x/1", "https://cdn.example/a.mp4", "https://cdn.example/a.mp4"},
		{"https://animefire.plus/download/x/1", "/video/a.mp4", "https://animefire.plus/video/a.mp4"},
		{"https://animefire.plus/download/x/1", "a.mp4", "https://animefire.plus/download/x/a.mp4"},
		{"https://animefire.plus", "animes/x", "https://animefire.plus/animes/x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveURL(tt.base, tt.ref), "%s + %s", tt.base, tt.ref)
	}
}
