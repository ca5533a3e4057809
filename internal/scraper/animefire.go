// Package scraper provides web scraping functionality for animefire.plus:
// locating quality links on download pages, listing episodes and searching.
package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/stealth"
	"github.com/alvarorichard/firedl/internal/util"
)

const (
	AnimefireBase = "https://animefire.plus"

	allEpisodesSuffix = "-todos-os-episodios"
)

// ErrChallenge is returned when the site answered with a Cloudflare
// interstitial instead of content.
var ErrChallenge = errors.New("site returned a challenge page")

// PageFetcher is the request layer the client goes through.
type PageFetcher interface {
	Fetch(ctx context.Context, url string, overrides http.Header) (*stealth.Page, error)
}

// AnimefireClient handles interactions with Animefire.plus
type AnimefireClient struct {
	fetcher   PageFetcher
	extractor *Extractor
	baseURL   string
}

// NewAnimefireClient creates a new Animefire client. An empty baseURL uses
// AnimefireBase.
func NewAnimefireClient(fetcher PageFetcher, baseURL string) *AnimefireClient {
	if baseURL == "" {
		baseURL = AnimefireBase
	}
	return &AnimefireClient{
		fetcher:   fetcher,
		extractor: NewExtractor(),
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// BaseURL returns the site root the client talks to.
func (c *AnimefireClient) BaseURL() string {
	return c.baseURL
}

// DownloadPageURL is the page listing the quality links of an episode.
func (c *AnimefireClient) DownloadPageURL(ep models.EpisodeIdentity) string {
	return fmt.Sprintf("%s/download/%s/%s", c.baseURL, ep.Slug(), ep.EpisodeNumber)
}

// EpisodePageURL is the page where the episode is watched.
func (c *AnimefireClient) EpisodePageURL(ep models.EpisodeIdentity) string {
	return fmt.Sprintf("%s/animes/%s/%s", c.baseURL, ep.Slug(), ep.EpisodeNumber)
}

// GetQualityLinks fetches a download page and extracts its quality links.
// An empty map with a nil error means the page loaded but offered nothing.
func (c *AnimefireClient) GetQualityLinks(ctx context.Context, pageURL string) (models.QualityLinkMap, error) {
	page, err := c.fetcher.Fetch(ctx, pageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get quality links")
	}

	links := c.extractor.Extract(page.Body)
	if len(links) > 0 {
		return links, nil
	}
	if err := pageError(page); err != nil {
		return nil, errors.Wrap(err, "failed to get quality links")
	}
	return links, nil
}

// pageError explains why a fetched page has no usable content.
func pageError(page *stealth.Page) error {
	if page.Challenge() {
		return ErrChallenge
	}
	if !page.OK() {
		if page.StatusCode == http.StatusForbidden {
			return errors.New("access restricted: VPN may be required")
		}
		return errors.Errorf("server returned: %d %s", page.StatusCode, http.StatusText(page.StatusCode))
	}
	return nil
}

// ListEpisodes scans an anime page for its episode links. Episodes are
// de-duplicated and sorted by number.
func (c *AnimefireClient) ListEpisodes(ctx context.Context, animeURL string) ([]models.EpisodeIdentity, error) {
	page, err := c.fetcher.Fetch(ctx, animeURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get episode list")
	}
	if err := pageError(page); err != nil {
		return nil, errors.Wrap(err, "failed to get episode list")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	episodes := episodeLinks(doc, animeSlug(animeURL))
	util.Debug("episodes found", "url", animeURL, "count", len(episodes))
	return episodes, nil
}

var episodeSelectors = []string{
	".lEp.epT.divNumEp",
	".episode-link",
	".episode-item",
	".ep-item",
	`a[href*="/animes/"]`,
}

// episodeLinks collects episode identities from the first selector that
// matches any episode link. When slug is known, links to other anime (the
// "related" sidebar) are dropped as long as some link belongs to slug.
func episodeLinks(doc *goquery.Document, slug string) []models.EpisodeIdentity {
	var found []models.EpisodeIdentity
	for _, selector := range episodeSelectors {
		found = found[:0]
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			href, ok := s.Attr("href")
			if !ok {
				href, ok = s.Find("a[href]").Attr("href")
			}
			if !ok {
				return
			}
			if ep, ok := models.ParseEpisodeURL(href); ok {
				found = append(found, ep)
			}
		})
		if len(found) > 0 {
			break
		}
	}

	if slug != "" {
		var own []models.EpisodeIdentity
		for _, ep := range found {
			if ep.AnimeName == slug {
				own = append(own, ep)
			}
		}
		if len(own) > 0 {
			found = own
		}
	}

	seen := make(map[models.EpisodeIdentity]bool, len(found))
	episodes := make([]models.EpisodeIdentity, 0, len(found))
	for _, ep := range found {
		if seen[ep] {
			continue
		}
		seen[ep] = true
		episodes = append(episodes, ep)
	}

	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].Number() < episodes[j].Number()
	})
	return episodes
}

// animeSlug returns the anime slug of an anime page URL such as
// /animes/one-piece-todos-os-episodios, or "" when it cannot tell.
func animeSlug(animeURL string) string {
	u, err := url.Parse(animeURL)
	if err != nil {
		return ""
	}
	_, rest, ok := strings.Cut(u.Path, "/animes/")
	if !ok {
		return ""
	}
	slug, _, _ := strings.Cut(rest, "/")
	return strings.TrimSuffix(slug, allEpisodesSuffix)
}

// SearchAnime searches for anime on Animefire.plus
func (c *AnimefireClient) SearchAnime(ctx context.Context, query string) ([]*models.Anime, error) {
	searchURL := fmt.Sprintf("%s/pesquisar/%s", c.baseURL, url.PathEscape(treatQuery(query)))

	page, err := c.fetcher.Fetch(ctx, searchURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search anime")
	}
	if err := pageError(page); err != nil {
		return nil, errors.Wrap(err, "failed to search anime")
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse HTML")
	}

	var animes []*models.Anime

	doc.Find(".row.ml-1.mr-1 a").Each(func(i int, s *goquery.Selection) {
		if urlPath, exists := s.Attr("href"); exists {
			name := strings.TrimSpace(s.Text())
			if name != "" {
				animes = append(animes, &models.Anime{
					Name: name,
					URL:  ResolveURL(c.baseURL, urlPath),
				})
			}
		}
	})

	// If no results with the primary selector, try the card-based selector as fallback
	if len(animes) == 0 {
		doc.Find(".card_ani").Each(func(i int, s *goquery.Selection) {
			titleElem := s.Find(".ani_name a")
			title := strings.TrimSpace(titleElem.Text())
			link, exists := titleElem.Attr("href")

			if exists && title != "" {
				imgURL, _ := s.Find(".div_img img").Attr("src")
				if imgURL != "" {
					imgURL = ResolveURL(c.baseURL, imgURL)
				}

				animes = append(animes, &models.Anime{
					Name:     title,
					URL:      ResolveURL(c.baseURL, link),
					ImageURL: imgURL,
				})
			}
		})
	}

	return animes, nil
}

// treatQuery turns a free-text query into the site's search slug.
func treatQuery(query string) string {
	return models.Slugify(query)
}

// ResolveURL resolves a link found on a page against the page's URL.
func ResolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		if strings.HasPrefix(ref, "/") {
			return strings.TrimRight(base, "/") + ref
		}
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}
