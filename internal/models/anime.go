// Package models contains the data structures shared by the scraper, the
// download orchestrator and the extension bridge.
package models

import (
	"regexp"
	"strconv"
	"strings"
)

// Anime is a search hit on the site.
type Anime struct {
	Name     string
	URL      string
	ImageURL string
}

// EpisodeIdentity names one episode as the site's URLs do.
type EpisodeIdentity struct {
	AnimeName     string // slug, e.g. "one-piece"
	EpisodeNumber string
}

var episodePathRe = regexp.MustCompile(`(?:animes|download)/([^/?#]+)/(\d+)`)

// ParseEpisodeURL extracts the episode identity from an episode page
// (.../animes/<name>/<number>) or a download page (.../download/<name>/<number>).
func ParseEpisodeURL(rawURL string) (EpisodeIdentity, bool) {
	match := episodePathRe.FindStringSubmatch(rawURL)
	if match == nil {
		return EpisodeIdentity{}, false
	}
	return EpisodeIdentity{AnimeName: match[1], EpisodeNumber: match[2]}, true
}

// IsAnimePageURL reports whether rawURL points at an anime's episode listing
// rather than at a single episode.
func IsAnimePageURL(rawURL string) bool {
	if !strings.Contains(rawURL, "/animes/") || strings.Contains(rawURL, "/episodios") {
		return false
	}
	_, isEpisode := ParseEpisodeURL(rawURL)
	return !isEpisode
}

// Slugify turns a display name such as "One Piece" into the site's URL
// form "one-piece". Slugs pass through unchanged.
func Slugify(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// Slug returns the anime name in URL form.
func (e EpisodeIdentity) Slug() string {
	return Slugify(e.AnimeName)
}

// Number returns the episode number as an int, or 0 when it is not numeric.
func (e EpisodeIdentity) Number() int {
	n, err := strconv.Atoi(e.EpisodeNumber)
	if err != nil {
		return 0
	}
	return n
}

func (e EpisodeIdentity) String() string {
	return e.AnimeName + " - Episode " + e.EpisodeNumber
}
