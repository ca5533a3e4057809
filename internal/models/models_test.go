package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEpisodeURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		want    EpisodeIdentity
		matched bool
	}{
		{"episode page", "https://animefire.plus/animes/one-piece/1071", EpisodeIdentity{"one-piece", "1071"}, true},
		{"download page", "https://animefire.plus/download/naruto/12", EpisodeIdentity{"naruto", "12"}, true},
		{"relative", "/animes/bleach/3", EpisodeIdentity{"bleach", "3"}, true},
		{"query string", "https://animefire.plus/animes/spy-x-family/7?t=1", EpisodeIdentity{"spy-x-family", "7"}, true},
		{"anime page", "https://animefire.plus/animes/one-piece-todos-os-episodios", EpisodeIdentity{}, false},
		{"non numeric", "https://animefire.plus/animes/one-piece/abc", EpisodeIdentity{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseEpisodeURL(tt.url)
			assert.Equal(t, tt.matched, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSlugify(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "one-piece", Slugify("One Piece"))
	assert.Equal(t, "one-piece", Slugify("one-piece"))
	assert.Equal(t, "shingeki-no-kyojin", Slugify("  Shingeki  no\tKyojin "))
	assert.Equal(t, "one-piece", EpisodeIdentity{AnimeName: "One Piece"}.Slug())
}

func TestIsAnimePageURL(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAnimePageURL("https://animefire.plus/animes/one-piece-todos-os-episodios"))
	assert.False(t, IsAnimePageURL("https://animefire.plus/animes/one-piece/1"))
	assert.False(t, IsAnimePageURL("https://animefire.plus/pesquisar/naruto"))
	assert.False(t, IsAnimePageURL("https://animefire.plus/animes/episodios"))
}

func TestNormalizeQuality(t *testing.T) {
	t.Parallel()

	for input, want := range map[string]string{
		"":       QualityAuto,
		"AUTO":   QualityAuto,
		"best":   QualityAuto,
		"ask":    QualityAsk,
		"sd":     "SD",
		"hd":     "HD",
		"f-hd":   "F-HD",
		"fhd":    "F-HD",
		"fullhd": "FullHD",
		"FullHD": "FullHD",
	} {
		got, err := NormalizeQuality(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := NormalizeQuality("4k")
	assert.Error(t, err)
}

func TestQualityLabels(t *testing.T) {
	t.Parallel()

	assert.True(t, IsCanonical("F-HD"))
	assert.False(t, IsCanonical("hd"))
	assert.False(t, IsCanonical("Quality1"))
	assert.Equal(t, "Quality3", SyntheticLabel(3))

	links := QualityLinkMap{"SD": "a", "FullHD": "b", "HD": "c"}
	assert.Equal(t, []string{"FullHD", "HD", "SD"}, links.Labels())
}

func TestNewDownloadTasks(t *testing.T) {
	t.Parallel()

	tasks := NewDownloadTasks([]EpisodeIdentity{{"naruto", "1"}, {"naruto", "2"}}, "")
	require.Len(t, tasks, 2)
	assert.Equal(t, StatusPending, tasks[0].Status)
	assert.Equal(t, QualityAuto, tasks[0].RequestedQuality)
	assert.NotEqual(t, tasks[0].ID, tasks[1].ID)
	assert.Equal(t, 2, tasks[1].Episode.Number())
	assert.Equal(t, "failed", StatusFailed.String())
}
