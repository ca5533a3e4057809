// Package appflow turns command line targets into the episodes to download,
// prompting the user where a choice is needed.
package appflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh/spinner"
	"github.com/ktr0731/go-fuzzyfinder"
	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/util"
)

// ErrNeedsEpisodeChoice is returned for an anime page when neither -all nor
// -select was given.
var ErrNeedsEpisodeChoice = errors.New("anime page given: use -all or -select to choose episodes")

// Catalog is the part of the site client used to find episodes.
type Catalog interface {
	SearchAnime(ctx context.Context, query string) ([]*models.Anime, error)
	ListEpisodes(ctx context.Context, animeURL string) ([]models.EpisodeIdentity, error)
}

// Prompter asks the user to choose.
type Prompter interface {
	PickAnime(animes []*models.Anime) (*models.Anime, error)
	PickEpisodes(episodes []models.EpisodeIdentity) ([]models.EpisodeIdentity, error)
	Wait(title string, action func())
}

// Terminal prompts with a fuzzy finder and shows a spinner while waiting.
type Terminal struct{}

func (Terminal) PickAnime(animes []*models.Anime) (*models.Anime, error) {
	idx, err := fuzzyfinder.Find(
		animes,
		func(i int) string {
			return animes[i].Name
		},
		fuzzyfinder.WithPromptString("Select anime: "),
		fuzzyfinder.WithPreviewWindow(func(i, w, h int) string {
			if i >= 0 && i < len(animes) {
				return fmt.Sprintf("URL: %s\nImage: %s", animes[i].URL, animes[i].ImageURL)
			}
			return ""
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "anime selection cancelled")
	}
	return animes[idx], nil
}

func (Terminal) PickEpisodes(episodes []models.EpisodeIdentity) ([]models.EpisodeIdentity, error) {
	idxs, err := fuzzyfinder.FindMulti(
		episodes,
		func(i int) string {
			return "Episode " + episodes[i].EpisodeNumber
		},
		fuzzyfinder.WithPromptString("Select episodes (tab to mark): "),
	)
	if err != nil {
		return nil, errors.Wrap(err, "episode selection cancelled")
	}

	picked := make([]models.EpisodeIdentity, 0, len(idxs))
	for _, i := range idxs {
		picked = append(picked, episodes[i])
	}
	return picked, nil
}

func (Terminal) Wait(title string, action func()) {
	_ = spinner.New().
		Title(title).
		Type(spinner.Dots).
		Action(action).
		Run()
}

// TargetError records a target that yielded no episodes.
type TargetError struct {
	Target string
	Err    error
}

func (e *TargetError) Error() string { return e.Target + ": " + e.Err.Error() }

func (e *TargetError) Unwrap() error { return e.Err }

// Resolution is what ResolveTargets found. Failed targets were skipped.
type Resolution struct {
	Episodes []models.EpisodeIdentity
	Failed   []*TargetError
}

// ResolveTargets returns the episodes named by opts.Targets, in order. A
// target is an episode URL, a download page URL or an anime page URL;
// anything else is joined into a search query. A URL that cannot be used is
// logged and skipped; the error is non-nil only when nothing resolved.
func ResolveTargets(ctx context.Context, site Catalog, prompt Prompter, opts *util.Options) (*Resolution, error) {
	if len(opts.Targets) == 0 {
		return nil, errors.New("nothing to download: give an episode URL, an anime URL or a search query")
	}
	if !looksLikeURL(opts.Targets[0]) {
		episodes, err := searchEpisodes(ctx, site, prompt, opts)
		if err != nil {
			return nil, err
		}
		return &Resolution{Episodes: episodes}, nil
	}

	res := &Resolution{}
	for _, target := range opts.Targets {
		if ep, ok := models.ParseEpisodeURL(target); ok {
			res.Episodes = append(res.Episodes, ep)
			continue
		}
		if !models.IsAnimePageURL(target) {
			res.skip(target, errors.New("unrecognized URL"))
			continue
		}
		if !opts.All && !opts.Select && !opts.HasRange() {
			return nil, ErrNeedsEpisodeChoice
		}
		found, err := chooseEpisodes(ctx, site, prompt, target, opts)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			res.skip(target, err)
			continue
		}
		res.Episodes = append(res.Episodes, found...)
	}

	if len(res.Episodes) == 0 {
		return nil, errors.Wrap(res.Failed[0], "no episode to download")
	}
	return res, nil
}

func (r *Resolution) skip(target string, err error) {
	util.Warn("Skipping target", "target", target, "error", err)
	r.Failed = append(r.Failed, &TargetError{Target: target, Err: err})
}

func searchEpisodes(ctx context.Context, site Catalog, prompt Prompter, opts *util.Options) ([]models.EpisodeIdentity, error) {
	query := opts.Query()
	searchStart := time.Now()

	var (
		animes []*models.Anime
		err    error
	)
	prompt.Wait("Searching for "+query+"...", func() {
		animes, err = site.SearchAnime(ctx, query)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search for anime")
	}
	if len(animes) == 0 {
		return nil, errors.Errorf("no anime found for %q", query)
	}
	util.Debugf("search completed in %v", time.Since(searchStart))

	anime := animes[0]
	if len(animes) > 1 {
		if anime, err = prompt.PickAnime(animes); err != nil {
			return nil, err
		}
	}
	util.Info("Selected anime", "name", anime.Name)

	return chooseEpisodes(ctx, site, prompt, anime.URL, opts)
}

// chooseEpisodes lists the episodes of an anime page, keeps those inside
// -from and -to, and returns all of them or the user's pick. A range without
// -select counts as -all.
func chooseEpisodes(ctx context.Context, site Catalog, prompt Prompter, animeURL string, opts *util.Options) ([]models.EpisodeIdentity, error) {
	episodes, err := GetAnimeEpisodes(ctx, site, prompt, animeURL)
	if err != nil {
		return nil, err
	}
	if opts.HasRange() {
		episodes = inRange(episodes, opts)
		if len(episodes) == 0 {
			return nil, errors.Errorf("no episode between %d and %d", opts.From, opts.To)
		}
	}
	if opts.All || (opts.HasRange() && !opts.Select) || len(episodes) == 1 {
		return episodes, nil
	}
	picked, err := prompt.PickEpisodes(episodes)
	if err != nil {
		return nil, err
	}
	if len(picked) == 0 {
		return nil, errors.New("no episode selected")
	}
	return picked, nil
}

// GetAnimeEpisodes lists the episodes of an anime page.
func GetAnimeEpisodes(ctx context.Context, site Catalog, prompt Prompter, animeURL string) ([]models.EpisodeIdentity, error) {
	var (
		episodes []models.EpisodeIdentity
		err      error
	)
	prompt.Wait("Fetching episode list...", func() {
		episodes, err = site.ListEpisodes(ctx, animeURL)
	})
	if err != nil {
		return nil, err
	}
	if len(episodes) == 0 {
		return nil, errors.New("the selected anime does not have episodes on the server")
	}
	return episodes, nil
}

func inRange(episodes []models.EpisodeIdentity, opts *util.Options) []models.EpisodeIdentity {
	kept := make([]models.EpisodeIdentity, 0, len(episodes))
	for _, ep := range episodes {
		if opts.InRange(ep.Number()) {
			kept = append(kept, ep)
		}
	}
	return kept
}

func looksLikeURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
