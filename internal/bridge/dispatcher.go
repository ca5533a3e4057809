package bridge

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/download"
	"github.com/alvarorichard/firedl/internal/downloader"
	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/scraper"
	"github.com/alvarorichard/firedl/internal/util"
)

// Handler answers requests.
type Handler interface {
	Handle(ctx context.Context, req *Request) *Response
}

// Options wires a Dispatcher to the downloader's components.
type Options struct {
	Fetcher      scraper.PageFetcher
	Links        download.LinkSource
	Manager      downloader.Manager
	Orchestrator *download.Orchestrator
	Conflict     downloader.ConflictPolicy
}

// Dispatcher routes requests to the fetcher, the site client and the
// orchestrator.
type Dispatcher struct {
	fetcher      scraper.PageFetcher
	links        download.LinkSource
	manager      downloader.Manager
	orchestrator *download.Orchestrator
	conflict     downloader.ConflictPolicy
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		fetcher:      opts.Fetcher,
		links:        opts.Links,
		manager:      opts.Manager,
		orchestrator: opts.Orchestrator,
		conflict:     opts.Conflict,
	}
	if d.conflict == "" {
		d.conflict = downloader.ConflictUniquify
	}
	return d
}

// Handle runs one request. Failures are reported in the response, never
// returned.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) *Response {
	action := req.Action
	if canonical, ok := legacyActions[action]; ok {
		action = canonical
	}
	util.Debug("bridge request", "id", req.ID, "action", action, "url", req.URL)

	var (
		result any
		err    error
	)
	switch action {
	case ActionFetchHTML:
		result, err = d.fetchHTML(ctx, req)
	case ActionGetQualityLinks:
		result, err = d.qualityLinks(ctx, req)
	case ActionPerformDownload:
		result, err = d.performDownload(ctx, req)
	default:
		err = errors.Errorf("unknown action: %q", req.Action)
	}

	if err != nil {
		util.Debug("bridge request failed", "id", req.ID, "action", action, "error", err)
		return &Response{ID: req.ID, Error: err.Error()}
	}
	return &Response{ID: req.ID, Success: true, Result: result}
}

func (d *Dispatcher) fetchHTML(ctx context.Context, req *Request) (*FetchResult, error) {
	if req.URL == "" {
		return nil, errors.New("missing url")
	}
	var header http.Header
	if len(req.Headers) > 0 {
		header = make(http.Header, len(req.Headers))
		for k, v := range req.Headers {
			header.Set(k, v)
		}
	}
	page, err := d.fetcher.Fetch(ctx, req.URL, header)
	if err != nil {
		return nil, err
	}
	return &FetchResult{HTML: page.Body, Status: page.StatusCode}, nil
}

func (d *Dispatcher) qualityLinks(ctx context.Context, req *Request) (*QualityLinksResult, error) {
	pageURL := req.URL
	if pageURL == "" {
		ep, err := episodeOf(req)
		if err != nil {
			return nil, errors.Wrap(err, "missing url")
		}
		pageURL = d.links.DownloadPageURL(ep)
	}

	links, err := d.links.GetQualityLinks(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	best, _ := scraper.PickBest(links)
	if links == nil {
		links = models.QualityLinkMap{}
	}
	return &QualityLinksResult{Links: links, Best: best}, nil
}

// performDownload saves req.URL directly when given; otherwise it runs the
// full episode download.
func (d *Dispatcher) performDownload(ctx context.Context, req *Request) (*DownloadResult, error) {
	ep, err := episodeOf(req)
	if err != nil {
		return nil, err
	}

	if req.URL == "" {
		task, err := d.orchestrator.RunOne(ctx, ep, req.Quality)
		if err != nil {
			return nil, errors.Wrap(err, "download failed")
		}
		return &DownloadResult{DownloadID: task.DownloadID, Quality: task.ResolvedQuality, Path: task.SavedPath}, nil
	}

	quality := strings.TrimSpace(req.Quality)
	if quality == "" {
		return nil, errors.New("missing quality")
	}
	videoURL := scraper.ResolveURL(d.links.DownloadPageURL(ep), req.URL)
	handle, err := d.manager.Save(ctx, downloader.SaveRequest{
		URL:      videoURL,
		Filename: downloader.BuildFilename(ep.AnimeName, ep.EpisodeNumber, quality, downloader.ExtensionFor(videoURL)),
		Conflict: d.conflict,
		Referer:  d.links.DownloadPageURL(ep),
	})
	if err != nil {
		return nil, errors.Wrap(err, "download failed")
	}
	return &DownloadResult{DownloadID: handle.ID, Quality: quality, Path: handle.Path}, nil
}

func episodeOf(req *Request) (models.EpisodeIdentity, error) {
	if req.AnimeName == "" || req.EpisodeNumber == "" {
		return models.EpisodeIdentity{}, errors.New("animeName and episodeNumber are required")
	}
	return models.EpisodeIdentity{AnimeName: req.AnimeName, EpisodeNumber: req.EpisodeNumber}, nil
}
