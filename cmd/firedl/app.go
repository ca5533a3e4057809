package main

import (
	"context"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/appflow"
	"github.com/alvarorichard/firedl/internal/bridge"
	"github.com/alvarorichard/firedl/internal/download"
	"github.com/alvarorichard/firedl/internal/downloader"
	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/notify"
	"github.com/alvarorichard/firedl/internal/scheduler"
	"github.com/alvarorichard/firedl/internal/scraper"
	"github.com/alvarorichard/firedl/internal/stealth"
	"github.com/alvarorichard/firedl/internal/util"
)

// app holds the components shared by the CLI and the native host. The
// fetcher and the orchestrator record into the same pacing state.
type app struct {
	opts     *util.Options
	quality  string
	conflict downloader.ConflictPolicy

	state   *scheduler.State
	fetcher *stealth.Fetcher
	site    *scraper.AnimefireClient
	files   *downloader.FileManager
}

func newApp(opts *util.Options) (*app, error) {
	quality, err := models.NormalizeQuality(opts.Quality)
	if err != nil {
		return nil, err
	}
	conflict, err := downloader.ParseConflictPolicy(opts.Conflict)
	if err != nil {
		return nil, err
	}
	if opts.Native && quality == models.QualityAsk {
		return nil, errors.New("-quality ask needs a terminal and cannot be used with -native")
	}

	state := &scheduler.State{}
	fetcher := stealth.NewFetcher(stealth.Options{
		State:               state,
		SiteRoot:            opts.BaseURL,
		MaxRateLimitRetries: opts.MaxRetries,
	})

	return &app{
		opts:     opts,
		quality:  quality,
		conflict: conflict,
		state:    state,
		fetcher:  fetcher,
		site:     scraper.NewAnimefireClient(fetcher, opts.BaseURL),
		files: downloader.NewFileManager(downloader.Options{
			OutputDir: opts.OutputDir,
			RateLimit: opts.LimitRate,
			Progress:  !opts.NoProgress && !opts.Native,
			Output:    os.Stderr,
		}),
	}, nil
}

func (a *app) orchestrator(notifier notify.Notifier) *download.Orchestrator {
	pacing := scheduler.StealthPacing
	if a.opts.Pacing == "page" {
		pacing = scheduler.PagePacing
	}

	var chooser download.QualityChooser
	if a.quality == models.QualityAsk {
		chooser = appflow.AskQuality
	}

	return download.New(download.Options{
		Links:         a.site,
		Manager:       a.files,
		Notifier:      notifier,
		Scheduler:     scheduler.New(pacing, nil),
		State:         a.state,
		Delay:         a.opts.Delay,
		Conflict:      a.conflict,
		ChooseQuality: chooser,
	})
}

// run resolves the command line targets and downloads them.
func (a *app) run(ctx context.Context) error {
	resolved, err := appflow.ResolveTargets(ctx, a.site, appflow.Terminal{}, a.opts)
	if err != nil {
		return err
	}

	util.Info("Downloading", "episodes", len(resolved.Episodes), "output", a.files.OutputDir())
	tasks := models.NewDownloadTasks(resolved.Episodes, a.quality)
	result := a.orchestrator(notify.LogNotifier{}).RunBatch(ctx, tasks, "")

	for _, task := range result.Tasks {
		if task.Status == models.StatusCompleted {
			util.Info(util.Success("Saved"), "episode", task.Episode, "quality", task.ResolvedQuality, "path", task.SavedPath)
		}
	}
	for _, failed := range resolved.Failed {
		util.Warn("Not downloaded", "target", failed.Target, "error", failed.Err)
	}
	if result.Failed > 0 || len(resolved.Failed) > 0 {
		return errors.Errorf("%d of %d downloads failed, %d targets skipped",
			result.Failed, len(result.Tasks), len(resolved.Failed))
	}
	return nil
}

// serveNative answers the browser extension on r and w. Logging stays on
// stderr; w carries only protocol frames.
func (a *app) serveNative(ctx context.Context, r io.Reader, w io.Writer) error {
	var host *bridge.Host
	notifier := notify.Multi{
		notify.LogNotifier{},
		notify.Func(func(title, message string) { host.Notify(title, message) }),
	}

	host = bridge.NewHost(bridge.NewDispatcher(bridge.Options{
		Fetcher:      a.fetcher,
		Links:        a.site,
		Manager:      a.files,
		Orchestrator: a.orchestrator(notifier),
		Conflict:     a.conflict,
	}))

	util.Debug("native messaging host ready")
	return host.Serve(ctx, r, w)
}
