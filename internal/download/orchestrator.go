// Package download runs episode downloads one after another: it finds the
// quality links of each episode, picks a quality and hands the file to the
// download manager, pacing itself between episodes.
package download

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/firedl/internal/downloader"
	"github.com/alvarorichard/firedl/internal/models"
	"github.com/alvarorichard/firedl/internal/notify"
	"github.com/alvarorichard/firedl/internal/scheduler"
	"github.com/alvarorichard/firedl/internal/scraper"
	"github.com/alvarorichard/firedl/internal/util"
)

// DefaultFailureCooldown is the wait after a failed episode.
const DefaultFailureCooldown = 10 * time.Second

// LinkSource finds the quality links of an episode.
type LinkSource interface {
	DownloadPageURL(ep models.EpisodeIdentity) string
	GetQualityLinks(ctx context.Context, pageURL string) (models.QualityLinkMap, error)
}

// QualityChooser picks one label out of the links found for an episode.
type QualityChooser func(ctx context.Context, ep models.EpisodeIdentity, links models.QualityLinkMap) (string, error)

// Options configures an Orchestrator. Zero values get defaults.
type Options struct {
	Links           LinkSource
	Manager         downloader.Manager
	Notifier        notify.Notifier
	Scheduler       *scheduler.Scheduler
	State           *scheduler.State
	Sleep           scheduler.SleepFunc
	FailureCooldown time.Duration
	Delay           time.Duration // fixed wait after a success; replaces the scheduler when > 0
	Conflict        downloader.ConflictPolicy
	ChooseQuality   QualityChooser // used when the requested quality is "ask"
}

// Orchestrator downloads batches of episodes sequentially.
type Orchestrator struct {
	links           LinkSource
	manager         downloader.Manager
	notifier        notify.Notifier
	sched           *scheduler.Scheduler
	state           *scheduler.State
	sleep           scheduler.SleepFunc
	failureCooldown time.Duration
	delay           time.Duration
	conflict        downloader.ConflictPolicy
	chooseQuality   QualityChooser
}

// New creates an orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		links:           opts.Links,
		manager:         opts.Manager,
		notifier:        opts.Notifier,
		sched:           opts.Scheduler,
		state:           opts.State,
		sleep:           opts.Sleep,
		failureCooldown: opts.FailureCooldown,
		delay:           opts.Delay,
		conflict:        opts.Conflict,
		chooseQuality:   opts.ChooseQuality,
	}
	if o.notifier == nil {
		o.notifier = notify.LogNotifier{}
	}
	if o.sched == nil {
		o.sched = scheduler.New(scheduler.StealthPacing, nil)
	}
	if o.state == nil {
		o.state = &scheduler.State{}
	}
	if o.sleep == nil {
		o.sleep = scheduler.Sleep
	}
	if o.failureCooldown <= 0 {
		o.failureCooldown = DefaultFailureCooldown
	}
	if o.conflict == "" {
		o.conflict = downloader.ConflictUniquify
	}
	return o
}

// SchedulerConfig returns the pacing window used between successful episodes.
func (o *Orchestrator) SchedulerConfig() scheduler.Config {
	return o.sched.Config()
}

// BatchResult is the outcome of RunBatch. Tasks has one entry per input task,
// in input order.
type BatchResult struct {
	Tasks     []*models.DownloadTask
	Completed int
	Failed    int
}

// RunBatch downloads tasks in order. requested overrides the quality of every
// task when not empty. A failed task does not stop the batch; the next task
// starts after the failure cooldown, otherwise after the scheduler's delay.
func (o *Orchestrator) RunBatch(ctx context.Context, tasks []*models.DownloadTask, requested string) *BatchResult {
	result := &BatchResult{Tasks: tasks}
	if len(tasks) == 0 {
		return result
	}
	if len(tasks) > 1 {
		o.notifier.Notify(notify.DefaultTitle, fmt.Sprintf("Starting download of %d episodes...", len(tasks)))
	}

	for i, task := range tasks {
		if requested != "" {
			task.RequestedQuality = requested
		}

		if err := ctx.Err(); err != nil {
			task.Fail(err)
		} else if err := o.runTask(ctx, task); err != nil {
			task.Fail(err)
		}

		if task.Status == models.StatusFailed {
			result.Failed++
			util.Error("episode download failed", "episode", task.Episode, "error", task.Err)
			o.notifier.Notify(notify.DefaultTitle, fmt.Sprintf("Download error: %s: %v", task.Episode, task.Err))
		} else {
			result.Completed++
			o.notifier.Notify(notify.DefaultTitle, fmt.Sprintf("Download started: %s (%s)", task.Episode, task.ResolvedQuality))
		}

		if i == len(tasks)-1 || ctx.Err() != nil {
			continue
		}
		if err := o.sleep(ctx, o.pause(task)); err != nil {
			util.Debug("batch wait interrupted", "error", err)
		}
	}

	if len(tasks) > 1 {
		o.notifier.Notify(notify.DefaultTitle, fmt.Sprintf("All downloads were started! (%d started, %d failed)", result.Completed, result.Failed))
	}
	return result
}

// pause is the wait after task before the next one.
func (o *Orchestrator) pause(task *models.DownloadTask) time.Duration {
	if task.Status == models.StatusFailed {
		util.Debug("cooling down after failure", "wait", o.failureCooldown)
		return o.failureCooldown
	}
	if o.delay > 0 {
		util.Debug("waiting before next episode", "wait", o.delay)
		return o.delay
	}
	delay := o.sched.NextDelay(o.state)
	util.Debug("waiting before next episode", "wait", delay)
	return delay
}

// RunOne downloads a single episode.
func (o *Orchestrator) RunOne(ctx context.Context, ep models.EpisodeIdentity, requested string) (*models.DownloadTask, error) {
	task := models.NewDownloadTask(ep, requested)
	o.RunBatch(ctx, []*models.DownloadTask{task}, "")
	return task, task.Err
}

// runTask resolves and saves one episode.
func (o *Orchestrator) runTask(ctx context.Context, task *models.DownloadTask) error {
	task.Status = models.StatusDownloading
	ep := task.Episode
	util.Info("Downloading episode", "anime", ep.AnimeName, "episode", ep.EpisodeNumber, "quality", task.RequestedQuality)

	pageURL := o.links.DownloadPageURL(ep)
	links, err := o.links.GetQualityLinks(ctx, pageURL)
	if err != nil {
		return err
	}

	label, link, err := o.resolveQuality(ctx, ep, links, task.RequestedQuality)
	if err != nil {
		return err
	}

	task.ResolvedQuality = label
	task.ResolvedURL = scraper.ResolveURL(pageURL, link)

	handle, err := o.manager.Save(ctx, downloader.SaveRequest{
		URL:      task.ResolvedURL,
		Filename: downloader.BuildFilename(ep.AnimeName, ep.EpisodeNumber, label, downloader.ExtensionFor(task.ResolvedURL)),
		Conflict: o.conflict,
		Referer:  pageURL,
	})
	if err != nil {
		return err
	}

	task.Status = models.StatusCompleted
	task.DownloadID = handle.ID
	task.SavedPath = handle.Path
	return nil
}

func (o *Orchestrator) resolveQuality(ctx context.Context, ep models.EpisodeIdentity, links models.QualityLinkMap, requested string) (string, string, error) {
	if requested != models.QualityAsk {
		return scraper.Resolve(links, requested)
	}
	if len(links) == 0 {
		return "", "", scraper.ErrNoQuality
	}
	if o.chooseQuality == nil {
		return scraper.Resolve(links, models.QualityAuto)
	}
	label, err := o.chooseQuality(ctx, ep, links)
	if err != nil {
		return "", "", errors.Wrap(err, "quality selection cancelled")
	}
	return scraper.Resolve(links, label)
}
