package models

import (
	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a DownloadTask.
type TaskStatus int

const (
	StatusPending TaskStatus = iota
	StatusDownloading
	StatusCompleted
	StatusFailed
)

func (s TaskStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusDownloading:
		return "downloading"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// DownloadTask tracks one episode through a batch. Tasks live only for the
// duration of the batch.
type DownloadTask struct {
	ID               string
	Episode          EpisodeIdentity
	RequestedQuality string
	ResolvedQuality  string
	ResolvedURL      string
	Status           TaskStatus
	Err              error

	DownloadID string
	SavedPath  string
}

// NewDownloadTask creates a pending task for an episode.
func NewDownloadTask(episode EpisodeIdentity, requestedQuality string) *DownloadTask {
	if requestedQuality == "" {
		requestedQuality = QualityAuto
	}
	return &DownloadTask{
		ID:               uuid.NewString(),
		Episode:          episode,
		RequestedQuality: requestedQuality,
		Status:           StatusPending,
	}
}

// NewDownloadTasks creates one pending task per episode, preserving order.
func NewDownloadTasks(episodes []EpisodeIdentity, requestedQuality string) []*DownloadTask {
	tasks := make([]*DownloadTask, 0, len(episodes))
	for _, ep := range episodes {
		tasks = append(tasks, NewDownloadTask(ep, requestedQuality))
	}
	return tasks
}

// Fail marks the task failed with the given cause.
func (t *DownloadTask) Fail(err error) {
	t.Status = StatusFailed
	t.Err = err
}
