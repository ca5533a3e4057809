// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"sync"

	"github.com/alvarorichard/firedl/internal/util"
)

// DefaultTitle is the title used for every notification the downloader sends.
const DefaultTitle = "AnimeFire Downloader"

// Notifier shows a message to the user. Notify never blocks on delivery and
// never reports failure.
type Notifier interface {
	Notify(title, message string)
}

// Func adapts a function to Notifier.
type Func func(title, message string)

func (f Func) Notify(title, message string) { f(title, message) }

// LogNotifier prints notifications through the application logger.
type LogNotifier struct{}

func (LogNotifier) Notify(title, message string) {
	util.Info(message, "from", title)
}

// Multi fans a notification out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(title, message string) {
	for _, n := range m {
		if n != nil {
			n.Notify(title, message)
		}
	}
}

// Message is one recorded notification.
type Message struct {
	Title   string
	Message string
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

func (r *Recorder) Notify(title, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Title: title, Message: message})
}

// Messages returns a copy of the recorded notifications.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
