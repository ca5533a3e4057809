package downloader

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
)

const progressInterval = 250 * time.Millisecond

// tickMsg represents a periodic update message
type tickMsg time.Time

// statusMsg represents a status update message
type statusMsg string

// progressMsg represents a progress update message
type progressMsg struct {
	received   int64
	totalBytes int64
}

// progressModel for tea progress display
type progressModel struct {
	progress   progress.Model
	name       string
	totalBytes int64
	received   int64
	status     string
	done       bool
	mu         sync.Mutex
}

func newProgressModel(name string, total int64) *progressModel {
	return &progressModel{
		progress:   progress.New(progress.WithDefaultGradient()),
		name:       name,
		totalBytes: total,
	}
}

// tickCmd returns a command that sends a tick message after a delay
func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *progressModel) Init() tea.Cmd {
	return tickCmd()
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.mu.Lock()
			m.done = true
			m.mu.Unlock()
			return m, tea.Quit
		}
	case tickMsg:
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.done {
			return m, tea.Quit
		}
		return m, tickCmd()
	case statusMsg:
		m.mu.Lock()
		m.status = string(msg)
		m.mu.Unlock()
		return m, nil
	case progressMsg:
		m.mu.Lock()
		m.received = msg.received
		if msg.totalBytes > 0 {
			m.totalBytes = msg.totalBytes
		}
		var cmd tea.Cmd
		if m.totalBytes > 0 {
			cmd = m.progress.SetPercent(float64(m.received) / float64(m.totalBytes))
		}
		m.mu.Unlock()
		return m, cmd
	case progress.FrameMsg:
		newModel, cmd := m.progress.Update(msg)
		m.progress = newModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	status := m.status
	if status == "" {
		if m.totalBytes > 0 {
			status = fmt.Sprintf("%s of %s", formatBytes(m.received), formatBytes(m.totalBytes))
		} else {
			status = formatBytes(m.received)
		}
	}

	return fmt.Sprintf("%s\n%s\n%s\n", m.name, m.progress.View(), status)
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// runWithProgress runs work while a bubbletea progress bar renders on out.
// work reports progress through the callback it receives.
func runWithProgress(out io.Writer, name string, total int64, work func(report func(received, total int64)) error) error {
	m := newProgressModel(name, total)
	p := tea.NewProgram(m, tea.WithOutput(out), tea.WithInput(nil))

	workDone := make(chan error, 1)
	go func() {
		var last time.Time
		err := work(func(received, total int64) {
			if now := time.Now(); now.Sub(last) >= progressInterval || received == total {
				last = now
				p.Send(progressMsg{received: received, totalBytes: total})
			}
		})

		if err == nil {
			p.Send(statusMsg("Download completed!"))
		} else {
			p.Send(statusMsg(fmt.Sprintf("Download failed: %v", err)))
		}

		m.mu.Lock()
		m.done = true
		m.mu.Unlock()

		workDone <- err
	}()

	if _, err := p.Run(); err != nil {
		return errors.Wrap(err, "progress display error")
	}
	return <-workDone
}
