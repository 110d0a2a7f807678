package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/checkface/internal/server"
)

// FetchFunc returns the current queue status.
type FetchFunc func(ctx context.Context) (server.QueueStatus, error)

// HTTPFetcher polls /api/queue/ on the server at baseURL.
func HTTPFetcher(baseURL string, timeout time.Duration) FetchFunc {
	client := &http.Client{Timeout: timeout}
	url := strings.TrimRight(baseURL, "/") + "/api/queue/"
	return func(ctx context.Context) (server.QueueStatus, error) {
		var st server.QueueStatus
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return st, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return st, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return st, fmt.Errorf("queue status: %s", resp.Status)
		}
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return st, fmt.Errorf("decode queue status: %w", err)
		}
		return st, nil
	}
}

type pollMsg struct{}

// MonitorApp is the top-level model of the queue monitor.
type MonitorApp struct {
	view     *QueueView
	spinner  spinner.Model
	fetch    FetchFunc
	interval time.Duration
	target   string
	err      error
	polls    int
	width    int
	height   int
	quitting bool

	titleStyle lipgloss.Style
	errorStyle lipgloss.Style
	hintStyle  lipgloss.Style
}

// NewMonitorApp creates a monitor polling fetch every interval. target is
// shown in the title.
func NewMonitorApp(target string, fetch FetchFunc, interval time.Duration) *MonitorApp {
	if interval <= 0 {
		interval = time.Second
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return &MonitorApp{
		view:     NewQueueView(),
		spinner:  sp,
		fetch:    fetch,
		interval: interval,
		target:   target,

		titleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true),

		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true),

		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
	}
}

// NewMonitorProgram creates a bubbletea program running the monitor.
func NewMonitorProgram(target string, fetch FetchFunc, interval time.Duration) (*tea.Program, *MonitorApp) {
	app := NewMonitorApp(target, fetch, interval)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}

// Init starts the spinner and the first poll.
func (a *MonitorApp) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.poll())
}

func (a *MonitorApp) poll() tea.Cmd {
	fetch := a.fetch
	timeout := a.interval
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		st, err := fetch(ctx)
		if err != nil {
			return QueueErrorMsg{Err: err, At: time.Now()}
		}
		return QueueUpdateMsg{Status: st, At: time.Now()}
	}
}

func (a *MonitorApp) schedule() tea.Cmd {
	return tea.Tick(a.interval, func(time.Time) tea.Msg { return pollMsg{} })
}

// Update handles messages.
func (a *MonitorApp) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			a.quitting = true
			return a, tea.Quit
		case "r":
			return a, a.poll()
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.view.Update(msg)

	case pollMsg:
		return a, a.poll()

	case QueueUpdateMsg:
		a.polls++
		a.err = nil
		a.view.Update(msg)
		return a, a.schedule()

	case QueueErrorMsg:
		a.polls++
		a.err = msg.Err
		return a, a.schedule()

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	return a, nil
}

// View renders the monitor.
func (a *MonitorApp) View() string {
	if a.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(a.spinner.View())
	b.WriteString(" ")
	b.WriteString(a.titleStyle.Render("checkface top"))
	b.WriteString(a.hintStyle.Render("  " + a.target))
	b.WriteString("\n\n")

	if a.polls == 0 {
		b.WriteString(a.hintStyle.Render("connecting..."))
		b.WriteString("\n")
	} else {
		b.WriteString(a.view.View())
	}
	if a.err != nil {
		b.WriteString("\n")
		b.WriteString(a.errorStyle.Render("poll failed: " + a.err.Error()))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(a.hintStyle.Render("r refresh • q quit"))
	return b.String()
}

// Err returns the last poll error, if any.
func (a *MonitorApp) Err() error {
	return a.err
}
