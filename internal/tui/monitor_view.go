package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/checkface/internal/server"
)

// historyLen is the number of queue samples kept for the sparkline.
const historyLen = 40

// QueueUpdateMsg carries a fresh queue status sample.
type QueueUpdateMsg struct {
	Status server.QueueStatus
	At     time.Time
}

// QueueErrorMsg reports a failed poll.
type QueueErrorMsg struct {
	Err error
	At  time.Time
}

// QueueView renders the queue depth, worker state and throughput.
type QueueView struct {
	status   server.QueueStatus
	history  []int
	lastSeen time.Time
	// images/sec between the last two samples
	rate       float64
	prevImages int
	prevAt     time.Time
	width      int
	height     int

	headerStyle   lipgloss.Style
	labelStyle    lipgloss.Style
	valueStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	warningStyle  lipgloss.Style
	blockedStyle  lipgloss.Style
	runningStyle  lipgloss.Style
}

// NewQueueView creates a new QueueView instance.
func NewQueueView() *QueueView {
	return &QueueView{
		headerStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),

		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(16),

		valueStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),

		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),

		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),

		warningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),

		blockedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),

		runningStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
	}
}

// Update handles input messages.
func (v *QueueView) Update(msg tea.Msg) (*QueueView, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.width = msg.Width
		v.height = msg.Height
	case QueueUpdateMsg:
		v.record(msg.Status, msg.At)
	}
	return v, nil
}

func (v *QueueView) record(st server.QueueStatus, at time.Time) {
	if !v.prevAt.IsZero() && at.After(v.prevAt) && st.Images >= v.prevImages {
		v.rate = float64(st.Images-v.prevImages) / at.Sub(v.prevAt).Seconds()
	}
	v.prevImages = st.Images
	v.prevAt = at
	v.status = st
	v.lastSeen = at
	v.history = append(v.history, st.Queue)
	if len(v.history) > historyLen {
		v.history = v.history[len(v.history)-historyLen:]
	}
}

// Status returns the most recent sample.
func (v *QueueView) Status() server.QueueStatus {
	return v.status
}

// Rate returns images per second between the last two samples.
func (v *QueueView) Rate() float64 {
	return v.rate
}

// View renders the view.
func (v *QueueView) View() string {
	var b strings.Builder

	b.WriteString(v.headerStyle.Render("Generator Queue"))
	b.WriteString("\n")

	state := v.runningStyle.Render("ready")
	if !v.status.Ready {
		state = v.warningStyle.Render("loading model")
	}
	b.WriteString(v.labelStyle.Render("Worker:"))
	b.WriteString(state)
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Queued:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.status.Queue)))
	b.WriteString("\n")

	// One full bar is one batch worth of waiting jobs.
	pct := 0.0
	if v.status.BatchSize > 0 {
		pct = float64(v.status.Queue) / float64(v.status.BatchSize) * 100
	}
	b.WriteString(v.renderProgressBar(pct, 30))
	b.WriteString("\n\n")

	b.WriteString(v.labelStyle.Render("Batch size:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d", v.status.BatchSize)))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Last batch:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d images in %.0fms", v.status.LastBatchSize, v.status.LastBatchMS)))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Generated:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%d images, %d batches", v.status.Images, v.status.Batches)))
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Failed:"))
	failed := fmt.Sprintf("%d batches", v.status.FailedBatches)
	if v.status.FailedBatches > 0 {
		b.WriteString(v.blockedStyle.Render(failed))
	} else {
		b.WriteString(v.valueStyle.Render(failed))
	}
	b.WriteString("\n")

	b.WriteString(v.labelStyle.Render("Throughput:"))
	b.WriteString(v.valueStyle.Render(fmt.Sprintf("%.1f images/s", v.rate)))
	b.WriteString("\n\n")

	b.WriteString(v.labelStyle.Render("Queue history:"))
	b.WriteString(v.progressFull.Render(sparkline(v.history)))
	b.WriteString("\n")

	return b.String()
}

// renderProgressBar renders a progress bar.
func (v *QueueView) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}

	filled := int(pct / 100 * float64(width))
	empty := width - filled

	bar := v.progressFull.Render(strings.Repeat("█", filled)) +
		v.progressEmpty.Render(strings.Repeat("░", empty))

	return fmt.Sprintf("  %s %.0f%%", bar, pct)
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

// sparkline scales samples to the tallest one.
func sparkline(samples []int) string {
	peak := 0
	for _, s := range samples {
		peak = max(peak, s)
	}
	var b strings.Builder
	for _, s := range samples {
		idx := 0
		if peak > 0 {
			idx = s * (len(sparkRunes) - 1) / peak
		}
		b.WriteRune(sparkRunes[idx])
	}
	return b.String()
}
