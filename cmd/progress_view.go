package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/surge-downloader/localcopy/internal/core"
	"github.com/surge-downloader/localcopy/internal/source"
)

const (
	progressTick     = 150 * time.Millisecond
	progressBarWidth = 30
	progressNameLen  = 28
)

var (
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#50FA7B"))
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5555"))
)

type tickMsg time.Time

// resolvedMsg reports that the locator at index settled.
type resolvedMsg struct {
	index int
	err   error
}

// allResolvedMsg ends the view.
type allResolvedMsg struct{}

type progressRow struct {
	name     string
	id       string
	done     bool
	err      error
	fraction float64
}

// progressModel draws one bar per locator from the service's recorded
// progress.
type progressModel struct {
	svc  core.DownloadService
	rows []progressRow
	bar  progress.Model
}

func newProgressModel(svc core.DownloadService, locators []string) progressModel {
	rows := make([]progressRow, len(locators))
	for i, locator := range locators {
		id, _ := source.Identity(locator)
		name := source.SuggestedName(locator)
		if name == "" {
			name = locator
		}
		rows[i] = progressRow{name: name, id: id}
	}
	return progressModel{
		svc:  svc,
		rows: rows,
		bar:  progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth)),
	}
}

func tick() tea.Cmd {
	return tea.Tick(progressTick, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m progressModel) Init() tea.Cmd {
	return tick()
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		for i := range m.rows {
			if !m.rows[i].done {
				m.rows[i].fraction = m.svc.Progress(m.rows[i].id)
			}
		}
		return m, tick()
	case resolvedMsg:
		if msg.index >= 0 && msg.index < len(m.rows) {
			row := &m.rows[msg.index]
			row.done = true
			row.err = msg.err
			if msg.err == nil {
				row.fraction = 1
			}
		}
		return m, nil
	case allResolvedMsg:
		return m, tea.Quit
	case tea.WindowSizeMsg:
		m.bar.Width = max(10, min(progressBarWidth, msg.Width-progressNameLen-12))
		return m, nil
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	for _, row := range m.rows {
		status := fmt.Sprintf("%5.1f%%", row.fraction*100)
		switch {
		case row.done && row.err != nil:
			status = failedStyle.Render("failed")
		case row.done:
			status = doneStyle.Render("done")
		}
		fmt.Fprintf(&b, "%-*s %s %s\n", progressNameLen, truncateName(row.name), m.bar.ViewAs(row.fraction), status)
	}
	return b.String()
}

func truncateName(name string) string {
	if len(name) <= progressNameLen {
		return name
	}
	return name[:progressNameLen-3] + "..."
}

// resolveWithProgress is resolveAll drawing progress bars to out while it
// runs. The results are complete even when the view fails.
func resolveWithProgress(ctx context.Context, svc core.DownloadService, locators []string, limit int, out io.Writer) ([]resolution, error) {
	p := tea.NewProgram(newProgressModel(svc, locators),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithContext(ctx),
	)

	done := make(chan []resolution, 1)
	go func() {
		results := resolveAll(ctx, svc, locators, limit, func(i int, r resolution) {
			p.Send(resolvedMsg{index: i, err: r.err})
		})
		p.Send(allResolvedMsg{})
		done <- results
	}()

	_, err := p.Run()
	results := <-done
	if err != nil && ctx.Err() != nil {
		// Interrupted: the resolutions already carry the cancellation.
		err = nil
	}
	return results, err
}
