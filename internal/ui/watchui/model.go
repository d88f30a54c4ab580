package watchui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"jspack/internal/core/ports"
	"jspack/internal/ui/report"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			MarginLeft(2).
			Foreground(lipgloss.Color("#3B82F6")).
			Bold(true).
			Render

	docStyle = lipgloss.NewStyle().Margin(1, 2)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F87171")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FBBF24")).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#64748B")).
			Italic(true)
)

type panel int

const (
	panelBuilds panel = iota
	panelChanges
)

type item struct {
	title, desc string
}

func (i item) Title() string       { return i.title }
func (i item) Description() string { return i.desc }
func (i item) FilterValue() string { return i.title + i.desc }

// UpdateMsg carries one daemon report into the program.
type UpdateMsg ports.WatchUpdate

type Model struct {
	root       string
	buildList  list.Model
	changeList list.Model
	spinner    spinner.Model
	mode       panel
	waiting    bool
	rebuilds   int
	throttled  int
	last       ports.WatchUpdate
}

// NewModel returns the watch view. Paths are shown relative to root.
func NewModel(root string) Model {
	builds := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	builds.Title = "Builds"
	builds.SetShowStatusBar(false)
	builds.SetFilteringEnabled(true)

	changes := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	changes.Title = "Changed files"
	changes.SetShowStatusBar(false)
	changes.SetFilteringEnabled(true)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	return Model{
		root:       root,
		buildList:  builds,
		changeList: changes,
		spinner:    s,
		waiting:    true,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.activeList().FilterState() != list.Filtering || msg.String() == "ctrl+c" {
				return m, tea.Quit
			}
		case "tab":
			if m.activeList().FilterState() != list.Filtering {
				if m.mode == panelBuilds {
					m.mode = panelChanges
				} else {
					m.mode = panelBuilds
				}
				return m, nil
			}
		}
	case tea.WindowSizeMsg:
		h, v := docStyle.GetFrameSize()
		m.buildList.SetSize(msg.Width-h, msg.Height-v-4)
		m.changeList.SetSize(msg.Width-h, msg.Height-v-4)
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case UpdateMsg:
		m.apply(ports.WatchUpdate(msg))
		return m, nil
	}

	var cmd tea.Cmd
	if m.mode == panelBuilds {
		m.buildList, cmd = m.buildList.Update(msg)
	} else {
		m.changeList, cmd = m.changeList.Update(msg)
	}
	return m, cmd
}

func (m *Model) activeList() *list.Model {
	if m.mode == panelChanges {
		return &m.changeList
	}
	return &m.buildList
}

func (m *Model) apply(u ports.WatchUpdate) {
	m.waiting = false
	m.last = u
	m.rebuilds++
	if u.Throttled {
		m.throttled++
	}

	var builds []list.Item
	for _, b := range u.Builds {
		if b.Err != nil {
			builds = append(builds, item{title: "✗ " + b.Entry, desc: firstLine(b.Err.Error())})
		} else {
			builds = append(builds, item{
				title: "✓ " + b.Entry,
				desc: fmt.Sprintf("%d modules, %s, %d eliminated, %s",
					b.Modules, report.FormatBytes(b.CodeBytes), b.Eliminated, b.Duration.Round(time.Millisecond)),
			})
		}
		for _, d := range b.Diagnostics {
			builds = append(builds, item{
				title: fmt.Sprintf("  %s %s", d.Severity, d.Code),
				desc:  d.Message + " " + m.rel(d.Path),
			})
		}
	}
	m.buildList.SetItems(builds)

	var changes []list.Item
	affected := make(map[string]bool, len(u.Affected))
	for _, p := range u.Affected {
		affected[p] = true
	}
	for _, p := range u.Changed {
		desc := "not in any bundle"
		if affected[p] {
			desc = "bundled module"
		}
		changes = append(changes, item{title: m.rel(p), desc: desc})
	}
	for _, p := range u.Affected {
		if !contains(u.Changed, p) {
			changes = append(changes, item{title: m.rel(p), desc: "importer of a changed file"})
		}
	}
	m.changeList.SetItems(changes)
}

func (m Model) View() string {
	var summary string
	switch {
	case m.waiting:
		summary = m.spinner.View() + " building"
	case m.last.Failed():
		failed := 0
		for _, b := range m.last.Builds {
			if b.Err != nil {
				failed++
			}
		}
		summary = errorStyle.Render(fmt.Sprintf("%d of %d entries failed", failed, len(m.last.Builds)))
	default:
		summary = successStyle.Render(fmt.Sprintf("%d entries built", len(m.last.Builds)))
	}
	if m.throttled > 0 {
		summary += " | " + warningStyle.Render(fmt.Sprintf("%d throttled", m.throttled))
	}

	status := statusStyle.Render("waiting for first build")
	if !m.waiting {
		status = statusStyle.Render(fmt.Sprintf("Last rebuild: %s | %d rebuilds | %d changed",
			m.last.Timestamp.Local().Format("15:04:05"), m.rebuilds, len(m.last.Changed)))
	}

	header := fmt.Sprintf("%s\n%s | %s\n", titleStyle("jspack watch"), status, summary)
	help := statusStyle.Render("tab: switch panel • /: filter • q: quit")
	return docStyle.Render(header + "\n" + m.activeListView() + "\n" + help)
}

func (m Model) activeListView() string {
	if m.mode == panelChanges {
		return m.changeList.View()
	}
	return m.buildList.View()
}

func (m Model) rel(path string) string {
	if m.root == "" || !filepath.IsAbs(path) {
		return path
	}
	if rel, err := filepath.Rel(m.root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return path
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
