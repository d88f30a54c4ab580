package watchui

import (
	stderrors "errors"
	"testing"
	"time"

	"jspack/internal/core/errors"
	"jspack/internal/core/ports"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	state, ok := next.(Model)
	require.True(t, ok, "unexpected model type %T", next)
	return state
}

func TestModelAppliesUpdates(t *testing.T) {
	m := NewModel("/p")
	assert.Contains(t, m.View(), "building")

	m = update(t, m, UpdateMsg{
		Changed:  []string{"/p/lib.js", "/p/README.md"},
		Affected: []string{"/p/index.js", "/p/lib.js"},
		Builds: []ports.BuildSummary{
			{Entry: "index.js", Modules: 2, CodeBytes: 40, Duration: 3 * time.Millisecond,
				Diagnostics: []errors.Diagnostic{{Code: errors.CodeCircularImport, Severity: errors.SeverityWarning, Message: "cycle", Path: "/p/a.js"}}},
			{Entry: "worker.js", Err: stderrors.New("unresolved import\nmore detail")},
		},
		Throttled: true,
		Timestamp: time.Now(),
	})

	assert.False(t, m.waiting)
	assert.Equal(t, 1, m.rebuilds)
	assert.Equal(t, 1, m.throttled)
	require.Len(t, m.buildList.Items(), 3)
	assert.Equal(t, "✗ worker.js", m.buildList.Items()[2].(item).title)
	assert.Equal(t, "unresolved import", m.buildList.Items()[2].(item).desc)
	assert.Contains(t, m.buildList.Items()[1].(item).desc, "a.js")

	changes := m.changeList.Items()
	require.Len(t, changes, 3)
	assert.Equal(t, item{title: "lib.js", desc: "bundled module"}, changes[0])
	assert.Equal(t, item{title: "README.md", desc: "not in any bundle"}, changes[1])
	assert.Equal(t, item{title: "index.js", desc: "importer of a changed file"}, changes[2])

	view := m.View()
	assert.Contains(t, view, "1 of 2 entries failed")
	assert.Contains(t, view, "1 throttled")
}

func TestModelTabSwitchesPanel(t *testing.T) {
	m := NewModel("")
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, panelChanges, m.mode)
	m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, panelBuilds, m.mode)
}

func TestModelQuits(t *testing.T) {
	m := NewModel("")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestModelStopsSpinnerAfterFirstUpdate(t *testing.T) {
	m := NewModel("")
	m = update(t, m, UpdateMsg{Timestamp: time.Now()})
	_, cmd := m.Update(m.spinner.Tick())
	assert.Nil(t, cmd)
	assert.Contains(t, m.View(), "0 entries built")
}
