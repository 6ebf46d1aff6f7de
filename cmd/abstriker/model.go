package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type appState int

const (
	stateList appState = iota
	stateDetail
)

var (
	styleBase = lipgloss.NewStyle().
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(lipgloss.Color("240"))

	styleHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("99")).
			Padding(0, 1)

	styleHelp = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Padding(0, 1)

	styleOverlay = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("214")).
			Padding(1, 3).
			MarginLeft(2)
)

// typeRow ties a table row to the type it shows.
type typeRow struct {
	file string
	t    TypeReport
}

type model struct {
	table  table.Model
	rows   []typeRow
	report *Report
	reload func() *Report
	state  appState
}

func newModel(rep *Report, reload func() *Report) model {
	columns := []table.Column{
		{Title: "FILE", Width: 24},
		{Title: "TYPE", Width: 22},
		{Title: "KIND", Width: 8},
		{Title: "STATUS", Width: 10},
		{Title: "ABSTRACT", Width: 28},
	}

	m := model{reload: reload, state: stateList}
	m.setReport(rep)

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(toRows(m.rows)),
		table.WithFocused(true),
		table.WithHeight(15),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true).
		Foreground(lipgloss.Color("99"))
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m.table = t
	return m
}

func (m *model) setReport(rep *Report) {
	m.report = rep
	m.rows = m.rows[:0]
	for _, f := range rep.Files {
		for _, t := range f.Types {
			m.rows = append(m.rows, typeRow{file: f.Path, t: t})
		}
	}
}

func toRows(rows []typeRow) []table.Row {
	out := make([]table.Row, len(rows))
	for i, r := range rows {
		kind := r.t.Kind
		if r.t.Component {
			kind += "*"
		}
		out[i] = table.Row{r.file, r.t.Name, kind, r.t.Status, memberSummary(r.t)}
	}
	return out
}

func (m model) selected() (typeRow, bool) {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.rows) {
		return typeRow{}, false
	}
	return m.rows[idx], true
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.state {
	case stateList:
		return m.updateList(msg)
	case stateDetail:
		return m.updateDetail(msg)
	}
	return m, nil
}

func (m model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			if _, ok := m.selected(); ok {
				m.state = stateDetail
			}
			return m, nil
		case "r":
			if m.reload != nil {
				m.setReport(m.reload())
				m.table.SetRows(toRows(m.rows))
			}
			return m, nil
		}
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m model) updateDetail(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "esc", "enter":
			m.state = stateList
			return m, nil
		}
	}
	return m, nil
}

func (m model) View() string {
	title := styleHeader.Render(fmt.Sprintf("ABSTRIKER  %d file(s), %d violation(s), %d error(s)",
		len(m.report.Files), m.report.Violations(), m.report.Failures()))
	tableView := styleBase.Render(m.table.View())

	if m.state == stateDetail {
		row, _ := m.selected()
		var b strings.Builder
		printAncestors(&b, row.t)
		if f := m.fileOf(row.file); f != nil && f.Violation != nil && f.Violation.Type == row.t.Name {
			b.WriteString("\n" + styleErr.Render(f.Violation.Message))
		}
		overlay := styleOverlay.Render(strings.TrimRight(b.String(), "\n"))
		help := styleHelp.Render("enter / esc  back    q  quit")
		return title + "\n" + tableView + "\n" + overlay + "\n" + help
	}

	var help string
	if len(m.rows) == 0 {
		help = styleHelp.Render("No types defined.  r  reload    q  quit")
	} else {
		help = styleHelp.Render("↑/↓  navigate    enter  ancestors    r  reload    q  quit")
	}
	return title + "\n" + tableView + "\n" + help
}

func (m model) fileOf(path string) *FileReport {
	for i := range m.report.Files {
		if m.report.Files[i].Path == path {
			return &m.report.Files[i]
		}
	}
	return nil
}

// reloader re-runs files with r for the 'r' key.
func reloader(ctx context.Context, r *runner, files []string) func() *Report {
	return func() *Report { return r.run(ctx, files) }
}
