package cli

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/superbom/pkg/bom"
	"github.com/matzehuels/superbom/pkg/deps"
)

// List styles
var (
	listDimStyle = lipgloss.NewStyle().Foreground(colorDim)
)

// =============================================================================
// EntryListModel - Interactive BOM browser
// =============================================================================

// entryRow is one entry with the label of the manifest it came from.
type entryRow struct {
	Label string
	Entry deps.Entry
}

// EntryListModel is the bubbletea model for browsing the entries of a report.
type EntryListModel struct {
	all      []entryRow
	Rows     []entryRow // rows currently shown
	Cursor   int
	Height   int
	Offset   int
	Filtered bool // only unvalidated entries are shown
}

func newEntryListModel(r *bom.Report) EntryListModel {
	var rows []entryRow
	for _, m := range r.Manifests {
		for _, e := range m.Entries {
			rows = append(rows, entryRow{Label: m.Label, Entry: e})
		}
	}
	return EntryListModel{all: rows, Rows: rows, Height: 15}
}

func (m EntryListModel) Init() tea.Cmd {
	return nil
}

func (m EntryListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < len(m.Rows)-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "u":
			m = m.toggleFilter()
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

// toggleFilter switches between all entries and unvalidated ones.
func (m EntryListModel) toggleFilter() EntryListModel {
	m.Filtered = !m.Filtered
	m.Cursor, m.Offset = 0, 0
	if !m.Filtered {
		m.Rows = m.all
		return m
	}
	m.Rows = nil
	for _, r := range m.all {
		if !r.Entry.Validated {
			m.Rows = append(m.Rows, r)
		}
	}
	return m
}

func (m EntryListModel) View() string {
	var b strings.Builder

	title := "Bill of Materials"
	if m.Filtered {
		title += " (unvalidated)"
	}
	b.WriteString(StyleTitle.Render(title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  u toggle unvalidated  q quit"))
	b.WriteString("\n\n")

	if len(m.Rows) == 0 {
		b.WriteString(listDimStyle.Render("  no entries"))
		return b.String()
	}

	end := min(m.Offset+m.Height, len(m.Rows))
	rows := [][]string{}
	for i := m.Offset; i < end; i++ {
		r := m.Rows[i]
		cursor := "  "
		if i == m.Cursor {
			cursor = "▸ "
		}
		rows = append(rows, []string{cursor, r.Label, r.Entry.Package, r.Entry.Version, r.Entry.License})
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("", "Manifest", "Package", "Version", "License").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			idx := m.Offset + row
			if idx < 0 || idx >= len(m.Rows) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if col == 1 {
				base = base.Foreground(colorGray)
			} else if m.Rows[idx].Entry.Validated {
				base = base.Foreground(colorGreen)
			} else {
				base = base.Foreground(colorYellow)
			}
			if idx == m.Cursor {
				base = base.Bold(true)
			}
			return base
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	b.WriteString(m.detail())
	b.WriteString("\n\n")
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d]", m.Cursor+1, len(m.Rows))))

	return b.String()
}

// detail describes the entry under the cursor.
func (m EntryListModel) detail() string {
	e := m.Rows[m.Cursor].Entry
	status := StyleSuccess.Render(iconSuccess + " validated")
	if !e.Validated {
		status = StyleWarning.Render(iconWarning + " not validated")
	}
	parts := []string{status, "source " + e.Source}
	if e.LicenseSource != "" {
		parts = append(parts, "license from "+e.LicenseSource)
	}
	parts = append(parts, string(e.Ecosystem))
	return "  " + strings.Join(parts, listDimStyle.Render(" · "))
}
