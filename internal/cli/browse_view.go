package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/valter-silva-au/rmb/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(0, 1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("238"))
	starStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))
	deletedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Strikethrough(true)
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	statusAlive   = lipgloss.NewStyle().Foreground(lipgloss.Color("46"))
	statusDead    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statusUnknown = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m browseModel) View() string {
	title := titleStyle.Render(" Rick and Morty ")
	help := helpStyle.Render("/: search | f: star | c: comment | d/u: delete/restore | tab: filters | s: sort | m: more | q: quit")

	list := m.renderList()
	detail := m.renderDetail()

	availableWidth := m.width - 2
	var body string
	if availableWidth >= 90 {
		listWidth := availableWidth * 2 / 5
		list = m.panel(m.mode != modeComment, list, listWidth-4)
		detail = m.panel(m.mode == modeComment, detail, availableWidth-listWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, list, detail)
	} else {
		w := availableWidth - 4
		if w < 20 {
			w = 20
		}
		body = lipgloss.JoinVertical(lipgloss.Left,
			m.panel(m.mode != modeComment, list, w),
			m.panel(m.mode == modeComment, detail, w))
	}

	parts := []string{title, m.renderSearchBar()}
	if m.store.IsFilterPanelOpen() {
		parts = append(parts, m.renderFilterPanel())
	}
	parts = append(parts, body)
	if m.notice != "" {
		parts = append(parts, warnStyle.Render(m.notice))
	}
	parts = append(parts, help)
	return strings.Join(parts, "\n\n")
}

func (m browseModel) panel(active bool, content string, width int) string {
	style := panelStyle
	if active {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m browseModel) renderSearchBar() string {
	filters := m.store.Filters()
	search := filters.Search
	if m.mode == modeSearch {
		search += "█"
	} else if search == "" {
		search = helpStyle.Render("press / to search by name")
	}

	bar := "Search: " + search
	if n := filters.ActiveCount(); n > 0 {
		bar += "   " + headerStyle.Render(fmt.Sprintf("%d Filters", n))
	}
	return bar
}

func (m browseModel) renderFilterPanel() string {
	f := m.store.Filters()
	var b strings.Builder
	b.WriteString(headerStyle.Render("Filters"))
	b.WriteString("\n")
	fmt.Fprintf(&b, "  1 Character  %s\n", f.CharacterFilter)
	fmt.Fprintf(&b, "  2 Species    %s\n", f.SpeciesFilter)
	fmt.Fprintf(&b, "  3 Status     %s\n", f.StatusFilter)
	fmt.Fprintf(&b, "  4 Gender     %s\n", f.GenderFilter)
	fmt.Fprintf(&b, "  s Sort       %s\n", f.SortOrder)
	b.WriteString(helpStyle.Render("  r: reset | tab/esc: close"))
	return activePanelStyle.Render(b.String())
}

func (m browseModel) renderList() string {
	var b strings.Builder

	if err := m.browser.Err(); err != nil {
		b.WriteString(errorStyle.Render("Error loading characters. Please try again."))
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("R: retry"))
		return b.String()
	}

	view := m.browser.View()
	if view.Total == 0 {
		if m.browser.Loading() {
			return "Loading..."
		}
		return "No characters found"
	}

	if m.store.Filters().ActiveCount() > 0 {
		b.WriteString(fmt.Sprintf("%d Results\n\n", view.Total))
	}

	row := 0
	section := func(label string, chars []models.Character) {
		if len(chars) == 0 {
			return
		}
		b.WriteString(headerStyle.Render(fmt.Sprintf("%s (%d)", label, len(chars))))
		b.WriteString("\n")
		for _, ch := range chars {
			b.WriteString(m.renderRow(row, ch))
			b.WriteString("\n")
			row++
		}
		b.WriteString("\n")
	}
	section("Starred Characters", view.Starred)
	section("Characters", view.Others)

	switch {
	case m.browser.Loading():
		b.WriteString(helpStyle.Render("Loading..."))
	case m.browser.LoadMoreErr() != nil:
		b.WriteString(warnStyle.Render("Error loading more characters"))
		b.WriteString(helpStyle.Render(" (m: retry)"))
	case m.browser.HasMore():
		b.WriteString(helpStyle.Render("m: load more"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m browseModel) renderRow(row int, ch models.Character) string {
	prefix := "  "
	if m.store.IsFavorite(ch.ID) {
		prefix = starStyle.Render("★ ")
	}
	name := truncate(ch.Name, 28)
	label := fmt.Sprintf("%-28s %s", name, ch.Species)
	if m.store.IsDeleted(ch.ID) {
		label = deletedStyle.Render(label)
	}
	if row == m.cursor {
		return "▸ " + prefix + selectedStyle.Render(label)
	}
	return "  " + prefix + label
}

func (m browseModel) renderDetail() string {
	var b strings.Builder

	if m.detailID == "" {
		return helpStyle.Render("Select a character")
	}
	if m.detailErr != nil {
		b.WriteString(errorStyle.Render(detailProblem(m.detailErr)))
		return b.String()
	}
	if m.detail == nil {
		return "Loading..."
	}

	ch := m.detail
	name := ch.Name
	if m.store.IsFavorite(ch.ID) {
		name = starStyle.Render("★ ") + name
	}
	b.WriteString(headerStyle.Render(name))
	b.WriteString("\n")
	fmt.Fprintf(&b, "Status:   %s\n", styleForStatus(ch.Status).Render(string(ch.Status)))
	fmt.Fprintf(&b, "Species:  %s\n", ch.Species)
	if ch.Type != "" {
		fmt.Fprintf(&b, "Type:     %s\n", ch.Type)
	}
	fmt.Fprintf(&b, "Gender:   %s\n", ch.Gender)
	fmt.Fprintf(&b, "Origin:   %s\n", placeLabel(ch.Origin))
	fmt.Fprintf(&b, "Location: %s\n", placeLabel(ch.Location))
	if n := len(ch.Episode); n > 0 {
		fmt.Fprintf(&b, "Episodes: %d (first %s %s)\n", n, ch.Episode[0].Episode, ch.Episode[0].Name)
	}

	b.WriteString("\n")
	b.WriteString(m.renderComments())
	return b.String()
}

func (m browseModel) renderComments() string {
	var b strings.Builder
	comments := m.store.GetComments(m.detailID)
	b.WriteString(headerStyle.Render(fmt.Sprintf("Notes (%d)", len(comments))))
	b.WriteString("\n")
	for i, c := range comments {
		line := fmt.Sprintf("%s  %s", c.Text, helpStyle.Render(shortTime(c.CreatedAt)))
		if i == m.commentCursor && m.mode == modeList {
			line = selectedStyle.Render(c.Text) + "  " + helpStyle.Render(shortTime(c.CreatedAt))
		}
		b.WriteString("• " + line + "\n")
	}
	if m.mode == modeComment {
		b.WriteString("\n> " + m.draft + "█\n")
		b.WriteString(helpStyle.Render("enter: save | esc: cancel"))
	} else if len(comments) > 0 {
		b.WriteString(helpStyle.Render("[ ]: select | x: delete"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func styleForStatus(s models.CharacterStatus) lipgloss.Style {
	switch s {
	case models.CharacterAlive:
		return statusAlive
	case models.CharacterDead:
		return statusDead
	default:
		return statusUnknown
	}
}

// shortTime trims an RFC3339 timestamp to minutes.
func shortTime(ts string) string {
	if len(ts) >= 16 {
		return strings.Replace(ts[:16], "T", " ", 1)
	}
	return ts
}
