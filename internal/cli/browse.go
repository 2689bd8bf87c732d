package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/pkg/models"
)

type browseMode int

const (
	modeList browseMode = iota
	modeSearch
	modeComment
)

// browseModel is the interactive browser. All browsing state lives in the
// core.Browser and its annotation store; the model only keeps cursor and
// input state.
type browseModel struct {
	ctx     context.Context
	browser *core.Browser
	store   core.AnnotationStore

	mode          browseMode
	cursor        int
	commentCursor int
	draft         string
	notice        string
	width         int
	height        int

	detailID  string
	detail    *models.Character
	detailErr error
}

// queryChangedMsg is delivered when the settled search or the species
// filter moves the browser to a new signature.
type queryChangedMsg struct {
	sig core.Signature
}

type fetchedMsg struct {
	res core.FetchResult
}

type detailMsg struct {
	id  string
	ch  *models.Character
	err error
}

func newBrowseModel(ctx context.Context, b *core.Browser) browseModel {
	return browseModel{
		ctx:     ctx,
		browser: b,
		store:   b.Store(),
		width:   100,
	}
}

func (m browseModel) Init() tea.Cmd {
	return m.fetch(m.browser.PlanRefresh())
}

func (m browseModel) fetch(req core.PageRequest) tea.Cmd {
	b, ctx := m.browser, m.ctx
	return func() tea.Msg {
		return fetchedMsg{res: b.Execute(ctx, req)}
	}
}

func (m browseModel) loadDetail(id string) tea.Cmd {
	b, ctx := m.browser, m.ctx
	return func() tea.Msg {
		ch, err := b.Detail(ctx, id)
		return detailMsg{id: id, ch: ch, err: err}
	}
}

// rows returns the visible list: starred first, then the others.
func (m browseModel) rows() []models.Character {
	v := m.browser.View()
	return append(v.Starred, v.Others...)
}

func (m browseModel) selected() (models.Character, bool) {
	rows := m.rows()
	if m.cursor < 0 || m.cursor >= len(rows) {
		return models.Character{}, false
	}
	return rows[m.cursor], true
}

// syncSelection clamps the cursor and, when the selected character changed,
// records it in the store and starts a detail lookup.
func (m *browseModel) syncSelection() tea.Cmd {
	rows := m.rows()
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	id := ""
	if len(rows) > 0 {
		id = rows[m.cursor].ID
	}
	if id == m.detailID {
		return nil
	}
	m.store.SetSelectedCharacterID(id)
	m.detailID, m.detail, m.detailErr = id, nil, nil
	m.commentCursor = 0
	if id == "" {
		return nil
	}
	return m.loadDetail(id)
}

func (m browseModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case queryChangedMsg:
		if msg.sig != m.browser.Signature() {
			return m, nil
		}
		m.cursor = 0
		return m, m.fetch(m.browser.PlanRefresh())

	case fetchedMsg:
		_ = m.browser.Apply(msg.res) // Failures surface through Err and LoadMoreErr.
		return m, m.syncSelection()

	case detailMsg:
		if msg.id == m.detailID {
			m.detail, m.detailErr = msg.ch, msg.err
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		m.notice = ""
		switch m.mode {
		case modeSearch:
			return m.updateSearch(msg)
		case modeComment:
			return m.updateComment(msg)
		default:
			return m.updateList(msg)
		}
	}
	return m, nil
}

func (m browseModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc":
		if m.store.IsFilterPanelOpen() {
			m.store.SetFilterPanelOpen(false)
			return m, nil
		}
		return m, tea.Quit
	case "/":
		m.mode = modeSearch
		return m, nil
	case "up", "k":
		m.cursor--
		return m, m.syncSelection()
	case "down", "j":
		if m.cursor == len(m.rows())-1 {
			return m, tea.Batch(m.loadMore(), m.syncSelection())
		}
		m.cursor++
		return m, m.syncSelection()
	case "home", "g":
		m.cursor = 0
		return m, m.syncSelection()
	case "end", "G":
		m.cursor = len(m.rows()) - 1
		return m, m.syncSelection()
	case "m":
		return m, m.loadMore()
	case "R":
		return m, m.fetch(m.browser.PlanRefresh())
	case "f", " ":
		if ch, ok := m.selected(); ok {
			m.store.ToggleFavorite(ch.ID)
			m.followSelection(ch.ID)
		}
		return m, m.syncSelection()
	case "d":
		if ch, ok := m.selected(); ok {
			m.store.SoftDeleteCharacter(ch.ID)
			m.detail, m.detailErr = nil, core.ErrCharacterDeleted
		}
		return m, m.syncSelection()
	case "u":
		if ch, ok := m.selected(); ok && m.store.IsDeleted(ch.ID) {
			m.store.RestoreCharacter(ch.ID)
			m.detailErr = nil
			return m, m.loadDetail(ch.ID)
		}
		return m, nil
	case "s":
		order := models.SortDesc
		if m.store.Filters().SortOrder == models.SortDesc {
			order = models.SortAsc
		}
		m.keepSelection(func() { m.store.SetSortOrder(order) })
		return m, m.syncSelection()
	case "tab":
		m.store.ToggleFilterPanel()
		return m, nil
	case "1":
		m.keepSelection(func() { m.store.SetCharacterFilter(nextCharacterFilter(m.store.Filters().CharacterFilter)) })
		return m, m.syncSelection()
	case "2":
		m.browser.SetSpeciesFilter(nextSpeciesFilter(m.store.Filters().SpeciesFilter))
		return m, nil
	case "3":
		m.keepSelection(func() { m.store.SetStatusFilter(nextStatusFilter(m.store.Filters().StatusFilter)) })
		return m, m.syncSelection()
	case "4":
		m.keepSelection(func() { m.store.SetGenderFilter(nextGenderFilter(m.store.Filters().GenderFilter)) })
		return m, m.syncSelection()
	case "r":
		m.browser.ResetFilters()
		return m, m.syncSelection()
	case "c":
		if ch, ok := m.selected(); ok && !m.store.IsDeleted(ch.ID) {
			m.mode = modeComment
			m.draft = ""
		}
		return m, nil
	case "[":
		if m.commentCursor > 0 {
			m.commentCursor--
		}
		return m, nil
	case "]":
		if m.commentCursor < len(m.store.GetComments(m.detailID))-1 {
			m.commentCursor++
		}
		return m, nil
	case "x":
		comments := m.store.GetComments(m.detailID)
		if m.commentCursor < len(comments) {
			m.store.DeleteComment(m.detailID, comments[m.commentCursor].ID)
			if m.commentCursor > 0 && m.commentCursor >= len(comments)-1 {
				m.commentCursor--
			}
		}
		return m, nil
	}
	return m, nil
}

func (m browseModel) loadMore() tea.Cmd {
	req, ok := m.browser.PlanLoadMore()
	if !ok {
		return nil
	}
	return m.fetch(req)
}

// keepSelection applies a local re-ordering change and moves the cursor so
// the selected character stays selected when it is still visible.
func (m *browseModel) keepSelection(change func()) {
	ch, ok := m.selected()
	change()
	if ok {
		m.followSelection(ch.ID)
	}
}

func (m *browseModel) followSelection(id string) {
	for i, c := range m.rows() {
		if c.ID == id {
			m.cursor = i
			return
		}
	}
}

func (m browseModel) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	search := m.store.Filters().Search
	switch msg.Type {
	case tea.KeyEnter:
		m.mode = modeList
		m.browser.SettleSearch()
		return m, nil
	case tea.KeyEsc:
		m.mode = modeList
		return m, nil
	case tea.KeyBackspace:
		if search != "" {
			_, size := utf8.DecodeLastRuneInString(search)
			m.browser.SetSearch(search[:len(search)-size])
		}
		return m, nil
	case tea.KeyCtrlU:
		m.browser.SetSearch("")
		return m, nil
	case tea.KeySpace:
		m.browser.SetSearch(search + " ")
		return m, nil
	case tea.KeyRunes:
		m.browser.SetSearch(search + string(msg.Runes))
		return m, nil
	}
	return m, nil
}

func (m browseModel) updateComment(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if _, ok := m.store.AddComment(m.detailID, m.draft); !ok {
			m.notice = "Comment cannot be empty"
			return m, nil
		}
		m.mode = modeList
		m.draft = ""
		m.commentCursor = len(m.store.GetComments(m.detailID)) - 1
		return m, nil
	case tea.KeyEsc:
		m.mode = modeList
		m.draft = ""
		return m, nil
	case tea.KeyBackspace:
		if m.draft != "" {
			_, size := utf8.DecodeLastRuneInString(m.draft)
			m.draft = m.draft[:len(m.draft)-size]
		}
		return m, nil
	case tea.KeySpace:
		m.draft += " "
		return m, nil
	case tea.KeyRunes:
		m.draft += string(msg.Runes)
		return m, nil
	}
	return m, nil
}

func nextCharacterFilter(f models.CharacterFilter) models.CharacterFilter {
	switch f {
	case models.CharacterFilterAll:
		return models.CharacterFilterStarred
	case models.CharacterFilterStarred:
		return models.CharacterFilterOthers
	default:
		return models.CharacterFilterAll
	}
}

func nextSpeciesFilter(f models.SpeciesFilter) models.SpeciesFilter {
	switch f {
	case models.SpeciesAll:
		return models.SpeciesHuman
	case models.SpeciesHuman:
		return models.SpeciesAlien
	default:
		return models.SpeciesAll
	}
}

func nextStatusFilter(f models.StatusFilter) models.StatusFilter {
	order := []models.StatusFilter{models.StatusFilterAll, models.StatusFilterAlive, models.StatusFilterDead, models.StatusFilterUnknown}
	for i, v := range order {
		if v == f {
			return order[(i+1)%len(order)]
		}
	}
	return models.StatusFilterAll
}

func nextGenderFilter(f models.GenderFilter) models.GenderFilter {
	order := []models.GenderFilter{
		models.GenderFilterAll, models.GenderFilterFemale, models.GenderFilterMale,
		models.GenderFilterGenderless, models.GenderFilterUnknown,
	}
	for i, v := range order {
		if v == f {
			return order[(i+1)%len(order)]
		}
	}
	return models.GenderFilterAll
}

// detailProblem maps a detail lookup failure to the panel text.
func detailProblem(err error) string {
	switch {
	case errors.Is(err, core.ErrCharacterDeleted):
		return "Character deleted. Press u to restore."
	case errors.Is(err, core.ErrCharacterNotFound):
		return "Character not found"
	default:
		return fmt.Sprintf("Error loading character: %v", err)
	}
}

var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse characters interactively",
	Long: `Launch the interactive character browser.

  /        search by name       j/k, ↑/↓  move
  f, space star / unstar        d / u     delete / restore
  c        add comment          [ / ]     select comment, x deletes it
  s        toggle name order    tab       filter panel (1-4 cycle filters)
  r        reset filters        m         load more
  R        retry                q         quit`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := requireBrowser(cmd)
		if err != nil {
			return err
		}

		p := tea.NewProgram(newBrowseModel(cmd.Context(), b), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
		// Query changes can fire from inside Update, so delivery must not
		// block the event loop.
		b.SetOnQueryChange(func(sig core.Signature) {
			go p.Send(queryChangedMsg{sig: sig})
		})
		defer b.SetOnQueryChange(nil)

		_, err = p.Run()
		if errors.Is(err, tea.ErrProgramKilled) && cmd.Context().Err() != nil {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(browseCmd)
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	if n == 1 {
		return "…"
	}
	return strings.TrimSpace(string(r[:n-1])) + "…"
}
