// Package mcp provides an MCP (Model Context Protocol) server that exposes
// character browsing and annotation as tools for AI assistants.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/internal/observability"
	"github.com/valter-silva-au/rmb/pkg/models"
)

// maxListPages bounds how many pages one list_characters call may load.
const maxListPages = 10

// Server wraps a browsing session and exposes it as MCP tools.
type Server struct {
	server      *gomcp.Server
	browser     *core.Browser
	store       core.AnnotationStore
	metricsCalc observability.MetricsCalculator
	alertEngine observability.AlertEngine

	// browseMu serializes list_characters, which drives the shared
	// browser's query state. Annotation tools only touch the store.
	browseMu sync.Mutex
}

// NewServer creates a new MCP server over browser. metricsCalc and
// alertEngine may be nil if observability is disabled.
func NewServer(browser *core.Browser, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		browser:     browser,
		store:       browser.Store(),
		metricsCalc: metricsCalc,
		alertEngine: alertEngine,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "rmb", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run serves over stdio, blocking until the client disconnects or the
// context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type listCharactersInput struct {
	Search          string `json:"search,omitempty" jsonschema:"name substring to search for"`
	Species         string `json:"species,omitempty" jsonschema:"species filter sent to the API: all, Human or Alien"`
	Status          string `json:"status,omitempty" jsonschema:"local status filter: all, Alive, Dead or unknown"`
	Gender          string `json:"gender,omitempty" jsonschema:"local gender filter: all, Female, Male, Genderless or unknown"`
	CharacterFilter string `json:"character_filter,omitempty" jsonschema:"all, starred or others"`
	Sort            string `json:"sort,omitempty" jsonschema:"name order: asc or desc"`
	Pages           int    `json:"pages,omitempty" jsonschema:"number of pages to load, 1 to 10. Defaults to 1."`
}

type characterSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Species  string `json:"species"`
	Gender   string `json:"gender"`
	Starred  bool   `json:"starred"`
	Deleted  bool   `json:"deleted,omitempty"`
	Comments int    `json:"comments,omitempty"`
}

type listCharactersOutput struct {
	Starred       []characterSummary `json:"starred"`
	Characters    []characterSummary `json:"characters"`
	Total         int                `json:"total"`
	ActiveFilters int                `json:"active_filters"`
	PagesLoaded   int                `json:"pages_loaded"`
	HasMore       bool               `json:"has_more"`
	Warning       string             `json:"warning,omitempty"`
}

type characterIDInput struct {
	CharacterID string `json:"character_id" jsonschema:"the character id, e.g. 1 for Rick Sanchez"`
}

type commentOutput struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type characterDetailOutput struct {
	Character characterSummary `json:"character"`
	Type      string           `json:"type,omitempty"`
	Origin    string           `json:"origin"`
	Location  string           `json:"location"`
	Image     string           `json:"image,omitempty"`
	Episodes  []string         `json:"episodes"`
	Created   string           `json:"created,omitempty"`
	Notes     []commentOutput  `json:"notes"`
}

type toggleFavoriteOutput struct {
	CharacterID string `json:"character_id"`
	Starred     bool   `json:"starred"`
}

type addCommentInput struct {
	CharacterID string `json:"character_id" jsonschema:"the character to annotate"`
	Text        string `json:"text" jsonschema:"comment text; blank text is rejected"`
}

type listCommentsOutput struct {
	CharacterID string          `json:"character_id"`
	Comments    []commentOutput `json:"comments"`
	Count       int             `json:"count"`
}

type deleteCommentInput struct {
	CharacterID string `json:"character_id" jsonschema:"the character the comment belongs to"`
	CommentID   string `json:"comment_id" jsonschema:"the comment id returned by add_comment"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type getMetricsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
}

type metricsOutput struct {
	FavoritesAdded       int     `json:"favorites_added"`
	FavoritesRemoved     int     `json:"favorites_removed"`
	CommentsAdded        int     `json:"comments_added"`
	CommentsDeleted      int     `json:"comments_deleted"`
	CharactersDeleted    int     `json:"characters_deleted"`
	CharactersRestored   int     `json:"characters_restored"`
	PagesLoaded          int     `json:"pages_loaded"`
	CharactersFetched    int     `json:"characters_fetched"`
	InitialFetchFailures int     `json:"initial_fetch_failures"`
	LoadMoreFailures     int     `json:"load_more_failures"`
	PersistFailures      int     `json:"persist_failures"`
	AvgFetchMillis       float64 `json:"avg_fetch_ms"`
	EventCount           int     `json:"event_count"`
	OldestEvent          string  `json:"oldest_event,omitempty"`
	NewestEvent          string  `json:"newest_event,omitempty"`
}

type getAlertsInput struct {
	Since string `json:"since,omitempty" jsonschema:"time window to evaluate (e.g. 24h, 7d). Defaults to 24h."`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_characters",
		Description: "Search Rick and Morty characters. Starred characters are listed separately; status, gender and the starred/others scope filter locally.",
	}, s.handleListCharacters)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_character",
		Description: "Get full character details including origin, location, episodes and the user's notes.",
	}, s.handleGetCharacter)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "toggle_favorite",
		Description: "Star or unstar a character. Returns the new starred state.",
	}, s.handleToggleFavorite)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "add_comment",
		Description: "Attach a note to a character.",
	}, s.handleAddComment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "list_comments",
		Description: "List a character's notes, oldest first.",
	}, s.handleListComments)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "delete_comment",
		Description: "Delete one note from a character.",
	}, s.handleDeleteComment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "soft_delete_character",
		Description: "Hide a character's details. Favorites and notes are kept and come back on restore.",
	}, s.handleSoftDelete)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "restore_character",
		Description: "Undo soft_delete_character.",
	}, s.handleRestore)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated usage and fetch metrics from the event log.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate alerts for failed saves, fetch failure rate and slow fetches.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleListCharacters(ctx context.Context, _ *gomcp.CallToolRequest, input listCharactersInput) (*gomcp.CallToolResult, listCharactersOutput, error) {
	filters, err := filtersFromInput(input)
	if err != nil {
		return errorResult(err.Error()), listCharactersOutput{}, nil
	}
	pages := input.Pages
	if pages <= 0 {
		pages = 1
	}
	if pages > maxListPages {
		return errorResult(fmt.Sprintf("pages must be between 1 and %d", maxListPages)), listCharactersOutput{}, nil
	}

	s.browseMu.Lock()
	defer s.browseMu.Unlock()

	s.browser.SetSearch(filters.Search)
	s.browser.SettleSearch()
	s.browser.SetSpeciesFilter(filters.SpeciesFilter)
	s.store.SetStatusFilter(filters.StatusFilter)
	s.store.SetGenderFilter(filters.GenderFilter)
	s.store.SetCharacterFilter(filters.CharacterFilter)
	s.store.SetSortOrder(filters.SortOrder)

	out := listCharactersOutput{}
	if err := s.browser.LoadPages(ctx, pages); err != nil {
		var fe *core.FetchError
		if !errors.As(err, &fe) || fe.Phase != core.PhaseLoadMore {
			return errorResult("Error loading characters. Please try again."), listCharactersOutput{}, nil
		}
		out.Warning = "Error loading more characters"
	}

	view := s.browser.View()
	out.Starred = s.summaries(view.Starred)
	out.Characters = s.summaries(view.Others)
	out.Total = view.Total
	out.ActiveFilters = s.store.Filters().ActiveCount()
	out.PagesLoaded = s.browser.CurrentPage()
	out.HasMore = s.browser.HasMore()
	return nil, out, nil
}

func (s *Server) handleGetCharacter(ctx context.Context, _ *gomcp.CallToolRequest, input characterIDInput) (*gomcp.CallToolResult, characterDetailOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), characterDetailOutput{}, nil
	}

	ch, err := s.browser.Detail(ctx, id)
	switch {
	case errors.Is(err, core.ErrCharacterDeleted):
		return errorResult(fmt.Sprintf("character %s was deleted; use restore_character to bring it back", id)), characterDetailOutput{}, nil
	case errors.Is(err, core.ErrCharacterNotFound):
		return errorResult(fmt.Sprintf("character %s not found", id)), characterDetailOutput{}, nil
	case err != nil:
		return errorResult(err.Error()), characterDetailOutput{}, nil
	}

	out := characterDetailOutput{
		Character: s.summary(*ch),
		Type:      ch.Type,
		Origin:    placeName(ch.Origin),
		Location:  placeName(ch.Location),
		Image:     ch.Image,
		Episodes:  make([]string, 0, len(ch.Episode)),
		Created:   ch.Created,
		Notes:     commentsToOutput(s.store.GetComments(id)),
	}
	for _, ep := range ch.Episode {
		out.Episodes = append(out.Episodes, fmt.Sprintf("%s %s", ep.Episode, ep.Name))
	}
	return nil, out, nil
}

func (s *Server) handleToggleFavorite(_ context.Context, _ *gomcp.CallToolRequest, input characterIDInput) (*gomcp.CallToolResult, toggleFavoriteOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), toggleFavoriteOutput{}, nil
	}
	s.store.ToggleFavorite(id)
	return nil, toggleFavoriteOutput{CharacterID: id, Starred: s.store.IsFavorite(id)}, nil
}

func (s *Server) handleAddComment(_ context.Context, _ *gomcp.CallToolRequest, input addCommentInput) (*gomcp.CallToolResult, commentOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), commentOutput{}, nil
	}
	c, ok := s.store.AddComment(id, input.Text)
	if !ok {
		return errorResult("comment text must not be empty"), commentOutput{}, nil
	}
	return nil, commentToOutput(c), nil
}

func (s *Server) handleListComments(_ context.Context, _ *gomcp.CallToolRequest, input characterIDInput) (*gomcp.CallToolResult, listCommentsOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), listCommentsOutput{}, nil
	}
	comments := commentsToOutput(s.store.GetComments(id))
	return nil, listCommentsOutput{CharacterID: id, Comments: comments, Count: len(comments)}, nil
}

func (s *Server) handleDeleteComment(_ context.Context, _ *gomcp.CallToolRequest, input deleteCommentInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.CharacterID == "" || input.CommentID == "" {
		return errorResult("character_id and comment_id are required"), messageOutput{}, nil
	}
	if !s.store.DeleteComment(input.CharacterID, input.CommentID) {
		return errorResult(fmt.Sprintf("comment %s not found on character %s", input.CommentID, input.CharacterID)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("comment %s deleted", input.CommentID)}, nil
}

func (s *Server) handleSoftDelete(_ context.Context, _ *gomcp.CallToolRequest, input characterIDInput) (*gomcp.CallToolResult, messageOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), messageOutput{}, nil
	}
	s.store.SoftDeleteCharacter(id)
	return nil, messageOutput{Message: fmt.Sprintf("character %s deleted", id)}, nil
}

func (s *Server) handleRestore(_ context.Context, _ *gomcp.CallToolRequest, input characterIDInput) (*gomcp.CallToolResult, messageOutput, error) {
	id := strings.TrimSpace(input.CharacterID)
	if id == "" {
		return errorResult("character_id is required"), messageOutput{}, nil
	}
	if !s.store.IsDeleted(id) {
		return nil, messageOutput{Message: fmt.Sprintf("character %s is not deleted", id)}, nil
	}
	s.store.RestoreCharacter(id)
	return nil, messageOutput{Message: fmt.Sprintf("character %s restored", id)}, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (observability may be disabled)"), metricsOutput{}, nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}
	sinceTime, err := ParseSince(sinceStr, time.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), metricsOutput{}, nil
	}

	m, err := s.metricsCalc.Calculate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), metricsOutput{}, nil
	}

	out := metricsOutput{
		FavoritesAdded:       m.FavoritesAdded,
		FavoritesRemoved:     m.FavoritesRemoved,
		CommentsAdded:        m.CommentsAdded,
		CommentsDeleted:      m.CommentsDeleted,
		CharactersDeleted:    m.CharactersDeleted,
		CharactersRestored:   m.CharactersRestored,
		PagesLoaded:          m.PagesLoaded,
		CharactersFetched:    m.CharactersFetched,
		InitialFetchFailures: m.InitialFetchFailures,
		LoadMoreFailures:     m.LoadMoreFailures,
		PersistFailures:      m.PersistFailures,
		AvgFetchMillis:       m.AvgFetchMillis,
		EventCount:           m.EventCount,
	}
	if m.OldestEvent != nil {
		out.OldestEvent = m.OldestEvent.Format(time.RFC3339)
	}
	if m.NewestEvent != nil {
		out.NewestEvent = m.NewestEvent.Format(time.RFC3339)
	}
	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, input getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	if s.alertEngine == nil {
		return errorResult("alert engine not available (observability may be disabled)"), getAlertsOutput{}, nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "24h"
	}
	sinceTime, err := ParseSince(sinceStr, time.Now())
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), getAlertsOutput{}, nil
	}

	alerts, err := s.alertEngine.Evaluate(sinceTime)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), getAlertsOutput{}, nil
	}

	out := getAlertsOutput{
		Alerts: make([]alertOutput, len(alerts)),
		Count:  len(alerts),
	}
	for i, a := range alerts {
		out.Alerts[i] = alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		}
	}
	return nil, out, nil
}

// --- Helpers ---

func filtersFromInput(in listCharactersInput) (models.FilterState, error) {
	f := models.DefaultFilters()
	f.Search = in.Search

	if in.Species != "" {
		if !models.ValidSpeciesFilter(in.Species) {
			return f, fmt.Errorf("invalid species %q: must be all, Human or Alien", in.Species)
		}
		f.SpeciesFilter = models.SpeciesFilter(in.Species)
	}
	if in.Status != "" {
		if !models.ValidStatusFilter(in.Status) {
			return f, fmt.Errorf("invalid status %q: must be all, Alive, Dead or unknown", in.Status)
		}
		f.StatusFilter = models.StatusFilter(in.Status)
	}
	if in.Gender != "" {
		if !models.ValidGenderFilter(in.Gender) {
			return f, fmt.Errorf("invalid gender %q: must be all, Female, Male, Genderless or unknown", in.Gender)
		}
		f.GenderFilter = models.GenderFilter(in.Gender)
	}
	if in.CharacterFilter != "" {
		if !models.ValidCharacterFilter(in.CharacterFilter) {
			return f, fmt.Errorf("invalid character_filter %q: must be all, starred or others", in.CharacterFilter)
		}
		f.CharacterFilter = models.CharacterFilter(in.CharacterFilter)
	}
	if in.Sort != "" {
		if !models.ValidSortOrder(in.Sort) {
			return f, fmt.Errorf("invalid sort %q: must be asc or desc", in.Sort)
		}
		f.SortOrder = models.SortOrder(in.Sort)
	}
	return f, nil
}

func (s *Server) summary(ch models.Character) characterSummary {
	return characterSummary{
		ID:       ch.ID,
		Name:     ch.Name,
		Status:   string(ch.Status),
		Species:  ch.Species,
		Gender:   string(ch.Gender),
		Starred:  s.store.IsFavorite(ch.ID),
		Deleted:  s.store.IsDeleted(ch.ID),
		Comments: len(s.store.GetComments(ch.ID)),
	}
}

func (s *Server) summaries(chars []models.Character) []characterSummary {
	out := make([]characterSummary, len(chars))
	for i, ch := range chars {
		out[i] = s.summary(ch)
	}
	return out
}

func placeName(l models.Location) string {
	if l.Name == "" {
		return "unknown"
	}
	if l.Dimension != "" {
		return fmt.Sprintf("%s (%s)", l.Name, l.Dimension)
	}
	return l.Name
}

func commentToOutput(c models.Comment) commentOutput {
	return commentOutput{ID: c.ID, Text: c.Text, CreatedAt: c.CreatedAt}
}

func commentsToOutput(comments []models.Comment) []commentOutput {
	out := make([]commentOutput, len(comments))
	for i, c := range comments {
		out[i] = commentToOutput(c)
	}
	return out
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// ParseSince parses a human-friendly duration string like "7d", "30d", or
// "24h" into the corresponding time before now.
func ParseSince(s string, now time.Time) (time.Time, error) {
	now = now.UTC()
	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	var num int
	if _, err := fmt.Sscanf(s[:len(s)-1], "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if num < 0 {
		return time.Time{}, fmt.Errorf("invalid duration %q: must not be negative", s)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	case 'm':
		return now.Add(-time.Duration(num) * time.Minute), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d, h or m)", string(suffix))
	}
}
