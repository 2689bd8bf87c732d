package cli

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/internal/observability"
)

func resetListFlags(t *testing.T) {
	t.Helper()
	reset := func() {
		listSearch, listSpecies, listStatus, listGender, listScope, listSort = "", "", "", "", "", ""
		listPages, listJSON, showJSON = 1, false, false
	}
	reset()
	t.Cleanup(reset)
}

func TestCommands_Registration(t *testing.T) {
	want := map[string]bool{
		"list": false, "show": false, "favorite": false, "favorites": false,
		"delete": false, "restore": false, "comment": false, "stats": false,
		"browse": false, "mcp": false, "completion": false, "version": false,
	}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestCommands_NotInitialized(t *testing.T) {
	origBrowser, origStore := Browser, Store
	defer func() { Browser, Store = origBrowser, origStore }()
	Browser, Store = nil, nil

	_, _, err := runCommand(t, favoriteCmd, "1")
	if !errors.Is(err, errNotInitialized) {
		t.Errorf("err = %v, want errNotInitialized", err)
	}
}

func TestCommands_InitErrIsWarning(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))
	InitErr = errors.New("annotations unreadable")

	_, stderr, err := runCommand(t, favoriteCmd, "1")
	if err != nil {
		t.Fatalf("favorite: %v", err)
	}
	if !strings.Contains(stderr, "warning: annotations unreadable") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestListCommand_Default(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))

	out, stderr, err := runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Characters (2)") || !strings.Contains(out, "Morty Smith") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "Filters") {
		t.Errorf("default list reported active filters: %q", out)
	}
	if !strings.Contains(out, "2 of 3 loaded") {
		t.Errorf("output missing load more hint: %q", out)
	}
	if stderr != "" {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestListCommand_StarredSectionAndFilter(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))
	Store.ToggleFavorite("1")

	out, _, err := runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Starred Characters (1)") || !strings.Contains(out, "Characters (1)") {
		t.Errorf("output = %q", out)
	}

	listScope = "starred"
	out, _, err = runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list --filter starred: %v", err)
	}
	if !strings.Contains(out, "1 Filters") || !strings.Contains(out, "1 Results") || strings.Contains(out, "Morty") {
		t.Errorf("output = %q", out)
	}
}

func TestListCommand_RemoteFlags(t *testing.T) {
	resetListFlags(t)
	f := newStubFetcher()
	useBrowser(t, newTestBrowser(f))

	listSearch, listSpecies = "rick", "Human"
	if _, _, err := runCommand(t, listCmd); err != nil {
		t.Fatalf("list: %v", err)
	}
	if q := f.lastQuery(); q.Name != "rick" || q.Species != "Human" || q.Page != 1 {
		t.Errorf("query = %+v", q)
	}
}

func TestListCommand_InvalidFlags(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))

	tests := []struct {
		name string
		set  func()
		want string
	}{
		{"status", func() { listStatus = "zombie" }, "--status"},
		{"species", func() { listSpecies = "Robot" }, "--species"},
		{"sort", func() { listSort = "random" }, "--sort"},
		{"pages", func() { listPages = 0 }, "--pages"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetListFlags(t)
			tt.set()
			_, _, err := runCommand(t, listCmd)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestListCommand_MultiplePages(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))

	listPages = 5
	out, _, err := runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Characters (3)") || !strings.Contains(out, "Birdperson") {
		t.Errorf("output = %q", out)
	}
	if strings.Contains(out, "loaded; use --pages") {
		t.Errorf("exhausted list still offers more: %q", out)
	}
}

func TestListCommand_InitialFailure(t *testing.T) {
	resetListFlags(t)
	f := newStubFetcher()
	f.setFail(1, true)
	useBrowser(t, newTestBrowser(f))

	out, stderr, err := runCommand(t, listCmd)
	var fe *core.FetchError
	if !errors.As(err, &fe) || fe.Phase != core.PhaseInitial {
		t.Fatalf("err = %v, want initial FetchError", err)
	}
	if !strings.Contains(stderr, "Error loading characters. Please try again.") {
		t.Errorf("stderr = %q", stderr)
	}
	if out != "" {
		t.Errorf("stdout = %q, want nothing", out)
	}
}

func TestListCommand_LoadMoreFailureKeepsRows(t *testing.T) {
	resetListFlags(t)
	f := newStubFetcher()
	f.setFail(2, true)
	useBrowser(t, newTestBrowser(f))

	listPages = 2
	out, stderr, err := runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Characters (2)") {
		t.Errorf("output = %q", out)
	}
	if !strings.Contains(stderr, "Error loading more characters") {
		t.Errorf("stderr = %q", stderr)
	}
}

func TestListCommand_JSON(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))

	listJSON = true
	out, _, err := runCommand(t, listCmd)
	if err != nil {
		t.Fatalf("list --json: %v", err)
	}
	var got struct {
		Others []struct {
			ID string `json:"id"`
		} `json:"others"`
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if got.Total != 2 || !got.HasMore || len(got.Others) != 2 || got.Others[0].ID != "2" {
		t.Errorf("json = %+v", got)
	}
}

func TestShowCommand(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))
	Store.AddComment("1", "wubba lubba dub dub")

	out, _, err := runCommand(t, showCmd, "1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"Rick Sanchez", "Earth (Dimension C-137)", "S01E01 Pilot", "Comments (1)", "wubba lubba"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowCommand_DeletedAndUnknown(t *testing.T) {
	resetListFlags(t)
	useBrowser(t, newTestBrowser(newStubFetcher()))

	Store.SoftDeleteCharacter("1")
	_, _, err := runCommand(t, showCmd, "1")
	if err == nil || !strings.Contains(err.Error(), "was deleted") {
		t.Errorf("deleted err = %v", err)
	}

	_, _, err = runCommand(t, showCmd, "999")
	if !errors.Is(err, core.ErrCharacterNotFound) {
		t.Errorf("unknown err = %v, want ErrCharacterNotFound", err)
	}
}

func TestFavoriteCommand_Toggles(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))

	out, _, err := runCommand(t, favoriteCmd, "1")
	if err != nil || !strings.Contains(out, "Character 1 starred") {
		t.Fatalf("first toggle: out = %q, err = %v", out, err)
	}
	out, _, err = runCommand(t, favoriteCmd, "1")
	if err != nil || !strings.Contains(out, "Character 1 unstarred") {
		t.Errorf("second toggle: out = %q, err = %v", out, err)
	}
	if Store.IsFavorite("1") {
		t.Error("still starred after two toggles")
	}

	if _, _, err := runCommand(t, favoriteCmd, "  "); err == nil {
		t.Error("blank id accepted")
	}
}

func TestFavoritesCommand(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))
	Store.ToggleFavorite("1")
	Store.ToggleFavorite("47")
	Store.SoftDeleteCharacter("47")

	out, _, err := runCommand(t, favoritesCmd)
	if err != nil {
		t.Fatalf("favorites: %v", err)
	}
	if !strings.Contains(out, "Starred Characters (2)") || !strings.Contains(out, "Rick Sanchez") || !strings.Contains(out, "(deleted)") {
		t.Errorf("output = %q", out)
	}
}

func TestCommentCommands(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))

	out, _, err := runCommand(t, commentAddCmd, "2", "aw", "geez")
	if err != nil {
		t.Fatalf("comment add: %v", err)
	}
	comments := Store.GetComments("2")
	if len(comments) != 1 || comments[0].Text != "aw geez" {
		t.Fatalf("comments = %+v", comments)
	}
	if !strings.Contains(out, comments[0].ID) {
		t.Errorf("add output = %q", out)
	}

	out, _, err = runCommand(t, commentListCmd, "2")
	if err != nil || !strings.Contains(out, "Comments (1)") || !strings.Contains(out, "aw geez") {
		t.Errorf("list: out = %q, err = %v", out, err)
	}

	if _, _, err := runCommand(t, commentDeleteCmd, "2", "nope"); err == nil {
		t.Error("deleting unknown comment succeeded")
	}
	if _, _, err := runCommand(t, commentDeleteCmd, "2", comments[0].ID); err != nil {
		t.Fatalf("comment delete: %v", err)
	}

	out, _, _ = runCommand(t, commentListCmd, "2")
	if !strings.Contains(out, "No comments for character 2") {
		t.Errorf("list after delete = %q", out)
	}
}

func TestCommentAdd_RejectsBlank(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))

	_, _, err := runCommand(t, commentAddCmd, "2", "   ", "")
	if err == nil || !strings.Contains(err.Error(), "must not be empty") {
		t.Errorf("err = %v", err)
	}
	if len(Store.GetComments("2")) != 0 {
		t.Error("blank comment stored")
	}
}

func TestDeleteRestoreCommands(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))

	out, _, err := runCommand(t, restoreCmd, "1")
	if err != nil || !strings.Contains(out, "is not deleted") {
		t.Errorf("restore before delete: out = %q, err = %v", out, err)
	}

	if _, _, err := runCommand(t, deleteCmd, "1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !Store.IsDeleted("1") {
		t.Fatal("character not deleted")
	}

	out, _, err = runCommand(t, restoreCmd, "1")
	if err != nil || !strings.Contains(out, "Character 1 restored") {
		t.Errorf("restore: out = %q, err = %v", out, err)
	}
	if Store.IsDeleted("1") {
		t.Error("character still deleted")
	}
}

func TestCompleteAnnotated(t *testing.T) {
	useBrowser(t, newTestBrowser(newStubFetcher()))
	Store.ToggleFavorite("12")
	Store.ToggleFavorite("47")
	Store.SoftDeleteCharacter("12")

	got, _ := completeAnnotated(showCmd, nil, "1")
	if len(got) != 1 || got[0] != "12" {
		t.Errorf("completions = %v, want [12]", got)
	}
}

func TestStatsCommand(t *testing.T) {
	origCalc, origEngine := MetricsCalc, AlertEngine
	defer func() { MetricsCalc, AlertEngine = origCalc, origEngine }()
	defer func() { statsJSON, statsSince = false, "7d" }()

	log := observability.NewMemoryEventLog()
	now := time.Now()
	for _, e := range []observability.Event{
		observability.NewEvent(now, core.EventFavoriteToggled, map[string]any{"character_id": "1", "starred": true}),
		observability.NewEvent(now, core.EventPageLoaded, map[string]any{"page": 1, "elapsed_ms": int64(120), "results": 20}),
		observability.NewEvent(now, core.EventPersistFailed, map[string]any{"error": "disk full"}),
	} {
		if err := log.Write(e); err != nil {
			t.Fatal(err)
		}
	}
	MetricsCalc = observability.NewMetricsCalculator(log)
	AlertEngine = observability.NewAlertEngine(log, observability.DefaultAlertThresholds())

	out, _, err := runCommand(t, statsCmd)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	for _, want := range []string{"Favorites added:", "Pages loaded:", "120ms", "active alert", "[HIGH]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	statsSince = "-1d"
	if _, _, err := runCommand(t, statsCmd); err == nil {
		t.Error("negative --since accepted")
	}
}

func TestStatsCommand_NotInitialized(t *testing.T) {
	origCalc := MetricsCalc
	defer func() { MetricsCalc = origCalc }()
	MetricsCalc = nil

	if _, _, err := runCommand(t, statsCmd); err == nil {
		t.Error("expected error without metrics calculator")
	}
}
