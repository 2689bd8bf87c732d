package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/pkg/models"
)

type stubFetcher struct {
	mu      sync.Mutex
	pages   map[int]*models.CharactersPage
	chars   map[string]*models.Character
	failAt  map[int]bool
	queries []core.CharacterQuery
}

func (f *stubFetcher) FetchCharacters(_ context.Context, q core.CharacterQuery) (*models.CharactersPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.failAt[q.Page] {
		return nil, errors.New("connection refused")
	}
	if p, ok := f.pages[q.Page]; ok {
		return p, nil
	}
	return &models.CharactersPage{}, nil
}

func (f *stubFetcher) FetchCharacter(_ context.Context, id string) (*models.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chars[id], nil
}

func (f *stubFetcher) lastQuery() core.CharacterQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queries) == 0 {
		return core.CharacterQuery{}
	}
	return f.queries[len(f.queries)-1]
}

func (f *stubFetcher) setFail(page int, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAt == nil {
		f.failAt = map[int]bool{}
	}
	f.failAt[page] = fail
}

func testCharacter(id, name, species string) models.Character {
	return models.Character{ID: id, Name: name, Status: models.CharacterAlive, Species: species, Gender: models.GenderMale}
}

// newStubFetcher serves Rick and Morty on page 1 and Birdperson on page 2.
func newStubFetcher() *stubFetcher {
	rick := testCharacter("1", "Rick Sanchez", "Human")
	morty := testCharacter("2", "Morty Smith", "Human")
	bird := testCharacter("47", "Birdperson", "Alien")
	bird.Status = models.CharacterDead

	detail := rick
	detail.Origin = models.Location{Name: "Earth", Dimension: "Dimension C-137"}
	detail.Location = models.Location{Name: "Citadel of Ricks"}
	detail.Episode = []models.Episode{{ID: "1", Name: "Pilot", Episode: "S01E01"}}

	return &stubFetcher{
		pages: map[int]*models.CharactersPage{
			1: {Info: models.PageInfo{Count: 3, Pages: 2, Next: 2}, Results: []models.Character{rick, morty}},
			2: {Info: models.PageInfo{Count: 3, Pages: 2, Prev: 1}, Results: []models.Character{bird}},
		},
		chars: map[string]*models.Character{"1": &detail, "2": &morty, "47": &bird},
	}
}

func newTestBrowser(f core.CharacterFetcher) *core.Browser {
	store := core.NewAnnotationStore(core.AnnotationStoreOpts{})
	return core.NewBrowser(store, f, core.BrowserOpts{SearchDebounce: -1})
}

// useBrowser installs b as the package browser for the duration of the test.
func useBrowser(t *testing.T, b *core.Browser) {
	t.Helper()
	origBrowser, origStore, origInitErr := Browser, Store, InitErr
	t.Cleanup(func() {
		Browser, Store, InitErr = origBrowser, origStore, origInitErr
		b.Close()
	})
	Browser, Store, InitErr = b, b.Store(), nil
}

// runCommand executes cmd's RunE with captured output.
func runCommand(t *testing.T, cmd *cobra.Command, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetContext(context.Background())
	t.Cleanup(func() {
		cmd.SetOut(nil)
		cmd.SetErr(nil)
	})
	err := cmd.RunE(cmd, args)
	return stdout.String(), stderr.String(), err
}
