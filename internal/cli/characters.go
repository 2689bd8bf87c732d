package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/pkg/models"
)

var (
	listSearch  string
	listSpecies string
	listStatus  string
	listGender  string
	listScope   string
	listSort    string
	listPages   int
	listJSON    bool
	showJSON    bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List characters",
	Long: `Fetch characters and print them grouped as starred and others.

--search and --species are sent to the API. --status, --gender and --filter
(all, starred, others) are applied locally to the fetched pages.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := requireBrowser(cmd)
		if err != nil {
			return err
		}
		if err := applyListFlags(b); err != nil {
			return err
		}

		loadErr := b.LoadPages(cmd.Context(), listPages)
		var fe *core.FetchError
		if loadErr != nil && (!errors.As(loadErr, &fe) || fe.Phase != core.PhaseLoadMore) {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error loading characters. Please try again.")
			return loadErr
		}

		view := b.View()
		if listJSON {
			return writeJSON(cmd, struct {
				Starred []models.Character `json:"starred"`
				Others  []models.Character `json:"others"`
				Total   int                `json:"total"`
				HasMore bool               `json:"has_more"`
			}{view.Starred, view.Others, view.Total, b.HasMore()})
		}

		out := cmd.OutOrStdout()
		filters := Store.Filters()
		if n := filters.ActiveCount(); n > 0 {
			fmt.Fprintf(out, "%d Filters\n", n)
		}
		if n := filters.ActiveCount(); n > 0 || filters.Search != "" {
			fmt.Fprintf(out, "%d Results\n", view.Total)
		}
		if view.Total == 0 {
			fmt.Fprintln(out, "No characters found")
		}
		if len(view.Starred) > 0 {
			fmt.Fprintf(out, "Starred Characters (%d)\n", len(view.Starred))
			writeRows(out, view.Starred, Store)
		}
		if len(view.Others) > 0 {
			fmt.Fprintf(out, "Characters (%d)\n", len(view.Others))
			writeRows(out, view.Others, Store)
		}
		if loadErr != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Error loading more characters")
		} else if b.HasMore() {
			fmt.Fprintf(out, "\n%d of %d loaded; use --pages to load more\n", view.Total, b.Info().Count)
		}
		return nil
	},
}

// applyListFlags moves the browser to the flagged query. Empty flags keep
// the session value, which starts from the configured defaults.
func applyListFlags(b *core.Browser) error {
	for _, c := range []struct {
		flag, value string
		valid       func(string) bool
	}{
		{"species", listSpecies, models.ValidSpeciesFilter},
		{"status", listStatus, models.ValidStatusFilter},
		{"gender", listGender, models.ValidGenderFilter},
		{"filter", listScope, models.ValidCharacterFilter},
		{"sort", listSort, models.ValidSortOrder},
	} {
		if c.value != "" && !c.valid(c.value) {
			return fmt.Errorf("invalid --%s %q", c.flag, c.value)
		}
	}
	if listPages < 1 {
		return fmt.Errorf("--pages must be at least 1")
	}

	b.SetSearch(listSearch)
	b.SettleSearch()
	if listSpecies != "" {
		b.SetSpeciesFilter(models.SpeciesFilter(listSpecies))
	}
	if listStatus != "" {
		Store.SetStatusFilter(models.StatusFilter(listStatus))
	}
	if listGender != "" {
		Store.SetGenderFilter(models.GenderFilter(listGender))
	}
	if listScope != "" {
		Store.SetCharacterFilter(models.CharacterFilter(listScope))
	}
	if listSort != "" {
		Store.SetSortOrder(models.SortOrder(listSort))
	}
	return nil
}

var showCmd = &cobra.Command{
	Use:   "show <character-id>",
	Short: "Show character details and notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := requireBrowser(cmd)
		if err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}

		ch, err := b.Detail(cmd.Context(), id)
		switch {
		case errors.Is(err, core.ErrCharacterDeleted):
			return fmt.Errorf("character %s was deleted (rmb restore %s brings it back)", id, id)
		case err != nil:
			return fmt.Errorf("showing character %s: %w", id, err)
		}

		comments := Store.GetComments(id)
		if showJSON {
			return writeJSON(cmd, struct {
				Character *models.Character `json:"character"`
				Starred   bool              `json:"starred"`
				Comments  []models.Comment  `json:"comments"`
			}{ch, Store.IsFavorite(id), comments})
		}

		out := cmd.OutOrStdout()
		star := ""
		if Store.IsFavorite(id) {
			star = " ★"
		}
		fmt.Fprintf(out, "%s%s\n", ch.Name, star)
		fmt.Fprintf(out, "  %-10s %s\n", "Status:", ch.Status)
		fmt.Fprintf(out, "  %-10s %s\n", "Species:", ch.Species)
		if ch.Type != "" {
			fmt.Fprintf(out, "  %-10s %s\n", "Type:", ch.Type)
		}
		fmt.Fprintf(out, "  %-10s %s\n", "Gender:", ch.Gender)
		fmt.Fprintf(out, "  %-10s %s\n", "Origin:", placeLabel(ch.Origin))
		fmt.Fprintf(out, "  %-10s %s\n", "Location:", placeLabel(ch.Location))
		fmt.Fprintf(out, "  %-10s %d\n", "Episodes:", len(ch.Episode))
		for _, ep := range ch.Episode {
			fmt.Fprintf(out, "    %s %s\n", ep.Episode, ep.Name)
		}
		fmt.Fprintf(out, "\nComments (%d)\n", len(comments))
		for _, c := range comments {
			fmt.Fprintf(out, "  [%s] %s  %s\n", c.ID, c.CreatedAt, c.Text)
		}
		return nil
	},
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <character-id>",
	Short: "Star or unstar a character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		Store.ToggleFavorite(id)
		if Store.IsFavorite(id) {
			fmt.Fprintf(cmd.OutOrStdout(), "Character %s starred\n", id)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Character %s unstarred\n", id)
		}
		return persistResult()
	},
}

var favoritesCmd = &cobra.Command{
	Use:   "favorites",
	Short: "List starred characters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := requireBrowser(cmd)
		if err != nil {
			return err
		}
		ids := Store.Favorites()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Starred Characters (%d)\n", len(ids))
		for _, id := range ids {
			name := "(unavailable)"
			if ch, err := b.Detail(cmd.Context(), id); err == nil {
				name = ch.Name
			} else if errors.Is(err, core.ErrCharacterDeleted) {
				name = "(deleted)"
			}
			fmt.Fprintf(out, "  %-5s %s\n", id, name)
		}
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <character-id>",
	Short: "Soft-delete a character",
	Long: `Soft-delete a character. Its details are hidden until it is restored;
favorites and comments are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		Store.SoftDeleteCharacter(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Character %s deleted\n", id)
		return persistResult()
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <character-id>",
	Short: "Restore a soft-deleted character",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		if !Store.IsDeleted(id) {
			fmt.Fprintf(cmd.OutOrStdout(), "Character %s is not deleted\n", id)
			return nil
		}
		Store.RestoreCharacter(id)
		fmt.Fprintf(cmd.OutOrStdout(), "Character %s restored\n", id)
		return persistResult()
	},
}

// persistResult turns a failed save of the last mutation into a command
// error so scripts notice lost writes.
func persistResult() error {
	if err := Store.LastPersistError(); err != nil {
		return fmt.Errorf("saving annotations: %w", err)
	}
	return nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("formatting JSON: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// completeAnnotated offers starred and deleted character ids.
func completeAnnotated(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if Store == nil || len(args) > 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var out []string
	seen := map[string]bool{}
	for _, id := range append(Store.Favorites(), Store.DeletedCharacters()...) {
		if !seen[id] && strings.HasPrefix(id, toComplete) {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out, cobra.ShellCompDirectiveNoFileComp
}

func init() {
	f := listCmd.Flags()
	f.StringVarP(&listSearch, "search", "s", "", "Name substring to search for")
	f.StringVar(&listSpecies, "species", "", "Species filter (all, Human, Alien)")
	f.StringVar(&listStatus, "status", "", "Status filter (all, Alive, Dead, unknown)")
	f.StringVar(&listGender, "gender", "", "Gender filter (all, Female, Male, Genderless, unknown)")
	f.StringVar(&listScope, "filter", "", "Character filter (all, starred, others)")
	f.StringVar(&listSort, "sort", "", "Name order (asc, desc; defaults to ui.default_sort)")
	f.IntVar(&listPages, "pages", 1, "Number of pages to load")
	f.BoolVar(&listJSON, "json", false, "Output as JSON")

	showCmd.Flags().BoolVar(&showJSON, "json", false, "Output as JSON")

	for _, c := range []*cobra.Command{showCmd, favoriteCmd, deleteCmd, restoreCmd} {
		c.ValidArgsFunction = completeAnnotated
	}

	rootCmd.AddCommand(listCmd, showCmd, favoriteCmd, favoritesCmd, deleteCmd, restoreCmd)
}
