package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment",
	Short: "Manage notes attached to characters",
}

var commentAddCmd = &cobra.Command{
	Use:   "add <character-id> <text...>",
	Short: "Attach a note to a character",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		c, ok := Store.AddComment(id, strings.Join(args[1:], " "))
		if !ok {
			return fmt.Errorf("comment text must not be empty")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %s added to character %s\n", c.ID, id)
		return persistResult()
	},
}

var commentListCmd = &cobra.Command{
	Use:   "list <character-id>",
	Short: "List a character's notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		comments := Store.GetComments(id)
		out := cmd.OutOrStdout()
		if len(comments) == 0 {
			fmt.Fprintf(out, "No comments for character %s\n", id)
			return nil
		}
		fmt.Fprintf(out, "Comments (%d)\n", len(comments))
		for _, c := range comments {
			fmt.Fprintf(out, "  %s  %s\n    %s\n", c.ID, c.CreatedAt, c.Text)
		}
		return nil
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <character-id> <comment-id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := requireBrowser(cmd); err != nil {
			return err
		}
		id, err := characterID(args[0])
		if err != nil {
			return err
		}
		if !Store.DeleteComment(id, args[1]) {
			return fmt.Errorf("comment %s not found on character %s", args[1], id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Comment %s deleted\n", args[1])
		return persistResult()
	},
	ValidArgsFunction: func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if Store == nil || len(args) != 1 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var ids []string
		for _, c := range Store.GetComments(args[0]) {
			ids = append(ids, c.ID+"\t"+c.Text)
		}
		return ids, cobra.ShellCompDirectiveNoFileComp
	},
}

func init() {
	commentCmd.AddCommand(commentAddCmd, commentListCmd, commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}
