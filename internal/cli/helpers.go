package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/rmb/internal/core"
	"github.com/valter-silva-au/rmb/pkg/models"
)

var errNotInitialized = errors.New("browser not initialized")

// requireBrowser returns the wired browser or an error, and prints any
// non-fatal initialization warning to stderr.
func requireBrowser(cmd *cobra.Command) (*core.Browser, error) {
	if Browser == nil || Store == nil {
		return nil, errNotInitialized
	}
	if InitErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", InitErr)
	}
	return Browser, nil
}

// characterID validates a character id argument.
func characterID(arg string) (string, error) {
	id := strings.TrimSpace(arg)
	if id == "" {
		return "", errors.New("character id must not be empty")
	}
	return id, nil
}

// marker renders the favorite and deleted flags of a list row.
func marker(starred, deleted bool) string {
	switch {
	case starred && deleted:
		return "★ ✗"
	case starred:
		return "★  "
	case deleted:
		return "  ✗"
	default:
		return "   "
	}
}

func writeRows(w io.Writer, chars []models.Character, ann core.AnnotationReader) {
	for _, ch := range chars {
		fmt.Fprintf(w, "  %s %-5s %-32s %-8s %s\n",
			marker(ann.IsFavorite(ch.ID), ann.IsDeleted(ch.ID)), ch.ID, ch.Name, ch.Status, ch.Species)
	}
}

func placeLabel(l models.Location) string {
	if l.Name == "" {
		return "unknown"
	}
	if l.Dimension != "" && l.Dimension != "unknown" {
		return fmt.Sprintf("%s (%s)", l.Name, l.Dimension)
	}
	return l.Name
}
