package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jcdickinson/insertdocs/internal/cas"
	"github.com/jcdickinson/insertdocs/internal/logging"
)

func newClearCacheCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove cached rustdoc json",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.clearCache(cas.Default())
		},
	}
}

func (a *app) clearCache(store *cas.Store) error {
	n, err := store.Clear()
	if err != nil {
		a.logger.Error("failed to clear cache", logging.FieldPath, store.Dir(), logging.FieldError, err)
		return errReported
	}
	fmt.Fprintf(a.stdout, "removed %d cached rustdoc build(s) from %s\n", n, store.Dir())
	return nil
}
