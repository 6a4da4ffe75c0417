package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"mediahub/internal/ipc"
)

func newCatalogCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newCatalogCommand(ctx, "movies", "List the movie catalog", "No movies in the catalog", (*ipc.Client).Movies),
		newCatalogCommand(ctx, "tv", "List the television catalog", "No shows in the catalog", (*ipc.Client).TV),
	}
}

func newCatalogCommand(
	ctx *commandContext,
	use, short, empty string,
	fetch func(*ipc.Client, context.Context) ([]json.RawMessage, error),
) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				items, err := fetch(client, cmd.Context())
				if err != nil {
					return err
				}
				entries := catalogEntries(items)
				if asJSON {
					raw := make([]json.RawMessage, 0, len(entries))
					for _, e := range entries {
						raw = append(raw, e.Raw)
					}
					return writeJSON(cmd, raw)
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintln(out, empty)
					return nil
				}
				rows := make([][]string, 0, len(entries))
				for _, e := range entries {
					rows = append(rows, []string{e.Title, e.Path})
				}
				fmt.Fprint(out, renderTable([]string{"Title", "Path"}, rows, nil))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the raw descriptors as JSON")
	return cmd
}
