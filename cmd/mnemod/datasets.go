package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/mnemod/internal/relational"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List datasets the acting user can read",
	Long: `List every dataset the acting user holds read permission on, with its id
and data item count.

Examples:
  mnemod datasets
  mnemod datasets --user-id 0e8f3c1a-...`,
	RunE: runDatasets,
}

func runDatasets(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	user, err := app.resolveUser(ctx)
	if err != nil {
		return err
	}

	datasets, err := app.perms.AuthorizedDatasets(ctx, user, relational.PermissionRead)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(datasets) == 0 {
		fmt.Fprintln(out, "No datasets.")
		return nil
	}

	for _, dataset := range datasets {
		items, err := app.rel.GetDatasetData(ctx, dataset.ID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s  %-24s %d item(s)\n", dataset.ID, dataset.Name, len(items))
	}
	return nil
}
