package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/mnemod/internal/deletion"
	"github.com/fyrsmithlabs/mnemod/internal/permissions"
	"github.com/fyrsmithlabs/mnemod/internal/relational"
)

var (
	deleteDatasetID   string
	deleteDatasetName string
	deleteDataID      string
	deleteAll         bool
	deleteForce       bool
	deleteHard        bool
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete data items, datasets, or everything you own",
	Long: `Delete a single data item, a whole dataset, or every dataset the acting
user holds delete permission on.

Graph structure still referenced by surviving data items is preserved, and
the vector collections are kept consistent with the graph. Hard mode
additionally prunes entity and type nodes left with a single connection.

Examples:
  # Delete one data item
  mnemod delete --dataset-name docs --data-id 6f1c0358-7677-5d07-b163-284fb5af9d6f

  # Delete a dataset, its items, and its raw files
  mnemod delete --dataset-name docs

  # Delete everything the default user can delete, without prompting
  mnemod delete --all --force`,
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().StringVar(&deleteDatasetID, "dataset-id", "", "dataset id to delete from")
	deleteCmd.Flags().StringVar(&deleteDatasetName, "dataset-name", "", "dataset name, resolved against the acting user")
	deleteCmd.Flags().StringVar(&deleteDataID, "data-id", "", "data item id; omit to delete the whole dataset")
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "delete every dataset the acting user may delete")
	deleteCmd.Flags().BoolVar(&deleteForce, "force", false, "skip the confirmation prompt")
	deleteCmd.Flags().BoolVar(&deleteHard, "hard", false, "also prune degree-one entity and type nodes")
}

func runDelete(cmd *cobra.Command, args []string) error {
	if err := validateDeleteTarget(deleteAll, deleteDatasetID, deleteDatasetName, deleteDataID, deleteHard); err != nil {
		return err
	}

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

	if deleteAll {
		return runDeleteAll(ctx, cmd, app, user)
	}

	dataset, err := resolveDataset(ctx, app, user)
	if err != nil {
		return err
	}

	if deleteDataID != "" {
		return runDeleteData(ctx, cmd, app, user, dataset)
	}
	return runDeleteDataset(ctx, cmd, app, user, dataset)
}

// validateDeleteTarget checks the flag combination before any backend
// loads.
func validateDeleteTarget(all bool, datasetID, datasetName, dataID string, hard bool) error {
	if all && (datasetID != "" || datasetName != "" || dataID != "") {
		return fmt.Errorf("--all cannot be combined with --dataset-id, --dataset-name, or --data-id")
	}
	if !all && datasetID == "" && datasetName == "" {
		return fmt.Errorf("a target is required: --dataset-id, --dataset-name, or --all")
	}
	if datasetID != "" && datasetName != "" {
		return fmt.Errorf("--dataset-id and --dataset-name are mutually exclusive")
	}
	if hard && dataID == "" {
		return fmt.Errorf("--hard applies to a single data item; use it with --data-id")
	}
	return nil
}

// resolveDataset authorizes the target dataset for delete up front, so the
// confirmation prompt never describes content the user cannot remove.
func resolveDataset(ctx context.Context, app *app, user permissions.User) (*relational.Dataset, error) {
	if deleteDatasetID != "" {
		id, err := uuid.Parse(deleteDatasetID)
		if err != nil {
			return nil, fmt.Errorf("invalid --dataset-id: %w", err)
		}
		return app.perms.Authorize(ctx, user, id, relational.PermissionDelete)
	}
	return app.perms.AuthorizeByName(ctx, user, deleteDatasetName, relational.PermissionDelete)
}

func runDeleteData(ctx context.Context, cmd *cobra.Command, app *app, user permissions.User, dataset *relational.Dataset) error {
	dataID, err := uuid.Parse(deleteDataID)
	if err != nil {
		return fmt.Errorf("invalid --data-id: %w", err)
	}

	out := cmd.OutOrStdout()
	if deleteHard {
		fmt.Fprintln(out, "Hard mode: entity and type nodes left with a single connection will be removed too.")
	}
	if !deleteForce {
		prompt := fmt.Sprintf("Delete data %s from dataset %q?", dataID, dataset.Name)
		if !confirm(cmd.InOrStdin(), out, prompt) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	mode := deletion.ModeSoft
	if deleteHard {
		mode = deletion.ModeHard
	}
	result, err := app.deleter.DeleteData(ctx, dataset.ID, dataID, user, mode)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Deleted data %s from dataset %q.\n", dataID, dataset.Name)
	printGraphDeletions(out, result.GraphDeletions)
	return nil
}

func runDeleteDataset(ctx context.Context, cmd *cobra.Command, app *app, user permissions.User, dataset *relational.Dataset) error {
	out := cmd.OutOrStdout()
	if !deleteForce {
		items, err := app.rel.GetDatasetData(ctx, dataset.ID)
		if err != nil {
			return err
		}
		prompt := fmt.Sprintf("Delete dataset %q and its %d data item(s)?", dataset.Name, len(items))
		if !confirm(cmd.InOrStdin(), out, prompt) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	result, err := app.deleter.DeleteDataset(ctx, dataset, user)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Deleted dataset %q: %d item(s) removed", dataset.Name, result.Deleted)
	if result.Failed > 0 {
		fmt.Fprintf(out, ", %d failed", result.Failed)
	}
	fmt.Fprintln(out, ".")
	for _, msg := range result.Errors {
		fmt.Fprintf(out, "  %s\n", msg)
	}
	return nil
}

func runDeleteAll(ctx context.Context, cmd *cobra.Command, app *app, user permissions.User) error {
	out := cmd.OutOrStdout()
	if !deleteForce {
		preview, err := app.rel.DeletionCounts(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Store holds %d dataset(s), %d data entries, %d user(s).\n",
			preview.Datasets, preview.DataEntries, preview.Users)
		if !confirm(cmd.InOrStdin(), out, "Delete every dataset the acting user may delete?") {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	if err := app.deleter.DeleteAll(ctx, user); err != nil {
		return err
	}
	fmt.Fprintln(out, "All datasets deleted.")
	return nil
}

// confirm prints the prompt and reads a y/N answer.
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// printGraphDeletions lists per-category node counts in stable order.
func printGraphDeletions(out io.Writer, counts map[string]int) {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(out, "  %s: %d\n", label, counts[label])
	}
}
