package commands

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewDocumentsCmd constructs the `docqa documents` command group for listing
// and removing ingested documents.
func NewDocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "documents",
		Short: "List and manage ingested documents",
	}

	cmd.AddCommand(newDocumentsListCmd(), newDocumentsRemoveCmd())
	return cmd
}

// newDocumentsListCmd lists all non-removed documents, newest first.
func newDocumentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			defer svc.close()

			docs, err := svc.store.List(ctx)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tFILENAME\tSTATUS\tWORDS\tCHUNKS\tCREATED")
			for _, d := range docs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
					d.ID, d.Filename, d.Status, d.WordCount, d.ChunkCount,
					d.CreatedAt.Format("2006-01-02 15:04"),
				)
			}
			return w.Flush()
		},
	}
}

// newDocumentsRemoveCmd removes a document's vectors and marks it removed.
func newDocumentsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove an ingested document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("documents: %w", err)
			}
			defer svc.close()

			if err := svc.pipeline.Remove(ctx, args[0]); err != nil {
				return fmt.Errorf("documents: remove %s: %w", args[0], err)
			}
			fmt.Printf("removed %s\n", args[0])
			return nil
		},
	}
}
