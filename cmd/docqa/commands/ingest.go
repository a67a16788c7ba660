package commands

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewIngestCmd constructs the `docqa ingest` command, which uploads and
// indexes local files so they can be queried.
func NewIngestCmd() *cobra.Command {
	var summarize bool

	cmd := &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Ingest documents into the index",
		Long: `Read one or more local text files, store them, and index their content
for retrieval. Each file is chunked into line-addressable passages, embedded,
and upserted into the vector index.

Vectors go to Qdrant when QDRANT_HOST is set, otherwise to an in-memory
index that only lives for the duration of the command — for persistent
local usage run Qdrant or use 'docqa serve' and the HTTP API.

Examples:
  docqa ingest notes.txt
  docqa ingest --summarize contract.txt appendix.txt`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer svc.close()

			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("ingest: read %s: %w", path, err)
				}

				doc, err := svc.pipeline.Add(ctx, filepath.Base(path), string(content))
				if err != nil {
					return fmt.Errorf("ingest: add %s: %w", path, err)
				}

				if err := svc.pipeline.Index(ctx, doc.ID); err != nil {
					return fmt.Errorf("ingest: index %s: %w", path, err)
				}

				indexed, err := svc.store.Get(ctx, doc.ID)
				if err != nil {
					return fmt.Errorf("ingest: %w", err)
				}
				log.Info("document indexed",
					slog.String("id", doc.ID),
					slog.String("filename", doc.Filename),
					slog.Int("chunks", indexed.ChunkCount),
				)
				fmt.Printf("%s  %s  (%d chunks)\n", doc.ID, doc.Filename, indexed.ChunkCount)

				if summarize {
					summary, err := svc.summarizer.Summarize(ctx, doc.ID)
					if err != nil {
						log.Warn("summarization failed", slog.String("id", doc.ID), slog.Any("error", err))
						continue
					}
					fmt.Printf("  summary: %s\n", summary)
				}
			}

			return nil
		},
	}

	cmd.Flags().BoolVarP(&summarize, "summarize", "s", false, "Generate a summary for each ingested document")

	return cmd
}
