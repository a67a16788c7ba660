package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/54b3r/docqa-go/internal/logging"
)

// NewAskCmd constructs the `docqa ask` command, which answers a single
// question against a document and prints the answer with its citations.
func NewAskCmd() *cobra.Command {
	var docID string
	var topK int
	var saveChat bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about an ingested document",
		Long: `Ask a natural language question about a previously ingested document.

The question is expanded into retrieval variants, matched against the
document's indexed passages, and answered by the LLM using only the
retrieved context. Citations point back to exact line ranges in the source.

Examples:
  docqa ask --doc 7f3a21c0 "what is the refund window?"
  docqa ask --doc 7f3a21c0 --save-chat "and how do I request one?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if docID == "" {
				return fmt.Errorf("ask: --doc is required")
			}

			log := logging.New()
			ctx := logging.WithLogger(cmd.Context(), log)

			svc, err := buildServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer svc.close()

			result, err := svc.answerer.Answer(ctx, docID, args[0], topK, saveChat)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			fmt.Println(result.Answer)
			if len(result.Citations) > 0 {
				fmt.Println("\nSources:")
				for _, c := range result.Citations {
					fmt.Printf("  %s (score %.2f)\n", c.Reference, c.RelevanceScore)
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&docID, "doc", "d", "", "ID of the document to query (required)")
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "Number of passages to retrieve (0 uses the configured default)")
	cmd.Flags().BoolVar(&saveChat, "save-chat", false, "Persist this exchange to the document's chat history")

	return cmd
}
