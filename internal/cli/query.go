package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ragpipe/internal/domain"
	"ragpipe/internal/usecase"
)

var (
	queryText string
	queryTopK int
	queryJSON bool
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Search the vector index",
	Long: `Embed the query and return the most similar stored chunks, best first.

Examples:
  ragpipe query -q "how to do COPY"
  ragpipe query -q "connection pooling" -k 10 --json`,
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryText, "query", "q", "", "search query (required)")
	queryCmd.Flags().IntVarP(&queryTopK, "top-k", "k", 0, "number of results (default from config)")
	queryCmd.Flags().BoolVar(&queryJSON, "json", false, "output as JSON")
	_ = queryCmd.MarkFlagRequired("query")
}

func runQuery(cmd *cobra.Command, args []string) error {
	results, err := retrieve(cmd, queryText, topK(queryTopK, GetConfig()))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if queryJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No results found.")
		return nil
	}
	fmt.Fprintf(out, "Found %d results for: %s\n\n", len(results), queryText)
	for i, r := range results {
		fmt.Fprintf(out, "--- [%d] %s (score: %.4f) ---\n", i+1, r.Path, r.Score)
		text := []rune(r.Content)
		if len(text) > 500 {
			text = append(text[:500], []rune("...")...)
		}
		fmt.Fprintln(out, string(text))
		fmt.Fprintln(out)
	}
	return nil
}

// retrieve runs the read path against the project's index.
func retrieve(cmd *cobra.Command, query string, k int) ([]domain.SimilarityResult, error) {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()

	if cfg.Store.Backend != "memory" {
		if _, err := os.Stat(cfg.StorePath(GetRootDir())); os.IsNotExist(err) {
			return nil, fmt.Errorf("no index found. Run 'ragpipe index' first")
		}
	}

	st, err := OpenStore(ctx, cfg, GetRootDir(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer st.Close()

	retrieveUC := usecase.NewRetrieveUseCase(st,
		usecase.WithCache(newQueryCache(cfg)),
		usecase.WithMinScore(cfg.Retrieve.MinScore),
		usecase.WithRetrieveLogger(logger))

	results, err := retrieveUC.Retrieve(ctx, query, k)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return results, nil
}
