package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"ragpipe/config"
	"ragpipe/internal/cli"
	"ragpipe/internal/logging"
)

func main() {
	indexPath := flag.String("index", ".", "Path to indexed directory")
	query := flag.String("q", "", "Query to test")
	topK := flag.Int("k", 10, "Number of results")
	runs := flag.Int("runs", 5, "Search repetitions for latency")
	flag.Parse()

	if *query == "" {
		fmt.Println("Usage: go run cmd/benchmark/main.go -index ./tmp -q \"query\"")
		fmt.Println("\nReports:")
		fmt.Println("  1. Index contents (records, model, dimension, metric)")
		fmt.Println("  2. Similarity of the top-k results")
		fmt.Println("  3. Embedding and search latency")
		os.Exit(1)
	}

	if err := run(context.Background(), *indexPath, *query, *topK, *runs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dir, query string, topK, runs int) error {
	cfg, err := config.LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{Level: "warn"})
	if err != nil {
		return err
	}

	st, err := cli.OpenStore(ctx, cfg, dir, logger)
	if err != nil {
		return fmt.Errorf("opening index: %w", err)
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.Records == 0 {
		return fmt.Errorf("index is empty - run 'ragpipe index' first")
	}

	fmt.Println("VECTOR SEARCH BENCHMARK")
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Records indexed: %d\n", stats.Records)
	fmt.Printf("Model: %s (%s)\n", stats.Model, cfg.Embedding.Provider)
	fmt.Printf("Dimension: %d, metric: %s, backend: %s\n", stats.Dimension, stats.Metric, cfg.Store.Backend)
	fmt.Println()

	fmt.Printf("Query: \"%s\"\n", query)
	fmt.Println(strings.Repeat("-", 70))

	start := time.Now()
	results, err := st.SimilaritySearch(ctx, query, topK)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}
	firstLatency := time.Since(start)
	if len(results) == 0 {
		return fmt.Errorf("no results")
	}

	fmt.Printf("Top %d matches:\n\n", len(results))

	totalScore := 0.0
	for i, r := range results {
		preview := []rune(r.Content)
		if len(preview) > 150 {
			preview = append(preview[:150], []rune("...")...)
		}

		totalScore += r.Score
		fmt.Printf("%d. [%s %.3f] %s\n", i+1, rating(r.Score), r.Score, shortPath(r.Path))
		fmt.Printf("   %s\n\n", strings.ReplaceAll(string(preview), "\n", " "))
	}

	// Search latency without the embedding round trip.
	vector, err := st.Embedder().EmbedOne(ctx, query)
	if err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	var searchTotal time.Duration
	for i := 0; i < runs; i++ {
		start := time.Now()
		if _, err := st.SearchVector(ctx, vector, topK); err != nil {
			return fmt.Errorf("search: %w", err)
		}
		searchTotal += time.Since(start)
	}

	avgScore := totalScore / float64(len(results))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("QUALITY METRICS:\n")
	fmt.Printf("  Average similarity: %.3f\n", avgScore)
	fmt.Printf("  Top-1 similarity:   %.3f\n", results[0].Score)
	fmt.Printf("LATENCY:\n")
	fmt.Printf("  Embed + search:     %s\n", firstLatency)
	if runs > 0 {
		fmt.Printf("  Search only (avg):  %s over %d runs\n", searchTotal/time.Duration(runs), runs)
	}

	if avgScore > 0.5 {
		fmt.Println("  Status: GOOD - semantic search working well")
	} else if avgScore > 0.3 {
		fmt.Println("  Status: OK - results are somewhat related")
	} else {
		fmt.Println("  Status: POOR - may need better embeddings or re-indexing")
	}
	return nil
}

func rating(score float64) string {
	switch {
	case score > 0.7:
		return "HIGH"
	case score > 0.5:
		return "GOOD"
	case score > 0.3:
		return "OK"
	default:
		return "LOW"
	}
}

func shortPath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 2 {
		return parts[len(parts)-1]
	}
	return path
}
