package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"ragpipe/internal/adapter/loader"
	"ragpipe/internal/adapter/splitter"
	"ragpipe/internal/domain"
	"ragpipe/internal/port"
)

var (
	splitKind string
	splitJSON bool
)

var splitCmd = &cobra.Command{
	Use:   "split PATH",
	Short: "Preview how files are chunked",
	Long: `Load a file or directory and print the chunks the splitter produces,
without embedding or storing anything.

Examples:
  ragpipe split README.md
  ragpipe split changes.diff --kind diff --json
  ragpipe split docs/ --kind text`,
	Args: cobra.ExactArgs(1),
	RunE: runSplit,
}

func init() {
	rootCmd.AddCommand(splitCmd)
	splitCmd.Flags().StringVar(&splitKind, "kind", "", "splitter kind: text, markdown or diff (default from config)")
	splitCmd.Flags().BoolVar(&splitJSON, "json", false, "output as JSON")
}

func runSplit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}

	// Without --kind, files are split the way index would split them.
	var sp port.Splitter
	if splitKind != "" {
		sp, err = newSplitter(cfg, splitKind, logger)
	} else if info.IsDir() {
		sp, err = newRouter(cfg, path, logger)
	} else {
		sp, err = newRouter(cfg, filepath.Dir(path), logger)
	}
	if err != nil {
		return err
	}

	var docs []domain.Document
	if info.IsDir() {
		ld, err := newLoader(cfg, logger, nil)
		if err != nil {
			return err
		}
		docs, err = ld.Load(ctx, path)
		if err != nil {
			return err
		}
	} else {
		var fl port.FileLoader = loader.NewTextLoader()
		if kind := splitKind; kind == string(splitter.KindMarkdown) || (kind == "" && cfg.Splitter.Kind == string(splitter.KindMarkdown)) {
			fl = loader.NewMarkdownLoader()
		}
		doc, err := fl.Load(ctx, path)
		if err != nil {
			return err
		}
		docs = []domain.Document{doc}
	}

	chunks, err := sp.SplitDocuments(docs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if splitJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(chunks)
	}

	fmt.Fprintf(out, "%d documents, %d chunks\n\n", len(docs), len(chunks))
	for i, c := range chunks {
		fmt.Fprintf(out, "--- [%d] %s (%d chars) ---\n", i+1, c.Path, utf8.RuneCountInString(c.Content))
		fmt.Fprintln(out, c.Content)
		fmt.Fprintln(out)
	}
	return nil
}
