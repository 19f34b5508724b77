package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"ragpipe/config"
	"ragpipe/internal/usecase"
)

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Load, split, embed and store documents",
	Long: `Index files in the specified directory for later retrieval.
Files are routed to loaders by the configured glob bindings. The index is
stored in .ragpipe/ within the target directory unless store.path is set.

Examples:
  ragpipe index .                 # Index current directory
  ragpipe index /path/to/docs     # Index specific directory`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIndex,
}

func init() {
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := GetLogger()

	// Determine path to index
	path := GetRootDir()
	if len(args) > 0 {
		var err error
		path, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("path does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	if err := config.EnsureDataDir(path); err != nil {
		return fmt.Errorf("failed to create %s directory: %w", config.DataDirName, err)
	}

	st, err := OpenStore(ctx, cfg, path, logger)
	if err != nil {
		return fmt.Errorf("failed to open index store: %w", err)
	}
	defer st.Close()

	sp, err := newRouter(cfg, path, logger)
	if err != nil {
		return err
	}
	ld, err := newLoader(cfg, logger, newProgress("Loading"))
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Scanning %s...\n", path)

	indexUC := usecase.NewIndexUseCase(ld, sp, st, usecase.WithIndexLogger(logger))
	result, err := indexUC.Index(ctx, path)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nIndexing complete:\n")
	fmt.Fprintf(out, "  Documents loaded: %d\n", result.Documents)
	fmt.Fprintf(out, "  Chunks stored:    %d\n", len(result.IDs))
	fmt.Fprintf(out, "  Records in index: %d\n", stats.Records)
	fmt.Fprintf(out, "  Model:            %s (%d dims, %s)\n", stats.Model, stats.Dimension, stats.Metric)
	fmt.Fprintf(out, "\nIndex stored at: %s\n", cfg.StorePath(path))
	return nil
}

// newProgress returns a progress callback that lazily creates a bar once
// the total is known. It may be called from several goroutines.
func newProgress(label string) func(done, total int) {
	var (
		bar       *progressbar.ProgressBar
		mu        sync.Mutex
		startTime time.Time
	)

	return func(done, total int) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			startTime = time.Now()
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionEnableColorCodes(true),
				progressbar.OptionShowBytes(false),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionSetDescription("[cyan]"+label+"[reset]"),
				progressbar.OptionSetTheme(progressbar.Theme{
					Saucer:        "[green]=[reset]",
					SaucerHead:    "[green]>[reset]",
					SaucerPadding: " ",
					BarStart:      "[",
					BarEnd:        "]",
				}),
				progressbar.OptionOnCompletion(func() {
					fmt.Fprintln(os.Stderr)
				}),
			)
		}

		_ = bar.Set(done)

		if done > 0 {
			elapsed := time.Since(startTime)
			rate := float64(done) / elapsed.Seconds()
			if rate > 0 {
				eta := time.Duration(float64(total-done)/rate) * time.Second
				bar.Describe(fmt.Sprintf("[cyan]%s[reset] ETA: %s", label, formatDuration(eta)))
			}
		}
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm%ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh%dm", h, m)
}
