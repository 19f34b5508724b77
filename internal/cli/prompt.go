package cli

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/spf13/cobra"

	"ragpipe/internal/domain"
)

//go:embed templates/*.txt
var promptTemplates embed.FS

var (
	promptQuery    string
	promptTopK     int
	promptTemplate string
)

// defaultInstructions are appended to the retrieval prompt.
var defaultInstructions = []string{
	"Present your answer in markdown format, including code snippets if any.",
	"Do not include any links or external references in your response.",
	"Do not change the code snippets.",
	"Make the whole answer as short as possible while keeping the code snippets.",
}

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Render retrieved chunks into an LLM prompt",
	Long: `Retrieve the chunks most similar to the query and render them into a
prompt template. The prompt is printed; no model is called.

Use --template retrieval (default) for question answering over the contexts.
Use --template summary to summarize retrieved diff chunks as a PR summary.

Examples:
  ragpipe prompt -q "how to do COPY"
  ragpipe prompt -q "storage changes" --template summary -k 8`,
	RunE: runPrompt,
}

func init() {
	rootCmd.AddCommand(promptCmd)
	promptCmd.Flags().StringVarP(&promptQuery, "query", "q", "", "question used for retrieval (required)")
	promptCmd.Flags().IntVarP(&promptTopK, "top-k", "k", 0, "number of contexts (default from config)")
	promptCmd.Flags().StringVar(&promptTemplate, "template", "retrieval", "prompt template: retrieval or summary")
	_ = promptCmd.MarkFlagRequired("query")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	results, err := retrieve(cmd, promptQuery, topK(promptTopK, GetConfig()))
	if err != nil {
		return err
	}

	prompt, err := renderPrompt(promptTemplate, PromptData{
		Query:        promptQuery,
		Results:      results,
		Instructions: defaultInstructions,
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), prompt)
	return nil
}

type PromptData struct {
	Query        string
	Results      []domain.SimilarityResult
	Instructions []string
}

func renderPrompt(name string, data PromptData) (string, error) {
	var templateName string
	switch name {
	case "retrieval":
		templateName = "templates/retrieval_prompt.txt"
	case "summary":
		templateName = "templates/summary_prompt.txt"
	default:
		return "", fmt.Errorf("%w: unknown prompt template %q", domain.ErrConfig, name)
	}

	tmplContent, err := promptTemplates.ReadFile(templateName)
	if err != nil {
		return "", fmt.Errorf("template not found: %w", err)
	}

	tmpl, err := template.New("prompt").Funcs(templateFuncs()).Parse(string(tmplContent))
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatContexts": func(results []domain.SimilarityResult) string {
			var sb strings.Builder
			for _, r := range results {
				fmt.Fprintf(&sb, "context:%s\nsource:%s\n", r.Path, r.Content)
			}
			return sb.String()
		},
		"joinContents": func(results []domain.SimilarityResult) string {
			contents := make([]string, len(results))
			for i, r := range results {
				contents[i] = r.Content
			}
			return strings.Join(contents, "\n")
		},
	}
}
