package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"spacepedia/internal/chunker"
	"spacepedia/internal/config"
	"spacepedia/internal/document"
	"spacepedia/internal/embedding"
	"spacepedia/internal/evalset"
	"spacepedia/internal/fetch"
	"spacepedia/internal/index"
	"spacepedia/internal/orchestrator"
	"spacepedia/internal/pipeline"
	"spacepedia/internal/provider"
)

var (
	noColor bool
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "spacepedia",
	Short:         "SpacePedia AI: a space exploration knowledge base with retrieval-augmented answers",
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.AddCommand(ingestCmd, queryCmd, docsCmd, statusCmd, testsetCmd)
}

// app holds the shared dependency graph: one embedder, one index, one
// generator, built once per invocation and closed together.
type app struct {
	cfg     config.Config
	batcher *embedding.Batcher
	index   *index.Index
	gen     provider.Generator
	closers []func() error
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}

	embedder, err := provider.NewEmbedder(ctx, provider.EmbedderConfig{
		APIKey: cfg.Provider.GeminiAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}
	if c, ok := embedder.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	a.batcher = embedding.NewBatcher(embedder)

	idx, err := index.Open(cfg.Storage.DataDir, a.batcher)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("opening index: %w", err)
	}
	a.index = idx
	a.closers = append(a.closers, idx.Close)

	genKey := cfg.Provider.GeminiAPIKey
	if cfg.Provider.Name == "groq" {
		genKey = cfg.Provider.GroqAPIKey
	}
	gen, err := provider.NewGenerator(ctx, provider.GeneratorConfig{
		Provider: cfg.Provider.Name,
		APIKey:   genKey,
		Model:    cfg.Provider.Model,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating generator: %w", err)
	}
	a.gen = gen
	if c, ok := gen.(interface{ Close() error }); ok {
		a.closers = append(a.closers, c.Close)
	}

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing dependency", "error", err)
		}
	}
}

func (a *app) processor(f fetch.Fetcher) *pipeline.Processor {
	c := chunker.New(
		chunker.WithChunkSize(a.cfg.Ingest.ChunkSize),
		chunker.WithOverlap(a.cfg.Ingest.Overlap),
	)
	return pipeline.NewProcessor(f, c, a.index)
}

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch, chunk, and index content",
	Long: `Fetch, chunk, and index content into the knowledge base.

Examples:
  spacepedia ingest --file candidate_pages.json
  spacepedia ingest --url https://en.wikipedia.org/wiki/Saturn_V --category Rockets --tags apollo,nasa`,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		url, _ := cmd.Flags().GetString("url")
		if (file == "") == (url == "") {
			return fmt.Errorf("exactly one of --file or --url is required")
		}

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		fetcher := fetch.NewHTTPFetcher(a.cfg.Ingest.FetchTimeout)
		proc := a.processor(fetcher)

		if url != "" {
			return ingestOne(cmd, proc, url)
		}

		candidates, err := pipeline.LoadCandidates(file)
		if err != nil {
			return err
		}
		runner := pipeline.NewRunner(proc,
			pipeline.WithDelay(a.cfg.Ingest.Delay),
			pipeline.WithWorkers(a.cfg.Ingest.Workers),
		)
		stepf("Ingesting %s...", file)
		rep, err := runner.Run(cmd.Context(), candidates)
		if err != nil {
			return err
		}
		if rep.Failed > 0 {
			warnf("%d document(s) failed", rep.Failed)
		}
		successf("Indexed %d document(s)", rep.Processed)
		return nil
	},
}

func ingestOne(cmd *cobra.Command, proc *pipeline.Processor, url string) error {
	title, _ := cmd.Flags().GetString("title")
	category, _ := cmd.Flags().GetString("category")
	tags, _ := cmd.Flags().GetString("tags")

	t := document.TypeWebPage
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		t = document.TypePDF
	}
	doc := document.New(url, t)
	doc.Title = title
	if category != "" {
		doc.Metadata["category"] = category
	}
	if tags != "" {
		parts := strings.Split(tags, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		doc.Metadata["tags"] = parts
	}

	stepf("Ingesting %s...", url)
	if err := proc.Process(cmd.Context(), doc); err != nil {
		return err
	}
	successf("Indexed %q (%d chunks)", doc.Title, len(doc.Chunks))
	return nil
}

func init() {
	ingestCmd.Flags().String("file", "", "candidates JSON file (category -> pages)")
	ingestCmd.Flags().String("url", "", "single URL to ingest")
	ingestCmd.Flags().String("title", "", "title for --url ingestion")
	ingestCmd.Flags().String("category", "", "category for --url ingestion")
	ingestCmd.Flags().String("tags", "", "comma-separated tags for --url ingestion")
}

// --- query ---

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Ask a question against the indexed knowledge base",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		o := orchestrator.New(a.index, a.gen, a.cfg.Query.TopK)
		resp, err := o.Query(cmd.Context(), args[0], "")
		if err != nil {
			return err
		}

		fmt.Fprintln(os.Stdout, resp.Answer)
		fmt.Fprintln(os.Stdout)
		kv("Confidence", "%s", resp.Confidence)
		if resp.Reasoning != nil {
			kv("Reasoning", "%s", *resp.Reasoning)
		}
		for _, src := range resp.Sources {
			title := src["title"]
			if title == "" {
				title = src["source"]
			}
			kv("Source", "%s (%s)", title, src["source"])
		}
		return nil
	},
}

// --- docs ---

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "List indexed documents by category",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		docs, err := a.index.ListDocuments(cmd.Context())
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			warnf("The index is empty. Run 'spacepedia ingest' first.")
			return nil
		}

		category := ""
		for _, d := range docs {
			if d.Category != category {
				category = d.Category
				fmt.Fprintln(os.Stdout, paint(ansiBold, category))
			}
			fmt.Fprintf(os.Stdout, "  %s (%s)\n", d.Title, d.Source)
		}
		return nil
	},
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show index statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		count, err := a.index.Count(cmd.Context())
		if err != nil {
			return err
		}
		kv("Data dir", "%s", a.cfg.Storage.DataDir)
		kv("Provider", "%s", a.cfg.Provider.Name)
		kv("Vector dim", "%d", a.batcher.Dimension())
		kv("Chunks indexed", "%d", count)
		return nil
	},
}

// --- testset ---

var testsetCmd = &cobra.Command{
	Use:   "testset",
	Short: "Generate an evaluation test set from indexed content",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		stepf("Sampling up to %d chunks...", limit)
		entries, err := evalset.New(a.index, a.gen).Generate(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if err := evalset.WriteFile(output, entries); err != nil {
			return err
		}
		successf("Wrote %d entries to %s", len(entries), output)
		return nil
	},
}

func init() {
	testsetCmd.Flags().Int("limit", evalset.DefaultSampleSize, "maximum chunks to sample")
	testsetCmd.Flags().String("output", "testset.json", "output file path")
}
