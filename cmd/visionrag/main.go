package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"visionrag/internal/chunker"
	"visionrag/internal/config"
	"visionrag/internal/domain"
	"visionrag/internal/embedding/hash"
	"visionrag/internal/embedding/openai"
	"visionrag/internal/embedding/remote"
	"visionrag/internal/extractor"
	"visionrag/internal/index"
	"visionrag/internal/retriever"
	"visionrag/internal/service"
	"visionrag/internal/tui"
)

func main() {
	_ = godotenv.Load()

	var (
		cfgPath string
		verbose bool
	)

	rootCmd := &cobra.Command{
		Use:           "visionrag",
		Short:         "Multimodal document search over a local corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config (default: ./config.yaml, then ~/.config/visionrag/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	var (
		docsDir string
		rebuild bool
	)
	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract, embed and index a document corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cfgPath, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return runIngest(cmd.Context(), cfg, log, docsDir, rebuild)
		},
	}
	ingestCmd.Flags().StringVar(&docsDir, "docs", "docs", "directory containing the document corpus")
	ingestCmd.Flags().BoolVar(&rebuild, "rebuild", false, "replace an existing index")
	rootCmd.AddCommand(ingestCmd)

	var (
		topK        int
		imagePath   string
		pathPrefix  string
		interactive bool
	)
	queryCmd := &cobra.Command{
		Use:   "query [text]",
		Short: "Search the index and print fused results",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(cfgPath, verbose)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			text := ""
			if len(args) > 0 {
				text = args[0]
			}
			return runQuery(cmd.Context(), cfg, log, text, imagePath, pathPrefix, topK, interactive)
		},
	}
	queryCmd.Flags().IntVarP(&topK, "top", "k", 10, "number of results to return")
	queryCmd.Flags().StringVar(&imagePath, "image", "", "path to a query image (png or jpeg)")
	queryCmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "restrict results to documents under this corpus path prefix")
	queryCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "open the interactive search view")
	rootCmd.AddCommand(queryCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func setup(cfgPath string, verbose bool) (*config.AppConfig, *zap.Logger, error) {
	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := zap.NewDevelopmentConfig()
	logCfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		logCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	log, err := logCfg.Build()
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

func runIngest(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, docsDir string, rebuild bool) error {
	textEmb, imageEmb, err := buildEmbedders(cfg)
	if err != nil {
		return err
	}

	store := newStore(cfg, textEmb, imageEmb, log)
	var builder index.Builder = store
	if cfg.Index.Type == "qdrant" {
		builder = newQdrant(cfg, textEmb, imageEmb)
	}
	if cfg.Index.Type != "qdrant" && store.HasSnapshot() && !rebuild {
		return fmt.Errorf("index already exists in %s; pass --rebuild to replace it", cfg.Index.Dir)
	}

	opts := []extractor.Option{
		extractor.WithRenderer(extractor.NewPoppler(cfg.Render.Command, cfg.Render.DPI)),
		extractor.WithCSVRowBlock(cfg.Chunker.CSVRowBlock),
	}
	if cfg.OCR.Enabled {
		opts = append(opts, extractor.WithOCR(extractor.NewTesseract(cfg.OCR.Command, cfg.OCR.Lang)))
	}
	ex := extractor.New(log, opts...)
	overlap := 0
	if cfg.Chunker.Overlap != nil {
		overlap = *cfg.Chunker.Overlap
	}
	ch := chunker.NewWordChunker(cfg.Chunker.ChunkSize, overlap)

	ing := service.NewIngestor(ex, ch, textEmb, imageEmb, builder, log)
	summary, err := ing.Rebuild(ctx, docsDir)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	fmt.Printf("Indexed %d/%d documents (%d skipped): %d text entries, %d image entries\n",
		summary.Processed, summary.Documents, summary.Skipped, summary.TextEntries, summary.ImageEntries)
	if summary.DroppedUnits > 0 {
		fmt.Printf("Dropped %d units that could not be embedded\n", summary.DroppedUnits)
	}
	for _, f := range summary.Failures {
		fmt.Printf("  failed: %s: %s\n", f.Path, f.Reason)
	}
	return nil
}

func runQuery(ctx context.Context, cfg *config.AppConfig, log *zap.Logger, text, imagePath, pathPrefix string, topK int, interactive bool) error {
	textEmb, imageEmb, err := buildEmbedders(cfg)
	if err != nil {
		return err
	}

	var searcher index.Searcher
	header := ""
	if cfg.Index.Type == "qdrant" {
		searcher = newQdrant(cfg, textEmb, imageEmb)
		header = "Remote index (qdrant)"
	} else {
		store := newStore(cfg, textEmb, imageEmb, log)
		if err := store.Load(); err != nil {
			if errors.Is(err, domain.ErrNoIndex) {
				return fmt.Errorf("no index found in %s; run `visionrag ingest --docs <dir>` first", cfg.Index.Dir)
			}
			return fmt.Errorf("load index: %w", err)
		}
		nt, ni, _ := store.Stats()
		header = fmt.Sprintf("Index: %d text entries, %d image entries", nt, ni)
		searcher = store
	}

	ret := retriever.New(searcher, textEmb, imageEmb, retriever.Options{
		TopKText:    cfg.Retrieval.TopKText,
		TopKImage:   cfg.Retrieval.TopKImage,
		Fuse:        cfg.Retrieval.Fuse,
		TextWeight:  cfg.Retrieval.TextWeight,
		ImageWeight: cfg.Retrieval.ImageWeight,
	}, log)

	if interactive {
		m := tui.New(ret, header)
		if _, err := tea.NewProgram(m).Run(); err != nil {
			return err
		}
		return nil
	}

	var img image.Image
	if imagePath != "" {
		img, err = loadImage(imagePath)
		if err != nil {
			return fmt.Errorf("load query image: %w", err)
		}
	}

	var filter retriever.Filter
	if pathPrefix != "" {
		filter = retriever.PathPrefixFilter(pathPrefix)
	}
	results, err := ret.QueryFiltered(ctx, text, img, topK, filter)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuery) {
			return fmt.Errorf("provide query text and/or --image")
		}
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func buildEmbedders(cfg *config.AppConfig) (domain.TextEmbedder, domain.ImageEmbedder, error) {
	var textEmb domain.TextEmbedder
	switch cfg.Embed.Text.Type {
	case "hash", "":
		textEmb = hash.New(cfg.Embed.Text.Dimension)
	case "openai":
		if cfg.Embed.Text.OpenAI == nil {
			return nil, nil, fmt.Errorf("openai text embedder config missing")
		}
		emb, err := openai.New(openai.Config{
			BaseURL:   cfg.Embed.Text.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embed.Text.OpenAI.APIKeyEnv,
			Model:     cfg.Embed.Text.Model,
			Dimension: cfg.Embed.Text.Dimension,
			BatchSize: cfg.Embed.Text.OpenAI.BatchSize,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai text embedder: %w", err)
		}
		textEmb = emb
	default:
		return nil, nil, fmt.Errorf("unknown text embedder: %s", cfg.Embed.Text.Type)
	}

	var imageEmb domain.ImageEmbedder
	switch cfg.Embed.Image.Type {
	case "hash", "":
		imageEmb = hash.New(cfg.Embed.Image.Dimension)
	case "remote":
		if cfg.Embed.Image.Remote == nil {
			return nil, nil, fmt.Errorf("remote image embedder config missing")
		}
		emb, err := remote.New(remote.Config{
			BaseURL:   cfg.Embed.Image.Remote.BaseURL,
			APIKeyEnv: cfg.Embed.Image.Remote.APIKeyEnv,
			Model:     cfg.Embed.Image.Model,
			Dimension: cfg.Embed.Image.Dimension,
			Timeout:   time.Duration(cfg.Embed.Image.Remote.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("remote image embedder: %w", err)
		}
		imageEmb = emb
	default:
		return nil, nil, fmt.Errorf("unknown image embedder: %s", cfg.Embed.Image.Type)
	}
	return textEmb, imageEmb, nil
}

func newStore(cfg *config.AppConfig, text domain.TextEmbedder, img domain.ImageEmbedder, log *zap.Logger) *index.Store {
	return index.NewStore(cfg.Index.Dir, text.Dimension(), img.Dimension(), text.Name(), img.Name(), log)
}

func newQdrant(cfg *config.AppConfig, text domain.TextEmbedder, img domain.ImageEmbedder) *index.Qdrant {
	q := cfg.Index.Qdrant
	if q == nil {
		q = &config.QdrantConfig{URL: "http://localhost:6333", CollectionPrefix: "visionrag", TimeoutSecs: 15}
	}
	return index.NewQdrant(index.QdrantConfig{
		URL:              q.URL,
		APIKey:           q.APIKey,
		CollectionPrefix: q.CollectionPrefix,
		Timeout:          time.Duration(q.TimeoutSecs) * time.Second,
		DimText:          text.Dimension(),
		DimImage:         img.Dimension(),
	})
}

func loadImage(path string) (image.Image, error) {
	data, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer data.Close()
	img, _, err := image.Decode(data)
	if err != nil {
		return nil, err
	}
	return img, nil
}
