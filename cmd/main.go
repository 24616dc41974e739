package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/vectorstores"

	"pdf-rag/internal/chromemdb"
	"pdf-rag/internal/config"
	"pdf-rag/internal/db"
	"pdf-rag/internal/embedding"
	"pdf-rag/internal/helper"
	"pdf-rag/internal/llmservice"
	"pdf-rag/internal/rag"
	"pdf-rag/internal/server"
	"pdf-rag/internal/summarize"
	"pdf-rag/internal/upload"
)

const (
	configFilePath  = "./configs/config.yaml"
	shutdownTimeout = 10 * time.Second
)

var (
	configPath string
	logLevel   string
	addr       string
	asJSON     bool
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

var rootCmd = &cobra.Command{
	Use:   "pdf-rag",
	Short: "Ask questions about PDFs and summarize them",
	Long: `pdf-rag serves two small web apps over your PDFs:

  qa         upload PDFs and ask questions answered from their content
  summarize  summarize the configured document with stuff, map_reduce or refine`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		helper.SetupLogger(logLevel)
		var err error
		cfg, err = config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		log.Debug().Interface("config", cfg.Masked()).Msg("Loaded config")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configFilePath, "path to the YAML config")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	qaCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	summarizeCmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	askCmd.Flags().BoolVar(&asJSON, "json", false, "print the full response as JSON")

	vectordbCmd.AddCommand(exportCmd, importCmd, resetCmd)
	rootCmd.AddCommand(qaCmd, summarizeCmd, askCmd, ingestCmd, vectordbCmd)
}

var qaCmd = &cobra.Command{
	Use:   "qa",
	Short: "Serve the PDF question answering app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeStore, err := newRAG(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		s, err := server.NewQAServer(listenAddr(cfg.Server.QAAddr), cfg.Paths.Uploads, cfg.Paths.UploadGlob, r)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), s)
	},
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize",
	Short: "Serve the PDF summarization app",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		llm, err := llmservice.NewLLM(cfg.LLM)
		if err != nil {
			return err
		}
		svc := summarize.NewService(llm, cfg)

		s, err := server.NewSummarizeServer(listenAddr(cfg.Server.SummarizeAddr), cfg.Paths.Uploads, cfg.Paths.UploadGlob, svc)
		if err != nil {
			return err
		}
		return serve(cmd.Context(), s)
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer one question from the documents already in the vector store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r, closeStore, err := newRAG(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		response, err := r.Query(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if asJSON {
			helper.PrettyPrint(response)
			return nil
		}

		log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Query)

		log.Info().Str("from", response.SourceLabel()).Msg("Source: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Source)

		log.Info().Msg("Assistant: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
		fmt.Printf("%s\n\n", response.Content)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest [file...]",
	Short: "Stage the given files and add every staged document to the vector store",
	RunE: func(cmd *cobra.Command, args []string) error {
		files := make([]upload.File, 0, len(args))
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			files = append(files, upload.File{Name: filepath.Base(path), Data: data})
		}
		if _, err := upload.Stage(cfg.Paths.Uploads, files); err != nil {
			return err
		}

		r, closeStore, err := newRAG(cmd.Context())
		if err != nil {
			return err
		}
		defer closeStore()

		n, err := r.Ingest(cmd.Context())
		if err != nil {
			return err
		}
		log.Info().Int("chunks", n).Msg("Ingest complete")
		return nil
	},
}

var vectordbCmd = &cobra.Command{
	Use:   "vectordb",
	Short: "Maintain the vector store",
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write an encrypted snapshot of the chromem collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openChromem(false)
		if err != nil {
			return err
		}
		path, err := m.Export(cmd.Context())
		if err != nil {
			return err
		}
		log.Info().Str("file", path).Int("chunks", m.Count()).Msg("Exported collection")
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Restore the chromem collection from its encrypted snapshot",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := openChromem(false)
		if err != nil {
			return err
		}
		if err := m.Import(cmd.Context()); err != nil {
			return err
		}
		log.Info().Int("chunks", m.Count()).Msg("Imported collection")
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete every stored chunk",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.VectorStore.Type == "pgvector" {
			store, closeStore, err := openPGVector(cmd.Context())
			if err != nil {
				return err
			}
			defer closeStore()
			return store.DeleteCollection(cmd.Context())
		}

		m, err := openChromem(false)
		if err != nil {
			return err
		}
		if err := m.DeleteCollection(); err != nil {
			return err
		}
		log.Info().Str("collection", cfg.RAG.Collection).Msg("Collection cleared")
		return nil
	},
}

func listenAddr(fromConfig string) string {
	if addr != "" {
		return addr
	}
	return fromConfig
}

func newRAG(ctx context.Context) (*rag.RAG, func(), error) {
	llm, err := llmservice.NewLLM(cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := newStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	return rag.NewRAG(store, llm, cfg), closeStore, nil
}

// newStore opens the backend named by vector_store.type.
func newStore(ctx context.Context) (vectorstores.VectorStore, func(), error) {
	switch cfg.VectorStore.Type {
	case "chromem":
		m, err := openChromem(true)
		if err != nil {
			return nil, nil, err
		}
		return m, func() {}, nil
	case "pgvector":
		store, closeStore, err := openPGVector(ctx)
		if err != nil {
			return nil, nil, err
		}
		return store, closeStore, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store type %q", cfg.VectorStore.Type)
	}
}

// openChromem opens the persisted collection. Maintenance commands never
// embed anything and skip creating the embedder.
func openChromem(withEmbedder bool) (*chromemdb.VectorDBManager, error) {
	var embedder embeddings.Embedder
	if withEmbedder {
		var err error
		embedder, err = embedding.NewEmbedder(cfg.EmbedLLM)
		if err != nil {
			return nil, err
		}
	}
	if err := helper.CreateFolder(cfg.Paths.VectorDB); err != nil {
		return nil, err
	}
	return chromemdb.NewVectorDBManager(cfg.Paths.VectorDB, cfg.RAG.Collection, embedder, false, cfg.RAG.EncryptionKey)
}

func openPGVector(ctx context.Context) (*db.Store, func(), error) {
	embedder, err := embedding.NewEmbedder(cfg.EmbedLLM)
	if err != nil {
		return nil, nil, err
	}
	sqldb, err := db.ConnectDB(cfg.VectorStore.Database)
	if err != nil {
		return nil, nil, err
	}
	bunDB := db.NewDB(sqldb, cfg.VectorStore.Database.Debug)
	store := db.NewStore(bunDB, embedder, cfg.RAG.Collection, cfg.VectorStore.Database.VectorSize)
	if err := store.InitDB(ctx); err != nil {
		bunDB.Close()
		return nil, nil, err
	}
	return store, func() { bunDB.Close() }, nil
}

type httpServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// serve runs s until SIGINT or SIGTERM.
func serve(ctx context.Context, s httpServer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return <-errCh
}
