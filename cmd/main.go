package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/labstack/gommon/log"

	"quill/pkg/config"
	"quill/pkg/index"
	"quill/pkg/inference"
	"quill/pkg/review"
	"quill/pkg/server"
	"quill/pkg/store"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	cfgPath := os.Getenv("QUILL_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	inf, embedder, illustrator := buildModels(cfg)

	st, err := store.Open(cfg.DataPath)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	var history server.History = st
	if cfg.Redis.Addr != "" {
		rh, err := store.NewRedisHistory(cfg.Redis.Addr)
		if err != nil {
			log.Warnf("redis unavailable, falling back to file history: %v", err)
		} else {
			history = rh
			log.Infof("chat history on redis at %s", cfg.Redis.Addr)
		}
	}

	idx := index.NewManager(cfg.IndexRoot, embedder)
	// Rebuild any index that went missing while the server was down.
	sources := make(map[index.Handle]string)
	for handle, text := range st.NotesSources() {
		sources[index.Handle(handle)] = text
	}
	idx.Verify(ctx, sources)

	reviews := review.NewRunner(inf, review.Config{
		MaxSingleChars: cfg.Review.MaxSingleChars,
		ChunkSize:      cfg.Review.ChunkSize,
		Overlap:        cfg.Review.ChunkOverlap,
		Concurrency:    cfg.Review.Concurrency,
		CallTimeout:    cfg.Review.CallTimeout(),
		MaxRetries:     cfg.Review.MaxRetries,
	})

	srv := server.NewServer(ctx, inf, st, history, idx, reviews)
	srv.Illustrator = illustrator
	srv.MediaRoot = cfg.MediaRoot
	srv.Assembler.TopK = cfg.Retrieval.TopK
	srv.Echo.Logger.SetLevel(log.INFO)

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error(err)
		}
		done()
		close(finishedShutDown)
	}()

	if err := srv.Start(cfg.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error(err)
	}
	<-finishedShutDown
}

// buildModels wires the configured provider. Gemini takes over whenever
// GOOGLE_API_KEY is present; otherwise OpenAI handles text and embeddings
// and image generation stays disabled.
func buildModels(cfg *config.AppConfig) (inference.Inferencer, inference.Embedder, inference.Illustrator) {
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" || cfg.Model.Provider == "gemini" {
		gem, err := inference.NewGeminiClient(key, cfg.Model.Text)
		if err != nil {
			log.Fatalf("gemini: %v", err)
		}
		if cfg.Model.Embedding != "" {
			gem.SetEmbedModel(cfg.Model.Embedding)
		}
		if cfg.Model.Image != "" {
			gem.SetImageModel(cfg.Model.Image)
		}
		return gem, gem, gem
	}

	model := cfg.Model.Text
	if model == "" {
		model = "gpt-4o-mini"
	}
	apiKey := os.Getenv(cfg.Model.APIKeyEnv)
	openAI := inference.NewOpenAIClient(apiKey, model)
	if cfg.Model.BaseURL != "" {
		openAI.ChangeBaseURL(cfg.Model.BaseURL)
	} else if apiKey == "" {
		openAI.ChangeBaseURL("http://localhost:1234/v1")
		openAI.SetModel("")
	}
	if cfg.Model.Embedding != "" {
		openAI.SetEmbedModel(cfg.Model.Embedding)
	}
	return openAI, openAI, nil
}
