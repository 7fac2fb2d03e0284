// Package server exposes the writing assistant over HTTP.
package server

import (
	"context"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"quill/pkg/assemble"
	"quill/pkg/index"
	"quill/pkg/inference"
	"quill/pkg/review"
	"quill/pkg/store"
	"quill/pkg/utils"
)

// History is the chat-history backend. The JSON store implements it, and so
// does the Redis backend when configured.
type History interface {
	AppendTurn(ctx context.Context, projectID, question, answer string) error
	RecentTurns(ctx context.Context, projectID string, n int) ([]store.Turn, error)
	ClearHistory(ctx context.Context, projectID string) error
}

type Server struct {
	Echo        *echo.Echo
	Inferencer  inference.Inferencer
	Illustrator inference.Illustrator
	Store       *store.Store
	History     History
	Index       *index.Manager
	Assembler   *assemble.Assembler
	Reviews     *review.Runner
	MediaRoot   string
	Ctx         context.Context
}

func NewServer(ctx context.Context, inf inference.Inferencer, st *store.Store, history History, idx *index.Manager, reviews *review.Runner) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.CORS())

	s := &Server{
		Echo:       e,
		Inferencer: inf,
		Store:      st,
		History:    history,
		Index:      idx,
		Assembler:  assemble.New(idx, history),
		Reviews:    reviews,
		MediaRoot:  "data/media",
		Ctx:        ctx,
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.Echo.GET("/", s.handleGetRoot)

	s.Echo.POST("/projects", s.handleCreateProject)
	s.Echo.GET("/projects", s.handleListProjects)
	s.Echo.GET("/projects/:id", s.handleGetProject)

	s.Echo.GET("/notes/:id", s.handleGetNotes)
	s.Echo.POST("/notes/:id", s.handleSaveNotes)

	s.Echo.GET("/synopsis/:id", s.handleGetSynopsis)
	s.Echo.POST("/synopsis/:id", s.handleSaveSynopsis)
	s.Echo.POST("/synopsis/:id/parse", s.handleParseSynopsis)

	s.Echo.GET("/rules/:id", s.handleListRules)
	s.Echo.POST("/rules/:id", s.handleAddRule)

	s.Echo.GET("/chat/:id", s.handleGetChat)
	s.Echo.POST("/chat/:id/clear", s.handleClearChat)

	s.Echo.POST("/upload_temp_files/:id", s.handleUploadTempFiles)
	s.Echo.POST("/library/:id/upload", s.handleUploadLibraryFiles)
	s.Echo.GET("/library/:id", s.handleListLibrary)

	s.Echo.POST("/ask/:id", s.handleAsk)

	s.Echo.POST("/review/:id/run", s.handleRunReview)
	s.Echo.GET("/review/:id/job/:job", s.handleReviewProgress)
	s.Echo.POST("/review/:id/job/:job/cancel", s.handleCancelReview)
	s.Echo.GET("/reviews/:id", s.handleListReviews)
	s.Echo.GET("/review/:id/:review", s.handleGetReview)
	s.Echo.POST("/review/:id/:review/discuss", s.handleDiscussReview)
	s.Echo.POST("/review/:id/:review/update", s.handleUpdateReview)

	s.Echo.POST("/illustrate/:id", s.handleIllustrate)
}

func (s *Server) Start(addr string) error {
	utils.Logf("Server listening at %s", addr)
	return s.Echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	utils.Logf("Shutting down server...")

	saveErr := s.Store.Save()
	if err := s.Echo.Shutdown(ctx); err != nil {
		return err
	}
	return saveErr
}

func (s *Server) handleGetRoot(c echo.Context) error {
	return c.JSON(200, map[string]any{"ok": true, "service": "quill"})
}
