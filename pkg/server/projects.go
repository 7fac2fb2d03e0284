package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"quill/pkg/chapter"
	"quill/pkg/index"
	"quill/pkg/store"
	"quill/pkg/utils"
)

func notesHandle(projectID string) index.Handle {
	return index.Handle("project_" + projectID + "/notes")
}

type createProjectReq struct {
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	Chapters      int    `json:"chapters"`
	TotalPages    int    `json:"total_pages"`
	FramesPerPage int    `json:"frames_per_page"`
}

func (s *Server) handleCreateProject(c echo.Context) error {
	var req createProjectReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("project name is required"))
	}
	if req.Kind != store.KindComic {
		req.Kind = store.KindProse
	}
	p := &store.Project{
		ID:            ksuid.New().String(),
		Name:          req.Name,
		Kind:          req.Kind,
		Chapters:      req.Chapters,
		TotalPages:    req.TotalPages,
		FramesPerPage: req.FramesPerPage,
		CreatedAt:     time.Now(),
	}
	s.Store.PutProject(p)
	if err := s.Store.Save(); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, p)
}

func (s *Server) handleListProjects(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": s.Store.Projects()})
}

func (s *Server) handleGetProject(c echo.Context) error {
	p, err := s.Store.Project(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	return c.JSON(http.StatusOK, p)
}

type textReq struct {
	Text string `json:"text"`
}

func (s *Server) handleGetNotes(c echo.Context) error {
	p, err := s.Store.Project(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	return c.JSON(http.StatusOK, map[string]any{"text": p.Notes})
}

// handleSaveNotes stores the notes text and rebuilds the semantic index
// before answering, so the next ask retrieves against current material.
func (s *Server) handleSaveNotes(c echo.Context) error {
	var req textReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	id := c.Param("id")
	if err := s.Store.SetNotes(id, req.Text); err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	if err := s.Index.Build(c.Request().Context(), notesHandle(id), req.Text); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON("index rebuild failed: "+err.Error()))
	}
	if err := s.Store.Save(); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetSynopsis(c echo.Context) error {
	p, err := s.Store.Project(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	return c.JSON(http.StatusOK, map[string]any{"text": p.Synopsis})
}

func (s *Server) handleSaveSynopsis(c echo.Context) error {
	var req textReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	if err := s.Store.SetSynopsis(c.Param("id"), req.Text); err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	if err := s.Store.Save(); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

// handleParseSynopsis splits the stored synopsis on chapter headings and
// returns the segments. Returns an empty list when no headings exist.
func (s *Server) handleParseSynopsis(c echo.Context) error {
	p, err := s.Store.Project(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	segments := chapter.Split(p.Synopsis)
	if segments == nil {
		segments = []chapter.Segment{}
	}
	return c.JSON(http.StatusOK, map[string]any{"items": segments})
}

type addRuleReq struct {
	Scope string `json:"scope"`
	Text  string `json:"text"`
	Mode  string `json:"mode"`
}

func (s *Server) handleListRules(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"items": s.Store.Rules(c.Param("id"))})
}

func (s *Server) handleAddRule(c echo.Context) error {
	var req addRuleReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("rule text is required"))
	}
	projectID := c.Param("id")
	if req.Scope == "global" {
		projectID = ""
	}
	s.Store.AddRule(projectID, store.Rule{Text: req.Text, Mode: req.Mode})
	if err := s.Store.Save(); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleGetChat(c echo.Context) error {
	turns, err := s.History.RecentTurns(c.Request().Context(), c.Param("id"), 100)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": turns})
}

func (s *Server) handleClearChat(c echo.Context) error {
	if err := s.History.ClearHistory(c.Request().Context(), c.Param("id")); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}
