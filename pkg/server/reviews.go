package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"quill/pkg/prompt"
	"quill/pkg/review"
	"quill/pkg/store"
	"quill/pkg/utils"
)

type runReviewReq struct {
	Kind   string `json:"kind"`
	Text   string `json:"text"`
	Source string `json:"source"`
}

// handleRunReview starts a review job and returns its ID immediately. The
// finished report is persisted once the job completes; cancelled and failed
// jobs leave nothing behind.
func (s *Server) handleRunReview(c echo.Context) error {
	var req runReviewReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	projectID := c.Param("id")
	project, err := s.Store.Project(projectID)
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}

	if req.Kind != prompt.ReviewProofread {
		req.Kind = prompt.ReviewGeneral
	}
	text := strings.TrimSpace(req.Text)
	source := req.Source
	if source == "" {
		source = "pasted"
	}
	if text == "" {
		text = strings.TrimSpace(project.Notes)
		source = "notes"
	}
	if text == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("nothing to review"))
	}

	var rules string
	if req.Kind == prompt.ReviewGeneral {
		rules = prompt.RulesPreamble(s.Store.Rules(projectID))
	}

	// The job runs under the server context so it outlives this request.
	job := s.Reviews.Start(s.Ctx, req.Kind, rules, text)

	go func(kind, source, text string) {
		result, err := job.Wait(s.Ctx)
		if err != nil {
			utils.Logf("review %s finished without result: %v", job.ID, err)
			return
		}
		s.Store.AddReview(projectID, &store.Review{
			ID:        job.ID,
			Kind:      kind,
			Source:    source,
			Title:     source,
			InputSize: len([]rune(text)),
			InputText: text,
			Result:    result,
			CreatedAt: time.Now().UTC(),
		})
		if err := s.Store.Save(); err != nil {
			utils.Logf("review %s persist failed: %v", job.ID, err)
		}
	}(req.Kind, source, text)

	_, _, total := job.Progress()
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "job_id": job.ID, "total": total})
}

func (s *Server) handleReviewProgress(c echo.Context) error {
	job, ok := s.Reviews.Job(c.Param("job"))
	if !ok {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("job not found"))
	}
	status, completed, total := job.Progress()
	resp := map[string]any{
		"ok":        true,
		"status":    status,
		"completed": completed,
		"total":     total,
	}
	if status == review.StatusCompleted {
		result, err := job.Wait(c.Request().Context())
		if err == nil {
			resp["result"] = result
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelReview(c echo.Context) error {
	job, ok := s.Reviews.Job(c.Param("job"))
	if !ok {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("job not found"))
	}
	job.Cancel()
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleListReviews(c echo.Context) error {
	items := s.Store.Reviews(c.Param("id"))
	// Trim input texts out of the listing; they can be large.
	type listed struct {
		ID        string    `json:"id"`
		Kind      string    `json:"kind"`
		Source    string    `json:"source"`
		Title     string    `json:"title"`
		InputSize int       `json:"input_size"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]listed, 0, len(items))
	for _, r := range items {
		out = append(out, listed{
			ID:        r.ID,
			Kind:      r.Kind,
			Source:    r.Source,
			Title:     r.Title,
			InputSize: r.InputSize,
			CreatedAt: r.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleGetReview(c echo.Context) error {
	r, err := s.Store.Review(c.Param("id"), c.Param("review"))
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("review not found"))
	}
	return c.JSON(http.StatusOK, r)
}

type discussReq struct {
	Question string `json:"question"`
}

// handleDiscussReview answers a question about a finished report and records
// both sides of the exchange on the review.
func (s *Server) handleDiscussReview(c echo.Context) error {
	var req discussReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Question = strings.TrimSpace(req.Question)
	if req.Question == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("question is required"))
	}
	projectID, reviewID := c.Param("id"), c.Param("review")
	rev, err := s.Store.Review(projectID, reviewID)
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("review not found"))
	}

	answer, err := s.Inferencer.Infer(c.Request().Context(), nil, "",
		prompt.ReviewDiscussion(rev.InputText, rev.Result, req.Question))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}

	_ = s.Store.AppendReviewMessage(projectID, reviewID, store.Message{Role: "user", Content: req.Question})
	_ = s.Store.AppendReviewMessage(projectID, reviewID, store.Message{Role: "assistant", Content: answer})
	if err := s.Store.Save(); err != nil {
		c.Logger().Errorf("store save failed: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "answer": answer})
}

// handleUpdateReview rewrites the report from its discussion thread and
// replaces the stored result.
func (s *Server) handleUpdateReview(c echo.Context) error {
	projectID, reviewID := c.Param("id"), c.Param("review")
	rev, err := s.Store.Review(projectID, reviewID)
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("review not found"))
	}
	if len(rev.Discussion) == 0 {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("no discussion to update from"))
	}

	thread := prompt.RenderThread(rev.Discussion)
	updated, err := s.Inferencer.Infer(c.Request().Context(), nil, "",
		prompt.ReviewUpdate(rev.InputText, rev.Result, thread))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	if err := s.Store.UpdateReviewResult(projectID, reviewID, updated); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	if err := s.Store.Save(); err != nil {
		c.Logger().Errorf("store save failed: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "result": updated})
}
