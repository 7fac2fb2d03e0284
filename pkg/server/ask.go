package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/openai/openai-go/v3"

	"quill/pkg/assemble"
	"quill/pkg/fidelity"
	"quill/pkg/index"
	"quill/pkg/prompt"
	"quill/pkg/schema"
	"quill/pkg/store"
	"quill/pkg/utils"
)

type askReq struct {
	Text        string  `json:"text"`
	Mode        string  `json:"mode"`
	WriteKind   string  `json:"write_kind"`
	Persona     string  `json:"persona"`
	UseNotes    bool    `json:"use_notes"`
	UseHistory  bool    `json:"use_history"`
	Temperature float64 `json:"temperature"`

	TempFileIDs    []string `json:"temp_file_ids"`
	LibraryFileIDs []string `json:"library_file_ids"`

	// Division inputs.
	SynopsisText string `json:"synopsis_text"`
	WordsMin     int    `json:"words_per_chapter_min"`
	WordsMax     int    `json:"words_per_chapter_max"`

	// Breakdown input.
	ChapterTitle string `json:"chapter_title"`

	// Discussion and update inputs.
	Thread           []store.Message `json:"discussion_thread"`
	FullSynopsis     string          `json:"full_synopsis"`
	ChapterContent   string          `json:"chapter_content"`
	CurrentDraft     string          `json:"current_draft"`
	OriginalDivision string          `json:"original_division"`
}

// handleAsk is the chat entry point. The write kind routes between free
// conversation, synopsis division, chapter breakdown, and the update flows
// that rewrite a draft from a discussion transcript.
func (s *Server) handleAsk(c echo.Context) error {
	var req askReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	projectID := c.Param("id")
	project, err := s.Store.Project(projectID)
	if err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}

	ctx := c.Request().Context()
	preamble := prompt.Preamble(s.Store.Rules(projectID), project.Kind, req.Mode, req.Persona)
	params := s.inferParams(req.Temperature)

	if len(req.Thread) > 0 {
		return s.askDiscussion(c, preamble, req, params)
	}

	switch req.WriteKind {
	case prompt.KindDivideSynopsis:
		return s.askDivide(c, project, preamble, req, params)
	case prompt.KindBreakdownChapter:
		return s.askBreakdown(c, project, preamble, req, params)
	}

	bundle, err := s.Assembler.Assemble(ctx, req.Text, s.sources(projectID, project, req))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	full := prompt.Free(preamble, prompt.RenderContext(bundle), req.Text)
	c.Logger().Debugf("ask %s: ~%d prompt tokens", projectID, utils.CountTokens(full))
	answer, err := s.Inferencer.Infer(ctx, params, "", full)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}

	tag := prompt.HistoryTag(req.Mode, req.WriteKind)
	if err := s.History.AppendTurn(ctx, projectID, tag+" "+req.Text, answer); err != nil {
		c.Logger().Errorf("history append failed: %v", err)
	}
	if err := s.Store.Save(); err != nil {
		c.Logger().Errorf("store save failed: %v", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "answer": answer})
}

func (s *Server) sources(projectID string, project *store.Project, req askReq) assemble.Sources {
	src := assemble.Sources{
		ProjectID:   projectID,
		UseNotes:    req.UseNotes,
		NotesHandle: notesHandle(projectID),
		NotesText:   project.Notes,
		UseHistory:  req.UseHistory,
	}
	for _, id := range req.TempFileIDs {
		f, err := s.Store.TempFile(projectID, id)
		if err != nil {
			continue
		}
		src.TempFiles = append(src.TempFiles, assemble.FileRef{Label: f.Name, Handle: index.Handle(f.Handle)})
	}
	for _, id := range req.LibraryFileIDs {
		f, err := s.Store.LibraryFile(projectID, id)
		if err != nil {
			continue
		}
		src.LibraryFiles = append(src.LibraryFiles, assemble.FileRef{Label: f.Name, Handle: index.Handle(f.Handle)})
	}
	return src
}

// askDivide inserts chapter headings into the synopsis, cleans any preamble
// off the response, and verifies the content survived intact.
func (s *Server) askDivide(c echo.Context, project *store.Project, preamble string, req askReq, params *openai.ChatCompletionNewParams) error {
	if strings.TrimSpace(req.SynopsisText) == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("synopsis is empty"))
	}

	var p string
	if project.Kind == store.KindProse {
		minWords, maxWords := req.WordsMin, req.WordsMax
		if minWords <= 0 {
			minWords = 1500
		}
		if maxWords <= 0 {
			maxWords = 3000
		}
		p = prompt.ProseDivision(req.SynopsisText, minWords, maxWords, preamble, "")
	} else {
		chapters := project.Chapters
		if chapters <= 0 {
			chapters = 18
		}
		p = prompt.ComicDivision(req.SynopsisText, chapters, preamble, "")
	}

	raw, err := s.Inferencer.Infer(c.Request().Context(), params, "", p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	answer := prompt.CleanDivisionOutput(raw)
	report := fidelity.Check(req.SynopsisText, answer)
	return c.JSON(http.StatusOK, map[string]any{
		"ok":        true,
		"answer":    answer,
		"preserved": report.Preserved,
		"fidelity":  report.String(),
	})
}

// askBreakdown is two calls: a structured extraction of the chapter from the
// full synopsis, then the script or outline written from the extraction.
func (s *Server) askBreakdown(c echo.Context, project *store.Project, preamble string, req askReq, params *openai.ChatCompletionNewParams) error {
	title := strings.TrimSpace(req.ChapterTitle)
	if title == "" {
		title = strings.TrimSpace(req.Text)
	}
	if title == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("chapter title is required"))
	}
	if strings.TrimSpace(project.Synopsis) == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("project synopsis is empty"))
	}

	ctx := c.Request().Context()
	extractParams := &openai.ChatCompletionNewParams{
		ResponseFormat: schema.ChapterExtractionResponseFormat(),
	}
	raw, err := s.Inferencer.Infer(ctx, extractParams, "", prompt.ExtractChapter(title, project.Synopsis))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON("chapter extraction failed: "+err.Error()))
	}
	chapterSynopsis := renderExtraction(raw)

	var p string
	if project.Kind == store.KindComic {
		chapters := project.Chapters
		if chapters <= 0 {
			chapters = 18
		}
		totalPages := project.TotalPages
		if totalPages <= 0 {
			totalPages = 54
		}
		framesPerPage := project.FramesPerPage
		if framesPerPage <= 0 {
			framesPerPage = 6
		}
		pagesPerChapter := totalPages / chapters
		if pagesPerChapter < 1 {
			pagesPerChapter = 1
		}
		p = prompt.ComicBreakdown(preamble, "", chapterSynopsis, pagesPerChapter, framesPerPage)
	} else {
		p = prompt.ProseBreakdown(preamble, "", chapterSynopsis)
	}

	answer, err := s.Inferencer.Infer(ctx, params, "", p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "answer": answer})
}

// renderExtraction turns the structured extraction back into prose for the
// writing call. Unparseable output falls back to the raw text, trimmed to
// its JSON braces if any are present.
func renderExtraction(raw string) string {
	out := raw
	if i := strings.Index(out, "{"); i > 0 {
		out = out[i:]
	}
	if j := strings.LastIndex(out, "}"); j != -1 && j < len(out)-1 {
		out = out[:j+1]
	}

	var ex schema.ChapterExtraction
	if err := json.Unmarshal([]byte(out), &ex); err != nil || ex.Summary == "" {
		return strings.TrimSpace(raw)
	}

	var sb strings.Builder
	if ex.Title != "" {
		sb.WriteString(ex.Title + "\n")
	}
	sb.WriteString(ex.Summary)
	if len(ex.KeyEvents) > 0 {
		sb.WriteString("\n\nאירועים מרכזיים:\n- " + strings.Join(ex.KeyEvents, "\n- "))
	}
	if len(ex.Characters) > 0 {
		sb.WriteString("\n\nדמויות: " + strings.Join(ex.Characters, ", "))
	}
	if ex.Setting != "" {
		sb.WriteString("\n\nזירה: " + ex.Setting)
	}
	return sb.String()
}

// askDiscussion handles both live discussion turns and the update kinds that
// rewrite a draft from the transcript. Discussion traffic never enters chat
// history.
func (s *Server) askDiscussion(c echo.Context, preamble string, req askReq, params *openai.ChatCompletionNewParams) error {
	thread := prompt.RenderThread(req.Thread)

	var p string
	switch req.WriteKind {
	case "update_synopsis":
		p = prompt.SynopsisUpdate(req.CurrentDraft, thread)
	case "update_division":
		p = prompt.DivisionUpdate(req.OriginalDivision, thread)
	case "update_chapter":
		p = prompt.ChapterUpdate(req.ChapterContent, thread, req.FullSynopsis)
	default:
		var context string
		switch {
		case req.FullSynopsis != "" && req.ChapterContent != "":
			context = prompt.ChapterDiscussion(preamble, req.FullSynopsis, req.ChapterContent, thread)
		case req.OriginalDivision != "":
			context = prompt.DivisionDiscussion(preamble, req.OriginalDivision, thread)
		default:
			context = prompt.SynopsisDiscussion(preamble, req.CurrentDraft, thread)
		}
		p = fmt.Sprintf("%s\n\nהשאלה החדשה של המשתמש: %s", context, req.Text)
	}

	answer, err := s.Inferencer.Infer(c.Request().Context(), params, "", p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	if req.WriteKind == "update_division" {
		answer = prompt.CleanDivisionOutput(answer)
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "answer": answer})
}

func (s *Server) inferParams(temperature float64) *openai.ChatCompletionNewParams {
	if temperature <= 0 {
		return nil
	}
	return &openai.ChatCompletionNewParams{Temperature: openai.Float(temperature)}
}
