package server

import (
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"quill/pkg/index"
	"quill/pkg/store"
	"quill/pkg/utils"
)

// Uploads are capped well above any realistic manuscript.
const maxUploadBytes = 16 << 20

// handleUploadTempFiles accepts plain-text file attachments, indexes each one
// separately, and returns the IDs to pass back on subsequent asks. Temp files
// live until the project is deleted but are only consulted when asked for.
func (s *Server) handleUploadTempFiles(c echo.Context) error {
	return s.ingestFiles(c, "temp", s.Store.AddTempFile)
}

// handleUploadLibraryFiles is the persistent variant: library files are
// listed by the library endpoint and referenced across sessions.
func (s *Server) handleUploadLibraryFiles(c echo.Context) error {
	return s.ingestFiles(c, "library", s.Store.AddLibraryFile)
}

func (s *Server) handleListLibrary(c echo.Context) error {
	projectID := c.Param("id")
	if _, err := s.Store.Project(projectID); err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}
	type listed struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Uploaded string `json:"uploaded"`
	}
	files := s.Store.LibraryFiles(projectID)
	out := make([]listed, 0, len(files))
	for _, f := range files {
		out = append(out, listed{ID: f.ID, Name: f.Name, Uploaded: f.Uploaded.Format("2006-01-02 15:04")})
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "files": out})
}

func (s *Server) ingestFiles(c echo.Context, scope string, record func(string, store.TempFile)) error {
	projectID := c.Param("id")
	if _, err := s.Store.Project(projectID); err != nil {
		return c.JSON(http.StatusNotFound, utils.ErrJSON("project not found"))
	}

	form, err := c.MultipartForm()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	files := form.File["files"]
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("no files uploaded"))
	}

	ctx := c.Request().Context()
	var ids, names []string
	for _, fh := range files {
		if fh.Size > maxUploadBytes {
			return c.JSON(http.StatusBadRequest, utils.ErrJSON("file too large: "+fh.Filename))
		}
		f, err := fh.Open()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
		}
		data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
		f.Close()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
		}

		text := strings.TrimSpace(string(data))
		if text == "" {
			continue
		}

		id := ksuid.New().String()
		handle := index.Handle("project_" + projectID + "/" + scope + "/" + utils.SanitizeFilename(id))
		if err := s.Index.Build(ctx, handle, text); err != nil {
			return c.JSON(http.StatusInternalServerError, utils.ErrJSON("indexing failed: "+err.Error()))
		}

		record(projectID, store.TempFile{
			ID:     id,
			Name:   fh.Filename,
			Handle: string(handle),
			Text:   text,
		})
		ids = append(ids, id)
		names = append(names, fh.Filename)
	}

	if err := s.Store.Save(); err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "file_ids": ids, "filenames": names})
}
