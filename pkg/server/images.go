package server

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/webp"
	"github.com/labstack/echo/v4"
	"github.com/segmentio/ksuid"

	"quill/pkg/prompt"
	"quill/pkg/utils"
)

type illustrateReq struct {
	Prompt      string `json:"prompt"`
	SourceImage string `json:"source_image,omitempty"`
}

// handleIllustrate rewrites the user's description into a generation-safe
// prompt, generates the image, and stores it as WebP. An optional source
// image (base64 PNG) is passed through for image-to-image edits.
func (s *Server) handleIllustrate(c echo.Context) error {
	if s.Illustrator == nil {
		return c.JSON(http.StatusServiceUnavailable, utils.ErrJSON("no image model configured"))
	}
	var req illustrateReq
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, utils.ErrJSON("prompt is required"))
	}

	ctx := c.Request().Context()
	rewritten, err := s.Inferencer.Infer(ctx, nil, "", prompt.ImageRewrite(req.Prompt))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON("prompt rewrite failed: "+err.Error()))
	}
	rewritten = strings.TrimSpace(rewritten)
	log.Info("illustration prompt rewritten", "project", c.Param("id"))

	var source []byte
	if req.SourceImage != "" {
		source, err = base64.StdEncoding.DecodeString(req.SourceImage)
		if err != nil {
			return c.JSON(http.StatusBadRequest, utils.ErrJSON("source image is not valid base64"))
		}
	}

	result, err := s.Illustrator.Illustrate(ctx, rewritten, source)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON("generation failed: "+err.Error()))
	}
	if !result.IsImage() {
		// The model answered with text instead of pixels, usually a refusal.
		return c.JSON(http.StatusOK, map[string]any{"ok": false, "error": result.Text, "prompt": rewritten})
	}

	filename := fmt.Sprintf("%s.webp", ksuid.New().String())
	data, err := s.saveToWebP(result.Image, filename)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, utils.ErrJSON(err.Error()))
	}

	return c.JSON(http.StatusOK, map[string]any{
		"ok":     true,
		"prompt": rewritten,
		"file":   filename,
		"image":  base64.StdEncoding.EncodeToString(data),
	})
}

// saveToWebP transcodes the model's PNG output to WebP and writes it under
// the media root.
func (s *Server) saveToWebP(pngBytes []byte, filename string) ([]byte, error) {
	dir := filepath.Join(s.MediaRoot, "illustrations")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create media dir: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(pngBytes))
	if err != nil {
		var err2 error
		img, _, err2 = image.Decode(bytes.NewReader(pngBytes))
		if err2 != nil {
			return nil, fmt.Errorf("failed to decode image (png: %v, generic: %v)", err, err2)
		}
	}

	buf := new(bytes.Buffer)
	if err := webp.Encode(buf, img, webp.Options{Lossless: false, Quality: 100}); err != nil {
		return nil, fmt.Errorf("failed to encode webp: %w", err)
	}

	fullPath := filepath.Join(dir, filename)
	if err := os.WriteFile(fullPath, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", fullPath, err)
	}
	return buf.Bytes(), nil
}
