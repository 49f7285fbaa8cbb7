package transport

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/HarshTuring/docklens/internal/entity"
	"github.com/HarshTuring/docklens/internal/service"
	"github.com/HarshTuring/docklens/internal/transport/middleware"
)

func (h *ImageHandler) UploadImage(c *gin.Context) {
	data, filename, ok := h.readImageFile(c)
	if !ok {
		return
	}

	resp, err := h.service.Upload(c.Request.Context(), service.UploadInput{
		Data:     data,
		Filename: filename,
	})
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) TransformImage(c *gin.Context) {
	data, filename, ok := h.readImageFile(c)
	if !ok {
		return
	}

	// Поле transformations — JSON-документ с набором операций
	raw := c.PostForm("transformations")
	if raw == "" {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: "no transformations provided"})
		return
	}

	var t entity.Transformations
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: "malformed transformations document"})
		return
	}

	ops, err := t.OperationSet()
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	out, err := h.service.Transform(c.Request.Context(), service.TransformInput{
		Data:       data,
		Filename:   filename,
		SourceType: entity.SourceUpload,
		Operations: ops,
		Auth:       middleware.Decision(c),
	})
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	h.writeImage(c, out)
}

func (h *ImageHandler) TransformImageFromURL(c *gin.Context) {
	var req entity.TransformURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: "no URL provided"})
		return
	}

	out, err := h.service.TransformFromURL(c.Request.Context(), req.URL, req.Transformations, middleware.Decision(c))
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	h.writeImage(c, out)
}

func (h *ImageHandler) ListVersions(c *gin.Context) {
	resp, err := h.service.Versions(c.Request.Context(), c.Param("hash"))
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ImageHandler) History(c *gin.Context) {
	limit, _ := strconv.ParseInt(c.DefaultQuery("limit", "10"), 10, 64)

	records, err := h.service.History(c.Request.Context(),
		limit, c.Query("operation"), c.Query("source_type"))
	if err != nil {
		c.JSON(statusFor(err), entity.ErrorResponse{Message: err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"count": len(records), "history": records})
}

func (h *ImageHandler) Health(c *gin.Context) {
	status := h.service.Health(c.Request.Context())
	status["service"] = "docklens"

	code := http.StatusOK
	if status["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// readImageFile pulls the multipart image field and validates type and
// size before any byte leaves the handler.
func (h *ImageHandler) readImageFile(c *gin.Context) ([]byte, string, bool) {
	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: entity.ErrNoImageProvided.Error()})
		return nil, "", false
	}

	if !isValidImageType(filepath.Ext(file.Filename)) {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: entity.ErrInvalidImageType.Error()})
		return nil, "", false
	}

	if file.Size > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: entity.ErrImageTooLarge.Error()})
		return nil, "", false
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Message: err.Error()})
		return nil, "", false
	}
	defer src.Close()

	data, err := io.ReadAll(io.LimitReader(src, h.maxUploadSize+1))
	if err != nil {
		c.JSON(http.StatusInternalServerError, entity.ErrorResponse{Message: err.Error()})
		return nil, "", false
	}
	if int64(len(data)) > h.maxUploadSize {
		c.JSON(http.StatusBadRequest, entity.ErrorResponse{Message: entity.ErrImageTooLarge.Error()})
		return nil, "", false
	}

	return data, file.Filename, true
}

func (h *ImageHandler) writeImage(c *gin.Context, out *service.TransformOutput) {
	c.Header("X-Fingerprint", out.Fingerprint)
	if out.CacheHit {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}
	c.Data(http.StatusOK, out.ContentType, out.Data)
}

func isValidImageType(ext string) bool {
	validTypes := map[string]bool{
		".jpg":  true,
		".jpeg": true,
		".png":  true,
		".gif":  true,
	}
	return validTypes[strings.ToLower(ext)]
}
