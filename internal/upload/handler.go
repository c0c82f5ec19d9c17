package upload

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"lan-chat/internal/logging"
	"lan-chat/internal/middleware"
	"lan-chat/internal/observability"
)

// CodeValidationFailed is the error code returned for content mismatches.
const CodeValidationFailed = "UploadValidationFailed"

// Handler serves POST /api/upload/:kind.
type Handler struct {
	store *Store
}

// NewHandler builds a Handler.
func NewHandler(store *Store) *Handler {
	return &Handler{store: store}
}

// Upload accepts a multipart "file" field.
func (h *Handler) Upload(c *gin.Context) {
	kind, err := ParseKind(c.Param("kind"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": err.Error()})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.store.maxBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "no file provided"})
		return
	}
	if fh.Size > h.store.maxBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": ErrTooLarge.Error()})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "unreadable file"})
		return
	}
	defer f.Close()

	att, err := h.store.Save(c.Request.Context(), middleware.UserID(c), kind, fh.Filename, f)
	switch {
	case errors.Is(err, ErrValidationFailed):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"success": false, "error": err.Error(), "code": CodeValidationFailed})
		return
	case errors.Is(err, ErrTooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"success": false, "error": err.Error()})
		return
	case err != nil:
		logging.Component("upload").Error().Err(err).Str("request_id", observability.RequestID(c)).Msg("store upload")
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to store file"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"file": gin.H{
			"url":          att.URL,
			"originalName": att.OriginalName,
			"size":         att.Size,
			"mimetype":     att.MimeType,
		},
	})
}
