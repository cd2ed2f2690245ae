package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"knitkart/internal/middleware"
	"knitkart/internal/service"
)

type uploadResponse struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"`
	Format    string    `json:"format"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h HandlerSet) UploadMedia(c *gin.Context) {
	p := middleware.MustPrincipal(c)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		fail(c, http.StatusBadRequest, "file_required")
		return
	}
	defer file.Close()

	result, err := h.uploads.Upload(c.Request.Context(), service.UploadInput{
		OwnerID:      p.ID,
		File:         file,
		DeclaredType: header.Header.Get("Content-Type"),
	})
	switch {
	case errors.Is(err, service.ErrUploadTooLarge):
		fail(c, http.StatusRequestEntityTooLarge, err.Error())
		return
	case errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, service.ErrUnsupportedImage),
		errors.Is(err, service.ErrContentMismatch):
		fail(c, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.internalError(c, err, "upload failed")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"image": uploadResponse{
			ID:        result.Image.ID,
			Key:       result.Key,
			Format:    result.Image.Format,
			SizeBytes: result.Image.SizeBytes,
			CreatedAt: result.Image.CreatedAt,
		},
	})
}
