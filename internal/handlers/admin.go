package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h HandlerSet) AdminListImages(c *gin.Context) {
	limit := 50
	offset := 0

	if perPage := c.Query("perPage"); perPage != "" {
		if v, err := strconv.Atoi(perPage); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	if page := c.Query("page"); page != "" {
		if v, err := strconv.Atoi(page); err == nil && v > 1 {
			offset = (v - 1) * limit
		}
	}

	images, err := h.images.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.internalError(c, err, "list images failed")
		return
	}

	items := make([]gin.H, 0, len(images))
	for _, img := range images {
		items = append(items, gin.H{
			"id":        img.ID,
			"ownerId":   img.OwnerID,
			"key":       img.ObjectKey,
			"format":    img.Format,
			"sizeBytes": img.SizeBytes,
			"createdAt": img.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"items": items})
}
