package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"

	"taskify/backend/internal/apperrors"
	"taskify/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const uploadField = "file"

type AttachmentHandler struct {
	attachmentService services.AttachmentService
}

func NewAttachmentHandler(attachmentService services.AttachmentService) *AttachmentHandler {
	return &AttachmentHandler{attachmentService: attachmentService}
}

func (h *AttachmentHandler) UploadToTask(c *gin.Context) {
	h.upload(c, services.TaskResource)
}

func (h *AttachmentHandler) UploadToSubTask(c *gin.Context) {
	h.upload(c, services.SubTaskResource)
}

// upload streams the multipart "file" part straight into the attachment
// service; nothing is buffered on local disk.
func (h *AttachmentHandler) upload(c *gin.Context, parent func(uuid.UUID) services.Resource) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	reader, err := c.Request.MultipartReader()
	if err != nil {
		respondError(c, apperrors.InvalidInput("request must be multipart/form-data"))
		return
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			respondError(c, apperrors.InvalidInput("multipart field \"file\" is required"))
			return
		}
		if err != nil {
			respondError(c, apperrors.InvalidInput("malformed multipart body").Wrap(err))
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			part.Close()
			continue
		}

		attachment, err := h.attachmentService.Upload(c.Request.Context(), actor, services.UploadInput{
			Parent:      parent(id),
			FileName:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Size:        -1,
			Body:        part,
		})
		part.Close()
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusCreated, attachment)
		return
	}
}

func (h *AttachmentHandler) ListForTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	views, err := h.attachmentService.ListForTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *AttachmentHandler) ListForSubTask(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	views, err := h.attachmentService.ListForSubTask(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, views)
}

func (h *AttachmentHandler) ListAll(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	page := pageFromQuery(c)
	if c.Query("sortBy") == "" {
		page.SortBy = "uploaded_at"
	}

	views, total, err := h.attachmentService.ListAll(c.Request.Context(), actor, page)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: views, Total: total, Page: page.Number, PageSize: page.Size})
}

func (h *AttachmentHandler) Download(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	attachment, body, err := h.attachmentService.Open(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	defer body.Close()

	contentType := attachment.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": attachment.FileName})

	c.DataFromReader(http.StatusOK, attachment.Size, contentType, body, map[string]string{
		"Content-Disposition":    disposition,
		"X-Content-Type-Options": "nosniff",
	})
}

func (h *AttachmentHandler) Delete(c *gin.Context) {
	actor, ok := currentIdentity(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.attachmentService.Delete(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
