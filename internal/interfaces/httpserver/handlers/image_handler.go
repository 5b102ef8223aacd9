package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"alt-text-server/internal/config"
	"alt-text-server/internal/domain/alttext"
	"alt-text-server/internal/infrastructure/metrics"
	"alt-text-server/internal/interfaces/httpserver/responses"
	"alt-text-server/internal/utils/apperrors"
	"alt-text-server/internal/utils/shibboleth"
)

const uploadFormField = "image_file"

// ImageHandler exposes the image upload and retrieval endpoints.
type ImageHandler struct {
	cfg     *config.Config
	service *alttext.Service
	log     zerolog.Logger
}

func NewImageHandler(cfg *config.Config, service *alttext.Service, log zerolog.Logger) *ImageHandler {
	return &ImageHandler{
		cfg:     cfg,
		service: service,
		log:     log.With().Str("component", "image-handler").Logger(),
	}
}

// Upload accepts a multipart image and always acknowledges with the record
// identity and its current status. An alt-text failure is reported through
// the status, never as an HTTP error.
func (h *ImageHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile(uploadFormField)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, responses.NewError("multipart field \"image_file\" is required"))
		return
	}
	if fileHeader.Size > h.cfg.MaxUploadBytes {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, responses.NewError("uploaded file exceeds the size limit"))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, responses.NewError("failed to read uploaded file"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxUploadBytes+1))
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusBadRequest, responses.NewError("failed to read uploaded file"))
		return
	}
	if int64(len(data)) > h.cfg.MaxUploadBytes {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		c.JSON(http.StatusRequestEntityTooLarge, responses.NewError("uploaded file exceeds the size limit"))
		return
	}

	identity := shibboleth.FromHeader(c.Request.Header)
	doc, deduped, err := h.service.Upload(c.Request.Context(), alttext.UploadInput{
		Filename: fileHeader.Filename,
		Data:     data,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Submitter: alttext.Submitter{
			FirstName: identity.FirstName,
			LastName:  identity.LastName,
			Email:     identity.Email,
			Groups:    identity.Groups,
		},
	})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		if err == alttext.ErrEmptyUpload {
			c.JSON(http.StatusBadRequest, responses.NewError(err.Error()))
			return
		}
		h.log.Error().Err(err).Msg("upload failed")
		c.JSON(http.StatusInternalServerError, responses.NewError("failed to process upload"))
		return
	}

	if deduped {
		metrics.UploadsTotal.WithLabelValues("deduplicated").Inc()
	} else {
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	}
	metrics.UploadBytesTotal.WithLabelValues(doc.MimeType).Add(float64(len(data)))

	statusCode := http.StatusCreated
	if deduped {
		statusCode = http.StatusOK
	}
	c.JSON(statusCode, responses.UploadResponse{
		ID:       doc.ID,
		Status:   doc.ProcessingStatus.String(),
		Deduped:  deduped,
		Checksum: doc.FileChecksum,
		Filename: doc.OriginalFilename,
		MimeType: doc.MimeType,
		Size:     doc.FileSize,
	})
}

// Get returns the full record report including the alt-text result.
func (h *ImageHandler) Get(c *gin.Context) {
	doc, result, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, responses.NewImageReport(doc, result))
}

// Status is the polling endpoint. Responses are never cached so clients
// observe every transition.
func (h *ImageHandler) Status(c *gin.Context) {
	doc, _, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, responses.StatusResponse{
		ID:       doc.ID,
		Status:   doc.ProcessingStatus.String(),
		Terminal: doc.ProcessingStatus.IsTerminal(),
		Error:    doc.ProcessingError,
	})
}

// File serves the stored original bytes.
func (h *ImageHandler) File(c *gin.Context) {
	doc, _, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	data, err := h.service.ReadFile(c.Request.Context(), doc)
	if err != nil {
		h.respondError(c, err)
		return
	}
	mime := doc.MimeType
	if mime == "" {
		mime = "application/octet-stream"
	}
	c.Data(http.StatusOK, mime, data)
}

// Thumbnail serves the stored WebP preview, 404 when none exists.
func (h *ImageHandler) Thumbnail(c *gin.Context) {
	doc, _, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if len(doc.Thumbnail.Bytes) == 0 {
		c.JSON(http.StatusNotFound, responses.NewError("no thumbnail available for this image"))
		return
	}
	c.Data(http.StatusOK, "image/webp", doc.Thumbnail.Bytes)
}

func (h *ImageHandler) respondError(c *gin.Context, err error) {
	if apperrors.IsNotFound(err) {
		c.JSON(http.StatusNotFound, responses.NewError(err.Error()))
		return
	}
	h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, responses.NewError("internal error"))
}
