package handler

import (
	"io"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/docstore"
	"github.com/kart-io/docchat/internal/pkg/pdfutil"
	"github.com/kart-io/docchat/pkg/errors"
)

// DocumentHandler handles PDF upload and listing.
type DocumentHandler struct {
	docs          *docstore.Store
	maxUploadSize int64
}

// NewDocumentHandler creates a DocumentHandler.
func NewDocumentHandler(docs *docstore.Store, maxUploadSize int64) *DocumentHandler {
	return &DocumentHandler{
		docs:          docs,
		maxUploadSize: maxUploadSize,
	}
}

// Upload accepts a multipart PDF upload for a user, extracts its text and
// persists it.
//
// POST /v1/documents  (form fields: user_id, file)
func (h *DocumentHandler) Upload(c *gin.Context) {
	userID := c.PostForm("user_id")
	if userID == "" {
		WriteError(c, errors.ErrDocumentInvalid.WithMessage("user_id is required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		WriteError(c, errors.ErrDocumentInvalid.WithMessage("file is required"))
		return
	}
	if err := pdfutil.ValidateFilename(fileHeader.Filename); err != nil {
		WriteError(c, err)
		return
	}
	if h.maxUploadSize > 0 && fileHeader.Size > h.maxUploadSize {
		WriteError(c, errors.ErrDocumentInvalid.WithMessagef(
			"file exceeds the %d byte upload limit", h.maxUploadSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		WriteError(c, errors.ErrDocumentInvalid.WithCause(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		WriteError(c, errors.ErrDocumentInvalid.WithCause(err))
		return
	}

	text, err := pdfutil.ExtractText(data)
	if err != nil {
		WriteError(c, err)
		return
	}

	doc, err := h.docs.Save(c.Request.Context(), userID, fileHeader.Filename, text)
	if err != nil {
		WriteError(c, err)
		return
	}

	logger.Infow("document uploaded",
		"document_id", doc.ID,
		"user_id", userID,
		"filename", fileHeader.Filename,
		"text_length", len(text),
	)

	WriteSuccess(c, docstore.DocumentInfo{
		ID:        doc.ID,
		Filename:  doc.Filename,
		Size:      len(doc.Content),
		CreatedAt: doc.CreatedAt,
	})
}

// List returns a user's stored documents.
//
// GET /v1/documents/:user_id
func (h *DocumentHandler) List(c *gin.Context) {
	userID := c.Param("user_id")

	docs, err := h.docs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		WriteError(c, err)
		return
	}

	WriteSuccess(c, docs)
}
