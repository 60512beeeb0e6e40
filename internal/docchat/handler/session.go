package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/pkg/errors"
)

// SessionHandler handles the REST session lifecycle.
type SessionHandler struct {
	registry *biz.SessionRegistry
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(registry *biz.SessionRegistry) *SessionHandler {
	return &SessionHandler{registry: registry}
}

// CreateSessionRequest carries the raw document text for an ad-hoc session.
// Empty text is a valid session over an empty corpus: it answers with the
// no-context fallback.
type CreateSessionRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

// SessionInfo describes a session for API responses.
type SessionInfo struct {
	SessionID     string    `json:"session_id"`
	UserID        string    `json:"user_id,omitempty"`
	State         string    `json:"state"`
	ChunkCount    int       `json:"chunk_count"`
	ExchangeCount int       `json:"exchange_count"`
	CreatedAt     time.Time `json:"created_at"`
	LastActive    time.Time `json:"last_active"`
}

func sessionInfo(s *biz.Session) SessionInfo {
	return SessionInfo{
		SessionID:     s.ID,
		UserID:        s.UserID,
		State:         s.Engine.State().String(),
		ChunkCount:    s.Engine.ChunkCount(),
		ExchangeCount: s.Engine.ExchangeCount(),
		CreatedAt:     s.CreatedAt,
		LastActive:    s.Engine.LastActive(),
	}
}

// Create builds a session from raw text in the request body.
//
// POST /v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, errors.ErrDocumentInvalid.WithMessage("invalid request body"))
		return
	}

	session, err := h.registry.Create(c.Request.Context(), req.UserID, req.Text)
	if err != nil {
		WriteError(c, err)
		return
	}

	WriteSuccess(c, sessionInfo(session))
}

// AskRequest carries one question for a session.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// AskResponse carries the answer and its supporting chunks.
type AskResponse struct {
	Answer  string            `json:"answer"`
	Sources []biz.SourceChunk `json:"sources,omitempty"`
}

// Ask answers one question on an existing session.
//
// POST /v1/sessions/:session_id/questions
func (h *SessionHandler) Ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteError(c, errors.ErrQuestionInvalid.WithMessage("question is required"))
		return
	}

	session, err := h.registry.Get(c.Param("session_id"))
	if err != nil {
		WriteError(c, err)
		return
	}

	result, err := session.Engine.Answer(c.Request.Context(), req.Question)
	if err != nil {
		WriteError(c, err)
		return
	}

	WriteSuccess(c, AskResponse{Answer: result.Answer, Sources: result.Sources})
}

// Stats returns one session's state and counters.
//
// GET /v1/sessions/:session_id
func (h *SessionHandler) Stats(c *gin.Context) {
	session, err := h.registry.Get(c.Param("session_id"))
	if err != nil {
		WriteError(c, err)
		return
	}

	WriteSuccess(c, sessionInfo(session))
}

// Delete closes and releases a session.
//
// DELETE /v1/sessions/:session_id
func (h *SessionHandler) Delete(c *gin.Context) {
	if err := h.registry.Close(c.Param("session_id")); err != nil {
		WriteError(c, err)
		return
	}

	WriteSuccess(c, nil)
}
