package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/kart-io/logger"

	"github.com/kart-io/docchat/internal/docchat/biz"
	"github.com/kart-io/docchat/internal/docchat/docstore"
	"github.com/kart-io/docchat/pkg/errors"
	"github.com/kart-io/docchat/pkg/utils/json"
)

// wsMessage is the message envelope on the chat socket. Inbound messages
// that fail to parse as JSON are tolerated as bare question text.
type wsMessage struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

const (
	wsTypeQuestion = "question"
	wsTypeAnswer   = "answer"
	wsTypeError    = "error"

	wsWriteTimeout = 10 * time.Second
)

// ChatHandler serves the conversational WebSocket endpoint. Each connection
// gets its own session built from the user's stored documents; the session
// is closed when the connection drops.
type ChatHandler struct {
	registry *biz.SessionRegistry
	docs     *docstore.Store
	upgrader websocket.Upgrader
}

// NewChatHandler creates a ChatHandler.
func NewChatHandler(registry *biz.SessionRegistry, docs *docstore.Store) *ChatHandler {
	return &ChatHandler{
		registry: registry,
		docs:     docs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 浏览器客户端跨域连接由部署层控制。
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Chat upgrades the connection and runs the question/answer loop.
//
// GET /ws/chat?user_id=...
func (h *ChatHandler) Chat(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		WriteError(c, errors.ErrQuestionInvalid.WithMessage("user_id is required"))
		return
	}

	text, err := h.docs.ContentForUser(c.Request.Context(), userID)
	if err != nil {
		WriteError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnw("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.Close()

	// 连接级写锁：回答和错误消息可能并发写。
	var writeMu sync.Mutex
	send := func(msgType, content string) {
		payload, err := json.Marshal(wsMessage{Type: msgType, Content: content})
		if err != nil {
			return
		}
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Debugw("websocket write failed", "error", err.Error())
		}
	}

	session, err := h.registry.Create(c.Request.Context(), userID, text)
	if err != nil {
		logger.Warnw("websocket session create failed", "user_id", userID, "error", err.Error())
		send(wsTypeError, errors.FromError(err).Message("en"))
		return
	}
	defer func() {
		if err := h.registry.Close(session.ID); err != nil {
			logger.Debugw("websocket session already closed", "session_id", session.ID)
		}
	}()

	logger.Infow("websocket chat started",
		"session_id", session.ID,
		"user_id", userID,
		"chunks", session.Engine.ChunkCount(),
	)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugw("websocket closed unexpectedly", "session_id", session.ID, "error", err.Error())
			}
			return
		}

		question := parseQuestion(data)
		if question == "" {
			continue
		}

		result, err := session.Engine.Answer(context.Background(), question)
		if err != nil {
			// 失败也以 answer 消息回传兜底文案，保持对话不中断。
			send(wsTypeAnswer, biz.FallbackMessage(err))
			if errors.IsCode(err, errors.ErrSessionClosed.Code) {
				return
			}
			continue
		}

		send(wsTypeAnswer, result.Answer)
	}
}

// parseQuestion extracts the question from an inbound frame. JSON frames
// must be question-typed; anything unparseable is treated as raw text.
func parseQuestion(data []byte) string {
	var msg wsMessage
	if err := json.Unmarshal(data, &msg); err == nil && msg.Type != "" {
		if msg.Type != wsTypeQuestion {
			return ""
		}
		return strings.TrimSpace(msg.Content)
	}
	return strings.TrimSpace(string(data))
}
