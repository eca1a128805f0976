package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"docuquery-go/internal/middleware"
	"docuquery-go/internal/service"
	"docuquery-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// StreamHandler serves the websocket ask endpoint: one question per
// client message, the answer streamed back chunk by chunk.
type StreamHandler struct {
	answerService service.AnswerService
}

// NewStreamHandler creates a StreamHandler.
func NewStreamHandler(answerService service.AnswerService) *StreamHandler {
	return &StreamHandler{answerService: answerService}
}

type streamQuestion struct {
	Namespace string `json:"namespace"`
	Question  string `json:"question"`
}

// wsWriterInterceptor wraps the websocket connection so the full answer
// text can be captured while chunks are forwarded to the client.
type wsWriterInterceptor struct {
	conn   *websocket.Conn
	answer *strings.Builder
}

func (w *wsWriterInterceptor) WriteMessage(messageType int, data []byte) error {
	w.answer.Write(data)
	return w.conn.WriteMessage(messageType, data)
}

// Handle upgrades the connection and serves questions until the client
// disconnects.
func (h *StreamHandler) Handle(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Errorf("[StreamHandler] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()
	log.Infof("[StreamHandler] websocket connected, owner: %s", ownerID)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Warnf("[StreamHandler] websocket read failed: %v", err)
			break
		}

		var q streamQuestion
		if err := json.Unmarshal(message, &q); err != nil || q.Namespace == "" || q.Question == "" {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"namespace and question are required"}`))
			continue
		}

		interceptor := &wsWriterInterceptor{conn: conn, answer: &strings.Builder{}}
		if err := h.answerService.AskStream(c.Request.Context(), ownerID, q.Namespace, q.Question, interceptor); err != nil {
			log.Errorf("[StreamHandler] streaming answer failed, question: %q: %v", q.Question, err)
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"answer generation failed"}`))
			continue
		}
		log.Infof("[StreamHandler] streamed answer, question: %q, length: %d", q.Question, interceptor.answer.Len())

		if err := conn.WriteMessage(websocket.TextMessage, []byte("[DONE]")); err != nil {
			break
		}
	}
}
