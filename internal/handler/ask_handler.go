package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docuquery-go/internal/middleware"
	"docuquery-go/internal/service"
	"docuquery-go/pkg/log"
)

// AskHandler answers batch questions over an ingested namespace.
type AskHandler struct {
	answerService service.AnswerService
}

// NewAskHandler creates an AskHandler.
func NewAskHandler(answerService service.AnswerService) *AskHandler {
	return &AskHandler{answerService: answerService}
}

type askRequest struct {
	Namespace string   `json:"namespace" binding:"required"`
	Questions []string `json:"questions" binding:"required,min=1"`
}

// Ask runs every question of the request and returns one result per
// question, failures included.
func (h *AskHandler) Ask(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "namespace and at least one question are required"})
		return
	}
	log.Infof("[AskHandler] received %d questions, namespace: %s, owner: %s", len(req.Questions), req.Namespace, ownerID)

	answers := h.answerService.Ask(c.Request.Context(), ownerID, req.Namespace, req.Questions)
	c.JSON(http.StatusOK, gin.H{"answers": answers})
}
