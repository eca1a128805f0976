// Package handler exposes the HTTP surface of the service.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docuquery-go/internal/middleware"
	"docuquery-go/internal/model"
	"docuquery-go/internal/service"
	"docuquery-go/pkg/log"
)

// IngestionHandler handles document submission and status polling.
type IngestionHandler struct {
	ingestionService service.IngestionService
}

// NewIngestionHandler creates an IngestionHandler.
func NewIngestionHandler(ingestionService service.IngestionService) *IngestionHandler {
	return &IngestionHandler{ingestionService: ingestionService}
}

type jobResponse struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	Namespace  string `json:"namespace"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	Error      string `json:"error,omitempty"`
}

func toJobResponse(job *model.IngestionJob) jobResponse {
	return jobResponse{
		JobID:      job.JobID,
		DocumentID: job.DocumentID,
		Namespace:  job.Namespace,
		Status:     job.Status,
		ChunkCount: job.ChunkCount,
		Error:      job.Error,
	}
}

// Submit accepts a reference to an already stored document and responds
// 202 with the job identity; processing continues in the background.
func (h *IngestionHandler) Submit(c *gin.Context) {
	ownerID := middleware.OwnerID(c)

	var req service.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id, object_name and filename are required"})
		return
	}
	log.Infof("[IngestionHandler] received submission, document: %s, file: %s, owner: %s", req.DocumentID, req.FileName, ownerID)

	job, err := h.ingestionService.Submit(c.Request.Context(), ownerID, req)
	switch {
	case errors.Is(err, model.ErrJobAlreadyActive):
		// The document is already being ingested; point the caller at
		// the job in flight when it is known.
		if job != nil {
			c.JSON(http.StatusConflict, toJobResponse(job))
			return
		}
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrUnsupportedFileType):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case err != nil:
		log.Errorf("[IngestionHandler] submit failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "submission failed"})
	default:
		c.JSON(http.StatusAccepted, toJobResponse(job))
	}
}

// Status reports the latest ingestion job for a document.
func (h *IngestionHandler) Status(c *gin.Context) {
	ownerID := middleware.OwnerID(c)
	documentID := c.Param("documentId")

	job, err := h.ingestionService.Status(c.Request.Context(), ownerID, documentID)
	if errors.Is(err, model.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	if err != nil {
		log.Errorf("[IngestionHandler] status lookup failed, document: %s: %v", documentID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, toJobResponse(job))
}
