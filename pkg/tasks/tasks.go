// Package tasks defines the message payloads exchanged over Kafka.
package tasks

// IngestionTask is the payload for one document ingestion job.
type IngestionTask struct {
	JobID      string `json:"job_id"`
	DocumentID string `json:"document_id"`
	OwnerID    string `json:"owner_id"`
	FileName   string `json:"file_name"`
	ObjectName string `json:"object_name"`
	Namespace  string `json:"namespace"`
}
