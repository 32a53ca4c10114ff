package domain

import "time"

// QueueName identifies one of the three durable job queues.
type QueueName string

const (
	QueueInitialSync      QueueName = "initial-sync"
	QueueIncrementalSync  QueueName = "incremental-sync"
	QueueAttachmentUpload QueueName = "attachment-upload"
)

// JobState is the lifecycle state of a Job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobDead      JobState = "dead"
)

// Job is the durable envelope around one unit of sync work.
type Job struct {
	ID           string    `json:"id"`
	Queue        QueueName `json:"queue"`
	Payload      []byte    `json:"payload"` // JSON-encoded queue-specific payload
	AttemptCount int       `json:"attemptCount"`
	MaxAttempts  int       `json:"maxAttempts"`
	BackoffUntil time.Time `json:"backoffUntil"`
	State        JobState  `json:"state"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// InitialSyncPayload is the initial-sync queue's payload schema.
type InitialSyncPayload struct {
	AccountID string `json:"accountId"`
	Email     string `json:"email"`
}

// IncrementalSyncPayload is the incremental-sync queue's payload
// schema; Folders are canonical names previously observed successful.
type IncrementalSyncPayload struct {
	AccountID string   `json:"accountId"`
	Email     string   `json:"email"`
	Folders   []string `json:"folders"`
}

// AttachmentUploadPayload is the attachment-upload queue's payload
// schema.
type AttachmentUploadPayload struct {
	MessageID   string `json:"messageId"`
	Filename    string `json:"filename"`
	Bytes       []byte `json:"bytes"`
	ContentType string `json:"contentType"`
}
