package domain

import "time"

// DeliveryAttempt records a single outbound webhook POST made by the
// Client Webhook Deliverer for one task.
type DeliveryAttempt struct {
	AttemptNumber int
	StartedAt     time.Time
	StatusCode    int
	ResponseBody  string
	Error         string
	Success       bool
}

// DeliveryResult is the outcome handed back to the caller once the
// deliverer has exhausted its retry schedule or succeeded.
type DeliveryResult struct {
	TaskID      string
	FinalStatus string // "delivered" or "failed"
	Attempts    []DeliveryAttempt
}

// WebhookPayload is the JSON body POSTed to the client's callback URL.
type WebhookPayload struct {
	TaskID            string              `json:"taskId"`
	Status            string              `json:"status"`
	OriginalFilename  string              `json:"originalFilename"`
	CompletedAt       time.Time           `json:"completedAt"`
	ProcessingTimeMs  *int64              `json:"processingTimeMs,omitempty"`
	Transcription     *TranscriptionBlock `json:"transcription,omitempty"`
	Metadata          *WebhookMetadata    `json:"metadata,omitempty"`
	Error             string              `json:"error,omitempty"`
	IdempotencyKey    string              `json:"idempotencyKey"`
}

// TranscriptionBlock carries the assembled transcript text.
type TranscriptionBlock struct {
	Text string `json:"text"`
}

// WebhookMetadata summarizes the assembled transcript for the client.
type WebhookMetadata struct {
	TotalDuration float64 `json:"totalDuration"`
	LanguageCode  string  `json:"languageCode"`
	Confidence    float64 `json:"confidence"`
	WordCount     int     `json:"wordCount"`
	SegmentCount  int     `json:"segmentCount"`
}
