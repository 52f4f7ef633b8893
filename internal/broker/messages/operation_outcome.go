package messages

import (
	"time"
)

const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// OperationOutcome публикуется в tracking.notifications после каждой операции API.
type OperationOutcome struct {
	Operation     string    `json:"operation"`
	TrackingID    string    `json:"trackingId,omitempty"`
	Result        string    `json:"result"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	OverallStatus string    `json:"overallStatus,omitempty"`
	ActiveStep    string    `json:"activeStep,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}
