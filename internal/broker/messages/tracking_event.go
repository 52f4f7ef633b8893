package messages

import (
	"time"
)

const (
	EventNFeReceived  = "nfe_received"
	EventStageReached = "stage_reached"
)

// TrackingEvent приходит из внешних систем (ERP, TMS) в топик tracking.events.
type TrackingEvent struct {
	Type              string    `json:"type"`
	TrackingID        string    `json:"trackingId"`
	DocumentReference string    `json:"documentReference,omitempty"`
	Step              string    `json:"step,omitempty"`
	Comment           string    `json:"comment,omitempty"`
	OccurredAt        time.Time `json:"occurredAt"`
}
