package models

import (
	"time"

	"github.com/pkg/errors"
)

type StepID string

// Этапы доставки. Порядок фиксирован и совпадает с порядком в TrackingRecord.Steps.
const (
	StepNFeReceived StepID = "nfe-received"
	StepCTeIssued   StepID = "cte-issued"
	StepLoaded      StepID = "loaded"
	StepInTransit   StepID = "in-transit"
	StepDelivered   StepID = "delivered"
)

// Отображаемые статусы записи (overallStatus).
const (
	StatusAwaitingPickup  = "Aguardando coleta"
	StatusInTransit       = "Em trânsito"
	StatusDelivered       = "Entregue"
	StatusDeliveryProblem = "Problema na entrega"
)

// DeliveryConfirmedNote: системная заметка на шаге delivered.
const DeliveryConfirmedNote = "Confirmação de entrega registrada"

var (
	ErrTrackingNotFound = errors.New("tracking not found")
	ErrTrackingExists   = errors.New("tracking already exists")
	ErrInvalidStep      = errors.New("invalid tracking step")
	ErrMissingEvidence  = errors.New("delivery evidence requires at least one photo and a signature")
	ErrMissingConfirmer = errors.New("confirmedBy is required")
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidComment   = errors.New("comment text is required")
)

type stepDef struct {
	ID   StepID
	Name string
}

var stepCatalog = []stepDef{
	{ID: StepNFeReceived, Name: "NF-e Recebida"},
	{ID: StepCTeIssued, Name: "CT-e Emitido"},
	{ID: StepLoaded, Name: "Carga Carregada"},
	{ID: StepInTransit, Name: "Em Trânsito"},
	{ID: StepDelivered, Name: "Entregue"},
}

func (id StepID) Valid() bool {
	return id.Index() >= 0
}

// Index returns the position of the step in the fixed sequence or -1.
func (id StepID) Index() int {
	for i, d := range stepCatalog {
		if d.ID == id {
			return i
		}
	}
	return -1
}

type TrackingRecord struct {
	ID                   string                `json:"id" bson:"_id"`
	DocumentReference    string                `json:"documentReference" bson:"document_reference"`
	OverallStatus        string                `json:"overallStatus" bson:"overall_status"`
	Steps                []TrackingStep        `json:"steps" bson:"steps"`
	CreatedAt            time.Time             `json:"createdAt" bson:"created_at"`
	LastUpdated          time.Time             `json:"lastUpdated" bson:"last_updated"`
	AccessCount          int64                 `json:"accessCount" bson:"access_count"`
	PublicTrackingLink   string                `json:"publicTrackingLink" bson:"public_tracking_link"`
	Comments             []Comment             `json:"comments" bson:"comments"`
	DeliveryConfirmation *DeliveryConfirmation `json:"deliveryConfirmation,omitempty" bson:"delivery_confirmation,omitempty"`

	// Revision растёт на каждой записи через UpdateTracking. Ведёт его репозиторий.
	Revision int64 `json:"revision" bson:"revision"`
}

type TrackingStep struct {
	ID        StepID     `json:"id" bson:"id"`
	Name      string     `json:"name" bson:"name"`
	Timestamp *time.Time `json:"timestamp" bson:"timestamp"`
	Completed bool       `json:"completed" bson:"completed"`
	Active    bool       `json:"active" bson:"active"`
	Comments  []string   `json:"comments,omitempty" bson:"comments,omitempty"`
}

type Comment struct {
	ID         string    `json:"id" bson:"id"`
	AuthorName string    `json:"authorName" bson:"author_name"`
	Text       string    `json:"text" bson:"text"`
	Timestamp  time.Time `json:"timestamp" bson:"timestamp"`
}

type DeliveryConfirmation struct {
	ConfirmedBy  string    `json:"confirmedBy" bson:"confirmed_by"`
	ConfirmedAt  time.Time `json:"confirmedAt" bson:"confirmed_at"`
	PhotoURL     string    `json:"photoUrl,omitempty" bson:"photo_url,omitempty"`
	SignatureURL string    `json:"signatureUrl,omitempty" bson:"signature_url,omitempty"`
	PhotoURLs    []string  `json:"photoUrls,omitempty" bson:"photo_urls,omitempty"`
}

type TrackingFilter struct {
	Status string
	Limit  int
	Offset int
}

// NewSteps builds the five stages in their fixed order, all pending.
func NewSteps() []TrackingStep {
	out := make([]TrackingStep, 0, len(stepCatalog))
	for _, d := range stepCatalog {
		out = append(out, TrackingStep{ID: d.ID, Name: d.Name})
	}
	return out
}

// Step returns a pointer into r.Steps for the given id, or nil.
func (r *TrackingRecord) Step(id StepID) *TrackingStep {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i]
		}
	}
	return nil
}

// ActiveStep returns the single active step, or nil.
func (r *TrackingRecord) ActiveStep() *TrackingStep {
	for i := range r.Steps {
		if r.Steps[i].Active {
			return &r.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy; mutations on the copy never leak into r.
func (r *TrackingRecord) Clone() *TrackingRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.Steps = make([]TrackingStep, len(r.Steps))
	for i, s := range r.Steps {
		cs := s
		if s.Timestamp != nil {
			ts := *s.Timestamp
			cs.Timestamp = &ts
		}
		if s.Comments != nil {
			cs.Comments = append([]string(nil), s.Comments...)
		}
		c.Steps[i] = cs
	}
	if r.Comments != nil {
		c.Comments = append([]Comment(nil), r.Comments...)
	}
	if r.DeliveryConfirmation != nil {
		dc := *r.DeliveryConfirmation
		if dc.PhotoURLs != nil {
			dc.PhotoURLs = append([]string(nil), dc.PhotoURLs...)
		}
		c.DeliveryConfirmation = &dc
	}
	return &c
}
