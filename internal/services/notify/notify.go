package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/BearBump/CargoTrack/internal/broker/messages"
	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/pkg/errors"
)

const DefaultTopic = "tracking.notifications"

// Операции, о которых сообщаем.
const (
	OpCreate   = "createTracking"
	OpStep     = "updateTrackingStep"
	OpComment  = "addComment"
	OpDelivery = "addDeliveryConfirmation"
)

type Notifier interface {
	Notify(ctx context.Context, o messages.OperationOutcome) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

type Noop struct{}

func (Noop) Notify(context.Context, messages.OperationOutcome) error { return nil }

type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafka(p Producer, topic string) *KafkaNotifier {
	if topic == "" {
		topic = DefaultTopic
	}
	return &KafkaNotifier{producer: p, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, o messages.OperationOutcome) error {
	if o.OccurredAt.IsZero() {
		o.OccurredAt = time.Now().UTC()
	}
	b, err := json.Marshal(o)
	if err != nil {
		return errors.Wrap(err, "marshal outcome")
	}
	return n.producer.Publish(ctx, n.topic, []byte(o.TrackingID), b)
}

var titles = map[string][2]string{
	OpCreate:   {"Rastreamento criado", "O rastreamento foi cadastrado com sucesso."},
	OpStep:     {"Status atualizado", "A timeline foi atualizada com sucesso."},
	OpComment:  {"Comentário adicionado", "O comentário foi registrado."},
	OpDelivery: {"Entrega confirmada", "A confirmação de entrega foi registrada."},
}

// Success builds the outcome of a completed operation.
func Success(op string, rec *models.TrackingRecord) messages.OperationOutcome {
	t := titles[op]
	o := messages.OperationOutcome{
		Operation:   op,
		Result:      messages.OutcomeSuccess,
		Title:       t[0],
		Description: t[1],
		OccurredAt:  time.Now().UTC(),
	}
	if rec != nil {
		o.TrackingID = rec.ID
		o.OverallStatus = rec.OverallStatus
		if st := rec.ActiveStep(); st != nil {
			o.ActiveStep = string(st.ID)
		}
	}
	return o
}

func Failure(op, trackingID string, err error) messages.OperationOutcome {
	desc := "Não foi possível concluir a operação. Tente novamente."
	if err != nil {
		desc = err.Error()
	}
	return messages.OperationOutcome{
		Operation:   op,
		TrackingID:  trackingID,
		Result:      messages.OutcomeError,
		Title:       "Erro",
		Description: desc,
		OccurredAt:  time.Now().UTC(),
	}
}

// Send never fails the caller: notification problems are only logged.
func Send(ctx context.Context, n Notifier, o messages.OperationOutcome) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, o); err != nil {
		slog.Warn("notify outcome", "operation", o.Operation, "tracking_id", o.TrackingID, "error", err.Error())
	}
}
