package stageworker

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BearBump/CargoTrack/internal/broker/kafka"
	"github.com/BearBump/CargoTrack/internal/broker/messages"
	"github.com/BearBump/CargoTrack/internal/models"
	"github.com/BearBump/CargoTrack/internal/services/notify"
	"github.com/BearBump/CargoTrack/internal/services/trackings"
	"github.com/pkg/errors"
)

const autoStageComment = "Status atualizado automaticamente"

type Service interface {
	CreateTracking(ctx context.Context, in trackings.CreateInput) (*models.TrackingRecord, error)
	UpdateTrackingStep(ctx context.Context, id string, upd trackings.StepUpdate) (*models.TrackingRecord, error)
	LoadTracking(ctx context.Context, id string) (*models.TrackingRecord, error)
}

type Consumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, msg kafka.Message) error) error
}

// errSkip marks events that can never be applied; they are dropped so a single
// bad message does not block the partition.
var errSkip = errors.New("skip event")

type Worker struct {
	svc      Service
	consumer Consumer
	notifier notify.Notifier
	backoff  *Backoff
	sleep    func(ctx context.Context, d time.Duration) error

	startedAtUnixNano int64
	lastEventUnixNano atomic.Int64
	totalReceived     atomic.Int64
	totalApplied      atomic.Int64
	totalSkipped      atomic.Int64
	totalDuplicates   atomic.Int64
	totalRetries      atomic.Int64
	totalErrors       atomic.Int64
	lastErrorMu       sync.Mutex
	lastError         string
}

func New(svc Service, consumer Consumer) *Worker {
	return &Worker{
		svc:               svc,
		consumer:          consumer,
		notifier:          notify.Noop{},
		backoff:           NewBackoff(DefaultBackoffConfig()),
		sleep:             sleepCtx,
		startedAtUnixNano: time.Now().UTC().UnixNano(),
	}
}

func (w *Worker) WithBackoff(cfg BackoffConfig) *Worker {
	w.backoff = NewBackoff(cfg)
	return w
}

func (w *Worker) WithNotifier(n notify.Notifier) *Worker {
	if n != nil {
		w.notifier = n
	}
	return w
}

type Stats struct {
	StartedAt       time.Time  `json:"startedAt"`
	LastEventAt     *time.Time `json:"lastEventAt,omitempty"`
	TotalReceived   int64      `json:"totalReceived"`
	TotalApplied    int64      `json:"totalApplied"`
	TotalSkipped    int64      `json:"totalSkipped"`
	TotalDuplicates int64      `json:"totalDuplicates"`
	TotalRetries    int64      `json:"totalRetries"`
	TotalErrors     int64      `json:"totalErrors"`
	LastError       string     `json:"lastError,omitempty"`
}

func (w *Worker) Stats() Stats {
	st := Stats{
		StartedAt:       time.Unix(0, w.startedAtUnixNano).UTC(),
		TotalReceived:   w.totalReceived.Load(),
		TotalApplied:    w.totalApplied.Load(),
		TotalSkipped:    w.totalSkipped.Load(),
		TotalDuplicates: w.totalDuplicates.Load(),
		TotalRetries:    w.totalRetries.Load(),
		TotalErrors:     w.totalErrors.Load(),
	}
	if n := w.lastEventUnixNano.Load(); n > 0 {
		t := time.Unix(0, n).UTC()
		st.LastEventAt = &t
	}
	w.lastErrorMu.Lock()
	st.LastError = w.lastError
	w.lastErrorMu.Unlock()
	return st
}

func (w *Worker) Run(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handle)
}

func (w *Worker) handle(ctx context.Context, msg kafka.Message) error {
	w.totalReceived.Add(1)
	w.lastEventUnixNano.Store(time.Now().UTC().UnixNano())

	var ev messages.TrackingEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		w.skip(string(msg.Key), errors.Wrap(err, "decode tracking event"))
		return nil
	}
	if ev.TrackingID == "" {
		ev.TrackingID = string(msg.Key)
	}

	for attempt := 1; ; attempt++ {
		err := w.apply(ctx, ev)
		if err == nil {
			w.totalApplied.Add(1)
			return nil
		}
		if isDomainError(err) {
			w.skip(ev.TrackingID, err)
			return nil
		}

		w.recordError(err)
		slog.Error("apply tracking event", "tracking_id", ev.TrackingID, "type", ev.Type, "attempt", attempt, "error", err.Error())
		if attempt >= w.backoff.MaxAttempts() {
			// offset не коммитим, событие будет перечитано после рестарта.
			return errors.Wrapf(err, "apply event %s for %s", ev.Type, ev.TrackingID)
		}
		w.totalRetries.Add(1)
		if err := w.sleep(ctx, w.backoff.Delay(attempt)); err != nil {
			return err
		}
	}
}

func (w *Worker) apply(ctx context.Context, ev messages.TrackingEvent) error {
	switch ev.Type {
	case messages.EventNFeReceived:
		rec, err := w.svc.CreateTracking(ctx, trackings.CreateInput{
			ID:                ev.TrackingID,
			DocumentReference: ev.DocumentReference,
		})
		if errors.Is(err, trackings.ErrAlreadyExists) {
			// повторная доставка того же события
			return nil
		}
		if err != nil {
			return err
		}
		notify.Send(ctx, w.notifier, notify.Success(notify.OpCreate, rec))
		return nil

	case messages.EventStageReached:
		comment := strings.TrimSpace(ev.Comment)
		if comment == "" {
			comment = autoStageComment
		}
		step := models.StepID(ev.Step)

		// Предыдущая попытка или повторная доставка могла уже записать шаг,
		// даже если вернула ошибку. Перед мутацией читаем свежее состояние.
		cur, err := w.svc.LoadTracking(ctx, ev.TrackingID)
		if err != nil {
			return err
		}
		if stageApplied(cur, step, comment) {
			w.totalDuplicates.Add(1)
			slog.Info("stage event already applied", "tracking_id", ev.TrackingID, "step", ev.Step)
			return nil
		}

		rec, err := w.svc.UpdateTrackingStep(ctx, ev.TrackingID, trackings.StepUpdate{
			StepID:    step,
			Completed: true,
			Active:    true,
			Comment:   comment,
		})
		if err != nil {
			return err
		}
		notify.Send(ctx, w.notifier, notify.Success(notify.OpStep, rec))
		return nil

	default:
		return errors.Wrapf(errSkip, "unknown event type %q", ev.Type)
	}
}

// stageApplied reports whether the step is already completed and carries the
// event's comment, i.e. this event (or an identical one) has been written.
func stageApplied(rec *models.TrackingRecord, step models.StepID, comment string) bool {
	st := rec.Step(step)
	if st == nil || !st.Completed {
		return false
	}
	for _, c := range st.Comments {
		if c == comment {
			return true
		}
	}
	return false
}

func (w *Worker) skip(trackingID string, err error) {
	w.totalSkipped.Add(1)
	w.recordError(err)
	slog.Warn("skip tracking event", "tracking_id", trackingID, "error", err.Error())
}

func (w *Worker) recordError(err error) {
	w.totalErrors.Add(1)
	w.lastErrorMu.Lock()
	w.lastError = err.Error()
	w.lastErrorMu.Unlock()
}

func isDomainError(err error) bool {
	for _, target := range []error{
		errSkip,
		trackings.ErrNotFound,
		trackings.ErrInvalidStep,
		trackings.ErrInvalidInput,
		trackings.ErrInvalidComment,
		trackings.ErrMissingConfirmer,
		trackings.ErrMissingEvidence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
