package trackings

import (
	"time"

	"github.com/BearBump/CargoTrack/internal/models"
)

// activateOnly makes steps[idx] the single active step. Every mutation path
// that activates a step goes through here.
func activateOnly(steps []models.TrackingStep, idx int) {
	for i := range steps {
		steps[i].Active = i == idx
	}
}

// applyStepUpdate applies one transition to rec in place. rec must be a private copy.
func applyStepUpdate(rec *models.TrackingRecord, upd StepUpdate, now time.Time) error {
	idx := upd.StepID.Index()
	if idx < 0 || idx >= len(rec.Steps) || rec.Steps[idx].ID != upd.StepID {
		return ErrInvalidStep
	}
	step := &rec.Steps[idx]

	wasCompleted, wasActive := step.Completed, step.Active
	// completed монотонен: true -> false не бывает.
	step.Completed = step.Completed || upd.Completed
	step.Active = upd.Active

	newlyCompleted := step.Completed && !wasCompleted
	newlyActive := step.Active && !wasActive
	if newlyCompleted || newlyActive || ((step.Completed || step.Active) && step.Timestamp == nil) {
		ts := now
		step.Timestamp = &ts
	}

	if upd.Active {
		activateOnly(rec.Steps, idx)
	}

	if upd.Comment != "" {
		step.Comments = append(step.Comments, upd.Comment)
	}

	if upd.StepID == models.StepDelivered && step.Completed {
		rec.OverallStatus = models.StatusDelivered
	}
	return nil
}

// completeDelivery marks the delivered step done once. Returns false when it
// was already completed and nothing changed.
func completeDelivery(rec *models.TrackingRecord, now time.Time) bool {
	idx := models.StepDelivered.Index()
	if idx < 0 || idx >= len(rec.Steps) {
		return false
	}
	step := &rec.Steps[idx]
	if step.Completed {
		return false
	}
	ts := now
	step.Completed = true
	step.Timestamp = &ts
	step.Comments = append(step.Comments, models.DeliveryConfirmedNote)
	activateOnly(rec.Steps, idx)
	return true
}
