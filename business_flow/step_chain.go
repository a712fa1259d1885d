package businessflow

import (
	"time"

	"github.com/zapcrm/followup-engine/models"
)

// The step chain resolver is the single module deciding how a chain
// progresses. Both the monitor pass (first step) and the fire pass (advance,
// loop restart) go through these functions.

// FirstStep returns the step with the smallest step_order, or nil when the
// config has no steps.
func FirstStep(steps []models.FollowupStep) *models.FollowupStep {
	return NextStep(steps, 0)
}

// NextStep returns the step with the smallest step_order strictly greater
// than currentOrder, or nil when the chain is exhausted. Steps are matched by
// order, not slice index, so gaps in step_order are tolerated.
func NextStep(steps []models.FollowupStep, currentOrder int) *models.FollowupStep {
	var next *models.FollowupStep
	for i := range steps {
		s := &steps[i]
		if s.StepOrder <= currentOrder {
			continue
		}
		if next == nil || s.StepOrder < next.StepOrder {
			next = s
		}
	}
	return next
}

// ComputeScheduledTime returns the fire time for a step relative to now.
// Days use calendar arithmetic ("same time tomorrow"), not fixed 24h blocks.
func ComputeScheduledTime(now time.Time, step *models.FollowupStep) (time.Time, error) {
	switch step.StepUnit {
	case models.StepUnitMinutes:
		return now.Add(time.Duration(step.StepValue) * time.Minute), nil
	case models.StepUnitHours:
		return now.Add(time.Duration(step.StepValue) * time.Hour), nil
	case models.StepUnitDays:
		return now.AddDate(0, 0, step.StepValue), nil
	default:
		return time.Time{}, NewBusinessErrorf("INVALID_STEP_UNIT", "step %d has unknown unit %q", ErrInvalidStepUnit, step.ID, step.StepUnit)
	}
}
