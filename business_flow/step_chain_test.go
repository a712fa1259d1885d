package businessflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zapcrm/followup-engine/models"
)

func steps(orders ...int) []models.FollowupStep {
	out := make([]models.FollowupStep, 0, len(orders))
	for i, o := range orders {
		out = append(out, models.FollowupStep{
			ID:        uint(i + 1),
			StepOrder: o,
			StepUnit:  models.StepUnitMinutes,
			StepValue: 30,
		})
	}
	return out
}

func TestFirstStep(t *testing.T) {
	assert.Nil(t, FirstStep(nil))
	assert.Nil(t, FirstStep([]models.FollowupStep{}))

	// Order decides, not slice position
	chain := steps(3, 1, 2)
	first := FirstStep(chain)
	require.NotNil(t, first)
	assert.Equal(t, 1, first.StepOrder)
}

func TestNextStep(t *testing.T) {
	chain := steps(1, 2, 3)

	next := NextStep(chain, 1)
	require.NotNil(t, next)
	assert.Equal(t, 2, next.StepOrder)

	next = NextStep(chain, 2)
	require.NotNil(t, next)
	assert.Equal(t, 3, next.StepOrder)

	// Chain exhausted
	assert.Nil(t, NextStep(chain, 3))
	assert.Nil(t, NextStep(chain, 99))
}

func TestNextStepToleratesGaps(t *testing.T) {
	chain := steps(1, 5, 10)

	next := NextStep(chain, 1)
	require.NotNil(t, next)
	assert.Equal(t, 5, next.StepOrder)

	next = NextStep(chain, 5)
	require.NotNil(t, next)
	assert.Equal(t, 10, next.StepOrder)

	// currentOrder between gaps still finds the following step
	next = NextStep(chain, 3)
	require.NotNil(t, next)
	assert.Equal(t, 5, next.StepOrder)
}

func TestComputeScheduledTimeMinutesAndHours(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	at, err := ComputeScheduledTime(now, &models.FollowupStep{StepUnit: models.StepUnitMinutes, StepValue: 45})
	require.NoError(t, err)
	assert.Equal(t, now.Add(45*time.Minute), at)

	at, err = ComputeScheduledTime(now, &models.FollowupStep{StepUnit: models.StepUnitHours, StepValue: 6})
	require.NoError(t, err)
	assert.Equal(t, now.Add(6*time.Hour), at)
}

func TestComputeScheduledTimeDaysUseCalendarArithmetic(t *testing.T) {
	// Month rollover keeps the wall-clock time
	now := time.Date(2024, 1, 31, 9, 15, 0, 0, time.UTC)

	at, err := ComputeScheduledTime(now, &models.FollowupStep{StepUnit: models.StepUnitDays, StepValue: 1})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 9, 15, 0, 0, time.UTC), at)

	at, err = ComputeScheduledTime(now, &models.FollowupStep{StepUnit: models.StepUnitDays, StepValue: 30})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 9, 15, 0, 0, time.UTC), at)
}

func TestComputeScheduledTimeRejectsUnknownUnit(t *testing.T) {
	now := time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC)

	_, err := ComputeScheduledTime(now, &models.FollowupStep{StepUnit: "weeks", StepValue: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidStepUnit)
}
