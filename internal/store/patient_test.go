package store

import (
	"testing"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatientAction(t *testing.T) {
	now := time.Date(2025, 11, 3, 10, 50, 0, 0, time.UTC)
	booked := models.Patient{ID: "p1", TokenNo: 2, Status: models.StatusBooked}

	waiting, err := ApplyPatientAction(booked, PatientActionInput{Action: ActionCheckIn}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, waiting.Status)
	require.NotNil(t, waiting.CheckInTime)

	late, err := ApplyPatientAction(waiting, PatientActionInput{Action: ActionMarkLate, LateBy: 12, LatePenalty: 3}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusLate, late.Status)
	assert.Equal(t, 12, late.LateBy)
	assert.Equal(t, 3, late.LatePenalty)

	consulting, err := ApplyPatientAction(late, PatientActionInput{Action: ActionStart}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInConsultation, consulting.Status)
	assert.Equal(t, now, *consulting.ConsultationStartTime)

	done, err := ApplyPatientAction(consulting, PatientActionInput{Action: ActionComplete}, now.Add(7*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.Equal(t, now.Add(7*time.Minute), *done.ConsultationEndTime)

	_, err = ApplyPatientAction(done, PatientActionInput{Action: ActionCancel}, now)
	assert.ErrorIs(t, err, ErrInvalidState)
	_, err = ApplyPatientAction(booked, PatientActionInput{Action: "teleport"}, now)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestApplyPatientActionPrioritizeChecksIn(t *testing.T) {
	now := time.Date(2025, 11, 3, 10, 50, 0, 0, time.UTC)
	p, err := ApplyPatientAction(models.Patient{ID: "p1", Status: models.StatusBooked}, PatientActionInput{Action: ActionPrioritize}, now)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPriority, p.Status)
	require.NotNil(t, p.CheckInTime)
	assert.Equal(t, now, *p.CheckInTime)
}
