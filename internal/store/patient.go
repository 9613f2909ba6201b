package store

import (
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
)

// ApplyPatientAction returns p as it is after input.Action at now.
func ApplyPatientAction(p models.Patient, input PatientActionInput, now time.Time) (models.Patient, error) {
	to, ok := TargetStatus(input.Action)
	if !ok {
		return models.Patient{}, ErrInvalidAction
	}
	if !ValidTransition(input.Action, p.Status) {
		return models.Patient{}, ErrInvalidState
	}

	switch input.Action {
	case ActionCheckIn:
		p.CheckInTime = &now
	case ActionPrioritize:
		if p.CheckInTime == nil {
			p.CheckInTime = &now
		}
	case ActionMarkLate:
		p.LateBy = input.LateBy
		p.LatePenalty = input.LatePenalty
	case ActionStart:
		p.ConsultationStartTime = &now
	case ActionComplete:
		p.ConsultationEndTime = &now
	}
	p.Status = to
	return p, nil
}
