package queue

import (
	"slices"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
)

// SlotTime is the scheduled start of a token's slot within the session.
func SlotTime(w schedule.Window, slot time.Duration, token int) time.Time {
	if token < 1 {
		return w.Start
	}
	return w.Start.Add(time.Duration(token-1) * slot)
}

type LateMark struct {
	PatientID string `json:"patient_id"`
	TokenNo   int    `json:"token_no"`
	LateBy    int    `json:"late_by"`
}

// Progress is the token the doctor has reached in the session: the token in
// consultation, else the highest completed token. Zero means nobody seen yet.
func Progress(patients []models.Patient, w schedule.Window) int {
	progress := 0
	for _, p := range patients {
		if !w.Contains(p.AppointmentTime) {
			continue
		}
		if p.Status == models.StatusInConsultation {
			return p.TokenNo
		}
		if p.Status == models.StatusCompleted && p.TokenNo > progress {
			progress = p.TokenNo
		}
	}
	return progress
}

// DetectLate lists waiting patients who checked in after their slot time and
// whose token the doctor has already passed.
func DetectLate(patients []models.Patient, w schedule.Window, slot time.Duration) []LateMark {
	progress := Progress(patients, w)
	if progress == 0 {
		return nil
	}

	var marks []LateMark
	for _, p := range patients {
		if p.Status != models.StatusWaiting || p.CheckInTime == nil || !w.Contains(p.AppointmentTime) {
			continue
		}
		if p.TokenNo >= progress {
			continue
		}
		due := SlotTime(w, slot, p.TokenNo)
		if !p.CheckInTime.After(due) {
			continue
		}
		marks = append(marks, LateMark{
			PatientID: p.ID,
			TokenNo:   p.TokenNo,
			LateBy:    int(p.CheckInTime.Sub(due) / time.Minute),
		})
	}
	slices.SortFunc(marks, func(a, b LateMark) int { return a.TokenNo - b.TokenNo })
	return marks
}
