package store

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
)

var ErrBrokenChain = errors.New("patient event chain broken")

type PatientEvent struct {
	PatientID string          `json:"patient_id"`
	Seq       int             `json:"seq"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	PrevHash  string          `json:"prev_hash"`
	Hash      string          `json:"hash"`
}

type eventPayload struct {
	PatientID             string     `json:"patient_id"`
	Name                  string     `json:"name,omitempty"`
	VisitType             string     `json:"visit_type,omitempty"`
	TokenNo               int        `json:"token_no,omitempty"`
	AppointmentTime       *time.Time `json:"appointment_time,omitempty"`
	Status                string     `json:"status"`
	CheckInTime           *time.Time `json:"check_in_time,omitempty"`
	ConsultationStartTime *time.Time `json:"consultation_start_time,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultation_end_time,omitempty"`
	LateBy                int        `json:"late_by,omitempty"`
	LatePenalty           int        `json:"late_penalty,omitempty"`
}

// EventPayload is the stored form of a patient after a change.
func EventPayload(p models.Patient) (json.RawMessage, error) {
	payload := eventPayload{
		PatientID:             p.ID,
		Name:                  p.Name,
		VisitType:             p.VisitType,
		TokenNo:               p.TokenNo,
		Status:                p.Status,
		CheckInTime:           p.CheckInTime,
		ConsultationStartTime: p.ConsultationStartTime,
		ConsultationEndTime:   p.ConsultationEndTime,
		LateBy:                p.LateBy,
		LatePenalty:           p.LatePenalty,
	}
	if !p.AppointmentTime.IsZero() {
		at := p.AppointmentTime
		payload.AppointmentTime = &at
	}
	return json.Marshal(payload)
}

func ComputePatientEventHash(prevHash, patientID, eventType string, payload json.RawMessage, createdAt time.Time, seq int) string {
	raw := fmt.Sprintf("%s|%s|%s|%s|%d|%s", prevHash, patientID, eventType, createdAt.UTC().Format(time.RFC3339Nano), seq, payload)
	sum := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%x", sum)
}

// VerifyChain checks sequence numbers and hashes of one patient's events.
func VerifyChain(events []PatientEvent) error {
	prev := ""
	for i, event := range events {
		if event.Seq != i+1 {
			return fmt.Errorf("%w: seq %d at position %d", ErrBrokenChain, event.Seq, i)
		}
		if event.PrevHash != prev {
			return fmt.Errorf("%w: prev hash mismatch at seq %d", ErrBrokenChain, event.Seq)
		}
		if want := ComputePatientEventHash(prev, event.PatientID, event.Type, event.Payload, event.CreatedAt, event.Seq); want != event.Hash {
			return fmt.Errorf("%w: hash mismatch at seq %d", ErrBrokenChain, event.Seq)
		}
		prev = event.Hash
	}
	return nil
}

func RehydratePatient(events []PatientEvent) (models.Patient, error) {
	var patient models.Patient
	for _, event := range events {
		if len(event.Payload) == 0 {
			continue
		}
		var payload eventPayload
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return models.Patient{}, err
		}
		if payload.PatientID != "" {
			patient.ID = payload.PatientID
		}
		if payload.Name != "" {
			patient.Name = payload.Name
		}
		if payload.VisitType != "" {
			patient.VisitType = payload.VisitType
		}
		if payload.TokenNo != 0 {
			patient.TokenNo = payload.TokenNo
		}
		if payload.AppointmentTime != nil {
			patient.AppointmentTime = *payload.AppointmentTime
		}
		if payload.Status != "" {
			patient.Status = payload.Status
		}
		if payload.CheckInTime != nil {
			patient.CheckInTime = payload.CheckInTime
		}
		if payload.ConsultationStartTime != nil {
			patient.ConsultationStartTime = payload.ConsultationStartTime
		}
		if payload.ConsultationEndTime != nil {
			patient.ConsultationEndTime = payload.ConsultationEndTime
		}
		patient.LateBy = payload.LateBy
		patient.LatePenalty = payload.LatePenalty
	}
	return patient, nil
}
