package store

import (
	"context"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/queue"
)

type CreatePatientInput struct {
	RequestID       string
	Name            string
	Phone           string
	VisitType       string
	SessionStart    time.Time
	SessionEnd      time.Time
	SlotMinutes     int
	AppointmentTime time.Time
	CheckIn         bool
	CreatedAt       time.Time
}

type PatientActionInput struct {
	RequestID   string
	PatientID   string
	Action      string
	LateBy      int
	LatePenalty int
	// SessionStart and SessionEnd bound the consultation check for ActionStart.
	SessionStart time.Time
	SessionEnd   time.Time
	OccurredAt   time.Time
}

type DoctorStatusInput struct {
	Action       string
	DelayMinutes int
	OccurredAt   time.Time
}

type ClinicStore interface {
	Snapshot(ctx context.Context, from, to time.Time) (queue.Snapshot, error)
	GetSchedule(ctx context.Context) (models.DoctorSchedule, error)
	SaveSchedule(ctx context.Context, schedule models.DoctorSchedule) error
	GetDoctorStatus(ctx context.Context) (models.DoctorStatus, error)
	GetPatient(ctx context.Context, patientID string) (models.Patient, error)
	CreatePatient(ctx context.Context, input CreatePatientInput) (models.Patient, bool, error)
	ApplyAction(ctx context.Context, input PatientActionInput) (models.Patient, bool, error)
	UpdateDoctorStatus(ctx context.Context, input DoctorStatusInput) (models.DoctorStatus, error)
	AutoOffline(ctx context.Context, now time.Time, after time.Duration) (bool, error)
	ListPatientEvents(ctx context.Context, patientID string) ([]PatientEvent, error)
}
