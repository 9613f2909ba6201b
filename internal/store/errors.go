package store

import "errors"

var (
	ErrPatientNotFound  = errors.New("patient not found")
	ErrInvalidState     = errors.New("invalid patient state")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrConsultationBusy = errors.New("another patient is in consultation")
	ErrSessionClosed    = errors.New("session closed")
	ErrInvalidAction    = errors.New("invalid action")
)
