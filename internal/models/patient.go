package models

import "time"

type Patient struct {
	ID                    string     `json:"id"`
	Name                  string     `json:"name"`
	Phone                 string     `json:"phone,omitempty"`
	VisitType             string     `json:"visit_type"`
	TokenNo               int        `json:"token_no"`
	AppointmentTime       time.Time  `json:"appointment_time"`
	Status                string     `json:"status"`
	CheckInTime           *time.Time `json:"check_in_time,omitempty"`
	ConsultationStartTime *time.Time `json:"consultation_start_time,omitempty"`
	ConsultationEndTime   *time.Time `json:"consultation_end_time,omitempty"`
	LateBy                int        `json:"late_by,omitempty"`
	LatePenalty           int        `json:"late_penalty,omitempty"`
	BestCaseETC           *time.Time `json:"best_case_etc,omitempty"`
	WorstCaseETC          *time.Time `json:"worst_case_etc,omitempty"`
	EstimatedWaitMinutes  int        `json:"estimated_wait_minutes"`
}

const (
	StatusBooked         = "booked"
	StatusWaiting        = "waiting"
	StatusPriority       = "priority"
	StatusLate           = "late"
	StatusInConsultation = "in_consultation"
	StatusCompleted      = "completed"
	StatusCancelled      = "cancelled"
	StatusNoShow         = "no_show"
)

const (
	VisitAppointment = "appointment"
	VisitWalkIn      = "walk_in"
)

// IsLive reports whether the patient belongs in the live queue.
func (p Patient) IsLive() bool {
	switch p.Status {
	case StatusWaiting, StatusPriority, StatusLate, StatusInConsultation:
		return true
	}
	return false
}

func (p Patient) IsTerminal() bool {
	switch p.Status {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}
