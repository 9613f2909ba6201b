package queue

import (
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
)

// Stats summarises one session for the doctor and dashboard panels.
type Stats struct {
	Session                    string         `json:"session"`
	Total                      int            `json:"total"`
	YetToArrive                int            `json:"yet_to_arrive"`
	Waiting                    int            `json:"waiting"`
	InConsultation             int            `json:"in_consultation"`
	Completed                  int            `json:"completed"`
	Cancelled                  int            `json:"cancelled"`
	NoShow                     int            `json:"no_show"`
	ByVisitType                map[string]int `json:"by_visit_type"`
	AverageWaitMinutes         float64        `json:"average_wait_minutes"`
	AverageConsultationMinutes float64        `json:"average_consultation_minutes"`
}

// SessionStats counts the patients booked into w. Total leaves out cancelled
// bookings. Waits run from check-in to consultation start.
func SessionStats(patients []models.Patient, w schedule.Window) Stats {
	stats := Stats{Session: w.Name, ByVisitType: map[string]int{}}
	var (
		waitSum, consultSum     time.Duration
		waitCount, consultCount int
	)
	for _, p := range patients {
		if !w.Contains(p.AppointmentTime) {
			continue
		}
		switch p.Status {
		case models.StatusBooked:
			stats.YetToArrive++
		case models.StatusWaiting, models.StatusPriority, models.StatusLate:
			stats.Waiting++
		case models.StatusInConsultation:
			stats.InConsultation++
		case models.StatusCompleted:
			stats.Completed++
		case models.StatusCancelled:
			stats.Cancelled++
			continue
		case models.StatusNoShow:
			stats.NoShow++
		}
		stats.Total++
		if p.VisitType != "" {
			stats.ByVisitType[p.VisitType]++
		}

		if p.CheckInTime != nil && p.ConsultationStartTime != nil && p.ConsultationStartTime.After(*p.CheckInTime) {
			waitSum += p.ConsultationStartTime.Sub(*p.CheckInTime)
			waitCount++
		}
		if p.ConsultationStartTime != nil && p.ConsultationEndTime != nil && p.ConsultationEndTime.After(*p.ConsultationStartTime) {
			consultSum += p.ConsultationEndTime.Sub(*p.ConsultationStartTime)
			consultCount++
		}
	}
	stats.AverageWaitMinutes = averageMinutes(waitSum, waitCount)
	stats.AverageConsultationMinutes = averageMinutes(consultSum, consultCount)
	return stats
}

func averageMinutes(sum time.Duration, n int) float64 {
	if n == 0 {
		return 0
	}
	return sum.Minutes() / float64(n)
}
