package store

import (
	"fmt"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
)

const (
	DoctorOnline  = "online"
	DoctorOffline = "offline"
	DoctorPause   = "pause"
	DoctorResume  = "resume"
	DoctorDelay   = "delay"
)

// ApplyDoctorAction returns the doctor status after action at now. Going
// online resets the reported delay.
func ApplyDoctorAction(status models.DoctorStatus, input DoctorStatusInput, now time.Time) (models.DoctorStatus, error) {
	switch input.Action {
	case DoctorOnline:
		status.IsOnline = true
		status.OnlineTime = &now
		status.DelayMinutes = 0
		status.IsPaused = false
		status.PauseStart = nil
	case DoctorOffline:
		status.IsOnline = false
		status.IsPaused = false
		status.PauseStart = nil
	case DoctorPause:
		if !status.IsPaused {
			status.IsPaused = true
			status.PauseStart = &now
		}
	case DoctorResume:
		status.IsPaused = false
		status.PauseStart = nil
	case DoctorDelay:
		if input.DelayMinutes < 0 {
			return models.DoctorStatus{}, fmt.Errorf("%w: delay must not be negative", ErrInvalidAction)
		}
		status.DelayMinutes = input.DelayMinutes
	default:
		return models.DoctorStatus{}, fmt.Errorf("%w: %q", ErrInvalidAction, input.Action)
	}
	status.UpdatedAt = now
	return status, nil
}

// ShouldAutoOffline reports whether an online doctor has outstayed the day:
// the online time is from another date, or now is past the last session end by
// more than after.
func ShouldAutoOffline(status models.DoctorStatus, day schedule.Day, now time.Time, after time.Duration) bool {
	if !status.IsOnline {
		return false
	}
	windows := day.Windows()
	if status.OnlineTime != nil && len(windows) > 0 {
		y, m, d := status.OnlineTime.In(windows[0].Start.Location()).Date()
		if fmt.Sprintf("%04d-%02d-%02d", y, m, d) != day.Date {
			return true
		}
	}
	if len(windows) == 0 {
		return status.OnlineTime != nil && now.Sub(*status.OnlineTime) > after
	}
	return now.After(windows[len(windows)-1].End.Add(after))
}
