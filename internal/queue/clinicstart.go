package queue

import (
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
)

// EffectiveStart is the instant the first waiting patient can be seen.
//
// The baseline is the session's scheduled start, raised to now (frozen at the
// pause instant while the doctor is paused) and to the doctor's online time when
// that time belongs to the session's date. The reported delay is added last.
func EffectiveStart(w schedule.Window, status models.DoctorStatus, now time.Time) time.Time {
	clock := Clock(status, now)

	start := w.Start
	if clock.After(start) {
		start = clock
	}
	if status.IsOnline && status.OnlineTime != nil && sameDate(*status.OnlineTime, w.Start) {
		if status.OnlineTime.After(start) {
			start = *status.OnlineTime
		}
	}
	if status.DelayMinutes > 0 {
		start = start.Add(time.Duration(status.DelayMinutes) * time.Minute)
	}
	return start
}

// Clock returns now, or the pause instant when the queue is paused.
func Clock(status models.DoctorStatus, now time.Time) time.Time {
	if status.IsPaused && status.PauseStart != nil && status.PauseStart.Before(now) {
		return *status.PauseStart
	}
	return now
}

func sameDate(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
