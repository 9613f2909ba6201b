// Package schedule turns the doctor's weekly template and date closures into
// concrete session windows for a calendar date.
package schedule

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
)

const dateLayout = "2006-01-02"

var ErrInvalidSchedule = errors.New("invalid schedule")

// Window is one open session on a concrete date.
type Window struct {
	Name  string    `json:"name"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls in [Start, End).
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

type Day struct {
	Date         string        `json:"date"`
	Weekday      time.Weekday  `json:"weekday"`
	Morning      *Window       `json:"morning,omitempty"`
	Evening      *Window       `json:"evening,omitempty"`
	SlotDuration time.Duration `json:"slot_duration"`
}

// Windows returns the open sessions in chronological order.
func (d Day) Windows() []Window {
	windows := make([]Window, 0, 2)
	if d.Morning != nil {
		windows = append(windows, *d.Morning)
	}
	if d.Evening != nil {
		windows = append(windows, *d.Evening)
	}
	return windows
}

func (d Day) Session(name string) (Window, bool) {
	switch name {
	case models.SessionMorning:
		if d.Morning != nil {
			return *d.Morning, true
		}
	case models.SessionEvening:
		if d.Evening != nil {
			return *d.Evening, true
		}
	}
	return Window{}, false
}

func (d Day) Closed() bool {
	return d.Morning == nil && d.Evening == nil
}

func Location(s models.DoctorSchedule) (*time.Location, error) {
	name := s.Timezone
	if name == "" {
		name = models.DefaultTimezone
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidSchedule, name, err)
	}
	return loc, nil
}

// Validate checks the parts of a schedule the pipeline cannot work without.
func Validate(s models.DoctorSchedule) error {
	if s.SlotDuration <= 0 {
		return fmt.Errorf("%w: slot duration must be positive", ErrInvalidSchedule)
	}
	if _, err := Location(s); err != nil {
		return err
	}
	for i, day := range s.Days {
		if err := validateSession(day.Morning); err != nil {
			return fmt.Errorf("%w: %s morning: %v", ErrInvalidSchedule, time.Weekday(i), err)
		}
		if err := validateSession(day.Evening); err != nil {
			return fmt.Errorf("%w: %s evening: %v", ErrInvalidSchedule, time.Weekday(i), err)
		}
	}
	for _, closure := range s.SpecialClosures {
		if _, err := time.Parse(dateLayout, closure.Date); err != nil {
			return fmt.Errorf("%w: closure date %q", ErrInvalidSchedule, closure.Date)
		}
		if closure.MorningOverride != nil {
			if err := validateSession(*closure.MorningOverride); err != nil {
				return fmt.Errorf("%w: %s morning override: %v", ErrInvalidSchedule, closure.Date, err)
			}
		}
		if closure.EveningOverride != nil {
			if err := validateSession(*closure.EveningOverride); err != nil {
				return fmt.Errorf("%w: %s evening override: %v", ErrInvalidSchedule, closure.Date, err)
			}
		}
	}
	return nil
}

func validateSession(session models.Session) error {
	if !session.IsOpen {
		return nil
	}
	start, err := parseClock(session.Start)
	if err != nil {
		return err
	}
	end, err := parseClock(session.End)
	if err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("end %s is not after start %s", session.End, session.Start)
	}
	return nil
}

// Resolve returns the open sessions for the calendar date of t in the schedule's
// timezone. ok is false when both sessions are closed; that is not an error.
func Resolve(s models.DoctorSchedule, t time.Time) (Day, bool, error) {
	if err := Validate(s); err != nil {
		return Day{}, false, err
	}
	loc, _ := Location(s)
	local := t.In(loc)
	date := local.Format(dateLayout)

	template := s.Days[int(local.Weekday())]
	morning, evening := template.Morning, template.Evening
	if closure, found := findClosure(s.SpecialClosures, date); found {
		if closure.MorningOverride != nil {
			morning = *closure.MorningOverride
		}
		if closure.EveningOverride != nil {
			evening = *closure.EveningOverride
		}
		if closure.Closed || closure.MorningClosed {
			morning.IsOpen = false
		}
		if closure.Closed || closure.EveningClosed {
			evening.IsOpen = false
		}
	}

	day := Day{
		Date:         date,
		Weekday:      local.Weekday(),
		SlotDuration: time.Duration(s.SlotDuration) * time.Minute,
	}
	if morning.IsOpen {
		w := window(models.SessionMorning, local, morning, loc)
		day.Morning = &w
	}
	if evening.IsOpen {
		w := window(models.SessionEvening, local, evening, loc)
		day.Evening = &w
	}
	return day, !day.Closed(), nil
}

// SessionAt names the session whose window contains t, if any.
func (d Day) SessionAt(t time.Time) (string, bool) {
	for _, w := range d.Windows() {
		if w.Contains(t) {
			return w.Name, true
		}
	}
	return "", false
}

// ActiveSession picks the session the live queue should show at now: the one in
// progress, else the one the doctor came online for, else the next one that has
// not ended, else the last of the day.
func ActiveSession(d Day, now time.Time, status models.DoctorStatus) (Window, bool) {
	windows := d.Windows()
	if len(windows) == 0 {
		return Window{}, false
	}
	for _, w := range windows {
		if w.Contains(now) {
			return w, true
		}
	}
	if status.IsOnline && status.OnlineTime != nil {
		for _, w := range windows {
			if w.Contains(*status.OnlineTime) {
				return w, true
			}
		}
	}
	for _, w := range windows {
		if now.Before(w.End) {
			return w, true
		}
	}
	return windows[len(windows)-1], true
}

func findClosure(closures []models.SpecialClosure, date string) (models.SpecialClosure, bool) {
	for _, closure := range closures {
		if closure.Date == date {
			return closure, true
		}
	}
	return models.SpecialClosure{}, false
}

func window(name string, day time.Time, session models.Session, loc *time.Location) Window {
	start, _ := parseClock(session.Start)
	end, _ := parseClock(session.End)
	return Window{
		Name:  name,
		Start: atClock(day, start, loc),
		End:   atClock(day, end, loc),
	}
}

func atClock(day time.Time, offset time.Duration, loc *time.Location) time.Time {
	hour := int(offset / time.Hour)
	minute := int((offset % time.Hour) / time.Minute)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

func parseClock(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("time %q must be HH:MM", value)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
