// Package queue orders a session's live patients and projects when each of
// them will be seen.
package queue

import (
	"fmt"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"
)

var ErrInvalidSchedule = schedule.ErrInvalidSchedule

// Snapshot is everything the pipeline reads. It is taken once per refresh so
// that ordering and projection see the same state.
type Snapshot struct {
	Patients []models.Patient
	Schedule models.DoctorSchedule
	Status   models.DoctorStatus
}

type Entry struct {
	models.Patient
	Position int       `json:"position"`
	SlotTime time.Time `json:"slot_time"`
}

type Board struct {
	Date           string               `json:"date"`
	Session        string               `json:"session,omitempty"`
	Closed         bool                 `json:"closed"`
	Window         *schedule.Window     `json:"window,omitempty"`
	EffectiveStart *time.Time           `json:"effective_start,omitempty"`
	SlotMinutes    int                  `json:"slot_minutes"`
	Clinic         models.ClinicDetails `json:"clinic"`
	Doctor         models.DoctorStatus  `json:"doctor"`
	InConsultation *Entry               `json:"in_consultation,omitempty"`
	UpNext         *Entry               `json:"up_next,omitempty"`
	Queue          []Entry              `json:"queue"`
	Order          []string             `json:"order"`
	ETCs           map[string]ETC       `json:"etcs"`
	Anomalies      []string             `json:"anomalies,omitempty"`
	GeneratedAt    time.Time            `json:"generated_at"`
}

// Find returns the board entry for a patient id.
func (b Board) Find(id string) (Entry, bool) {
	if b.InConsultation != nil && b.InConsultation.ID == id {
		return *b.InConsultation, true
	}
	for _, e := range b.Queue {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Compute runs resolve, start, order and project against one snapshot. A closed
// date or session yields a Board with Closed set and an empty queue.
func Compute(s Snapshot, now time.Time, opts Options) (Board, error) {
	day, open, err := schedule.Resolve(s.Schedule, now)
	if err != nil {
		return Board{}, err
	}

	board := Board{
		Date:        day.Date,
		Closed:      true,
		SlotMinutes: s.Schedule.SlotDuration,
		Clinic:      s.Schedule.Clinic,
		Doctor:      s.Status,
		Queue:       []Entry{},
		Order:       []string{},
		ETCs:        map[string]ETC{},
		GeneratedAt: now,
	}
	if !open {
		return board, nil
	}

	var (
		w  schedule.Window
		ok bool
	)
	if opts.Session != "" {
		board.Session = opts.Session
		w, ok = day.Session(opts.Session)
	} else {
		w, ok = schedule.ActiveSession(day, now, s.Status)
	}
	if !ok {
		return board, nil
	}
	board.Closed = false
	board.Session = w.Name
	board.Window = &w

	start := EffectiveStart(w, s.Status, now)
	board.EffectiveStart = &start

	ordered := Order(s.Patients, w, opts)
	etcs, err := ProjectETCs(ordered.Sequence(), s.Schedule, start, ordered.InConsultation)
	if err != nil {
		return Board{}, fmt.Errorf("project etcs: %w", err)
	}
	board.ETCs = etcs
	board.Order = ordered.IDs()
	board.Anomalies = ordered.Anomalies

	clock := Clock(s.Status, now)
	slot := day.SlotDuration
	if ordered.InConsultation != nil {
		entry := Entry{Patient: *ordered.InConsultation, Position: 0, SlotTime: SlotTime(w, slot, ordered.InConsultation.TokenNo)}
		board.InConsultation = &entry
	}
	for i, p := range ordered.Waiting {
		etc := etcs[p.ID]
		best, worst := etc.BestCase, etc.WorstCase
		p.BestCaseETC = &best
		p.WorstCaseETC = &worst
		p.EstimatedWaitMinutes = waitMinutes(clock, best)
		board.Queue = append(board.Queue, Entry{Patient: p, Position: i + 1, SlotTime: SlotTime(w, slot, p.TokenNo)})
	}
	if len(board.Queue) > 0 {
		next := board.Queue[0]
		board.UpNext = &next
	}
	return board, nil
}

func waitMinutes(now, best time.Time) int {
	if !best.After(now) {
		return 0
	}
	return int(best.Sub(now) / time.Minute)
}
