package queue

import (
	"cmp"
	"slices"
	"strings"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/schedule"

	"github.com/rs/zerolog/log"
)

const DefaultLatePenalty = 2

type Options struct {
	// LatePenalty is how many positions a late patient is pushed down. A
	// patient's own LatePenalty, when set, takes precedence.
	LatePenalty int
	// Session forces "morning" or "evening" instead of the active session.
	Session string
}

func DefaultOptions() Options {
	return Options{LatePenalty: DefaultLatePenalty}
}

// Ordered is the live queue of one session. Waiting starts with the up-next
// patient and never contains the patient in consultation.
type Ordered struct {
	InConsultation *models.Patient
	Waiting        []models.Patient
	Anomalies      []string
}

// Sequence returns the full live order, the patient in consultation first.
func (o Ordered) Sequence() []models.Patient {
	seq := make([]models.Patient, 0, len(o.Waiting)+1)
	if o.InConsultation != nil {
		seq = append(seq, *o.InConsultation)
	}
	return append(seq, o.Waiting...)
}

func (o Ordered) UpNext() *models.Patient {
	if len(o.Waiting) == 0 {
		return nil
	}
	p := o.Waiting[0]
	return &p
}

func (o Ordered) IDs() []string {
	seq := o.Sequence()
	ids := make([]string, len(seq))
	for i, p := range seq {
		ids[i] = p.ID
	}
	return ids
}

// Order builds the live queue for the session window from a patient snapshot.
// The input slice is not modified.
func Order(patients []models.Patient, session schedule.Window, opts Options) Ordered {
	var consulting, waiting []models.Patient
	for _, p := range patients {
		if !p.IsLive() || !session.Contains(p.AppointmentTime) {
			continue
		}
		if p.Status == models.StatusInConsultation {
			consulting = append(consulting, p)
			continue
		}
		waiting = append(waiting, p)
	}

	var ordered Ordered
	if len(consulting) > 0 {
		slices.SortFunc(consulting, compareConsultation)
		current := consulting[0]
		ordered.InConsultation = &current
		if len(consulting) > 1 {
			for _, extra := range consulting[1:] {
				ordered.Anomalies = append(ordered.Anomalies, extra.ID)
			}
			log.Warn().
				Str("session", session.Name).
				Str("kept", current.ID).
				Strs("dropped", ordered.Anomalies).
				Msg("multiple patients in consultation")
		}
	}

	slices.SortFunc(waiting, compareBase)
	ordered.Waiting = placeLate(waiting, opts.LatePenalty)
	return ordered
}

func compareConsultation(a, b models.Patient) int {
	switch {
	case a.ConsultationStartTime != nil && b.ConsultationStartTime == nil:
		return -1
	case a.ConsultationStartTime == nil && b.ConsultationStartTime != nil:
		return 1
	case a.ConsultationStartTime != nil && b.ConsultationStartTime != nil:
		if c := a.ConsultationStartTime.Compare(*b.ConsultationStartTime); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.TokenNo, b.TokenNo); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func compareBase(a, b models.Patient) int {
	if c := cmp.Compare(priorityRank(a), priorityRank(b)); c != 0 {
		return c
	}
	if c := cmp.Compare(a.TokenNo, b.TokenNo); c != 0 {
		return c
	}
	if c := a.AppointmentTime.Compare(b.AppointmentTime); c != 0 {
		return c
	}
	return strings.Compare(a.ID, b.ID)
}

func priorityRank(p models.Patient) int {
	if p.Status == models.StatusPriority {
		return 0
	}
	return 1
}

type lateSlot struct {
	index  int
	target int
}

// placeLate returns base with every late patient moved penalty positions down
// from its own base index. Targets are computed from base only, so the result
// does not depend on processing order. Colliding targets keep base order.
func placeLate(base []models.Patient, penalty int) []models.Patient {
	n := len(base)
	var lates []lateSlot
	for i, p := range base {
		if p.Status != models.StatusLate {
			continue
		}
		shift := penalty
		if p.LatePenalty > 0 {
			shift = p.LatePenalty
		}
		if shift < 0 {
			shift = 0
		}
		lates = append(lates, lateSlot{index: i, target: min(i+shift, n-1)})
	}
	if len(lates) == 0 {
		return base
	}

	slices.SortStableFunc(lates, func(a, b lateSlot) int {
		if c := cmp.Compare(a.target, b.target); c != 0 {
			return c
		}
		return cmp.Compare(a.index, b.index)
	})
	for k := 1; k < len(lates); k++ {
		if lates[k].target <= lates[k-1].target {
			lates[k].target = lates[k-1].target + 1
		}
	}
	last := len(lates) - 1
	if lates[last].target > n-1 {
		lates[last].target = n - 1
	}
	for k := last - 1; k >= 0; k-- {
		if lates[k].target >= lates[k+1].target {
			lates[k].target = lates[k+1].target - 1
		}
	}

	out := make([]models.Patient, n)
	taken := make([]bool, n)
	for _, l := range lates {
		out[l.target] = base[l.index]
		taken[l.target] = true
	}
	next := 0
	for _, p := range base {
		if p.Status == models.StatusLate {
			continue
		}
		for taken[next] {
			next++
		}
		out[next] = p
		next++
	}
	return out
}
