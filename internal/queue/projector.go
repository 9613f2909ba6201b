package queue

import (
	"fmt"
	"time"

	"github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"
)

type ETC struct {
	BestCase  time.Time `json:"best_case_etc"`
	WorstCase time.Time `json:"worst_case_etc"`
}

// ProjectETCs walks the ordered queue with a running clock that starts at
// effectiveStart (see EffectiveStart for the online and delay anchors), or at the expected end of the current consultation when that
// is later. Each patient gets [clock, clock+slot) and the clock moves by one
// slot. Patients in consultation are skipped and get no entry.
func ProjectETCs(ordered []models.Patient, sched models.DoctorSchedule, effectiveStart time.Time, inConsultation *models.Patient) (map[string]ETC, error) {
	if sched.SlotDuration <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", ErrInvalidSchedule)
	}
	slot := time.Duration(sched.SlotDuration) * time.Minute

	clock := effectiveStart
	if inConsultation != nil && inConsultation.ConsultationStartTime != nil {
		expectedEnd := inConsultation.ConsultationStartTime.Add(slot)
		if expectedEnd.After(clock) {
			clock = expectedEnd
		}
	}

	etcs := make(map[string]ETC, len(ordered))
	for _, p := range ordered {
		if p.Status == models.StatusInConsultation {
			continue
		}
		best := clock
		worst := best.Add(slot)
		etcs[p.ID] = ETC{BestCase: best, WorstCase: worst}
		clock = worst
	}
	return etcs, nil
}
