package store

import "github.com/baswarajt-hub/shantiq-dev-sub001/internal/models"

const (
	ActionCheckIn    = "check_in"
	ActionPrioritize = "prioritize"
	ActionMarkLate   = "mark_late"
	ActionStart      = "start"
	ActionComplete   = "complete"
	ActionCancel     = "cancel"
	ActionNoShow     = "no_show"
)

var transitionMap = map[string][]string{
	ActionCheckIn:    {models.StatusBooked},
	ActionPrioritize: {models.StatusBooked, models.StatusWaiting, models.StatusLate},
	ActionMarkLate:   {models.StatusWaiting},
	ActionStart:      {models.StatusWaiting, models.StatusPriority, models.StatusLate},
	ActionComplete:   {models.StatusInConsultation},
	ActionCancel:     {models.StatusBooked, models.StatusWaiting, models.StatusPriority, models.StatusLate},
	ActionNoShow:     {models.StatusBooked, models.StatusWaiting, models.StatusLate},
}

var targetStatus = map[string]string{
	ActionCheckIn:    models.StatusWaiting,
	ActionPrioritize: models.StatusPriority,
	ActionMarkLate:   models.StatusLate,
	ActionStart:      models.StatusInConsultation,
	ActionComplete:   models.StatusCompleted,
	ActionCancel:     models.StatusCancelled,
	ActionNoShow:     models.StatusNoShow,
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// TargetStatus is the status a patient ends in after action.
func TargetStatus(action string) (string, bool) {
	status, ok := targetStatus[action]
	return status, ok
}
