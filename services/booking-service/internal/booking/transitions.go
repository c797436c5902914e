package booking

import "github.com/kareemschultz/SYNERGY-GY-sub000/services/booking-service/internal/model"

type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionComplete   Action = "complete"
	ActionNoShow     Action = "mark as no-show"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

var transitions = map[Action][]model.Status{
	ActionConfirm:    {model.StatusRequested},
	ActionComplete:   {model.StatusConfirmed},
	ActionNoShow:     {model.StatusConfirmed},
	ActionCancel:     {model.StatusRequested, model.StatusConfirmed},
	ActionReschedule: {model.StatusRequested, model.StatusConfirmed},
}

// CanTransition reports whether action is legal from status.
func CanTransition(action Action, from model.Status) bool {
	for _, s := range transitions[action] {
		if s == from {
			return true
		}
	}
	return false
}

func checkTransition(action Action, from model.Status) error {
	if CanTransition(action, from) {
		return nil
	}
	if from.Terminal() {
		return badRequest("cannot %s appointment: status %s is final", action, from)
	}
	return badRequest("cannot %s appointment in status %s", action, from)
}
