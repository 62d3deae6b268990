package loads

import (
	"slices"
	"time"

	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/audit"
	"github.com/wolfeidau/loadboard/internal/auth"
	"github.com/wolfeidau/loadboard/internal/models"
	"github.com/wolfeidau/loadboard/internal/store"
)

// Action is a lifecycle trigger.
type Action string

const (
	ActionAssign   Action = "assign"
	ActionStart    Action = "start"
	ActionDeliver  Action = "deliver"
	ActionComplete Action = "complete"
	ActionCancel   Action = "cancel"
)

// Transition is one row of the lifecycle table.
type Transition struct {
	Action Action
	From   []models.LoadStatus
	To     models.LoadStatus
	Roles  []models.Role

	// RequireAssignee restricts the transition to the load's driver.
	// Managers pass the ownership check but not the role check when Roles
	// names only drivers.
	RequireAssignee bool

	Event string
}

var nonTerminal = []models.LoadStatus{
	models.LoadStatusDraft,
	models.LoadStatusAssigned,
	models.LoadStatusInTransit,
	models.LoadStatusDelivered,
}

var transitions = map[Action]Transition{
	ActionAssign: {
		Action: ActionAssign,
		From:   []models.LoadStatus{models.LoadStatusDraft, models.LoadStatusAssigned},
		To:     models.LoadStatusAssigned,
		Roles:  auth.Managers,
		Event:  audit.LoadAssigned,
	},
	ActionStart: {
		Action:          ActionStart,
		From:            []models.LoadStatus{models.LoadStatusAssigned},
		To:              models.LoadStatusInTransit,
		Roles:           []models.Role{models.RoleDriver},
		RequireAssignee: true,
		Event:           audit.LoadStarted,
	},
	ActionDeliver: {
		Action:          ActionDeliver,
		From:            []models.LoadStatus{models.LoadStatusInTransit},
		To:              models.LoadStatusDelivered,
		Roles:           []models.Role{models.RoleDriver},
		RequireAssignee: true,
		Event:           audit.LoadDelivered,
	},
	ActionComplete: {
		Action:          ActionComplete,
		From:            []models.LoadStatus{models.LoadStatusDelivered},
		To:              models.LoadStatusCompleted,
		Roles:           auth.Members,
		RequireAssignee: true,
		Event:           audit.LoadCompleted,
	},
	ActionCancel: {
		Action: ActionCancel,
		From:   nonTerminal,
		To:     models.LoadStatusCancelled,
		Roles:  auth.Managers,
		Event:  audit.LoadCancelled,
	},
}

// Lookup returns the transition for an action.
func Lookup(action Action) (Transition, bool) {
	t, ok := transitions[action]
	return t, ok
}

// ParseAction validates an action named in a request.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if _, ok := transitions[a]; !ok {
		return "", apperr.ValidationFailed("unknown action", map[string]string{"action": "must be one of assign, start, deliver, complete, cancel"})
	}
	return a, nil
}

// Allows reports whether the transition may fire from status.
func (t Transition) Allows(status models.LoadStatus) bool {
	return slices.Contains(t.From, status)
}

// check returns InvalidTransition naming the required source states when the
// load is not in one of them.
func (t Transition) check(status models.LoadStatus) error {
	if t.Allows(status) {
		return nil
	}
	required := make([]string, len(t.From))
	for i, s := range t.From {
		required[i] = string(s)
	}
	return apperr.InvalidTransition(string(t.Action), string(status), required...)
}

// stamp sets the status fields of the transition on a merge patch.
func (t Transition) stamp(patch store.Patch, now time.Time) {
	patch["status"] = t.To
	patch["statusChangedAt"] = now
	switch t.To {
	case models.LoadStatusAssigned:
		patch["assignedAt"] = now
	case models.LoadStatusInTransit:
		patch["startedAt"] = now
	case models.LoadStatusDelivered:
		patch["deliveredAt"] = now
	case models.LoadStatusCompleted:
		patch["completedAt"] = now
	case models.LoadStatusCancelled:
		patch["cancelledAt"] = now
	}
}
