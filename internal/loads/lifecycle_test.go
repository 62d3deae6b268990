package loads

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/loadboard/internal/apperr"
	"github.com/wolfeidau/loadboard/internal/models"
)

func TestTransitionAllows(t *testing.T) {
	tests := []struct {
		action  Action
		allowed []models.LoadStatus
	}{
		{ActionAssign, []models.LoadStatus{models.LoadStatusDraft, models.LoadStatusAssigned}},
		{ActionStart, []models.LoadStatus{models.LoadStatusAssigned}},
		{ActionDeliver, []models.LoadStatus{models.LoadStatusInTransit}},
		{ActionComplete, []models.LoadStatus{models.LoadStatusDelivered}},
		{ActionCancel, []models.LoadStatus{
			models.LoadStatusDraft,
			models.LoadStatusAssigned,
			models.LoadStatusInTransit,
			models.LoadStatusDelivered,
		}},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			tr, ok := Lookup(tt.action)
			require.True(t, ok)

			for _, status := range models.LoadStatuses() {
				want := false
				for _, a := range tt.allowed {
					if a == status {
						want = true
					}
				}
				require.Equal(t, want, tr.Allows(status), "status %s", status)

				err := tr.check(status)
				if want {
					require.NoError(t, err)
				} else {
					require.ErrorIs(t, err, apperr.ErrInvalidTransition)
				}
			}
		})
	}
}

func TestTerminalStatesHaveNoExit(t *testing.T) {
	for action, tr := range transitions {
		require.False(t, tr.Allows(models.LoadStatusCompleted), "action %s", action)
		require.False(t, tr.Allows(models.LoadStatusCancelled), "action %s", action)
	}
}

func TestInvalidTransitionNamesRequiredState(t *testing.T) {
	tr, _ := Lookup(ActionStart)
	err := tr.check(models.LoadStatusDraft)

	appErr := apperr.As(err)
	require.Equal(t, apperr.CodeInvalidTransition, appErr.Code)
	require.Contains(t, appErr.Message, "ASSIGNED")
	require.Contains(t, appErr.Message, "PENDING")
}

func TestParseAction(t *testing.T) {
	a, err := ParseAction("deliver")
	require.NoError(t, err)
	require.Equal(t, ActionDeliver, a)

	_, err = ParseAction("teleport")
	require.ErrorIs(t, err, apperr.ErrValidationFailed)
}
