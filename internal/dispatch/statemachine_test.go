package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyValidEdges(t *testing.T) {
	cases := []struct {
		from Status
		ev   Event
		want Status
	}{
		{StatusPending, EventDispatch, StatusDispatched},
		{StatusPending, EventCancel, StatusCancelled},
		{StatusDispatched, EventEnRoute, StatusEnRoute},
		{StatusDispatched, EventCancel, StatusCancelled},
		{StatusEnRoute, EventArrive, StatusOnScene},
		{StatusOnScene, EventClear, StatusCleared},
	}
	for _, tc := range cases {
		t.Run(string(tc.from)+"_"+string(tc.ev), func(t *testing.T) {
			got, err := Apply(tc.from, tc.ev)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestApplyRejectsEverythingElse(t *testing.T) {
	events := []Event{EventDispatch, EventEnRoute, EventArrive, EventClear, EventCancel}
	valid := 0
	for _, from := range Statuses {
		for _, ev := range events {
			got, err := Apply(from, ev)
			if err == nil {
				valid++
				continue
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
			assert.Equal(t, from, got, "rejected event must leave status unchanged")
		}
	}
	assert.Equal(t, 6, valid)
}

func TestTerminalStatusesAcceptNothing(t *testing.T) {
	assert.Empty(t, Allowed(StatusCleared))
	assert.Empty(t, Allowed(StatusCancelled))
	assert.Equal(t, []Event{EventDispatch, EventCancel}, Allowed(StatusPending))
}

func TestParseEvent(t *testing.T) {
	ev, err := ParseEvent("en_route")
	require.NoError(t, err)
	assert.Equal(t, EventEnRoute, ev)

	ev, err = ParseEvent("ON_SCENE")
	require.NoError(t, err)
	assert.Equal(t, EventArrive, ev)

	ev, err = ParseEvent(" cleared ")
	require.NoError(t, err)
	assert.Equal(t, EventClear, ev)

	_, err = ParseEvent("PENDING")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = ParseEvent("teleport")
	assert.ErrorIs(t, err, ErrInvalidCommand)
}
