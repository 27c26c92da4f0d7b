package pairing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowTransitions(t *testing.T) {
	cases := []struct {
		from  FlowState
		event FlowEvent
		want  FlowState
	}{
		{FlowIdle, EventSessionCreated, FlowDisplayCode},
		{FlowDisplayCode, EventCodeShown, FlowWaitingClaim},
		{FlowWaitingClaim, EventClaimerArrived, FlowVerifyCode},
		{FlowVerifyCode, EventVerified, FlowTransferring},
		{FlowTransferring, EventTransferred, FlowSuccess},

		{FlowDisplayCode, EventExpired, FlowExpired},
		{FlowWaitingClaim, EventExpired, FlowExpired},
		{FlowVerifyCode, EventFailed, FlowError},
		{FlowTransferring, EventFailed, FlowError},

		{FlowSuccess, EventReset, FlowIdle},
		{FlowError, EventReset, FlowIdle},
		{FlowExpired, EventReset, FlowIdle},

		// Illegal events leave the state unchanged.
		{FlowIdle, EventTransferred, FlowIdle},
		{FlowWaitingClaim, EventVerified, FlowWaitingClaim},
		{FlowSuccess, EventClaimerArrived, FlowSuccess},
		{FlowExpired, EventFailed, FlowExpired},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Transition(tc.from, tc.event),
			"%s + %s", tc.from, tc.event)
	}
}

func TestFlowTerminal(t *testing.T) {
	for _, s := range []FlowState{FlowSuccess, FlowError, FlowExpired} {
		require.True(t, Terminal(s), "%s", s)
	}
	for _, s := range []FlowState{FlowIdle, FlowDisplayCode, FlowWaitingClaim, FlowVerifyCode, FlowTransferring} {
		require.False(t, Terminal(s), "%s", s)
	}
}

func TestFlowHappyPathEndsTerminal(t *testing.T) {
	s := FlowIdle
	for _, e := range []FlowEvent{
		EventSessionCreated, EventCodeShown, EventClaimerArrived, EventVerified, EventTransferred,
	} {
		require.False(t, Terminal(s))
		s = Transition(s, e)
	}
	require.Equal(t, FlowSuccess, s)
	require.True(t, Terminal(s))
}
