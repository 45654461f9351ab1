package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEscalationLevelNext(t *testing.T) {
	cases := []struct {
		level EscalationLevel
		want  EscalationLevel
	}{
		{EscalationNone, EscalationHead},
		{EscalationHead, EscalationDean},
		{EscalationDean, EscalationPresident},
		{EscalationPresident, EscalationPresident},
		// tickets created without an explicit level climb the full ladder
		{EscalationLevel(""), EscalationHead},
		{EscalationLevel("bogus"), EscalationHead},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.level.Next(), "from %q", tc.level)
	}
}

func TestStatusClassification(t *testing.T) {
	assert.True(t, TicketStatusResolved.IsTerminal())
	assert.True(t, TicketStatusClosed.IsTerminal())
	assert.True(t, TicketStatusReturned.IsTerminal())
	// violated tickets can still be worked to completion
	assert.False(t, TicketStatusViolated.IsTerminal())

	assert.True(t, TicketStatusNew.IsOpen())
	assert.True(t, TicketStatusPendingAck.IsOpen())
	assert.True(t, TicketStatusInProgress.IsOpen())
	assert.False(t, TicketStatusViolated.IsOpen())
}
