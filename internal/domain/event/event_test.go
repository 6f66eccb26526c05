package event

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"claim submitted", TypeClaimSubmitted, true},
		{"claim overridden", TypeClaimOverridden, true},
		{"reminder due", TypeStepReminderDue, true},
		{"unknown", Type("unknown.type"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.eventType.IsValid())
		})
	}
	assert.Equal(t, "claim.escalated", TypeClaimEscalated.String())
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeClaimApproved, 12, 3, map[string]interface{}{"status": "APPROVED"})
	require.NotNil(t, e)

	_, err := uuid.Parse(e.ID)
	assert.NoError(t, err)
	_, err = uuid.Parse(e.CorrelationID)
	assert.NoError(t, err)
	assert.NotEqual(t, e.ID, e.CorrelationID)

	assert.Equal(t, int64(12), e.ClaimID)
	assert.Equal(t, int64(3), e.ActorID)
	assert.Equal(t, "APPROVED", e.GetPayloadString("status"))
	assert.WithinDuration(t, time.Now(), e.Timestamp, time.Second)
}

func TestNewEventWithCorrelation_NilPayload(t *testing.T) {
	e := NewEventWithCorrelation(TypeClaimRouted, 1, 2, nil, "corr-1")
	assert.Equal(t, "corr-1", e.CorrelationID)
	assert.NotNil(t, e.Payload)
	assert.Equal(t, "", e.GetPayloadString("missing"))
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeClaimRejected, 1, 2, map[string]interface{}{"reason": "dup"})
	updated := original.WithPayload("sequence", 3)

	assert.Equal(t, int64(3), updated.GetPayloadInt("sequence"))
	assert.Equal(t, "dup", updated.GetPayloadString("reason"))
	assert.Equal(t, original.ID, updated.ID)

	_, exists := original.Payload["sequence"]
	assert.False(t, exists, "original payload must not change")
}

func TestEvent_PayloadGetters(t *testing.T) {
	e := NewEvent(TypeStepReminderDue, 1, 0, map[string]interface{}{
		"step_id":  float64(9),
		"reminded": true,
		"name":     42,
	})
	assert.Equal(t, int64(9), e.GetPayloadInt("step_id"))
	assert.True(t, e.GetPayloadBool("reminded"))
	assert.Equal(t, "", e.GetPayloadString("name"))
	assert.False(t, e.GetPayloadBool("name"))
}
