package models

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "asha@college.edu", NormalizeEmail("  Asha@College.EDU "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestEventCapacity(t *testing.T) {
	tests := []struct {
		name  string
		event Event
		full  bool
	}{
		{"unlimited", Event{MaxParticipants: 0, CurrentParticipants: 500}, false},
		{"room left", Event{MaxParticipants: 10, CurrentParticipants: 9}, false},
		{"at capacity", Event{MaxParticipants: 10, CurrentParticipants: 10}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.full, tt.event.IsFull())
		})
	}
}

func TestTeamInfoSize(t *testing.T) {
	var none *TeamInfo
	assert.Equal(t, 1, none.Size())
	assert.Nil(t, none.MembersJSONB())

	team := &TeamInfo{TeamName: "Byte Me", Members: []TeamMember{{Name: "Ravi", Email: "RAVI@x.in"}, {Name: "Meera"}}}
	assert.Equal(t, 3, team.Size())
	members := team.MembersJSONB()["members"].([]interface{})
	require.Len(t, members, 2)
	assert.Equal(t, "ravi@x.in", members[0].(map[string]interface{})["email"])
}

func TestGatewayProof(t *testing.T) {
	proof := GatewayProof("pay_123")
	assert.Equal(t, "razorpay:pay_123", proof)
	assert.True(t, IsGatewayProof(proof))
	assert.False(t, IsGatewayProof("https://cdn.example.com/receipt.png"))
}

func TestNotificationTypeIsValid(t *testing.T) {
	assert.True(t, NotificationFestCodeApproved.IsValid())
	assert.False(t, NotificationType("sms_blast").IsValid())
}

func TestJSONBRoundTrip(t *testing.T) {
	in := JSONB{"team": "alpha"}
	v, err := in.Value()
	require.NoError(t, err)

	var out JSONB
	require.NoError(t, out.Scan(v.([]byte)))
	assert.Equal(t, "alpha", out["team"])

	require.NoError(t, out.Scan(nil))
	assert.Nil(t, out)
	assert.Error(t, out.Scan(42))
}

func TestJSONBScanVariants(t *testing.T) {
	var fromText JSONB
	require.NoError(t, fromText.Scan(`{"members":[{"name":"Asha"}]}`))
	assert.Len(t, fromText["members"], 1)

	var empty JSONB
	require.NoError(t, empty.Scan([]byte{}))
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	var bad JSONB
	assert.Error(t, bad.Scan([]byte(`[1,2]`)), "a jsonb array is not an object")

	v, err := JSONB(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = JSONB{"bad": make(chan int)}.Value()
	assert.Error(t, err)
}

func TestAppError(t *testing.T) {
	cause := errors.New("connection reset")
	err := PersistenceError("failed to save registration", cause)

	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)

	wrapped := errors.Join(errors.New("outer"), err)
	assert.Equal(t, KindPersistence, KindOf(wrapped))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))

	assert.Equal(t, http.StatusConflict, AlreadyRegisteredError("dup", nil).Status)
	assert.Equal(t, http.StatusBadGateway, GatewayError("down", nil).Status)
	assert.Equal(t, http.StatusUnauthorized, AuthenticationError("bad sig").Status)
}

func TestPaymentEventTypeIsTerminal(t *testing.T) {
	assert.True(t, PaymentEventRejectedBadSignature.IsTerminal())
	assert.True(t, PaymentEventCompleted.IsTerminal())
	assert.False(t, PaymentEventPersisting.IsTerminal())
}
