package domain

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegisterStatus_IsValid(t *testing.T) {
	tests := []struct {
		status  RegisterStatus
		isValid bool
	}{
		{RegisterStatusOffline, true},
		{RegisterStatusOnline, true},
		{RegisterStatusChecking, true},
		{RegisterStatusRecovery, true},
		{RegisterStatus("paused"), false},
		{RegisterStatus(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			require.Equal(t, tt.isValid, tt.status.IsValid())
		})
	}
}

func TestNewRegister(t *testing.T) {
	now := time.Now()
	r := NewRegister("id", "name", "tenant", false, true, now)

	require.Equal(t, uint64(0), r.Height)
	require.Equal(t, RegisterStatusOffline, r.Status)
	require.False(t, r.Advertise)
	require.True(t, r.IsFullReplica)
	require.Equal(t, now, r.CreatedAt)
	require.Equal(t, now, r.UpdatedAt)
}

func TestValidateRegisterName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{"single char", "a", true},
		{"max length", strings.Repeat("n", MaxRegisterNameLength), true},
		{"too long", strings.Repeat("n", MaxRegisterNameLength+1), false},
		{"empty", "", false},
		{"blank", "   ", false},
		{"multibyte at limit", strings.Repeat("é", MaxRegisterNameLength), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRegisterName(tt.input)
			if tt.ok {
				require.NoError(t, err)
				return
			}
			require.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestErrors_UnwrapToSentinels(t *testing.T) {
	require.ErrorIs(t, &NotFoundError{Entity: "register", Key: "x"}, ErrNotFound)
	require.ErrorIs(t, &AuthorizationError{RegisterID: "x", TenantID: "t"}, ErrUnauthorized)
	require.ErrorIs(t, &StateTransitionError{Entity: "docket"}, ErrInvalidStateTransition)
	require.ErrorIs(t, NewValidationError("f", "m"), ErrValidation)
	require.Equal(t, "register not found: x", (&NotFoundError{Entity: "register", Key: "x"}).Error())
}
