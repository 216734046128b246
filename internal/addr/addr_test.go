package addr

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	// System program: all zero bytes, on-curve.
	systemProgram = "11111111111111111111111111111111"
	// SPL token program.
	tokenProgram = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"system program", systemProgram, false},
		{"token program", tokenProgram, false},
		{"empty", "", true},
		{"whitespace padded", " " + systemProgram, true},
		{"not base58", "0OIl+/=", true},
		{"too short", "abc", true},
		{"signature length", "5VERYLONGSIGNATURELIKESTRINGTHATISNOTTHIRTYTWODECODEDBYTESxxxxxxxxxxxxxxxxxxxxxxxxx", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decoded, err := Validate(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidAddress)
				return
			}
			require.NoError(t, err)
			assert.Len(t, decoded, 32)
		})
	}
}

func TestIsValid(t *testing.T) {
	assert.True(t, IsValid(systemProgram))
	assert.False(t, IsValid(""))
	assert.False(t, IsValid("short"))
}

func TestIsOnCurve_MalformedInput(t *testing.T) {
	assert.False(t, IsOnCurve(""))
	assert.False(t, IsOnCurve("not-an-address"))
}
