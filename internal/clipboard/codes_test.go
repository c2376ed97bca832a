package clipboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidCode(t *testing.T) {
	tests := []struct {
		name  string
		code  string
		valid bool
	}{
		{"valid uppercase", "AB12", true},
		{"valid all letters", "WXYZ", true},
		{"valid all digits", "0419", true},
		{"lowercase", "ab12", false},
		{"too short", "AB1", false},
		{"too long", "AB123", false},
		{"empty", "", false},
		{"symbols", "AB-1", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.valid, ValidCode(tc.code))
		})
	}
}

func Test_generateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		assert.NoError(t, err)
		assert.True(t, ValidCode(code), "generated code %q should be valid", code)
		seen[code] = struct{}{}
	}

	// Not a strict guarantee, but 100 draws from a 36^4 space should
	// essentially never all collide down to a handful of values.
	assert.Greater(t, len(seen), 50, "expected generated codes to vary")
}
