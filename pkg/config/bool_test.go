package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBool(t *testing.T) {
	tests := []struct {
		raw  string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{" 1 ", true},
		{"yes", true},
		{"Y", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"enabled", false},
		{"tru", false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseBool(tt.raw))
		})
	}
}

func TestBoolFrom(t *testing.T) {
	lookup := MapLookup(map[string]string{"SET_EMPTY": "", "SET_ON": "on"})

	assert.True(t, BoolFrom(lookup, "ABSENT", true))
	assert.False(t, BoolFrom(lookup, "ABSENT", false))
	assert.False(t, BoolFrom(lookup, "SET_EMPTY", true))
	assert.True(t, BoolFrom(lookup, "SET_ON", false))
}
