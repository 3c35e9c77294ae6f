package ident

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceIDRoundTrip(t *testing.T) {
	id := InstanceID("rooms/square", 42)
	assert.Equal(t, "rooms/square#000042", id)

	bp, ord, err := ParseInstanceID(id)
	require.NoError(t, err)
	assert.Equal(t, "rooms/square", bp)
	assert.Equal(t, uint64(42), ord)
}

func TestParseInstanceIDRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"", "rooms/square", "#7", "a#", "a#xyz"} {
		_, _, err := ParseInstanceID(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestIsInstanceID(t *testing.T) {
	assert.True(t, IsInstanceID("items/sword#000001"))
	assert.False(t, IsInstanceID("items/sword"))
}

func TestValidateBlueprintID(t *testing.T) {
	assert.NoError(t, ValidateBlueprintID("rooms/square"))
	assert.NoError(t, ValidateBlueprintID("std/player"))

	for _, bad := range []string{
		"",
		"rooms/square#1",
		"session:bob",
		"/etc/passwd",
		"../escape",
		"rooms/../../escape",
		"rooms\\square",
	} {
		assert.Error(t, ValidateBlueprintID(bad), "input %q", bad)
	}
}

func TestSessionID(t *testing.T) {
	assert.Equal(t, "session:bob", SessionID("Bob"))
}

func TestSourcePath(t *testing.T) {
	assert.Equal(t, "rooms/square.lua", SourcePath("rooms/square"))
	assert.Equal(t, "rooms/square", BlueprintFromPath("rooms/square.lua"))
}
