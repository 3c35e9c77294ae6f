package world

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var c0 = time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

func TestCombatPairingIsSymmetric(t *testing.T) {
	c := NewCombat(2 * time.Second)
	c.Start("bob", "orc#000001", c0)

	ta, ok := c.Target("bob")
	require.True(t, ok)
	assert.Equal(t, "orc#000001", ta)

	tb, ok := c.Target("orc#000001")
	require.True(t, ok)
	assert.Equal(t, "bob", tb)

	assert.True(t, c.IsInCombat("bob"))
	assert.True(t, c.IsInCombat("orc#000001"))
}

func TestCombatStartEndsPreviousPairings(t *testing.T) {
	c := NewCombat(2 * time.Second)
	c.Start("bob", "orc#000001", c0)
	c.Start("bob", "rat#000001", c0)

	tgt, _ := c.Target("bob")
	assert.Equal(t, "rat#000001", tgt)
	assert.False(t, c.IsInCombat("orc#000001"))
}

func TestCombatSelfPairIgnored(t *testing.T) {
	c := NewCombat(2 * time.Second)
	c.Start("bob", "bob", c0)
	assert.False(t, c.IsInCombat("bob"))
}

func TestCombatEndDissolvesBothSides(t *testing.T) {
	c := NewCombat(2 * time.Second)
	c.Start("bob", "orc#000001", c0)
	c.End("orc#000001")

	assert.False(t, c.IsInCombat("bob"))
	assert.False(t, c.IsInCombat("orc#000001"))
	assert.Empty(t, c.Pairs())

	// ending a non-fighter is a no-op
	c.End("ghost")
}

func TestCombatRoundsDue(t *testing.T) {
	c := NewCombat(2 * time.Second)
	c.Start("bob", "orc#000001", c0)

	assert.Empty(t, c.RoundsDue(c0.Add(time.Second)))

	due := c.RoundsDue(c0.Add(2 * time.Second))
	require.Len(t, due, 1)
	assert.Equal(t, "bob", due[0].A)
	assert.Equal(t, "orc#000001", due[0].B)

	// deadline advanced by one interval
	assert.Empty(t, c.RoundsDue(c0.Add(3*time.Second)))
	assert.Len(t, c.RoundsDue(c0.Add(4*time.Second)), 1)
}

func TestCombatStartAtPreservesDeadline(t *testing.T) {
	c := NewCombat(2 * time.Second)
	due := c0.Add(500 * time.Millisecond)
	c.StartAt("bob", "orc#000001", due)

	pairs := c.Pairs()
	require.Len(t, pairs, 1)
	assert.True(t, pairs[0].NextRound.Equal(due))

	assert.Len(t, c.RoundsDue(due), 1)
}
