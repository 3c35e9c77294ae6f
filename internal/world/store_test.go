package world

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreTypedAccess(t *testing.T) {
	s := NewStore()
	s.SetInt("hp", 30)
	s.SetBool("lit", true)
	s.SetString("name", "torch")
	when := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s.SetTime("since", when)

	hp, ok := s.Int("hp")
	require.True(t, ok)
	assert.Equal(t, int64(30), hp)

	lit, ok := s.Bool("lit")
	require.True(t, ok)
	assert.True(t, lit)

	name, ok := s.String("name")
	require.True(t, ok)
	assert.Equal(t, "torch", name)

	got, ok := s.Time("since")
	require.True(t, ok)
	assert.True(t, got.Equal(when))

	// wrong-kind reads miss instead of coercing
	_, ok = s.String("hp")
	assert.False(t, ok)

	s.Delete("lit")
	assert.False(t, s.Has("lit"))
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, []string{"hp", "name", "since"}, s.Keys())
}

func TestStoreJSONRoundTrip(t *testing.T) {
	s := NewStore()
	s.SetInt("count", -7)
	s.SetString("owner", "bob")
	s.SetBytes("blob", []byte{0x00, 0xff, 0x10})
	s.SetTime("at", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	s.SetBool("open", false)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	back := NewStore()
	require.NoError(t, json.Unmarshal(data, back))
	assert.True(t, s.Equal(back))
}

func TestStoreSnapshotIsDeep(t *testing.T) {
	s := NewStore()
	s.SetBytes("blob", []byte{1, 2, 3})

	snap := s.Snapshot()
	snap["blob"].Bytes[0] = 99

	v, _ := s.Get("blob")
	assert.Equal(t, []byte{1, 2, 3}, v.Bytes)
}

func TestStoreReplaceAndApply(t *testing.T) {
	s := NewStore()
	s.SetInt("a", 1)
	s.SetInt("b", 2)

	s.Apply(map[string]Value{"b": IntValue(20), "c": IntValue(3)})
	b, _ := s.Int("b")
	assert.Equal(t, int64(20), b)
	assert.True(t, s.Has("a"))

	s.Replace(map[string]Value{"x": StringValue("only")})
	assert.Equal(t, 1, s.Len())
	assert.False(t, s.Has("a"))
}

func TestValueEqual(t *testing.T) {
	east := time.FixedZone("east", 3600)
	utc := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	assert.True(t, TimeValue(utc).Equal(TimeValue(utc.In(east))))

	assert.False(t, IntValue(1).Equal(BoolValue(true)))
	assert.True(t, BytesValue([]byte("ab")).Equal(BytesValue([]byte("ab"))))
	assert.False(t, BytesValue([]byte("ab")).Equal(BytesValue([]byte("ac"))))
}

func TestValueFromAny(t *testing.T) {
	v, err := ValueFromAny(float64(41))
	require.NoError(t, err)
	assert.Equal(t, IntValue(41), v)

	_, err = ValueFromAny(struct{}{})
	assert.Error(t, err)
}
