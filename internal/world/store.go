package world

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind tags a stored value. The tag round-trips through snapshots so a
// timestamp saved as a timestamp restores as one.
type Kind string

const (
	KindInt    Kind = "int"
	KindBool   Kind = "bool"
	KindString Kind = "string"
	KindTime   Kind = "time"
	KindBytes  Kind = "bytes"
)

// Value is one typed entry in an instance's state store.
type Value struct {
	Kind  Kind      `json:"t"`
	Int   int64     `json:"i,omitempty"`
	Bool  bool      `json:"b,omitempty"`
	Str   string    `json:"s,omitempty"`
	Time  time.Time `json:"ts,omitempty"`
	Bytes []byte    `json:"d,omitempty"`
}

func IntValue(v int64) Value      { return Value{Kind: KindInt, Int: v} }
func BoolValue(v bool) Value      { return Value{Kind: KindBool, Bool: v} }
func StringValue(v string) Value  { return Value{Kind: KindString, Str: v} }
func TimeValue(v time.Time) Value { return Value{Kind: KindTime, Time: v} }
func BytesValue(v []byte) Value   { return Value{Kind: KindBytes, Bytes: v} }

// Equal compares two values semantically (times by instant, blobs by
// content).
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindBool:
		return v.Bool == o.Bool
	case KindString:
		return v.Str == o.Str
	case KindTime:
		return v.Time.Equal(o.Time)
	case KindBytes:
		return bytes.Equal(v.Bytes, o.Bytes)
	}
	return false
}

// Any converts the value into the plain-Go form the Lua bridge uses.
func (v Value) Any() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBool:
		return v.Bool
	case KindString:
		return v.Str
	case KindTime:
		return v.Time
	case KindBytes:
		return v.Bytes
	}
	return nil
}

// ValueFromAny builds a Value from a plain-Go value coming back from Lua.
func ValueFromAny(a any) (Value, error) {
	switch x := a.(type) {
	case int64:
		return IntValue(x), nil
	case int:
		return IntValue(int64(x)), nil
	case float64:
		return IntValue(int64(x)), nil
	case bool:
		return BoolValue(x), nil
	case string:
		return StringValue(x), nil
	case time.Time:
		return TimeValue(x), nil
	case []byte:
		return BytesValue(x), nil
	}
	return Value{}, fmt.Errorf("world: unsupported state value %T", a)
}

// Store is the per-instance typed key-value map, the only part of an
// instance that survives reload and snapshot. Guarded by the world-state
// critical section like every other registry.
type Store struct {
	m map[string]Value
}

func NewStore() *Store {
	return &Store{m: make(map[string]Value)}
}

func (s *Store) Has(key string) bool {
	_, ok := s.m[key]
	return ok
}

func (s *Store) Get(key string) (Value, bool) {
	v, ok := s.m[key]
	return v, ok
}

func (s *Store) Set(key string, v Value) { s.m[key] = v }

func (s *Store) Delete(key string) { delete(s.m, key) }

func (s *Store) SetInt(key string, v int64)      { s.m[key] = IntValue(v) }
func (s *Store) SetBool(key string, v bool)      { s.m[key] = BoolValue(v) }
func (s *Store) SetString(key, v string)         { s.m[key] = StringValue(v) }
func (s *Store) SetTime(key string, v time.Time) { s.m[key] = TimeValue(v) }
func (s *Store) SetBytes(key string, v []byte)   { s.m[key] = BytesValue(v) }

func (s *Store) Int(key string) (int64, bool) {
	if v, ok := s.m[key]; ok && v.Kind == KindInt {
		return v.Int, true
	}
	return 0, false
}

func (s *Store) Bool(key string) (bool, bool) {
	if v, ok := s.m[key]; ok && v.Kind == KindBool {
		return v.Bool, true
	}
	return false, false
}

func (s *Store) String(key string) (string, bool) {
	if v, ok := s.m[key]; ok && v.Kind == KindString {
		return v.Str, true
	}
	return "", false
}

func (s *Store) Time(key string) (time.Time, bool) {
	if v, ok := s.m[key]; ok && v.Kind == KindTime {
		return v.Time, true
	}
	return time.Time{}, false
}

func (s *Store) Len() int { return len(s.m) }

// Keys returns the stored keys in sorted order.
func (s *Store) Keys() []string {
	keys := make([]string, 0, len(s.m))
	for k := range s.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the store's contents.
func (s *Store) Snapshot() map[string]Value {
	out := make(map[string]Value, len(s.m))
	for k, v := range s.m {
		if v.Kind == KindBytes {
			v.Bytes = append([]byte(nil), v.Bytes...)
		}
		out[k] = v
	}
	return out
}

// Apply overwrites entries from m without clearing existing keys.
func (s *Store) Apply(m map[string]Value) {
	for k, v := range m {
		s.m[k] = v
	}
}

// Replace discards the current contents and installs m.
func (s *Store) Replace(m map[string]Value) {
	s.m = make(map[string]Value, len(m))
	s.Apply(m)
}

// Equal reports whether two stores hold identical contents.
func (s *Store) Equal(o *Store) bool {
	if len(s.m) != len(o.m) {
		return false
	}
	for k, v := range s.m {
		ov, ok := o.m[k]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.m)
}

func (s *Store) UnmarshalJSON(data []byte) error {
	m := make(map[string]Value)
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	s.m = m
	return nil
}
