// Package ident is the identifier service: blueprint IDs, instance IDs and
// the reserved session pseudo-ID space.
//
// A blueprint ID is the world-relative source path with the .lua suffix
// stripped, e.g. "rooms/square" for World/rooms/square.lua. An instance ID
// is "<blueprintID>#<6-digit ordinal>"; ordinals are per blueprint,
// monotonic, never reused.
package ident

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
)

// SessionPrefix marks the reserved pseudo-ID space for player sessions.
// Session IDs never collide with blueprint IDs because '#' and ':' are
// both rejected in blueprint paths.
const SessionPrefix = "session:"

var (
	ErrBadBlueprintID = errors.New("ident: invalid blueprint id")
	ErrBadInstanceID  = errors.New("ident: invalid instance id")
)

// InstanceID formats the object ID for ordinal n of blueprint bp.
func InstanceID(bp string, n uint64) string {
	return fmt.Sprintf("%s#%06d", bp, n)
}

// ParseInstanceID splits an object ID into blueprint ID and ordinal.
func ParseInstanceID(id string) (bp string, n uint64, err error) {
	i := strings.LastIndexByte(id, '#')
	if i <= 0 || i == len(id)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrBadInstanceID, id)
	}
	n, err = strconv.ParseUint(id[i+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrBadInstanceID, id)
	}
	return id[:i], n, nil
}

// IsInstanceID reports whether id names a live instance (as opposed to a
// blueprint or a session pseudo-ID).
func IsInstanceID(id string) bool {
	_, _, err := ParseInstanceID(id)
	return err == nil && !IsSessionID(id)
}

// SessionID returns the pseudo-ID for a logged-in player name.
func SessionID(name string) string {
	return SessionPrefix + strings.ToLower(name)
}

func IsSessionID(id string) bool {
	return strings.HasPrefix(id, SessionPrefix)
}

// ValidateBlueprintID checks a world-relative blueprint path. Rejects
// absolute paths, traversal, and the reserved '#'/':' characters so the
// instance and session namespaces stay disjoint.
func ValidateBlueprintID(bp string) error {
	if bp == "" {
		return fmt.Errorf("%w: empty", ErrBadBlueprintID)
	}
	if strings.ContainsAny(bp, "#:\\") {
		return fmt.Errorf("%w: %q", ErrBadBlueprintID, bp)
	}
	if path.IsAbs(bp) || bp != path.Clean(bp) || strings.HasPrefix(bp, "..") {
		return fmt.Errorf("%w: %q", ErrBadBlueprintID, bp)
	}
	return nil
}

// BlueprintFromPath derives a blueprint ID from a source file path relative
// to the world root.
func BlueprintFromPath(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	return strings.TrimSuffix(rel, ".lua")
}

// SourcePath returns the source file path (relative to the world root) for
// a blueprint ID.
func SourcePath(bp string) string {
	return bp + ".lua"
}
