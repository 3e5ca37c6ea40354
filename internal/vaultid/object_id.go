// Package vaultid defines the identifier types used across the engine.
package vaultid

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// objectIDEncoding is base32hex (RFC 4648) lowercase without padding.
// The alphabet 0-9a-v preserves lexicographic sort order, so ObjectID
// strings sort the same way their underlying UUIDv7 timestamps do.
var objectIDEncoding = base32.HexEncoding.WithPadding(base32.NoPadding)

// ObjectID uniquely identifies a stored object. It is a UUIDv7 (16 bytes):
// monotonically increasing and time-ordered, matching the allocation order
// of writes.
type ObjectID [16]byte

// NewObjectID mints an ObjectID from a fresh UUIDv7.
func NewObjectID() ObjectID {
	return ObjectID(uuid.Must(uuid.NewV7()))
}

// ParseObjectID parses a 26-character base32hex string into an ObjectID.
func ParseObjectID(value string) (ObjectID, error) {
	if len(value) != 26 {
		return ObjectID{}, fmt.Errorf("invalid object id length: %d (want 26)", len(value))
	}
	decoded, err := objectIDEncoding.DecodeString(strings.ToUpper(value))
	if err != nil {
		return ObjectID{}, fmt.Errorf("invalid object id: %w", err)
	}
	var id ObjectID
	copy(id[:], decoded)
	return id, nil
}

// String returns the 26-character lowercase base32hex representation.
func (id ObjectID) String() string {
	return strings.ToLower(objectIDEncoding.EncodeToString(id[:]))
}

// IsZero reports whether id is the zero value.
func (id ObjectID) IsZero() bool {
	return id == ObjectID{}
}
