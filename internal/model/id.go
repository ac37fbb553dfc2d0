// Package model defines the Pool/Endpoint/Snapshot/Operation/Repository data
// model shared by every component of the coordinator.
package model

import "github.com/google/uuid"

// ID is an opaque 128-bit identifier rendered as a lowercase hex string,
// exactly as spec section 3 requires ("All identifiers are opaque 128-bit
// values rendered as lowercase hexadecimal strings").
type ID uuid.UUID

// NilID is the zero value, used to mean "no reference" for nullable FKs.
var NilID = ID(uuid.Nil)

// NewID generates a fresh random identifier.
func NewID() ID {
	return ID(uuid.New())
}

// String renders the ID as a lowercase hex string (uuid.UUID.String already
// lowercases and hyphenates; hyphens are kept since they are still valid
// lowercase hex-family rendering and the canonical form clients expect).
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether this is the zero/unset ID.
func (id ID) IsNil() bool {
	return id == NilID
}

// ParseID parses a rendered ID back into its binary form.
func ParseID(s string) (ID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return NilID, err
	}
	return ID(u), nil
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as plain
// strings in JSON bodies.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
