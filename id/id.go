package id

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ID identifies an entity of the scene graph.
// The zero value equals Nil.
type ID struct {
	u uuid.UUID
}

var (
	// Nil is the invalid sentinel ID.
	Nil = ID{}

	// Root is the well-known ID of the scene graph root node.
	// All replicas agree on it without coordination.
	Root = ID{u: uuid.UUID{15: 1}}
)

// FromUUID wraps a UUID as an ID.
func FromUUID(u uuid.UUID) ID {
	return ID{u: u}
}

// Parse decodes the canonical string form of an ID.
// Surrounding whitespace is ignored. The empty string parses to an error,
// not to Nil, so that missing fields are distinguishable from explicit nil IDs.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Nil, fmt.Errorf("empty id")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID{u: u}, nil
}

// MustParse is like Parse but panics on malformed input.
// Intended for constants and tests.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return parsed
}

// IsNil reports whether the ID is the Nil sentinel.
func (i ID) IsNil() bool {
	return i.u == uuid.Nil
}

// IsRoot reports whether the ID is the well-known root ID.
func (i ID) IsRoot() bool {
	return i == Root
}

// UUID returns the underlying UUID.
func (i ID) UUID() uuid.UUID {
	return i.u
}

// String returns the canonical lowercase string form.
func (i ID) String() string {
	return i.u.String()
}

// Less orders IDs by their byte representation.
func (i ID) Less(other ID) bool {
	for k := range i.u {
		if i.u[k] != other.u[k] {
			return i.u[k] < other.u[k]
		}
	}
	return false
}

// Equal reports whether both IDs are the same.
func (i ID) Equal(other ID) bool {
	return i.u == other.u
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	return []byte(i.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*i = parsed
	return nil
}

// MarshalJSON renders the ID as a JSON string.
func (i ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(i.String())
}

// UnmarshalJSON parses a JSON string into an ID.
func (i *ID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("id must be a JSON string: %w", err)
	}
	return i.UnmarshalText([]byte(s))
}

// Strings converts a slice of IDs to their string forms.
func Strings(ids []ID) []string {
	out := make([]string, len(ids))
	for k, v := range ids {
		out[k] = v.String()
	}
	return out
}
