package model

import (
	"fmt"
	"strings"
)

// Key identifies a record by entity type and primary key.
// Its text form is "type/id"; the ID may itself contain slashes.
type Key struct {
	Type string
	ID   string
}

// NewKey returns the key for the given type and id.
func NewKey(typ, id string) Key {
	return Key{Type: typ, ID: id}
}

// ParseKey parses the "type/id" text form of a key.
func ParseKey(s string) (Key, error) {
	typ, id, ok := strings.Cut(s, "/")
	if !ok || typ == "" || id == "" {
		return Key{}, fmt.Errorf("invalid key %q: want <type>/<id>", s)
	}
	return Key{Type: typ, ID: id}, nil
}

// ParseKeys parses every element of ss, stopping at the first invalid key.
func ParseKeys(ss []string) ([]Key, error) {
	keys := make([]Key, 0, len(ss))
	for _, s := range ss {
		k, err := ParseKey(s)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

// String returns the "type/id" form of the key.
func (k Key) String() string {
	if k.IsZero() {
		return ""
	}
	return k.Type + "/" + k.ID
}

// IsZero reports whether the key is unset.
func (k Key) IsZero() bool {
	return k.Type == "" && k.ID == ""
}

// IsValid reports whether both parts of the key are set.
func (k Key) IsValid() bool {
	return k.Type != "" && k.ID != ""
}

// MarshalText encodes the key as "type/id".
func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a "type/id" key. The empty string decodes to the zero key.
func (k *Key) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*k = Key{}
		return nil
	}
	parsed, err := ParseKey(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// DedupeKeys returns keys with duplicates removed, preserving first occurrence order.
func DedupeKeys(keys []Key) []Key {
	seen := make(map[Key]bool, len(keys))
	out := make([]Key, 0, len(keys))
	for _, k := range keys {
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
