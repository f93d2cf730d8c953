package query

import (
	"encoding/json"
	"strings"
)

// Key identifies a cached query. The first part names the resource
// ("notes", "note"); the remaining parts are its parameters in a fixed order.
type Key []string

// NewKey builds a key from its parts.
func NewKey(parts ...string) Key {
	return Key(append([]string(nil), parts...))
}

// Resource returns the first key part, or "" for an empty key.
func (k Key) Resource() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

// Hash is the key fingerprint: the JSON array encoding of the parts.
// It is deterministic, so a key hashed on the server and on the client
// compares equal bit for bit.
func (k Key) Hash() string {
	if k == nil {
		return "[]"
	}
	b, err := json.Marshal([]string(k))
	if err != nil {
		// []string always marshals; keep a distinct fallback anyway.
		return "[" + strings.Join(k, ",") + "]"
	}
	return string(b)
}

// HasPrefix reports whether prefix matches the leading parts of k.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports whether both keys have the same parts.
func (k Key) Equal(other Key) bool {
	return len(k) == len(other) && k.HasPrefix(other)
}

func (k Key) String() string {
	return k.Hash()
}
