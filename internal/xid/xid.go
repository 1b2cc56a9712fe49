package xid

import "github.com/google/uuid"

// New returns a random identifier such as "req-3f0c...". An empty prefix
// yields the bare uuid.
func New(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
