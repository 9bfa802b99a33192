// Package ids generates entity identifiers. Centralizing it here means a
// test can swap in a deterministic generator without touching every engine.
package ids

import "github.com/google/uuid"

// New returns a random UUID string, used for every entity ID in the module.
func New() string {
	return uuid.NewString()
}
