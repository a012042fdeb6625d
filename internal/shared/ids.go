package shared

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// NewID returns a new random identifier.
func NewID() string {
	return uuid.NewString()
}

// NormalizeID canonicalises an identifier received from a client. Malformed
// ids are reported as not found so that probing reveals nothing.
func NormalizeID(raw string) (string, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("%w: unknown id", ErrNotFound)
	}
	return id.String(), nil
}

// SameID compares two identifiers after canonicalisation. Ids that do not
// parse as UUIDs are compared by their trimmed, case-folded text.
func SameID(a, b string) bool {
	ua, errA := uuid.Parse(strings.TrimSpace(a))
	ub, errB := uuid.Parse(strings.TrimSpace(b))
	if errA == nil && errB == nil {
		return ua == ub
	}
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
