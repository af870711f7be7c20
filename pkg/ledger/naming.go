package ledger

import (
	"fmt"
	"regexp"
)

// MaxInstanceNameLength is the longest instance name a namespace accepts.
const MaxInstanceNameLength = 63

// instanceNamePattern keeps instance names free of ':' and glob characters so
// that a SCAN over one namespace can never match keys of another.
// Lowercase alphanumeric, hyphens allowed (but not at start/end).
var instanceNamePattern = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

// ValidateInstanceName checks that name is usable as a key namespace.
func ValidateInstanceName(name string) error {
	if name == "" {
		return fmt.Errorf("instance name cannot be empty")
	}

	if len(name) > MaxInstanceNameLength {
		return fmt.Errorf("instance name too long: %d characters (max: %d)", len(name), MaxInstanceNameLength)
	}

	if !instanceNamePattern.MatchString(name) {
		return fmt.Errorf("invalid instance name '%s': must be lowercase alphanumeric with hyphens (not at start/end)", name)
	}

	return nil
}
