package domain

import (
	"fmt"
	"regexp"
	"time"
)

// =============================================================================
// Tenant
// =============================================================================

// Tenant is the authenticated account identity under which all containers,
// stacks, ports, and paths are scoped. Tenants are created by the
// surrounding application; this subsystem only resolves and caches them.
type Tenant struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	HomeDir   string    `json:"home_dir"`
	CreatedAt time.Time `json:"created_at"`
}

// usernameRegex limits usernames to filesystem-safe characters. The
// username becomes a directory component under the tenants root.
var usernameRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ValidateUsername validates a tenant username for filesystem use.
func ValidateUsername(username string) error {
	if username == "" {
		return fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("%w: username %q is not filesystem-safe", ErrValidation, username)
	}
	return nil
}
