package services

import (
	"fmt"

	"github.com/civictrack/apiserver/types"
)

// AuthorizeTransition decides whether role may move a complaint to target.
// Only admins may resolve. Every other status is open to any signed-in user,
// regardless of the current status or who filed the complaint.
func AuthorizeTransition(role types.Role, target types.Status) error {
	switch target {
	case types.StatusResolved:
		if !role.IsAdmin() {
			return fmt.Errorf("%w: only admins can resolve complaints", ErrForbidden)
		}
		return nil
	case types.StatusPending, types.StatusInProgress:
		return nil
	default:
		return NewValidationError("status", fmt.Sprintf("invalid status %q", target))
	}
}
