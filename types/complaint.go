package types

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a complaint. The string values are the
// ones clients send and receive.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// ParseStatus converts raw input into a Status. Matching is exact.
func ParseStatus(raw string) (Status, error) {
	status := Status(raw)
	if !status.Valid() {
		return "", fmt.Errorf("invalid status %q", raw)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusResolved:
		return true
	default:
		return false
	}
}

// Complaint is an issue reported by a community member.
type Complaint struct {
	// ID is the unique identifier of the complaint.
	ID int `json:"id" db:"id"`

	// Description explains the issue.
	Description string `json:"description" db:"description"`

	// Location is a free-form place reference (address, intersection, landmark).
	Location string `json:"location" db:"location"`

	// Status is the current lifecycle state.
	Status Status `json:"status" db:"status"`

	// Upvotes counts expressions of support. It never decreases.
	Upvotes int `json:"upvotes" db:"upvotes"`

	// ImageKey is the object key of the attached image, empty when none.
	ImageKey string `json:"image,omitempty" db:"image_key"`

	// ImageURL is the public URL of the image. It is derived, never stored.
	ImageURL string `json:"image_url,omitempty" db:"-"`

	// UserID references the author. It is zero when the author row is gone.
	UserID int `json:"user_id" db:"user_id"`

	// AuthorEmail is joined from users for display.
	AuthorEmail string `json:"author_email,omitempty" db:"author_email"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ComplaintFilter narrows a complaint listing. Zero values mean no filter.
type ComplaintFilter struct {
	// Search matches description or location, case-insensitively.
	Search string
	// Status matches exactly.
	Status Status
}
