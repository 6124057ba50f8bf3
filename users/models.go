package users

import "time"

// User mirrors the identity provider's record for a member of an
// organization. The service never writes it.
type User struct {
	ID             string
	OrganizationID string
	FullName       string
	Email          string
	CreatedAt      time.Time
}
