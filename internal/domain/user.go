package domain

import (
	"time"

	"github.com/google/uuid"
)

// User owns zero or more items. Email is unique across all users;
// the constraint is enforced by the database.
type User struct {
	ID        uuid.UUID
	Email     string
	FirstName string
	LastName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}
