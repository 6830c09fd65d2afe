// Package directory holds the manager and customer records the chat engine
// hangs conversations off. Managers are created out of band; customers come
// in through a manager's public invite slug.
package directory

import (
	"time"

	"github.com/google/uuid"
)

// Manager is a business-side account.
type Manager struct {
	ID           uuid.UUID `json:"id"`
	Name         string    `json:"name"`
	BusinessName string    `json:"businessName"`
	Slug         string    `json:"slug"`
	Phone        string    `json:"phone,omitempty"`
	LogoURL      string    `json:"logoUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// CustomerStatus tracks whether a customer is currently attached to the
// manager's workspace.
type CustomerStatus string

const (
	CustomerActive   CustomerStatus = "active"
	CustomerInactive CustomerStatus = "inactive"
)

// Customer is an end user attached to exactly one manager. Phone is unique
// per manager; re-joining reactivates the row instead of duplicating it.
type Customer struct {
	ID        uuid.UUID      `json:"id"`
	ManagerID uuid.UUID      `json:"managerId"`
	Name      string         `json:"name"`
	Phone     string         `json:"phone"`
	Status    CustomerStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}
