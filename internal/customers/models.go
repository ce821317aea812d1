package customers

import (
	"time"

	"github.com/google/uuid"
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type CreateCustomerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

type UpdateCustomerRequest struct {
	Name  string `json:"name" binding:"required"`
	Email string `json:"email" binding:"required,email"`
}

// ListResponse echoes the paging window back so clients can page without
// tracking it themselves.
type ListResponse struct {
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
	Count  int        `json:"count"`
	Items  []Customer `json:"items"`
}
