package tasks

import (
	"time"

	"github.com/google/uuid"
)

// Status moves forward only: OPEN -> IN_PROGRESS -> DONE. A DONE task is
// never reopened.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

var statusRank = map[Status]int{
	StatusOpen:       0,
	StatusInProgress: 1,
	StatusDone:       2,
}

func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransitionTo allows only forward moves.
func (s Status) CanTransitionTo(next Status) bool {
	return statusRank[next] > statusRank[s]
}

type Task struct {
	ID         uuid.UUID `json:"id"`
	CustomerID uuid.UUID `json:"customer_id"`
	Title      string    `json:"title"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type CreateTaskRequest struct {
	Title string `json:"title" binding:"required"`

	// SimulateFailure forces a rollback after the task insert, for
	// demonstrating transactional atomicity.
	SimulateFailure bool `json:"simulate_failure"`
}

type UpdateStatusRequest struct {
	Status          string `json:"status" binding:"required"`
	SimulateFailure bool   `json:"simulate_failure"`
}

type ListResponse struct {
	Count int    `json:"count"`
	Items []Task `json:"items"`
}

// SummaryItem is a task joined with its most recent note, if any.
type SummaryItem struct {
	ID                  uuid.UUID  `json:"id"`
	CustomerID          uuid.UUID  `json:"customer_id"`
	Title               string     `json:"title"`
	Status              Status     `json:"status"`
	UpdatedAt           time.Time  `json:"updated_at"`
	LatestNoteSnippet   *string    `json:"latest_note_snippet"`
	LatestNoteCreatedAt *time.Time `json:"latest_note_created_at"`
}

type SummaryResponse struct {
	Count        int            `json:"count"`
	StatusCounts map[Status]int `json:"status_counts"`
	Items        []SummaryItem  `json:"items"`
}
