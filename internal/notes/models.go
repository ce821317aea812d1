package notes

import (
	"time"

	"github.com/google/uuid"
)

type Note struct {
	ID        uuid.UUID `json:"id"`
	TaskID    uuid.UUID `json:"task_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

type CreateNoteRequest struct {
	Body string `json:"body" binding:"required"`
}

type ListResponse struct {
	Count int    `json:"count"`
	Items []Note `json:"items"`
}
