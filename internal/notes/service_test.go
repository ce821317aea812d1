package notes

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsapi/internal/logger"
	pkgerrors "opsapi/pkg/errors"
)

type fakeNoteRepo struct {
	byTask map[uuid.UUID][]Note
}

func newFakeNoteRepo() *fakeNoteRepo {
	return &fakeNoteRepo{byTask: map[uuid.UUID][]Note{}}
}

func (r *fakeNoteRepo) Insert(ctx context.Context, tx *sql.Tx, note *Note) error {
	r.byTask[note.TaskID] = append(r.byTask[note.TaskID], *note)
	return nil
}

func (r *fakeNoteRepo) Append(ctx context.Context, tx *sql.Tx, taskID uuid.UUID, body string) error {
	return r.Insert(ctx, tx, &Note{ID: uuid.New(), TaskID: taskID, Body: body})
}

func (r *fakeNoteRepo) ListByTask(ctx context.Context, taskID uuid.UUID) ([]Note, error) {
	return r.byTask[taskID], nil
}

type existingTasks map[uuid.UUID]bool

func (e existingTasks) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	return e[id], nil
}

func newTestNoteService(t *testing.T, repo Repository, tasks TaskChecker) (Service, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := NewService(db, repo, tasks, logger.NopLogger())
	return svc, mock, func() { _ = db.Close() }
}

func TestNoteCreate(t *testing.T) {
	taskID := uuid.New()
	repo := newFakeNoteRepo()

	svc, mock, cleanup := newTestNoteService(t, repo, existingTasks{taskID: true})
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectCommit()

	note, err := svc.Create(context.Background(), taskID, CreateNoteRequest{Body: "  called the customer  "})
	require.NoError(t, err)

	assert.Equal(t, "called the customer", note.Body)
	assert.Equal(t, taskID, note.TaskID)
	assert.NotEqual(t, uuid.Nil, note.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNoteCreate_UnknownTask(t *testing.T) {
	svc, _, cleanup := newTestNoteService(t, newFakeNoteRepo(), existingTasks{})
	defer cleanup()

	_, err := svc.Create(context.Background(), uuid.New(), CreateNoteRequest{Body: "x"})
	assert.True(t, pkgerrors.IsNotFound(err))
}

func TestNoteList(t *testing.T) {
	taskID := uuid.New()
	repo := newFakeNoteRepo()
	repo.byTask[taskID] = []Note{
		{ID: uuid.New(), TaskID: taskID, Body: "first"},
		{ID: uuid.New(), TaskID: taskID, Body: "second"},
	}

	svc, _, cleanup := newTestNoteService(t, repo, existingTasks{taskID: true})
	defer cleanup()

	response, err := svc.ListForTask(context.Background(), taskID)
	require.NoError(t, err)
	assert.Equal(t, 2, response.Count)
	assert.Len(t, response.Items, 2)
}

func TestNoteList_UnknownTask(t *testing.T) {
	svc, _, cleanup := newTestNoteService(t, newFakeNoteRepo(), existingTasks{})
	defer cleanup()

	_, err := svc.ListForTask(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsNotFound(err))
}
