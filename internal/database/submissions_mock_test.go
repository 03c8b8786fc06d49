package database

import (
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests pin the store's query shapes without a live database; the
// ordering clauses are behavior, not implementation detail.

func newMockService(t *testing.T) (Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func submissionRows(recs ...SubmissionRecord) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "user_id", "template_id", "template_slug", "submission_id",
		"submitter_slug", "status", "artifact_key", "created_at", "updated_at",
	})
	for _, r := range recs {
		rows.AddRow(r.ID, r.UserID, r.TemplateID, r.TemplateSlug, r.SubmissionID,
			r.SubmitterSlug, r.Status, r.ArtifactKey, r.CreatedAt, r.UpdatedAt)
	}
	return rows
}

func TestInsertSubmissionDefaultsStatus(t *testing.T) {
	srv, mock := newMockService(t)

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO digisign_submissions`).
		WithArgs(7, "tmpl_1", "", "sub_1", "abc", SubmissionStatusCreated).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(5), now, now))

	rec := &SubmissionRecord{UserID: 7, TemplateID: "tmpl_1", SubmissionID: "sub_1", SubmitterSlug: "abc"}
	id, err := srv.InsertSubmission(rec)

	require.NoError(t, err)
	assert.EqualValues(t, 5, id)
	assert.Equal(t, SubmissionStatusCreated, rec.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSubmissionOrdering(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectQuery(`ORDER BY created_at DESC, id DESC\s+LIMIT 1`).
		WithArgs(7, "tmpl_1").
		WillReturnRows(submissionRows(SubmissionRecord{
			ID: 3, UserID: 7, TemplateID: "tmpl_1", SubmissionID: "sub_3", Status: SubmissionStatusCreated,
		}))

	rec, err := srv.LatestSubmissionForTemplate(7, "tmpl_1")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "sub_3", rec.SubmissionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSubmissionNoRows(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectQuery(`FROM digisign_submissions`).
		WithArgs(7, "tmpl_1").
		WillReturnRows(submissionRows())

	rec, err := srv.LatestSubmissionForTemplate(7, "tmpl_1")

	require.NoError(t, err)
	assert.Nil(t, rec, "absence is nil, not an error")
}

func TestSubmissionByRemoteIDTakesFirstRow(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectQuery(`ORDER BY id ASC\s+LIMIT 1`).
		WithArgs("sub_1").
		WillReturnRows(submissionRows(SubmissionRecord{
			ID: 1, UserID: 7, SubmissionID: "sub_1", Status: SubmissionStatusCreated,
		}))

	rec, err := srv.SubmissionByRemoteID("sub_1")

	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.EqualValues(t, 1, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSubmissionCompletedTargetsFirstRow(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectExec(`(?s)UPDATE digisign_submissions\s+SET status = \$1.+ORDER BY id ASC`).
		WithArgs(SubmissionStatusCompleted, "sub_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	marked, err := srv.MarkSubmissionCompleted("sub_1")

	require.NoError(t, err)
	assert.True(t, marked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkSubmissionCompletedNoRows(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectExec(`UPDATE digisign_submissions`).
		WithArgs(SubmissionStatusCompleted, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	marked, err := srv.MarkSubmissionCompleted("ghost")

	require.NoError(t, err)
	assert.False(t, marked)
}

func TestMarkSubmissionCompletedError(t *testing.T) {
	srv, mock := newMockService(t)

	mock.ExpectExec(`UPDATE digisign_submissions`).
		WithArgs(SubmissionStatusCompleted, "sub_1").
		WillReturnError(errors.New("connection reset"))

	marked, err := srv.MarkSubmissionCompleted("sub_1")

	assert.Error(t, err)
	assert.False(t, marked)
}

func TestUserSubmissionsScansAll(t *testing.T) {
	srv, mock := newMockService(t)

	now := time.Now()
	mock.ExpectQuery(`WHERE user_id = \$1`).
		WithArgs(7, 50).
		WillReturnRows(submissionRows(
			SubmissionRecord{ID: 2, UserID: 7, SubmissionID: "sub_2", Status: SubmissionStatusCompleted, CreatedAt: now, UpdatedAt: now},
			SubmissionRecord{ID: 1, UserID: 7, SubmissionID: "sub_1", Status: SubmissionStatusCreated, CreatedAt: now, UpdatedAt: now},
		))

	recs, err := srv.UserSubmissions(7, 0)

	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "sub_2", recs[0].SubmissionID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
