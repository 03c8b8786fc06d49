// Package digisign maps mutable remote e-signature submissions onto the
// simple per-user, per-template status the UI works with, and coordinates
// the create / resume / complete lifecycle around them.
package digisign

import (
	"context"
	"errors"

	"digisign/internal/database"
	"digisign/internal/docuseal"
)

// User identifies the acting local user. Email is what ties them to their
// operator-role submitter entries on the remote side.
type User struct {
	ID    int
	Email string
	Name  string
}

// Remote is the slice of the vendor client used here. docuseal.Client
// satisfies it; tests substitute fakes with call counting.
type Remote interface {
	ListTemplates(ctx context.Context, limit int) []docuseal.Template
	ListSubmissions(ctx context.Context, opts docuseal.ListSubmissionsOptions) []docuseal.Submission
	CreateSubmission(ctx context.Context, templateID, email, name string) *docuseal.CreateResult
	GetSubmission(ctx context.Context, submissionID string) *docuseal.Submission
	DownloadSignedPDF(ctx context.Context, submissionID string) []byte
}

// Store is the slice of the local persistence layer used here.
// database.Service satisfies it.
type Store interface {
	InsertSubmission(rec *database.SubmissionRecord) (int64, error)
	LatestSubmissionForTemplate(userID int, templateID string) (*database.SubmissionRecord, error)
	SubmissionByRemoteID(submissionID string) (*database.SubmissionRecord, error)
	SubmissionBySubmitterSlug(slug string) (*database.SubmissionRecord, error)
	MarkSubmissionCompleted(submissionID string) (bool, error)
	RecordArtifactKey(submissionID, artifactKey string) error
	UserSubmissions(userID, limit int) ([]database.SubmissionRecord, error)
}

var (
	// ErrRemoteRejected means the vendor refused or never received the
	// create call; nothing was persisted locally.
	ErrRemoteRejected = errors.New("remote service rejected the request")
	// ErrNotFound means no local record matches the submission id.
	ErrNotFound = errors.New("submission not found")
	// ErrPermissionDenied means the record or remote submission belongs to
	// a different user. Never downgraded to not-found.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotReady means the signed artifact is not available yet; the
	// caller may retry later. No local state changes.
	ErrNotReady = errors.New("signed file not available yet")
	// ErrExpired means no usable signing slug survives anywhere; the only
	// way forward is a new submission.
	ErrExpired = errors.New("submission expired")
)
