package database

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Submission statuses persisted locally. This is a strict subset of the
// vendor's status vocabulary: in-flight states are never written here.
const (
	SubmissionStatusCreated   = "created"
	SubmissionStatusCompleted = "completed"
)

// SubmissionRecord is what the local system believes happened for one
// create-submission attempt. SubmissionID mirrors the remote identifier and
// is not unique across rows; it may also be empty when the remote response
// carried no id at all, in which case the row stays reachable through
// SubmitterSlug.
type SubmissionRecord struct {
	ID            int64     `json:"id"`
	UserID        int       `json:"user_id"`
	TemplateID    string    `json:"template_id"`
	TemplateSlug  string    `json:"template_slug"`
	SubmissionID  string    `json:"submission_id"`
	SubmitterSlug string    `json:"submitter_slug"`
	Status        string    `json:"status"`
	ArtifactKey   string    `json:"artifact_key,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

const submissionColumns = `id, user_id, template_id, template_slug, submission_id,
	submitter_slug, status, artifact_key, created_at, updated_at`

// InsertSubmission appends a new tracking row and returns its id. Rows are
// only ever appended, never merged: duplicate rows for one (user, template)
// pair are a documented consequence of retries.
func (s *service) InsertSubmission(rec *SubmissionRecord) (int64, error) {
	if rec.Status == "" {
		rec.Status = SubmissionStatusCreated
	}
	query := `
		INSERT INTO digisign_submissions
			(user_id, template_id, template_slug, submission_id, submitter_slug, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := s.db.QueryRow(
		query,
		rec.UserID,
		rec.TemplateID,
		rec.TemplateSlug,
		rec.SubmissionID,
		rec.SubmitterSlug,
		rec.Status,
	).Scan(&rec.ID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert submission record: %w", err)
	}
	return rec.ID, nil
}

// LatestSubmissionForTemplate returns the row that drives UI state for a
// (user, template) pair: newest by creation time, highest id on ties.
// Returns nil when the user never engaged with the template.
func (s *service) LatestSubmissionForTemplate(userID int, templateID string) (*SubmissionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM digisign_submissions
		WHERE user_id = $1 AND template_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, submissionColumns)

	return s.scanSubmission(s.db.QueryRow(query, userID, templateID))
}

// SubmissionByRemoteID returns the first row matching a remote submission
// id, lowest id first. When retries have produced duplicates only the first
// row is ever consulted or updated. A match alone does not authorize
// anything; callers must compare UserID against the acting user.
func (s *service) SubmissionByRemoteID(submissionID string) (*SubmissionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM digisign_submissions
		WHERE submission_id = $1
		ORDER BY id ASC
		LIMIT 1`, submissionColumns)

	return s.scanSubmission(s.db.QueryRow(query, submissionID))
}

// SubmissionBySubmitterSlug looks a row up by its cached signing slug. This
// is the only path to rows whose remote response carried no submission id.
func (s *service) SubmissionBySubmitterSlug(slug string) (*SubmissionRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM digisign_submissions
		WHERE submitter_slug = $1
		ORDER BY id ASC
		LIMIT 1`, submissionColumns)

	return s.scanSubmission(s.db.QueryRow(query, slug))
}

// MarkSubmissionCompleted transitions the first row matching the remote id
// to completed. Reports false when no row matches. Duplicate rows keep
// their old status.
func (s *service) MarkSubmissionCompleted(submissionID string) (bool, error) {
	query := `
		UPDATE digisign_submissions
		SET status = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM digisign_submissions
			WHERE submission_id = $2
			ORDER BY id ASC
			LIMIT 1
		)`

	result, err := s.db.Exec(query, SubmissionStatusCompleted, submissionID)
	if err != nil {
		return false, fmt.Errorf("failed to mark submission completed: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// RecordArtifactKey stores the vault key of the signed copy on the first
// row matching the remote id. Best-effort bookkeeping after completion.
func (s *service) RecordArtifactKey(submissionID, artifactKey string) error {
	query := `
		UPDATE digisign_submissions
		SET artifact_key = $1, updated_at = NOW()
		WHERE id = (
			SELECT id FROM digisign_submissions
			WHERE submission_id = $2
			ORDER BY id ASC
			LIMIT 1
		)`

	_, err := s.db.Exec(query, artifactKey, submissionID)
	if err != nil {
		return fmt.Errorf("failed to record artifact key: %w", err)
	}
	return nil
}

// UserSubmissions lists a user's tracking rows, newest first.
func (s *service) UserSubmissions(userID, limit int) ([]SubmissionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`
		SELECT %s FROM digisign_submissions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, submissionColumns)

	rows, err := s.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var records []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.TemplateID, &rec.TemplateSlug,
			&rec.SubmissionID, &rec.SubmitterSlug, &rec.Status,
			&rec.ArtifactKey, &rec.CreatedAt, &rec.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *service) scanSubmission(row *sql.Row) (*SubmissionRecord, error) {
	rec := &SubmissionRecord{}
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.TemplateID, &rec.TemplateSlug,
		&rec.SubmissionID, &rec.SubmitterSlug, &rec.Status,
		&rec.ArtifactKey, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan submission record: %w", err)
	}
	return rec, nil
}
