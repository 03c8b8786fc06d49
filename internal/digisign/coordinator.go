package digisign

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"digisign/internal/database"
)

// ArtifactVault stores signed PDF copies. storage.S3Service satisfies it.
type ArtifactVault interface {
	StoreSignedDocument(ctx context.Context, userID int, submissionID string, pdf []byte) (*StoredArtifact, error)
}

// StoredArtifact describes one archived signed copy.
type StoredArtifact struct {
	Key      string `json:"key"`
	Bucket   string `json:"bucket"`
	FileHash string `json:"file_hash"`
	FileSize int64  `json:"file_size"`
}

// Coordinator orchestrates the submission lifecycle: create against the
// vendor then record locally, resume with a live or cached signing slug,
// and complete by downloading and archiving the signed artifact.
type Coordinator struct {
	remote Remote
	store  Store
	vault  ArtifactVault // nil disables archiving

	signBaseURL    string
	storeLocalCopy bool
	log            *logrus.Entry
}

// CoordinatorConfig wires the coordinator. SignBaseURL is the host serving
// the embeddable signing pages (usually the API base without the /api
// path); StoreLocalCopy gates archiving signed PDFs into the vault.
type CoordinatorConfig struct {
	SignBaseURL    string
	StoreLocalCopy bool
}

func NewCoordinator(remote Remote, store Store, vault ArtifactVault, cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		remote:         remote,
		store:          store,
		vault:          vault,
		signBaseURL:    trimSlash(cfg.SignBaseURL),
		storeLocalCopy: cfg.StoreLocalCopy,
		log:            logrus.WithField("component", "coordinator"),
	}
}

// CreateOutcome reports a successful create. RecordID is zero when the
// local insert failed; the create is still a success because the remote
// submission exists.
type CreateOutcome struct {
	SubmissionID  string `json:"submission_id"`
	SubmitterSlug string `json:"submitter_slug"`
	TemplateSlug  string `json:"template_slug,omitempty"`
	RecordID      int64  `json:"record_id,omitempty"`
	EmbedURL      string `json:"embed_url,omitempty"`
}

// Create asks the vendor for a new submission and records it locally.
//
// The local insert is best-effort: once the remote submission exists the
// user action has succeeded, and a storage failure only costs the audit
// trail, not the outcome. When the response carries no recognizable
// submission id the submitter slug stands in as a surrogate identifier.
func (c *Coordinator) Create(ctx context.Context, templateID string, user User) (*CreateOutcome, error) {
	res := c.remote.CreateSubmission(ctx, templateID, user.Email, user.Name)
	if res == nil {
		return nil, fmt.Errorf("creating submission for template %s: %w", templateID, ErrRemoteRejected)
	}

	submissionID := res.SubmissionID
	if submissionID == "" && res.SubmitterSlug != "" {
		submissionID = res.SubmitterSlug
	}

	rec := &database.SubmissionRecord{
		UserID:        user.ID,
		TemplateID:    templateID,
		TemplateSlug:  res.TemplateSlug,
		SubmissionID:  submissionID,
		SubmitterSlug: res.SubmitterSlug,
		Status:        database.SubmissionStatusCreated,
	}
	recordID, err := c.store.InsertSubmission(rec)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{
			"template_id":   templateID,
			"submission_id": submissionID,
			"user_id":       user.ID,
		}).Error("failed to record submission locally")
		recordID = 0
	}

	outcome := &CreateOutcome{
		SubmissionID:  submissionID,
		SubmitterSlug: res.SubmitterSlug,
		TemplateSlug:  res.TemplateSlug,
		RecordID:      recordID,
	}
	if res.SubmitterSlug != "" {
		outcome.EmbedURL = c.signBaseURL + "/d/" + res.SubmitterSlug
	} else if res.TemplateSlug != "" {
		outcome.EmbedURL = c.signBaseURL + "/d/" + res.TemplateSlug
	}
	return outcome, nil
}

// CompleteOutcome reports a completion. Marked is false when no local row
// matched the submission id at update time.
type CompleteOutcome struct {
	Completed bool            `json:"completed"`
	Marked    bool            `json:"marked"`
	SavedFile *StoredArtifact `json:"saved_file,omitempty"`
}

// Complete downloads the signed artifact and transitions the local record
// forward.
//
// Authorization fails closed: no matching local record is ErrNotFound, a
// record owned by someone else is ErrPermissionDenied, and the two are
// never conflated. A nil download means the vendor has not finished
// processing; that is ErrNotReady, the caller retries later and nothing
// changes locally.
func (c *Coordinator) Complete(ctx context.Context, submissionID string, actingUserID int) (*CompleteOutcome, error) {
	rec, err := c.store.SubmissionByRemoteID(submissionID)
	if err != nil {
		return nil, fmt.Errorf("looking up submission %s: %w", submissionID, err)
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	if rec.UserID != actingUserID {
		return nil, ErrPermissionDenied
	}

	pdf := c.remote.DownloadSignedPDF(ctx, submissionID)
	if pdf == nil {
		return nil, ErrNotReady
	}

	outcome := &CompleteOutcome{Completed: true}

	if c.storeLocalCopy && c.vault != nil {
		saved, err := c.vault.StoreSignedDocument(ctx, actingUserID, submissionID, pdf)
		if err != nil {
			return nil, fmt.Errorf("storing signed copy for submission %s: %w", submissionID, err)
		}
		outcome.SavedFile = saved
		if err := c.store.RecordArtifactKey(submissionID, saved.Key); err != nil {
			c.log.WithError(err).WithField("submission_id", submissionID).Warn("failed to record artifact key")
		}
	}

	marked, err := c.store.MarkSubmissionCompleted(submissionID)
	if err != nil {
		c.log.WithError(err).WithField("submission_id", submissionID).Error("failed to mark submission completed")
	}
	outcome.Marked = marked
	return outcome, nil
}

// ResumeOutcome carries the embeddable signing URL for an in-flight
// submission.
type ResumeOutcome struct {
	SubmissionID  string `json:"submission_id"`
	SubmitterSlug string `json:"submitter_slug"`
	EmbedURL      string `json:"embed_url"`
	FromCache     bool   `json:"from_cache"`
}

// Resume re-enters an existing submission without creating a duplicate.
//
// The fresh slug from the live remote detail is preferred; once it has
// expired the slug cached at creation time is the only remaining way in.
// When neither survives the submission is effectively unreachable and the
// user must start over (ErrExpired). A failed remote fetch fails closed:
// ownership cannot be verified, so the submission is treated as absent. The
// one exception is a surrogate identifier, a signing slug standing in for a
// missing submission id: the vendor cannot resolve those, but the locally
// cached row can, and ownership is verified against it.
func (c *Coordinator) Resume(ctx context.Context, submissionID string, user User) (*ResumeOutcome, error) {
	sub := c.remote.GetSubmission(ctx, submissionID)
	if sub == nil {
		if out := c.resumeSurrogate(submissionID, user); out != nil {
			return out, nil
		}
		return nil, ErrNotFound
	}

	mine := operatorEntries(sub.Submitters, user.Email)
	if len(mine) == 0 {
		return nil, ErrPermissionDenied
	}

	slug := ""
	for _, s := range mine {
		if s.Slug != "" {
			slug = s.Slug
			break
		}
	}

	fromCache := false
	if slug == "" {
		rec, err := c.store.SubmissionByRemoteID(submissionID)
		if err != nil {
			c.log.WithError(err).WithField("submission_id", submissionID).Error("local slug lookup failed")
		}
		if rec != nil && rec.UserID == user.ID && rec.SubmitterSlug != "" {
			slug = rec.SubmitterSlug
			fromCache = true
		}
	}

	if slug == "" {
		return nil, ErrExpired
	}

	return &ResumeOutcome{
		SubmissionID:  submissionID,
		SubmitterSlug: slug,
		EmbedURL:      c.signBaseURL + "/d/" + slug,
		FromCache:     fromCache,
	}, nil
}

// resumeSurrogate handles identifiers that are really signing slugs. Only a
// row the acting user owns is served; anyone else sees not-found.
func (c *Coordinator) resumeSurrogate(submissionID string, user User) *ResumeOutcome {
	rec, err := c.store.SubmissionBySubmitterSlug(submissionID)
	if err != nil {
		c.log.WithError(err).WithField("submission_id", submissionID).Error("surrogate slug lookup failed")
		return nil
	}
	if rec == nil || rec.UserID != user.ID || rec.SubmitterSlug == "" {
		return nil
	}
	return &ResumeOutcome{
		SubmissionID:  submissionID,
		SubmitterSlug: rec.SubmitterSlug,
		EmbedURL:      c.signBaseURL + "/d/" + rec.SubmitterSlug,
		FromCache:     true,
	}
}

// DownloadOutcome carries signed PDF bytes and a download filename.
type DownloadOutcome struct {
	Filename string
	Data     []byte
}

// Download returns the signed PDF for a completed submission the user owns.
// Ownership is checked against the live remote submitter list; the remote
// submission must report completed before any bytes are served.
func (c *Coordinator) Download(ctx context.Context, submissionID string, user User) (*DownloadOutcome, error) {
	sub := c.remote.GetSubmission(ctx, submissionID)
	if sub == nil {
		return nil, ErrNotFound
	}
	if len(operatorEntries(sub.Submitters, user.Email)) == 0 {
		return nil, ErrPermissionDenied
	}
	if sub.Status != "completed" {
		return nil, ErrNotReady
	}

	pdf := c.remote.DownloadSignedPDF(ctx, submissionID)
	if pdf == nil {
		return nil, ErrNotReady
	}

	name := "submission"
	if sub.Template != nil && sub.Template.Name != "" {
		name = sub.Template.Name
	}
	return &DownloadOutcome{
		Filename: downloadFilename(name, submissionID),
		Data:     pdf,
	}, nil
}

// UserSubmissions joins the user's local tracking rows for the submissions
// page.
func (c *Coordinator) UserSubmissions(userID, limit int) ([]database.SubmissionRecord, error) {
	return c.store.UserSubmissions(userID, limit)
}

var (
	unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaces      = regexp.MustCompile(`\s+`)
)

func downloadFilename(templateName, submissionID string) string {
	name := unsafeFilenameChars.ReplaceAllString(templateName, "")
	name = filenameSpaces.ReplaceAllString(name, "_")
	if name == "" {
		name = "submission"
	}
	id := unsafeFilenameChars.ReplaceAllString(submissionID, "_")
	return fmt.Sprintf("%s_%s.pdf", name, id)
}

// ArchiveFilename names a stored local copy the way the original export
// did: submission id plus a timestamp.
func ArchiveFilename(submissionID string, now time.Time) string {
	id := unsafeFilenameChars.ReplaceAllString(submissionID, "_")
	return fmt.Sprintf("digisign_%s_%s.pdf", id, now.Format("20060102_150405"))
}

func trimSlash(s string) string {
	return strings.TrimRight(s, "/")
}
