package digisign

import (
	"context"

	"github.com/sirupsen/logrus"

	"digisign/internal/docuseal"
)

// Status is the effective per-user, per-template signing state shown on a
// template tile.
type Status string

const (
	StatusNone       Status = "none"
	StatusCreated    Status = "created"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusUnknown    Status = "unknown"
)

// StatusInfo is the reconciled view for one template. Source records where
// the truth came from: "remote" when the live submission detail was
// consulted, "local" when the remote fetch failed and the stored status
// stands in for it.
type StatusInfo struct {
	Status       Status           `json:"status"`
	SubmissionID string           `json:"submission_id,omitempty"`
	Source       string           `json:"source"`
	Submitters   []SubmitterState `json:"submitters,omitempty"`
}

// SubmitterState is the per-party slice of remote detail the UI renders.
// HasSlug stands in for the ephemeral token itself, which is never exposed
// in listings.
type SubmitterState struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Status  string `json:"status"`
	HasSlug bool   `json:"has_slug"`
}

const (
	sourceRemote = "remote"
	sourceLocal  = "local"
)

// Reconciler computes effective statuses by combining the latest local
// record with a live remote fetch.
type Reconciler struct {
	remote Remote
	store  Store
	log    *logrus.Entry
}

func NewReconciler(remote Remote, store Store) *Reconciler {
	return &Reconciler{
		remote: remote,
		store:  store,
		log:    logrus.WithField("component", "reconciler"),
	}
}

// EffectiveStatus resolves the status of one (template, user) pair.
//
// No remote call is made when the user never engaged with the template or
// the record carries no submission id; those are cheap local "none"s. A
// failed remote fetch falls back to the locally stored status rather than
// erroring, tagged so the UI can tell. When the remote submission no longer
// lists the user as an operator submitter the whole thing reads as "none":
// the submission belongs to someone else or has rotated away.
func (r *Reconciler) EffectiveStatus(ctx context.Context, templateID string, user User) StatusInfo {
	rec, err := r.store.LatestSubmissionForTemplate(user.ID, templateID)
	if err != nil {
		r.log.WithError(err).WithField("template_id", templateID).Error("local lookup failed")
		return StatusInfo{Status: StatusUnknown, Source: sourceLocal}
	}
	if rec == nil || rec.SubmissionID == "" {
		return StatusInfo{Status: StatusNone, Source: sourceLocal}
	}

	sub := r.remote.GetSubmission(ctx, rec.SubmissionID)
	if sub == nil {
		return StatusInfo{
			Status:       localStatus(rec.Status),
			SubmissionID: rec.SubmissionID,
			Source:       sourceLocal,
		}
	}

	mine := operatorEntries(sub.Submitters, user.Email)
	if len(mine) == 0 {
		return StatusInfo{Status: StatusNone, Source: sourceRemote}
	}

	return StatusInfo{
		Status:       deriveStatus(mine, sub.Status),
		SubmissionID: rec.SubmissionID,
		Source:       sourceRemote,
		Submitters:   submitterStates(mine),
	}
}

// StatusForAllTemplates applies the single-template resolution to each
// template in turn. No batching: N templates cost up to N remote fetches,
// an accepted price per page view.
func (r *Reconciler) StatusForAllTemplates(ctx context.Context, templates []docuseal.Template, user User) map[string]StatusInfo {
	statuses := make(map[string]StatusInfo, len(templates))
	for _, t := range templates {
		statuses[t.ID.String()] = r.EffectiveStatus(ctx, t.ID.String(), user)
	}
	return statuses
}

// deriveStatus folds the user's submitter entries into one status.
//
// Precedence is fixed for UI parity: completed only when every entry is
// completed; otherwise any genuinely in-flight entry wins over created; a
// mix of completed and created with nothing in flight reads as created.
// With no recognizable entry states the submission-level status passes
// through verbatim.
func deriveStatus(mine []docuseal.Submitter, submissionStatus string) Status {
	allCompleted := true
	anyInProgress := false
	anyCreated := false

	for _, s := range mine {
		switch s.Status {
		case "completed":
		case "pending", "in_progress", "sent":
			allCompleted = false
			anyInProgress = true
		case "created":
			allCompleted = false
			anyCreated = true
		default:
			allCompleted = false
		}
	}

	switch {
	case allCompleted:
		return StatusCompleted
	case anyInProgress:
		return StatusInProgress
	case anyCreated:
		return StatusCreated
	case submissionStatus != "":
		return Status(submissionStatus)
	default:
		return StatusUnknown
	}
}

// localStatus maps a persisted record status onto the effective vocabulary.
// Only created and completed ever reach the table.
func localStatus(stored string) Status {
	switch stored {
	case "completed":
		return StatusCompleted
	case "created":
		return StatusCreated
	case "":
		return StatusUnknown
	default:
		return Status(stored)
	}
}

// operatorEntries filters submitters to the acting user: exact email match
// and the operator role, compared case-insensitively.
func operatorEntries(submitters []docuseal.Submitter, email string) []docuseal.Submitter {
	var mine []docuseal.Submitter
	for _, s := range submitters {
		if s.Email == email && s.HasRole("operator") {
			mine = append(mine, s)
		}
	}
	return mine
}

func submitterStates(submitters []docuseal.Submitter) []SubmitterState {
	states := make([]SubmitterState, 0, len(submitters))
	for _, s := range submitters {
		states = append(states, SubmitterState{
			Name:    s.Name,
			Email:   s.Email,
			Status:  s.Status,
			HasSlug: s.Slug != "",
		})
	}
	return states
}
