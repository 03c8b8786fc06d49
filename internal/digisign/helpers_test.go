package digisign

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"digisign/internal/database"
	"digisign/internal/docuseal"
)

func init() {
	logrus.SetLevel(logrus.ErrorLevel)
}

// fakeRemote implements Remote in memory and counts calls so tests can
// assert which paths hit the vendor at all.
type fakeRemote struct {
	templates   []docuseal.Template
	submissions map[string]*docuseal.Submission
	createRes   *docuseal.CreateResult
	pdfs        map[string][]byte

	listCalls     int
	createCalls   int
	getCalls      int
	downloadCalls int
}

func (f *fakeRemote) ListTemplates(ctx context.Context, limit int) []docuseal.Template {
	f.listCalls++
	return f.templates
}

func (f *fakeRemote) ListSubmissions(ctx context.Context, opts docuseal.ListSubmissionsOptions) []docuseal.Submission {
	var out []docuseal.Submission
	for _, s := range f.submissions {
		out = append(out, *s)
	}
	return out
}

func (f *fakeRemote) CreateSubmission(ctx context.Context, templateID, email, name string) *docuseal.CreateResult {
	f.createCalls++
	return f.createRes
}

func (f *fakeRemote) GetSubmission(ctx context.Context, submissionID string) *docuseal.Submission {
	f.getCalls++
	return f.submissions[submissionID]
}

func (f *fakeRemote) DownloadSignedPDF(ctx context.Context, submissionID string) []byte {
	f.downloadCalls++
	return f.pdfs[submissionID]
}

// fakeStore implements Store over a slice, mirroring the real query
// semantics: latest row by created_at then id, first row by id for remote-id
// lookups and updates.
type fakeStore struct {
	records []*database.SubmissionRecord
	nextID  int64

	insertErr error
	lookupErr error
	markErr   error

	insertCalls int
	markCalls   int
}

func (f *fakeStore) InsertSubmission(rec *database.SubmissionRecord) (int64, error) {
	f.insertCalls++
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	f.nextID++
	rec.ID = f.nextID
	if rec.Status == "" {
		rec.Status = database.SubmissionStatusCreated
	}
	f.records = append(f.records, rec)
	return rec.ID, nil
}

func (f *fakeStore) LatestSubmissionForTemplate(userID int, templateID string) (*database.SubmissionRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var matches []*database.SubmissionRecord
	for _, r := range f.records {
		if r.UserID == userID && r.TemplateID == templateID {
			matches = append(matches, r)
		}
	}
	if len(matches) == 0 {
		return nil, nil
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})
	cp := *matches[0]
	return &cp, nil
}

func (f *fakeStore) SubmissionByRemoteID(submissionID string) (*database.SubmissionRecord, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	var first *database.SubmissionRecord
	for _, r := range f.records {
		if r.SubmissionID != submissionID {
			continue
		}
		if first == nil || r.ID < first.ID {
			first = r
		}
	}
	if first == nil {
		return nil, nil
	}
	cp := *first
	return &cp, nil
}

func (f *fakeStore) SubmissionBySubmitterSlug(slug string) (*database.SubmissionRecord, error) {
	for _, r := range f.records {
		if r.SubmitterSlug == slug {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) MarkSubmissionCompleted(submissionID string) (bool, error) {
	f.markCalls++
	if f.markErr != nil {
		return false, f.markErr
	}
	var first *database.SubmissionRecord
	for _, r := range f.records {
		if r.SubmissionID != submissionID {
			continue
		}
		if first == nil || r.ID < first.ID {
			first = r
		}
	}
	if first == nil {
		return false, nil
	}
	first.Status = database.SubmissionStatusCompleted
	return true, nil
}

func (f *fakeStore) RecordArtifactKey(submissionID, artifactKey string) error {
	for _, r := range f.records {
		if r.SubmissionID == submissionID {
			r.ArtifactKey = artifactKey
			return nil
		}
	}
	return nil
}

func (f *fakeStore) UserSubmissions(userID, limit int) ([]database.SubmissionRecord, error) {
	var out []database.SubmissionRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

type fakeVault struct {
	stored     map[string][]byte
	storeErr   error
	storeCalls int
}

func (f *fakeVault) StoreSignedDocument(ctx context.Context, userID int, submissionID string, pdf []byte) (*StoredArtifact, error) {
	f.storeCalls++
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	if f.stored == nil {
		f.stored = map[string][]byte{}
	}
	key := "signed/" + submissionID + ".pdf"
	f.stored[key] = pdf
	return &StoredArtifact{Key: key, Bucket: "test-bucket", FileSize: int64(len(pdf))}, nil
}
