package database

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// mustStartPostgresContainer starts a postgres container and returns a
// teardown function, a connection string, and an error.
func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, string, error) {
	var (
		dbName = "test_db"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(5*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)

	return dbContainer.Terminate, connStr, nil
}

func TestMain(m *testing.M) {
	teardown, testDbString, err := mustStartPostgresContainer()
	if err != nil {
		log.Fatalf("could not start postgres container for tests: %v", err)
	}

	os.Setenv("DB_STRING", testDbString)
	dbInstance = nil

	exitCode := m.Run()

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(exitCode)
}

func TestHealth(t *testing.T) {
	srv := New()

	stats := srv.Health()
	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s (error: %s)", stats["status"], stats["error"])
	}
	if errMsg, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present, got: %s", errMsg)
	}
}

func TestCreateOrUpdateUser(t *testing.T) {
	srv := New()

	user := &User{
		Provider:   "google",
		ProviderID: "upsert_test_id",
		Email:      "upsert@example.com",
		Name:       "Test User",
	}
	if err := srv.CreateOrUpdateUser(user); err != nil {
		t.Fatalf("CreateOrUpdateUser failed: %v", err)
	}
	if user.ID == 0 {
		t.Error("expected user ID to be populated, got 0")
	}

	// A second login with refreshed details must hit the same row.
	again := &User{
		Provider:   "google",
		ProviderID: "upsert_test_id",
		Email:      "upsert-new@example.com",
		Name:       "Renamed User",
	}
	if err := srv.CreateOrUpdateUser(again); err != nil {
		t.Fatalf("CreateOrUpdateUser (upsert) failed: %v", err)
	}
	if again.ID != user.ID {
		t.Errorf("expected upsert to reuse id %d, got %d", user.ID, again.ID)
	}

	found, err := srv.GetUserByEmail("upsert-new@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail failed: %v", err)
	}
	if found.Name != "Renamed User" {
		t.Errorf("expected refreshed name, got %q", found.Name)
	}
}

func TestSubmissionRoundTrip(t *testing.T) {
	srv := New()

	rec := &SubmissionRecord{
		UserID:        101,
		TemplateID:    "tmpl_rt",
		SubmissionID:  "sub_rt",
		SubmitterSlug: "slug_rt",
	}
	id, err := srv.InsertSubmission(rec)
	if err != nil {
		t.Fatalf("InsertSubmission failed: %v", err)
	}
	if id == 0 {
		t.Fatal("expected non-zero record id")
	}
	if rec.Status != SubmissionStatusCreated {
		t.Errorf("expected default status created, got %q", rec.Status)
	}

	found, err := srv.LatestSubmissionForTemplate(101, "tmpl_rt")
	if err != nil {
		t.Fatalf("LatestSubmissionForTemplate failed: %v", err)
	}
	if found == nil || found.ID != id {
		t.Fatalf("expected to find record %d, got %+v", id, found)
	}

	bySlug, err := srv.SubmissionBySubmitterSlug("slug_rt")
	if err != nil {
		t.Fatalf("SubmissionBySubmitterSlug failed: %v", err)
	}
	if bySlug == nil || bySlug.ID != id {
		t.Fatalf("expected slug lookup to find record %d, got %+v", id, bySlug)
	}
}

func TestLatestSubmissionPrefersNewest(t *testing.T) {
	srv := New()

	first := &SubmissionRecord{UserID: 102, TemplateID: "tmpl_dup", SubmissionID: "sub_a"}
	second := &SubmissionRecord{UserID: 102, TemplateID: "tmpl_dup", SubmissionID: "sub_b"}
	if _, err := srv.InsertSubmission(first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if _, err := srv.InsertSubmission(second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	latest, err := srv.LatestSubmissionForTemplate(102, "tmpl_dup")
	if err != nil {
		t.Fatalf("LatestSubmissionForTemplate failed: %v", err)
	}
	// Both rows can share a created_at timestamp; id breaks the tie.
	if latest == nil || latest.SubmissionID != "sub_b" {
		t.Fatalf("expected latest row sub_b, got %+v", latest)
	}
}

func TestMarkSubmissionCompletedFirstRowOnly(t *testing.T) {
	srv := New()

	dup1 := &SubmissionRecord{UserID: 103, TemplateID: "tmpl_mark", SubmissionID: "sub_dup"}
	dup2 := &SubmissionRecord{UserID: 103, TemplateID: "tmpl_mark", SubmissionID: "sub_dup"}
	if _, err := srv.InsertSubmission(dup1); err != nil {
		t.Fatalf("insert dup1: %v", err)
	}
	if _, err := srv.InsertSubmission(dup2); err != nil {
		t.Fatalf("insert dup2: %v", err)
	}

	marked, err := srv.MarkSubmissionCompleted("sub_dup")
	if err != nil {
		t.Fatalf("MarkSubmissionCompleted failed: %v", err)
	}
	if !marked {
		t.Fatal("expected a row to be marked")
	}

	rows, err := srv.UserSubmissions(103, 10)
	if err != nil {
		t.Fatalf("UserSubmissions failed: %v", err)
	}
	statusByID := map[int64]string{}
	for _, r := range rows {
		statusByID[r.ID] = r.Status
	}
	if statusByID[dup1.ID] != SubmissionStatusCompleted {
		t.Errorf("expected first row completed, got %q", statusByID[dup1.ID])
	}
	if statusByID[dup2.ID] != SubmissionStatusCreated {
		t.Errorf("expected duplicate row untouched, got %q", statusByID[dup2.ID])
	}
}

func TestMarkSubmissionCompletedNoMatch(t *testing.T) {
	srv := New()

	marked, err := srv.MarkSubmissionCompleted("never_seen")
	if err != nil {
		t.Fatalf("MarkSubmissionCompleted failed: %v", err)
	}
	if marked {
		t.Fatal("expected no row to be marked")
	}
}

func TestSubmissionByRemoteIDMissing(t *testing.T) {
	srv := New()

	rec, err := srv.SubmissionByRemoteID("missing")
	if err != nil {
		t.Fatalf("SubmissionByRemoteID failed: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil for a missing id, got %+v", rec)
	}
}

func TestRecordArtifactKey(t *testing.T) {
	srv := New()

	rec := &SubmissionRecord{UserID: 104, TemplateID: "tmpl_art", SubmissionID: "sub_art"}
	if _, err := srv.InsertSubmission(rec); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if err := srv.RecordArtifactKey("sub_art", "signed/104/file.pdf"); err != nil {
		t.Fatalf("RecordArtifactKey failed: %v", err)
	}

	found, err := srv.SubmissionByRemoteID("sub_art")
	if err != nil {
		t.Fatalf("SubmissionByRemoteID failed: %v", err)
	}
	if found.ArtifactKey != "signed/104/file.pdf" {
		t.Errorf("expected artifact key recorded, got %q", found.ArtifactKey)
	}
}
