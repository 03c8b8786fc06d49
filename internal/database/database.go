package database

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

// Service is the local persistence layer: the acting users table and the
// submission tracking table.
type Service interface {
	Health() map[string]string
	Close() error

	CreateOrUpdateUser(user *User) error
	GetUserByID(id int) (*User, error)
	GetUserByEmail(email string) (*User, error)

	InsertSubmission(rec *SubmissionRecord) (int64, error)
	LatestSubmissionForTemplate(userID int, templateID string) (*SubmissionRecord, error)
	SubmissionByRemoteID(submissionID string) (*SubmissionRecord, error)
	SubmissionBySubmitterSlug(slug string) (*SubmissionRecord, error)
	MarkSubmissionCompleted(submissionID string) (bool, error)
	RecordArtifactKey(submissionID, artifactKey string) error
	UserSubmissions(userID, limit int) ([]SubmissionRecord, error)
}

type service struct {
	db *sql.DB
}

var dbInstance *service

// New opens the database from DB_STRING, runs migrations, and reuses the
// connection across calls.
func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := os.Getenv("DB_STRING")
	if connStr == "" {
		log.Fatal("DB_STRING environment variable not set")
	}

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}

	if err := runMigrations(db); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}

	dbInstance = &service{db: db}
	return dbInstance
}

// NewWithDB wraps an existing connection. Used by tests.
func NewWithDB(db *sql.DB) Service {
	return &service{db: db}
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

func runMigrations(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := pgxmigrate.WithInstance(db, &pgxmigrate.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "pgx", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// Health reports connectivity and pool statistics.
func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)

	return stats
}

func (s *service) Close() error {
	return s.db.Close()
}
