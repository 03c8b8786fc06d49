package server

import (
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	_ "github.com/joho/godotenv/autoload"

	"digisign/internal/database"
	"digisign/internal/digisign"
	"digisign/internal/docuseal"
	"digisign/internal/storage"
)

type Server struct {
	port       int
	db         database.Service
	docuseal   *docuseal.Client
	reconciler *digisign.Reconciler
	signing    *digisign.Coordinator
	vault      *storage.S3Service
}

func (s *Server) GetDB() database.Service {
	return s.db
}

func (s *Server) GetDocuseal() *docuseal.Client {
	return s.docuseal
}

func (s *Server) GetReconciler() *digisign.Reconciler {
	return s.reconciler
}

func (s *Server) GetSigning() *digisign.Coordinator {
	return s.signing
}

func (s *Server) GetVault() *storage.S3Service {
	return s.vault
}

func NewServer() *http.Server {
	port, _ := strconv.Atoi(os.Getenv("PORT"))
	if port == 0 {
		port = 8080
	}

	apiURL := os.Getenv("DOCUSEAL_API_URL")
	if apiURL == "" {
		logrus.Fatal("DOCUSEAL_API_URL environment variable is required")
	}
	signURL := os.Getenv("DOCUSEAL_SIGN_URL")
	if signURL == "" {
		signURL = apiURL
	}
	timeout := defaultDuration(os.Getenv("DOCUSEAL_TIMEOUT"), 30*time.Second)

	dsClient := docuseal.New(docuseal.Config{
		BaseURL: apiURL,
		APIKey:  os.Getenv("DOCUSEAL_API_KEY"),
		Timeout: timeout,
	})

	db := database.New()

	storeLocalCopy := parseBool(os.Getenv("STORE_LOCAL_COPY"))
	var vault *storage.S3Service
	if storeLocalCopy {
		var err error
		vault, err = storage.NewS3Service()
		if err != nil {
			logrus.Fatalf("Failed to initialize S3 service: %v", err)
		}
	}

	var vaultIface digisign.ArtifactVault
	if vault != nil {
		vaultIface = vault
	}

	newServer := &Server{
		port:       port,
		db:         db,
		docuseal:   dsClient,
		reconciler: digisign.NewReconciler(dsClient, db),
		signing: digisign.NewCoordinator(dsClient, db, vaultIface, digisign.CoordinatorConfig{
			SignBaseURL:    signURL,
			StoreLocalCopy: storeLocalCopy,
		}),
		vault: vault,
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", newServer.port),
		Handler:      newServer.RegisterRoutes(),
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return server
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func defaultDuration(v string, fallback time.Duration) time.Duration {
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
