package routes

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"digisign/internal/digisign"
	"digisign/internal/docuseal"
)

type SubmissionRoutes struct {
	server ServerInterface
}

func NewSubmissionRoutes(server ServerInterface) *SubmissionRoutes {
	return &SubmissionRoutes{server: server}
}

func (sr *SubmissionRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(sr.server)

	submissions := r.Group("/api/submissions")
	submissions.Use(middleware.AuthMiddleware())
	{
		submissions.GET("", sr.listSubmissionsHandler)
		submissions.POST("", sr.createSubmissionHandler)
		submissions.GET("/:id/sign", sr.signSubmissionHandler)
		submissions.POST("/:id/complete", sr.completeSubmissionHandler)
		submissions.GET("/:id/download", sr.downloadSubmissionHandler)
	}
}

type createSubmissionRequest struct {
	TemplateID docuseal.ID `json:"template_id" binding:"required"`
}

func (sr *SubmissionRoutes) createSubmissionHandler(c *gin.Context) {
	user := actingUser(c)

	var req createSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "template_id is required"})
		return
	}

	outcome, err := sr.server.GetSigning().Create(c.Request.Context(), req.TemplateID.String(), user)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to create submission"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"submission_id":  outcome.SubmissionID,
		"submitter_slug": outcome.SubmitterSlug,
		"record_id":      outcome.RecordID,
		"embed_url":      outcome.EmbedURL,
	})
}

func (sr *SubmissionRoutes) completeSubmissionHandler(c *gin.Context) {
	user := actingUser(c)
	submissionID := c.Param("id")

	outcome, err := sr.server.GetSigning().Complete(c.Request.Context(), submissionID, user.ID)
	if err != nil {
		switch {
		case errors.Is(err, digisign.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		case errors.Is(err, digisign.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
		case errors.Is(err, digisign.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{
				"error":     "Signed file not available yet",
				"retryable": true,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete submission"})
		}
		return
	}

	resp := gin.H{
		"success":   true,
		"message":   "Submission completed",
		"completed": outcome.Completed,
		"marked":    outcome.Marked,
	}
	if outcome.SavedFile != nil {
		resp["saved_file"] = outcome.SavedFile
	}
	c.JSON(http.StatusOK, resp)
}

func (sr *SubmissionRoutes) signSubmissionHandler(c *gin.Context) {
	user := actingUser(c)
	submissionID := c.Param("id")

	outcome, err := sr.server.GetSigning().Resume(c.Request.Context(), submissionID, user)
	if err != nil {
		switch {
		case errors.Is(err, digisign.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		case errors.Is(err, digisign.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
		case errors.Is(err, digisign.ErrExpired):
			c.JSON(http.StatusGone, gin.H{
				"error":   "Submission expired, create a new one",
				"expired": true,
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resume submission"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submission_id":  outcome.SubmissionID,
		"submitter_slug": outcome.SubmitterSlug,
		"embed_url":      outcome.EmbedURL,
		"from_cache":     outcome.FromCache,
	})
}

// downloadSubmissionHandler streams the signed PDF. An archived vault copy
// recorded at completion time is preferred; otherwise the vendor is asked
// for the document directly.
func (sr *SubmissionRoutes) downloadSubmissionHandler(c *gin.Context) {
	user := actingUser(c)
	submissionID := c.Param("id")

	if data, filename, ok := sr.archivedCopy(c, submissionID, user); ok {
		servePDF(c, filename, data)
		return
	}

	outcome, err := sr.server.GetSigning().Download(c.Request.Context(), submissionID, user)
	if err != nil {
		switch {
		case errors.Is(err, digisign.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Submission not found"})
		case errors.Is(err, digisign.ErrPermissionDenied):
			c.JSON(http.StatusForbidden, gin.H{"error": "Permission denied"})
		case errors.Is(err, digisign.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "Signed file not available yet"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to download submission"})
		}
		return
	}

	servePDF(c, outcome.Filename, outcome.Data)
}

// archivedCopy returns the locally archived signed PDF when one exists and
// the record belongs to the acting user. A lookup problem just falls back
// to the remote path.
func (sr *SubmissionRoutes) archivedCopy(c *gin.Context, submissionID string, user digisign.User) ([]byte, string, bool) {
	vault := sr.server.GetVault()
	if vault == nil {
		return nil, "", false
	}
	rec, err := sr.server.GetDB().SubmissionByRemoteID(submissionID)
	if err != nil || rec == nil || rec.UserID != user.ID || rec.ArtifactKey == "" {
		return nil, "", false
	}
	result, err := vault.GetSignedDocument(c.Request.Context(), rec.ArtifactKey)
	if err != nil {
		logrus.WithError(err).WithField("artifact_key", rec.ArtifactKey).Warn("archived copy fetch failed")
		return nil, "", false
	}
	return result.Data, fmt.Sprintf("digisign_%d.pdf", rec.ID), true
}

func servePDF(c *gin.Context, filename string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Cache-Control", "no-cache, must-revalidate")
	c.Data(http.StatusOK, "application/pdf", data)
}

// listSubmissionsHandler merges both views of the user's history: the
// vendor's live submission list (filtered to the user's operator entries)
// and the local tracking rows.
func (sr *SubmissionRoutes) listSubmissionsHandler(c *gin.Context) {
	user := actingUser(c)

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	remote := sr.server.GetDocuseal().ListSubmissions(c.Request.Context(), docuseal.ListSubmissionsOptions{
		Limit:      limit,
		Status:     c.Query("status"),
		TemplateID: c.Query("template_id"),
		UserEmail:  user.Email,
	})

	views := make([]submissionView, 0, len(remote))
	for _, sub := range remote {
		views = append(views, newSubmissionView(sub, user.Email))
	}

	records, err := sr.server.GetSigning().UserSubmissions(user.ID, limit)
	if err != nil {
		logrus.WithError(err).WithField("user_id", user.ID).Error("listing local submission records failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list submissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"submissions": views,
		"records":     records,
	})
}

type submissionView struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	TemplateName string `json:"template_name,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	CanResume    bool   `json:"can_resume"`
}

func newSubmissionView(sub docuseal.Submission, email string) submissionView {
	view := submissionView{
		ID:        sub.ID.String(),
		Status:    sub.Status,
		CreatedAt: sub.CreatedAt,
		UpdatedAt: sub.UpdatedAt,
	}
	if sub.Template != nil {
		view.TemplateName = sub.Template.Name
	}
	// Resume is only possible while the live detail still carries a slug
	// for the user's operator entry.
	if sub.Status == "pending" || sub.Status == "draft" {
		for _, s := range sub.Submitters {
			if s.Email == email && s.HasRole("operator") && s.Slug != "" {
				view.CanResume = true
				break
			}
		}
	}
	return view
}
