package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"digisign/internal/digisign"
	"digisign/internal/docuseal"
)

type TemplateRoutes struct {
	server ServerInterface
}

func NewTemplateRoutes(server ServerInterface) *TemplateRoutes {
	return &TemplateRoutes{server: server}
}

func (tr *TemplateRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(tr.server)

	templates := r.Group("/api/templates")
	templates.Use(middleware.AuthMiddleware())
	{
		templates.GET("", tr.listTemplatesHandler)
	}
}

type templateView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Slug       string `json:"slug"`
	PreviewURL string `json:"preview_url,omitempty"`
}

type templateWithStatus struct {
	Template templateView        `json:"template"`
	Status   digisign.StatusInfo `json:"status_info"`
}

// listTemplatesHandler renders the tile data: every template the vendor
// offers, each joined with the acting user's effective status. A vendor
// outage produces an empty list, not an error page.
func (tr *TemplateRoutes) listTemplatesHandler(c *gin.Context) {
	user := actingUser(c)

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	templates := tr.server.GetDocuseal().ListTemplates(c.Request.Context(), limit)
	statuses := tr.server.GetReconciler().StatusForAllTemplates(c.Request.Context(), templates, user)

	out := make([]templateWithStatus, 0, len(templates))
	for _, t := range templates {
		status, ok := statuses[t.ID.String()]
		if !ok {
			status = digisign.StatusInfo{Status: digisign.StatusNone}
		}
		out = append(out, templateWithStatus{
			Template: newTemplateView(t),
			Status:   status,
		})
	}

	c.JSON(http.StatusOK, gin.H{"templates": out, "count": len(out)})
}

func newTemplateView(t docuseal.Template) templateView {
	return templateView{
		ID:         t.ID.String(),
		Name:       t.DisplayName(),
		Slug:       t.Slug,
		PreviewURL: t.PreviewURL(),
	}
}
