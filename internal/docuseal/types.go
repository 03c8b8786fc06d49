package docuseal

import (
	"bytes"
	"encoding/json"
	"strings"
)

// ID is an opaque DocuSeal identifier. The API returns numeric ids for
// templates and submissions but string slugs in other places, so both
// decode into the same string form.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type Template struct {
	ID        ID                 `json:"id"`
	Name      string             `json:"name"`
	Title     string             `json:"title"`
	Slug      string             `json:"slug"`
	Documents []TemplateDocument `json:"documents"`
}

// DisplayName prefers name over title; some deployments only fill one.
func (t Template) DisplayName() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Title
}

// PreviewURL returns the first usable preview image for the template, or "".
func (t Template) PreviewURL() string {
	for _, d := range t.Documents {
		if d.PreviewImageURL != "" {
			return d.PreviewImageURL
		}
		if d.PreviewImage != "" {
			return d.PreviewImage
		}
		if d.URL != "" {
			return d.URL
		}
	}
	return ""
}

type TemplateDocument struct {
	Name            string `json:"name"`
	URL             string `json:"url"`
	PreviewImage    string `json:"preview_image"`
	PreviewImageURL string `json:"preview_image_url"`
}

type Submission struct {
	ID         ID           `json:"id"`
	Status     string       `json:"status"`
	Template   *TemplateRef `json:"template"`
	Submitters []Submitter  `json:"submitters"`
	Documents  []Document   `json:"documents"`
	CreatedAt  string       `json:"created_at"`
	UpdatedAt  string       `json:"updated_at"`
}

type TemplateRef struct {
	ID   ID     `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Submitter struct {
	Email  string `json:"email"`
	Name   string `json:"name"`
	Role   string `json:"role"`
	Status string `json:"status"`
	Slug   string `json:"slug"`
}

// HasRole reports whether the submitter carries the given role,
// compared case-insensitively.
func (s Submitter) HasRole(role string) bool {
	return strings.EqualFold(s.Role, role)
}

type Document struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// CreateResult is the normalized outcome of a create-submission call.
// SubmissionID and the slugs are pulled out of whichever response shape
// the deployment speaks; Raw keeps the decoded payload for callers that
// need fields the normalizer does not cover.
type CreateResult struct {
	SubmissionID  string
	SubmitterSlug string
	TemplateSlug  string
	Raw           map[string]any
}
