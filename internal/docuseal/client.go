// Package docuseal is a thin client for the DocuSeal REST API.
//
// The API is consumed as-is: endpoints, JSON shapes and the two competing
// auth header conventions (X-Auth-Token, legacy AuthToken) are all facts of
// deployed gateways, not choices made here. Every operation fails soft:
// transport errors, auth rejections and unrecognized payloads come back as
// nil or empty results, never as errors the caller has to branch on.
package docuseal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultConnectTimeout = 5 * time.Second
	defaultTimeout        = 30 * time.Second
	defaultListLimit      = 100
)

// authHeaders are tried in order until one of them works for a deployment.
var authHeaders = []string{"X-Auth-Token", "AuthToken"}

// Config carries everything the client needs; nothing is read from the
// environment inside this package.
type Config struct {
	BaseURL        string
	APIKey         string
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logrus.Entry

	mu         sync.Mutex
	authHeader string // header name that last worked, "" until discovered
}

func New(cfg Config) *Client {
	connect := cfg.ConnectTimeout
	if connect <= 0 {
		connect = defaultConnectTimeout
	}
	total := cfg.Timeout
	if total <= 0 {
		total = defaultTimeout
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout: total,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: connect}).DialContext,
			},
		},
		log: logrus.WithField("component", "docuseal"),
	}
}

// BaseURL returns the configured API base URL without a trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

// headerCandidates returns the auth header names to try, with any header
// that already worked for this client instance promoted to the front.
func (c *Client) headerCandidates() []string {
	c.mu.Lock()
	known := c.authHeader
	c.mu.Unlock()
	if known == "" {
		return authHeaders
	}
	out := []string{known}
	for _, h := range authHeaders {
		if h != known {
			out = append(out, h)
		}
	}
	return out
}

func (c *Client) rememberHeader(name string) {
	c.mu.Lock()
	c.authHeader = name
	c.mu.Unlock()
}

// request performs one HTTP call per auth header candidate until a 2xx
// response arrives. This is a compatibility probe across header naming
// schemes, not a retry loop. For GETs every candidate may be tried; a
// mutating call is only re-sent when the rejection is auth-shaped, since
// the gateway may have acted on it before failing.
func (c *Client) request(ctx context.Context, method, rawURL string, body []byte) ([]byte, int) {
	var lastStatus int
	for _, header := range c.headerCandidates() {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
		if err != nil {
			c.log.WithError(err).WithField("url", rawURL).Warn("building request failed")
			return nil, 0
		}
		req.Header.Set(header, c.apiKey)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"url": rawURL, "auth_header": header,
			}).Warn("request failed")
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			c.log.WithError(readErr).WithField("url", rawURL).Warn("reading response failed")
			continue
		}
		lastStatus = resp.StatusCode
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			c.rememberHeader(header)
			return data, resp.StatusCode
		}
		c.log.WithFields(logrus.Fields{
			"url": rawURL, "auth_header": header, "status": resp.StatusCode,
		}).Warn("non-2xx response")
		if method != http.MethodGet && resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
			return nil, resp.StatusCode
		}
	}
	return nil, lastStatus
}

// ListTemplates fetches up to limit templates. Responses shaped as
// {"data":[...]}, a bare array of records, or {"templates":[...]} are all
// accepted, in that priority order. Any failure yields an empty slice so
// the caller always has something to render.
func (c *Client) ListTemplates(ctx context.Context, limit int) []Template {
	if limit <= 0 {
		limit = defaultListLimit
	}
	rawURL := fmt.Sprintf("%s/templates?limit=%d", c.baseURL, limit)

	records := c.listRecords(ctx, rawURL, "templates")
	templates := make([]Template, 0, len(records))
	for _, rec := range records {
		var t Template
		if remarshal(rec, &t) == nil {
			templates = append(templates, t)
		}
	}
	return templates
}

// ListSubmissionsOptions filters a submission listing. UserEmail, when set,
// keeps only submissions carrying an operator-role submitter with that email.
type ListSubmissionsOptions struct {
	Limit      int
	Status     string
	TemplateID string
	UserEmail  string
}

// ListSubmissions fetches submissions with optional status/template filters,
// then narrows to the given user's operator entries. Fail-soft empty.
func (c *Client) ListSubmissions(ctx context.Context, opts ListSubmissionsOptions) []Submission {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.TemplateID != "" {
		q.Set("template_id", opts.TemplateID)
	}
	rawURL := fmt.Sprintf("%s/submissions?%s", c.baseURL, q.Encode())

	records := c.listRecords(ctx, rawURL, "submissions")
	subs := make([]Submission, 0, len(records))
	for _, rec := range records {
		var s Submission
		if remarshal(rec, &s) != nil {
			continue
		}
		if opts.UserEmail != "" && findOperatorSubmitter(s.Submitters, opts.UserEmail) == nil {
			continue
		}
		subs = append(subs, s)
	}
	return subs
}

// listRecords runs the listing probe: for each auth header candidate the
// same URL is fetched until one response decodes into a recognized envelope.
func (c *Client) listRecords(ctx context.Context, rawURL, altKey string) []map[string]any {
	for _, header := range c.headerCandidates() {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			c.log.WithError(err).WithField("url", rawURL).Warn("building request failed")
			return nil
		}
		req.Header.Set(header, c.apiKey)
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			c.log.WithError(err).WithFields(logrus.Fields{
				"url": rawURL, "auth_header": header,
			}).Warn("list request failed")
			continue
		}
		data, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			continue
		}
		records, ok := decodeRecordEnvelope(data, altKey)
		if !ok {
			c.log.WithFields(logrus.Fields{
				"url": rawURL, "auth_header": header, "status": resp.StatusCode,
			}).Warn("unrecognized list response shape")
			continue
		}
		c.rememberHeader(header)
		return records
	}
	return nil
}

// decodeRecordEnvelope accepts the three known listing shapes in priority
// order: {"data":[...]}, a bare array whose records look like entities, or
// {"<altKey>":[...]}.
func decodeRecordEnvelope(data []byte, altKey string) ([]map[string]any, bool) {
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}

	switch v := decoded.(type) {
	case map[string]any:
		if list, ok := v["data"].([]any); ok {
			return toRecords(list), true
		}
		if list, ok := v[altKey].([]any); ok {
			return toRecords(list), true
		}
	case []any:
		if len(v) == 0 {
			return nil, true
		}
		if first, ok := v[0].(map[string]any); ok {
			_, hasID := first["id"]
			_, hasSlug := first["slug"]
			_, hasName := first["name"]
			if hasID || hasSlug || hasName {
				return toRecords(v), true
			}
		}
	}
	return nil, false
}

func toRecords(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// CreateSubmission creates a submission for the template with a single
// operator-role submitter and no vendor email notification. Returns nil on
// any transport or non-2xx failure; no retry is attempted.
func (c *Client) CreateSubmission(ctx context.Context, templateID, email, name string) *CreateResult {
	// Template ids are numeric on the wire; some gateways validate the type.
	var tid any = templateID
	if n, err := strconv.Atoi(templateID); err == nil {
		tid = n
	}
	payload, err := json.Marshal(map[string]any{
		"template_id": tid,
		"send_email":  false,
		"submitters": []map[string]string{
			{"role": "Operator", "email": email, "name": name},
		},
	})
	if err != nil {
		return nil
	}

	data, status := c.request(ctx, http.MethodPost, c.baseURL+"/submissions", payload)
	if data == nil {
		c.log.WithFields(logrus.Fields{
			"template_id": templateID, "status": status,
		}).Warn("create submission failed")
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		// Some gateways answer a create with a bare one-element array.
		var list []map[string]any
		if err := json.Unmarshal(data, &list); err != nil || len(list) == 0 {
			c.log.Warn("create submission returned undecodable body")
			return nil
		}
		raw = list[0]
	}

	return &CreateResult{
		SubmissionID:  ExtractSubmissionID(raw),
		SubmitterSlug: ExtractSubmitterSlug(raw),
		TemplateSlug:  ExtractTemplateSlug(raw),
		Raw:           raw,
	}
}

// GetSubmission fetches full submission detail including submitters.
// Returns nil on 404 or transport failure; absence and unreachability are
// deliberately indistinguishable here.
func (c *Client) GetSubmission(ctx context.Context, submissionID string) *Submission {
	rawURL := c.baseURL + "/submissions/" + url.PathEscape(submissionID)
	data, _ := c.request(ctx, http.MethodGet, rawURL, nil)
	if data == nil {
		return nil
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	node := raw
	if d, ok := raw["data"].(map[string]any); ok {
		if _, hasID := d["id"]; hasID {
			node = d
		}
	}

	var sub Submission
	if err := remarshal(node, &sub); err != nil {
		return nil
	}
	if sub.ID == "" {
		return nil
	}
	return &sub
}

// DownloadSignedPDF fetches the signed artifact for a submission. The
// submission detail is consulted first for a direct document URL, falling
// back to the generic download endpoint. Nil means "not available", which
// covers not-ready, not-found and unreachable alike.
func (c *Client) DownloadSignedPDF(ctx context.Context, submissionID string) []byte {
	detailURL := c.baseURL + "/submissions/" + url.PathEscape(submissionID)
	if data, _ := c.request(ctx, http.MethodGet, detailURL, nil); data != nil {
		var raw map[string]any
		if json.Unmarshal(data, &raw) == nil {
			if docURL := extractDocumentURL(raw); docURL != "" {
				if pdf := c.fetchBinary(ctx, docURL); pdf != nil {
					return pdf
				}
			}
		}
	}

	downloadURL := detailURL + "/download"
	return c.fetchBinary(ctx, downloadURL)
}

func (c *Client) fetchBinary(ctx context.Context, rawURL string) []byte {
	data, _ := c.request(ctx, http.MethodGet, rawURL, nil)
	if len(data) == 0 {
		return nil
	}
	return data
}

// TestConnection probes the templates endpoint and reports which auth
// header the deployment accepted. Reachability reflects this probe, not a
// header cached by an earlier call. Used by the health endpoint.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	rawURL := fmt.Sprintf("%s/templates?limit=1", c.baseURL)
	data, _ := c.request(ctx, http.MethodGet, rawURL, nil)
	if data == nil {
		return false, ""
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return true, c.authHeader
}

func findOperatorSubmitter(submitters []Submitter, email string) *Submitter {
	for i := range submitters {
		if submitters[i].Email == email && submitters[i].HasRole("operator") {
			return &submitters[i]
		}
	}
	return nil
}

func remarshal(src any, dst any) error {
	data, err := json.Marshal(src)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dst)
}
