package docuseal

import (
	"encoding/json"
	"strconv"
)

// The API and its SDK are not consistent about where they put identifiers:
// a create-submission response may carry the id at the top level, under
// "submission_id", or nested under "data"; submitter slugs show up in at
// least four places. Each entity gets one ordered list of extractors, tried
// first to last, so every call site normalizes the same way.

type extractor func(map[string]any) (string, bool)

var submissionIDExtractors = []extractor{
	func(m map[string]any) (string, bool) { return stringField(m, "id") },
	func(m map[string]any) (string, bool) { return stringField(m, "submission_id") },
	func(m map[string]any) (string, bool) {
		if d, ok := m["data"].(map[string]any); ok {
			return stringField(d, "id")
		}
		return "", false
	},
}

var submitterSlugExtractors = []extractor{
	func(m map[string]any) (string, bool) { return stringField(m, "submitter_slug") },
	func(m map[string]any) (string, bool) { return firstSubmitterSlug(m["submitters"]) },
	func(m map[string]any) (string, bool) {
		if d, ok := m["data"].(map[string]any); ok {
			return firstSubmitterSlug(d["submitters"])
		}
		return "", false
	},
	func(m map[string]any) (string, bool) {
		if s, ok := m["submitter"].(map[string]any); ok {
			return stringField(s, "slug")
		}
		return "", false
	},
}

var templateSlugExtractors = []extractor{
	func(m map[string]any) (string, bool) { return stringField(m, "template_slug") },
	func(m map[string]any) (string, bool) {
		if d, ok := m["data"].(map[string]any); ok {
			if t, ok := d["template"].(map[string]any); ok {
				return stringField(t, "slug")
			}
		}
		return "", false
	},
	func(m map[string]any) (string, bool) {
		if t, ok := m["template"].(map[string]any); ok {
			return stringField(t, "slug")
		}
		return "", false
	},
}

var documentURLExtractors = []extractor{
	func(m map[string]any) (string, bool) { return firstDocumentURL(m["documents"]) },
	func(m map[string]any) (string, bool) { return stringField(m, "combined_document_url") },
	func(m map[string]any) (string, bool) {
		if d, ok := m["data"].(map[string]any); ok {
			if u, ok := firstDocumentURL(d["documents"]); ok {
				return u, true
			}
			return stringField(d, "combined_document_url")
		}
		return "", false
	},
}

func extractFirst(chain []extractor, payload map[string]any) string {
	for _, fn := range chain {
		if v, ok := fn(payload); ok {
			return v
		}
	}
	return ""
}

// ExtractSubmissionID pulls a submission identifier out of a raw create or
// detail payload, trying the known locations in priority order.
func ExtractSubmissionID(payload map[string]any) string {
	return extractFirst(submissionIDExtractors, payload)
}

// ExtractSubmitterSlug pulls the first submitter's ephemeral signing slug
// out of a raw payload.
func ExtractSubmitterSlug(payload map[string]any) string {
	return extractFirst(submitterSlugExtractors, payload)
}

// ExtractTemplateSlug pulls the template slug out of a raw payload when the
// API chose to include one.
func ExtractTemplateSlug(payload map[string]any) string {
	return extractFirst(templateSlugExtractors, payload)
}

func extractDocumentURL(payload map[string]any) string {
	return extractFirst(documentURLExtractors, payload)
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false
	}
	s := anyToString(v)
	if s == "" {
		return "", false
	}
	return s, true
}

func firstSubmitterSlug(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok || len(list) == 0 {
		return "", false
	}
	first, ok := list[0].(map[string]any)
	if !ok {
		return "", false
	}
	if s, ok := stringField(first, "slug"); ok {
		return s, true
	}
	return stringField(first, "submitter_slug")
}

func firstDocumentURL(v any) (string, bool) {
	list, ok := v.([]any)
	if !ok {
		return "", false
	}
	for _, item := range list {
		doc, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if u, ok := stringField(doc, "url"); ok {
			return u, true
		}
	}
	return "", false
}

func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; ids are integral in practice.
		if n := int64(t); float64(n) == t {
			return strconv.FormatInt(n, 10)
		}
		return ""
	case json.Number:
		return t.String()
	default:
		return ""
	}
}
