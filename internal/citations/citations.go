package citations

import (
	"fmt"
	"strings"
)

// UnknownField is used when a reference is missing page or chunk metadata.
const UnknownField = "Unknown"

// PlaceholderSource is used when a reference carries no location at all.
const PlaceholderSource = "Knowledge Base Source"

// RetrievedReference is one passage returned by the knowledge base for a
// query. URI may be a web URL or an s3:// object URI; Page and Chunk come
// from document metadata and may be empty.
type RetrievedReference struct {
	URI     string `json:"uri"`
	Page    string `json:"page"`
	Chunk   string `json:"chunk"`
	Snippet string `json:"snippet"`
}

// Key returns the identity key for deduplication. Two references with the
// same key are the same citation.
func (r RetrievedReference) Key() string {
	uri := r.URI
	if uri == "" {
		uri = PlaceholderSource
	}
	page := r.Page
	if page == "" {
		page = UnknownField
	}
	chunk := r.Chunk
	if chunk == "" {
		chunk = UnknownField
	}
	return uri + "\x00" + page + "\x00" + chunk
}

// Citation is a reconciled, numbered reference exposed to the caller.
type Citation struct {
	ID         int    `json:"id"`
	Source     string `json:"source"`
	SourceLink string `json:"source_link"`
	Page       string `json:"page"`
	Chunk      string `json:"chunk"`
	Text       string `json:"text"`
}

// Reconcile collapses duplicate retrieved references into numbered citations.
// IDs are 1-based and assigned in first-seen order; the returned slice is in
// insertion order. The map keys are RetrievedReference.Key() values.
func Reconcile(refs []RetrievedReference) (map[string]int, []Citation) {
	numbers := make(map[string]int)
	ordered := make([]Citation, 0, len(refs))
	next := 1

	for _, r := range refs {
		key := r.Key()
		if _, seen := numbers[key]; seen {
			continue
		}
		numbers[key] = next

		name, link := beautifyURI(r.URI)
		page := r.Page
		if page == "" {
			page = UnknownField
		}
		chunk := r.Chunk
		if chunk == "" {
			chunk = UnknownField
		}
		ordered = append(ordered, Citation{
			ID:         next,
			Source:     name,
			SourceLink: link,
			Page:       page,
			Chunk:      chunk,
			Text:       r.Snippet,
		})
		next++
	}

	return numbers, ordered
}

// beautifyURI rewrites a storage URI into a display name and a fetchable
// link. Web URLs pass through unchanged; a missing URI yields the fixed
// placeholder.
func beautifyURI(uri string) (name, link string) {
	if uri == "" {
		return PlaceholderSource, PlaceholderSource
	}
	if !strings.HasPrefix(uri, "s3://") {
		return uri, uri
	}

	rest := strings.TrimPrefix(uri, "s3://")
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || key == "" {
		// Bucket-only URI; nothing meaningful to strip.
		return rest, fmt.Sprintf("https://%s.s3.amazonaws.com/", bucket)
	}
	return key, fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// CitationMap returns the id->citation map shape used in API responses.
func CitationMap(ordered []Citation) map[string]Citation {
	m := make(map[string]Citation, len(ordered))
	for _, c := range ordered {
		m[fmt.Sprintf("%d", c.ID)] = c
	}
	return m
}

// Confidence is the reproducible scoring rule applied to a reconciled
// response: min(0.95, 0.7 + 0.05*n), with a floor of 0.8 when there are no
// citations at all.
func Confidence(citationCount int) float64 {
	if citationCount == 0 {
		return 0.8
	}
	c := 0.7 + 0.05*float64(citationCount)
	if c > 0.95 {
		c = 0.95
	}
	return c
}
