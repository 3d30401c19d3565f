package fhir

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// Search entry modes.
const (
	SearchModeMatch   = "match"
	SearchModeInclude = "include"
	SearchModeOutcome = "outcome"
)

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	// ServerURL is the FHIR base ("http://host/fhir") used for fullUrl;
	// BaseURL is the search URL the paging links are built on.
	ServerURL string
	BaseURL   string
	QueryStr  string
	Count     int
	Offset    int
	Total     int
	// OmitTotal leaves Bundle.total unset (_total=none).
	OmitTotal bool
}

// NewSearchBundle creates a searchset Bundle. Matches precede included
// resources; a non-empty outcome is appended as an entry with mode "outcome".
func NewSearchBundle(matches, included []*Resource, outcome *OperationOutcome, params SearchBundleParams) (*Bundle, error) {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(matches)+len(included)+1)
	add := func(r *Resource, mode string) error {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", r.Key(), err)
		}
		entries = append(entries, BundleEntry{
			FullURL:  fullURL(params.ServerURL, r),
			Resource: raw,
			Search:   &BundleSearch{Mode: mode},
		})
		return nil
	}
	for _, r := range matches {
		if err := add(r, SearchModeMatch); err != nil {
			return nil, err
		}
	}
	for _, r := range included {
		if err := add(r, SearchModeInclude); err != nil {
			return nil, err
		}
	}
	if outcome != nil && len(outcome.Issue) > 0 {
		raw, err := json.Marshal(outcome)
		if err != nil {
			return nil, fmt.Errorf("marshal outcome: %w", err)
		}
		entries = append(entries, BundleEntry{Resource: raw, Search: &BundleSearch{Mode: SearchModeOutcome}})
	}

	b := &Bundle{
		ResourceType: "Bundle",
		ID:           uuid.NewString(),
		Type:         "searchset",
		Timestamp:    &now,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
	if !params.OmitTotal {
		total := params.Total
		b.Total = &total
	}
	return b, nil
}

func fullURL(serverURL string, r *Resource) string {
	if r.Type() == "" || r.ID() == "" {
		return ""
	}
	if serverURL == "" {
		return r.Key()
	}
	return fmt.Sprintf("%s/%s", serverURL, r.Key())
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	typeURL := params.BaseURL
	if params.Count < 1 {
		return []BundleLink{{Relation: "self", URL: typeURL}}
	}
	links := []BundleLink{
		{
			Relation: "self",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", typeURL, conditionalAmpersand(params.QueryStr), params.Count, params.Offset),
		},
	}

	// Next link: only if there are more results
	nextOffset := params.Offset + params.Count
	if nextOffset < params.Total {
		links = append(links, BundleLink{
			Relation: "next",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", typeURL, conditionalAmpersand(params.QueryStr), params.Count, nextOffset),
		})
	}

	// Previous link: only if not at the first page
	if params.Offset > 0 {
		prevOffset := params.Offset - params.Count
		if prevOffset < 0 {
			prevOffset = 0
		}
		links = append(links, BundleLink{
			Relation: "previous",
			URL:      fmt.Sprintf("%s?%s_count=%d&_offset=%d", typeURL, conditionalAmpersand(params.QueryStr), params.Count, prevOffset),
		})
	}

	return links
}

// conditionalAmpersand returns the query string with a trailing & if non-empty.
func conditionalAmpersand(qs string) string {
	if qs == "" {
		return ""
	}
	return qs + "&"
}
