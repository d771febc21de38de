package search

import (
	"strings"

	"libreshelf/pkg/domain"
	"libreshelf/pkg/store"
)

// FacetKeys is the fixed allow-list of metadata keys treated as filterable
// facets. Unrecognized keys in user input are ignored, never an error.
var FacetKeys = []string{"document_type", "department", "language", "publishing_date"}

const dateFacetKey = "publishing_date"

// FilterStore is the query surface the engine drives.
type FilterStore interface {
	FilterDocuments(q store.FilterQuery) ([]domain.Document, error)
	FacetValueCounts(tenantID string, kind domain.DocumentKind, key string) ([]domain.FacetCount, error)
	YearCounts(q store.FilterQuery) ([]domain.FacetCount, error)
}

// Engine builds filtered, faceted library queries over documents from
// free-text search plus multi-valued facet selections.
type Engine struct {
	store FilterStore
}

// NewEngine wires the engine to a store.
func NewEngine(s FilterStore) *Engine {
	return &Engine{store: s}
}

// Query normalizes user input into a store filter. Keys outside the facet
// allow-list and empty value lists are dropped; publishing_date selections
// are reduced to their year components.
func Query(tenantID string, kind domain.DocumentKind, searchText string, selections domain.FacetSelections) store.FilterQuery {
	q := store.FilterQuery{
		TenantID:   tenantID,
		Kind:       kind,
		TitleQuery: strings.TrimSpace(searchText),
		Facets:     make(map[string][]string),
	}
	for _, key := range FacetKeys {
		values := compactValues(selections[key])
		if len(values) == 0 {
			continue
		}
		if key == dateFacetKey {
			q.Years = yearsOf(values)
			continue
		}
		q.Facets[key] = values
	}
	return q
}

// Filter returns the de-duplicated result set for the given search text and
// facet selections. Facet keys combine conjunctively; values within a key
// disjunctively.
func (e *Engine) Filter(tenantID string, kind domain.DocumentKind, searchText string, selections domain.FacetSelections) ([]domain.Document, error) {
	return e.store.FilterDocuments(Query(tenantID, kind, searchText, selections))
}

// FacetCounts computes the per-facet value counts for the library sidebar.
// Simple facets count tenant-wide regardless of the active filters;
// publishing_date counts within the currently filtered scope. The asymmetry
// is intentional, long-standing behavior.
func (e *Engine) FacetCounts(tenantID string, kind domain.DocumentKind, searchText string, selections domain.FacetSelections) (map[string][]domain.FacetCount, error) {
	counts := make(map[string][]domain.FacetCount, len(FacetKeys))
	for _, key := range FacetKeys {
		if key == dateFacetKey {
			continue
		}
		values, err := e.store.FacetValueCounts(tenantID, kind, key)
		if err != nil {
			return nil, err
		}
		counts[key] = values
	}
	years, err := e.store.YearCounts(Query(tenantID, kind, searchText, selections))
	if err != nil {
		return nil, err
	}
	counts[dateFacetKey] = years
	return counts, nil
}

func compactValues(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}

// yearsOf reduces selected publishing_date values to distinct years,
// tolerating bare years and full ISO dates.
func yearsOf(values []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(values))
	for _, v := range values {
		year, ok := store.YearOf(v)
		if !ok || seen[year] {
			continue
		}
		seen[year] = true
		out = append(out, year)
	}
	return out
}
