package search

import (
	"testing"

	"libreshelf/pkg/domain"
	"libreshelf/pkg/store"
)

// seedLibrary loads three documents for one tenant:
//
//	d1: book, science, en, published 2024
//	d2: book, english, en, published 2023
//	d3: article, science, de, published 2024
func seedLibrary(t *testing.T) *store.MemoryStore {
	t.Helper()
	st := store.NewMemoryStore()
	if err := st.SaveTenant(domain.Tenant{ID: "tenant-1", Subdomain: "lib"}); err != nil {
		t.Fatalf("save tenant: %v", err)
	}
	docs := []struct {
		id    string
		title string
		meta  map[string]string
	}{
		{"d1", "Organic Chemistry", map[string]string{
			"document_type": "book", "department": "science", "language": "en", "publishing_date": "2024-03-01",
		}},
		{"d2", "Modern Poetry", map[string]string{
			"document_type": "book", "department": "english", "language": "en", "publishing_date": "2023",
		}},
		{"d3", "Lab Safety Notes", map[string]string{
			"document_type": "article", "department": "science", "language": "de", "publishing_date": "2024-11-20",
		}},
	}
	for _, d := range docs {
		if err := st.SaveDocument(domain.Document{ID: d.id, TenantID: "tenant-1", Kind: domain.KindLibrary}); err != nil {
			t.Fatalf("save document %s: %v", d.id, err)
		}
		entries := []domain.Metadata{{Key: "title", Value: d.title}}
		for k, v := range d.meta {
			entries = append(entries, domain.Metadata{Key: k, Value: v})
		}
		if err := st.ReplaceMetadata(d.id, entries); err != nil {
			t.Fatalf("replace metadata %s: %v", d.id, err)
		}
	}
	return st
}

func docIDs(docs []domain.Document) []string {
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids
}

func assertIDs(t *testing.T, got []domain.Document, want ...string) {
	t.Helper()
	ids := docIDs(got)
	if len(ids) != len(want) {
		t.Fatalf("result = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("result = %v, want %v", ids, want)
		}
	}
}

func TestFilterSingleFacet(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "", domain.FacetSelections{
		"document_type": {"book"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1", "d2")
}

func TestFilterValuesWithinKeyAreDisjunctive(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "", domain.FacetSelections{
		"department": {"science", "english"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1", "d2", "d3")
}

func TestFilterKeysAreConjunctive(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "", domain.FacetSelections{
		"document_type": {"book"},
		"department":    {"science"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1")
}

func TestFilterByPublishingYear(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	// Full dates and bare years both reduce to year granularity.
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "", domain.FacetSelections{
		"publishing_date": {"2024-06-30"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1", "d3")
}

func TestFilterTitleSearchCombinesWithFacets(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "chem", domain.FacetSelections{
		"department": {"science"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1")
}

func TestFilterIgnoresUnknownFacetKeys(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	docs, err := engine.Filter("tenant-1", domain.KindLibrary, "", domain.FacetSelections{
		"shoe_size": {"42"},
	})
	if err != nil {
		t.Fatalf("filter: %v", err)
	}
	assertIDs(t, docs, "d1", "d2", "d3")
}

func TestFacetCountsGlobalVersusScopedYears(t *testing.T) {
	engine := NewEngine(seedLibrary(t))
	selections := domain.FacetSelections{"document_type": {"book"}}

	counts, err := engine.FacetCounts("tenant-1", domain.KindLibrary, "", selections)
	if err != nil {
		t.Fatalf("facet counts: %v", err)
	}

	// Simple facets count tenant-wide, untouched by the active selection.
	types := counts["document_type"]
	if len(types) != 2 || types[0] != (domain.FacetCount{Value: "book", Count: 2}) || types[1] != (domain.FacetCount{Value: "article", Count: 1}) {
		t.Fatalf("document_type counts = %v", types)
	}
	departments := counts["department"]
	if len(departments) != 2 || departments[0] != (domain.FacetCount{Value: "science", Count: 2}) {
		t.Fatalf("department counts = %v", departments)
	}

	// Year counts respect the active selection: only books remain, one per
	// year, newest year first on the tie.
	years := counts["publishing_date"]
	if len(years) != 2 {
		t.Fatalf("year counts = %v", years)
	}
	if years[0] != (domain.FacetCount{Value: "2024", Count: 1}) || years[1] != (domain.FacetCount{Value: "2023", Count: 1}) {
		t.Fatalf("year counts = %v", years)
	}
}

func TestFacetCountsUnfiltered(t *testing.T) {
	st := store.NewMemoryStore()
	docs := []struct {
		id      string
		docType string
		pubDate string
	}{
		{"d1", "book", "2024-01-15"},
		{"d2", "book", "2024-06-20"},
		{"d3", "article", "2023-03-10"},
	}
	for _, d := range docs {
		if err := st.SaveDocument(domain.Document{ID: d.id, TenantID: "tenant-1", Kind: domain.KindLibrary}); err != nil {
			t.Fatalf("save document %s: %v", d.id, err)
		}
		if err := st.ReplaceMetadata(d.id, []domain.Metadata{
			{Key: "document_type", Value: d.docType},
			{Key: "publishing_date", Value: d.pubDate},
		}); err != nil {
			t.Fatalf("replace metadata %s: %v", d.id, err)
		}
	}

	engine := NewEngine(st)
	counts, err := engine.FacetCounts("tenant-1", domain.KindLibrary, "", nil)
	if err != nil {
		t.Fatalf("facet counts: %v", err)
	}
	types := counts["document_type"]
	if len(types) != 2 || types[0] != (domain.FacetCount{Value: "book", Count: 2}) || types[1] != (domain.FacetCount{Value: "article", Count: 1}) {
		t.Fatalf("document_type counts = %v", types)
	}
	years := counts["publishing_date"]
	if len(years) != 2 || years[0] != (domain.FacetCount{Value: "2024", Count: 2}) || years[1] != (domain.FacetCount{Value: "2023", Count: 1}) {
		t.Fatalf("publishing_date counts = %v", years)
	}
}

func TestFacetCountsTenantIsolation(t *testing.T) {
	st := seedLibrary(t)
	if err := st.SaveDocument(domain.Document{ID: "other", TenantID: "tenant-2", Kind: domain.KindLibrary}); err != nil {
		t.Fatalf("save document: %v", err)
	}
	if err := st.ReplaceMetadata("other", []domain.Metadata{{Key: "document_type", Value: "book"}}); err != nil {
		t.Fatalf("replace metadata: %v", err)
	}

	engine := NewEngine(st)
	counts, err := engine.FacetCounts("tenant-1", domain.KindLibrary, "", nil)
	if err != nil {
		t.Fatalf("facet counts: %v", err)
	}
	for _, fc := range counts["document_type"] {
		if fc.Value == "book" && fc.Count != 2 {
			t.Fatalf("book count = %d, want 2 (tenant-2 must not leak)", fc.Count)
		}
	}
}
