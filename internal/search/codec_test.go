package search

import (
	"reflect"
	"testing"

	"libreshelf/pkg/domain"
)

func TestFilterStateRoundTrip(t *testing.T) {
	selections := domain.FacetSelections{
		"department": {"science", "english"},
		"language":   {"de"},
	}
	token, err := EncodeFilterState(selections)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token == "" {
		t.Fatal("expected non-empty token")
	}
	got := DecodeFilterState(token)
	if !reflect.DeepEqual(got, selections) {
		t.Fatalf("round trip = %v, want %v", got, selections)
	}
}

func TestEncodeFilterStateDropsUnknownKeysAndEmpties(t *testing.T) {
	token, err := EncodeFilterState(domain.FacetSelections{
		"department":    {"science"},
		"not_a_facet":   {"x"},
		"language":      {},
		"document_type": {"  ", ""},
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got := DecodeFilterState(token)
	want := domain.FacetSelections{"department": {"science"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("decoded = %v, want %v", got, want)
	}
}

func TestEncodeFilterStateEmptyYieldsEmptyToken(t *testing.T) {
	token, err := EncodeFilterState(domain.FacetSelections{"bogus": {"x"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if token != "" {
		t.Fatalf("token = %q, want empty", token)
	}
}

func TestDecodeFilterStateToleratesGarbage(t *testing.T) {
	for _, token := range []string{
		"",
		"garbage-not-base64!!",
		"%%not-base64%%",
		"bm90LWRlZmxhdGU",         // valid base64, not a deflate stream
		"q1ZKSSxJVbJSUkrLz1eqBQA", // arbitrary token with no json inside
	} {
		got := DecodeFilterState(token)
		if len(got) != 0 {
			t.Errorf("DecodeFilterState(%q) = %v, want empty", token, got)
		}
	}
}

func TestDecodeFilterStateAcceptsPaddedToken(t *testing.T) {
	selections := domain.FacetSelections{"language": {"en"}}
	token, err := EncodeFilterState(selections)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	padded := token
	for len(padded)%4 != 0 {
		padded += "="
	}
	got := DecodeFilterState(padded)
	if !reflect.DeepEqual(got, selections) {
		t.Fatalf("decoded = %v, want %v", got, selections)
	}
}
