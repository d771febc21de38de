package search

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"libreshelf/pkg/domain"
)

// EncodeFilterState compresses a facet-selection map into a compact
// URL-safe token: allow-listed JSON, deflated, then raw base64url. An empty
// selection (after dropping unknown keys and empty value lists) encodes to
// "", meaning the caller omits the URL parameter entirely.
func EncodeFilterState(selections domain.FacetSelections) (string, error) {
	kept := make(domain.FacetSelections)
	for _, key := range FacetKeys {
		values := compactValues(selections[key])
		if len(values) == 0 {
			continue
		}
		kept[key] = values
	}
	if len(kept) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(kept)
	if err != nil {
		return "", fmt.Errorf("encode filter state: %w", err)
	}
	var buf bytes.Buffer
	writer, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", fmt.Errorf("init deflate: %w", err)
	}
	if _, err := writer.Write(raw); err != nil {
		return "", fmt.Errorf("deflate filter state: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("flush deflate: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeFilterState reverses EncodeFilterState. The token is untrusted URL
// input: any failure (bad base64, corrupt deflate stream, malformed JSON)
// yields an empty selection rather than an error.
func DecodeFilterState(token string) domain.FacetSelections {
	if token == "" {
		return domain.FacetSelections{}
	}
	compressed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		// Tolerate tokens that arrive with padding.
		compressed, err = base64.URLEncoding.DecodeString(token)
		if err != nil {
			return domain.FacetSelections{}
		}
	}
	reader := flate.NewReader(bytes.NewReader(compressed))
	defer reader.Close()
	raw, err := io.ReadAll(reader)
	if err != nil {
		return domain.FacetSelections{}
	}
	var selections domain.FacetSelections
	if err := json.Unmarshal(raw, &selections); err != nil {
		return domain.FacetSelections{}
	}
	kept := make(domain.FacetSelections)
	for _, key := range FacetKeys {
		values := compactValues(selections[key])
		if len(values) == 0 {
			continue
		}
		kept[key] = values
	}
	return kept
}
