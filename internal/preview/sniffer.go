package preview

import (
	"strings"

	"libreshelf/pkg/domain"
)

// Classify maps a declared content type onto a known binary format. The
// declared type is trusted as-is; there is no magic-byte verification, so a
// mislabeled upload routes to the wrong renderer or none at all.
func Classify(contentType string) domain.Format {
	mediaType := contentType
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/pdf":
		return domain.FormatPDF
	case "application/epub+zip":
		return domain.FormatEPUB
	default:
		return domain.FormatUnsupported
	}
}
