package usecase

import (
	"fmt"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// BuildContext renders hits as numbered citation paragraphs, 1-indexed in input order.
func BuildContext(hits []domain.Hit) string {
	parts := make([]string, 0, len(hits))
	for i, hit := range hits {
		pageLabel := ""
		if hit.Pages != "" {
			pageLabel = ", p." + hit.Pages
		}
		parts = append(parts, fmt.Sprintf("[%d] (source: %s%s)\n %s", i+1, hit.Source, pageLabel, hit.ChunkText))
	}
	return strings.Join(parts, "\n\n")
}
