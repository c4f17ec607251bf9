package plaintext

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"unicode/utf8"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// Extractor treats a flat text file as a single page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extensions() []string {
	return []string{".txt", ".md"}
}

func (e *Extractor) ExtractPages(_ context.Context, path string) ([]domain.Page, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.WrapError(domain.ErrFileNotFound, "read text file", err)
		}
		return nil, fmt.Errorf("read source document: %w", err)
	}

	if !utf8.Valid(raw) {
		return nil, domain.WrapError(domain.ErrInvalidInput, "read text file",
			fmt.Errorf("file is not valid utf-8: %s", path))
	}

	return []domain.Page{{Number: 1, Text: string(raw)}}, nil
}
