package xlsx

import (
	"context"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

// Extractor maps every worksheet to one page, in workbook order.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extensions() []string {
	return []string{".xlsx"}
}

func (e *Extractor) ExtractPages(ctx context.Context, path string) ([]domain.Page, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer func() {
		_ = f.Close()
	}()

	sheets := f.GetSheetList()
	pages := make([]domain.Page, 0, len(sheets))
	for i, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		text := renderSheet(sheet, rows)
		if text == "" {
			continue
		}
		pages = append(pages, domain.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

func renderSheet(name string, rows [][]string) string {
	var b strings.Builder
	for _, row := range rows {
		line := strings.TrimSpace(strings.Join(row, "\t"))
		if line == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(name)
			b.WriteString("\n")
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}
