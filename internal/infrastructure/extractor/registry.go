package extractor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
	"github.com/kirillkom/rag-pipeline/internal/core/ports"
)

// Registry dispatches page extraction by lowercased file extension.
type Registry struct {
	byExt map[string]ports.PageExtractor
}

func NewRegistry(extractors ...ports.PageExtractor) *Registry {
	r := &Registry{byExt: make(map[string]ports.PageExtractor)}
	for _, e := range extractors {
		r.Register(e)
	}
	return r
}

// Register binds every extension the extractor declares; later registrations win.
func (r *Registry) Register(e ports.PageExtractor) {
	for _, ext := range e.Extensions() {
		r.byExt[normalizeExt(ext)] = e
	}
}

func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.byExt))
	for ext := range r.byExt {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ExtractPages(ctx context.Context, path string) ([]domain.Page, error) {
	ext := strings.ToLower(filepath.Ext(path))
	e, ok := r.byExt[ext]
	if !ok {
		return nil, domain.WrapError(domain.ErrUnsupportedFileType, "extract pages",
			fmt.Errorf("unsupported file type: %q", ext))
	}

	if err := checkReadableFile(path); err != nil {
		return nil, err
	}

	pages, err := e.ExtractPages(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("extract pages from %s: %w", filepath.Base(path), err)
	}
	return pages, nil
}

func checkReadableFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return domain.WrapError(domain.ErrFileNotFound, "extract pages", err)
		}
		return fmt.Errorf("stat source file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return domain.WrapError(domain.ErrFileNotFound, "extract pages",
			fmt.Errorf("not a regular file: %s", path))
	}
	return nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
