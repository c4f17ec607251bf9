package httpadapter

import (
	"net/http"

	"github.com/kirillkom/rag-pipeline/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrFileNotFound), domain.IsKind(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrUnsupportedFileType),
		domain.IsKind(err, domain.ErrInvalidConfiguration),
		domain.IsKind(err, domain.ErrInvalidInput),
		domain.IsKind(err, domain.ErrIndexUnavailable),
		domain.IsKind(err, domain.ErrMissingCredential):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrIndexNotReady), domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
