package validators

import (
	"net/http"
	"strconv"
	"strings"

	pkgerrors "github.com/angelmondragon/orderflow-backend/pkg/errors"
	"github.com/angelmondragon/orderflow-backend/pkg/pagination"
)

// ParsePageParams reads ?limit and ?cursor. A missing limit falls back to
// pagination.DefaultLimit; anything outside [1, MaxLimit] or a cursor that
// does not decode is rejected before it reaches the repository.
func ParsePageParams(r *http.Request) (pagination.Params, error) {
	query := r.URL.Query()
	params := pagination.Params{
		Limit:  pagination.DefaultLimit,
		Cursor: strings.TrimSpace(query.Get("cursor")),
	}

	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			return pagination.Params{}, fieldError("limit", "must be an integer")
		}
		if limit < 1 || limit > pagination.MaxLimit {
			return pagination.Params{}, fieldError("limit", "must be between 1 and "+strconv.Itoa(pagination.MaxLimit))
		}
		params.Limit = limit
	}

	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return pagination.Params{}, fieldError("cursor", "is malformed")
	}
	return params, nil
}

func fieldError(field, message string) *pkgerrors.Error {
	return pkgerrors.New(pkgerrors.CodeValidation, "invalid query parameter").WithDetails(map[string]string{field: message})
}
