package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/audiophile-backend/pkg/errors"
	"github.com/angelmondragon/audiophile-backend/pkg/validation"
)

// OrderID reads the {orderId} route segment.
func OrderID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "orderId")))
	if err != nil || id == uuid.Nil {
		return uuid.Nil, invalidParam("orderId", "must be a uuid")
	}
	return id, nil
}

// ProductID reads the {productId} route segment. Catalog ids start at 1.
func ProductID(r *http.Request) (int64, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "productId"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, invalidParam("productId", "must be a number")
	}
	if err := validation.Var("productId", id, "gt=0"); err != nil {
		return 0, err
	}
	return id, nil
}

// QueryInt reads an optional integer query parameter. An empty value
// yields fallback; anything else must satisfy rule.
func QueryInt(r *http.Request, name string, fallback int, rule string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, invalidParam(name, "must be a number")
	}
	if err := validation.Var(name, value, rule); err != nil {
		return 0, err
	}
	return value, nil
}

func invalidParam(name, problem string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{name: problem})
}
