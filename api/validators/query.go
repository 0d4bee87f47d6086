package validators

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/portal-crm-backend/pkg/errors"
)

// ParseQuery parses an optional query parameter with parse. It returns nil
// when the parameter is absent or blank; a parse failure becomes a
// validation error carrying msg and the field name.
func ParseQuery[T any](r *http.Request, key, msg string, parse func(string) (T, error)) (*T, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return nil, nil
	}
	value, err := parse(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, msg).WithDetails(map[string]any{"field": key})
	}
	return &value, nil
}

// ParseQueryInt returns defaultVal when key is absent and rejects values
// outside [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	value, err := ParseQuery(r, key, "query parameter must be numeric", strconv.Atoi)
	if err != nil || value == nil {
		return defaultVal, err
	}
	if *value < min || *value > max {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "query parameter out of range").
			WithDetails(map[string]any{"field": key, "min": min, "max": max})
	}
	return *value, nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	return ParseQuery(r, key, "query parameter must be a uuid", uuid.Parse)
}

func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	value, err := ParseQuery(r, key, "query parameter must be a boolean", strconv.ParseBool)
	if err != nil || value == nil {
		return defaultVal, err
	}
	return *value, nil
}
