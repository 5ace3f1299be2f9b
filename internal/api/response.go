package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/arsenal/internal/model"
	"github.com/erazemk/arsenal/internal/photo"
	"github.com/erazemk/arsenal/internal/store"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, errorBody{Message: message})
}

func jsonMessage(w http.ResponseWriter, message string) {
	jsonResponse(w, http.StatusOK, map[string]string{"message": message})
}

// respondError maps store and domain errors to HTTP statuses. Anything
// unrecognized is logged and reported as a generic 500.
func respondError(w http.ResponseWriter, r *http.Request, err error, doing string) {
	var status int
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrCommanderTaken):
		status = http.StatusForbidden
	case errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientQuantity):
		status = http.StatusConflict
	case errors.Is(err, store.ErrInvalidTransition), errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrLastAdmin), errors.Is(err, photo.ErrUnsupported):
		status = http.StatusBadRequest
	case errors.Is(err, model.ErrNotOfficer), errors.Is(err, model.ErrBaseNotAssigned),
		errors.Is(err, model.ErrAlreadyAssigned), errors.Is(err, model.ErrAdminHasNoBase),
		errors.Is(err, model.ErrUnknownRole), errors.Is(err, model.ErrPasswordTooShort):
		status = http.StatusBadRequest
	default:
		slog.Error(doing, "error", err, "path", r.URL.Path)
		jsonError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	jsonError(w, status, err.Error())
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeValid decodes the body into target and validates it. On failure it
// writes a 400 response and returns false.
func decodeValid(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeJSON(r, target); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := validate.Struct(target); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			jsonError(w, http.StatusBadRequest, err.Error())
			return false
		}
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = validationMessage(fe)
		}
		jsonResponse(w, http.StatusBadRequest, errorBody{Message: "validation failed", Errors: fields})
		return false
	}
	return true
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "nefield":
		return "must differ from " + fe.Param()
	}
	return "is invalid"
}

// pathID parses a numeric path parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

// queryID parses an optional numeric query parameter.
func queryID(r *http.Request, name string) (*int64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &id, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (*int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return &n, nil
}

// queryDate parses an optional date query parameter given either as
// YYYY-MM-DD or RFC 3339.
func queryDate(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, errors.New("invalid " + name)
	}
	return t, nil
}

func parseDate(v string) (*time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// emptyIfNil keeps list responses as JSON arrays.
func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// date is a request timestamp accepting YYYY-MM-DD as well as RFC 3339.
type date struct{ time.Time }

func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = *t
	return nil
}

// timeOf returns nil for a missing date.
func timeOf(d *date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}
