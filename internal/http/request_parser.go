package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"spendtracker/internal/core"
)

const maxBodyBytes = 1 << 20

// ParseFilter reads category_id, from_date and to_date. A category_id of
// "all" or "" means no category filter.
func ParseFilter(query url.Values) (core.Filter, error) {
	var f core.Filter

	if v := strings.TrimSpace(query.Get("category_id")); v != "" && !strings.EqualFold(v, "all") {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			return f, core.Validationf("invalid category_id %q", v)
		}
		f.CategoryID = id
	}

	var err error
	if f.From, err = parseQueryDate(query, "from_date"); err != nil {
		return f, err
	}
	if f.To, err = parseQueryDate(query, "to_date"); err != nil {
		return f, err
	}
	return f, f.Validate()
}

func parseQueryDate(query url.Values, key string) (core.Date, error) {
	v := strings.TrimSpace(query.Get(key))
	if v == "" {
		return core.Date{}, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, core.Validationf("invalid %s %q: expected YYYY-MM-DD", key, v)
	}
	return d, nil
}

// ParsePage reads page and limit; missing values take the defaults and
// Normalize clamps the limit.
func ParsePage(query url.Values) (core.PageRequest, error) {
	var p core.PageRequest
	for key, dst := range map[string]*int{"page": &p.Page, "limit": &p.Limit} {
		v := strings.TrimSpace(query.Get(key))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, core.Validationf("invalid %s %q: must be a positive integer", key, v)
		}
		*dst = n
	}
	return p.Normalize(), nil
}

// PathID parses the {id} route segment.
func PathID(r *http.Request) (int64, error) {
	v := r.PathValue("id")
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		return 0, core.Validationf("invalid id %q", v)
	}
	return id, nil
}

// DecodeJSON reads one JSON object from the body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.Validationf("request body is required")
		case errors.As(err, &maxErr):
			return core.Validationf("request body too large")
		case errors.Is(err, core.ErrValidation):
			return err
		case errors.Is(err, core.ErrInvalidAmount), errors.Is(err, core.ErrAmountScale):
			return core.Validationf("%s", err)
		default:
			return core.Validationf("invalid JSON body: %s", jsonReason(err))
		}
	}
	return nil
}

func jsonReason(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %s has the wrong type", typeErr.Field)
	}
	return "malformed document"
}
