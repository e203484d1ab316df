package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"bazar/backend/internal/domain"
	"bazar/backend/internal/store"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success    bool        `json:"success"`
	Message    string      `json:"message,omitempty"`
	Data       any         `json:"data,omitempty"`
	Errors     []string    `json:"errors,omitempty"`
	Pagination *pagination `json:"pagination,omitempty"`
}

type pagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalDocs   int  `json:"totalDocs"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

func newPagination(filter store.ListFilter, total int) *pagination {
	filter = filter.Normalize()
	pages := (total + filter.Limit - 1) / filter.Limit
	return &pagination{
		CurrentPage: filter.Page,
		TotalPages:  pages,
		TotalDocs:   total,
		HasNextPage: filter.Page < pages,
		HasPrevPage: filter.Page > 1,
	}
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Success: true, Message: message, Data: data})
}

func writePage[T any](w http.ResponseWriter, filter store.ListFilter, page store.Page[T]) {
	items := page.Items
	if items == nil {
		items = []T{}
	}
	writeJSON(w, http.StatusOK, envelope{
		Success:    true,
		Data:       items,
		Pagination: newPagination(filter, page.Total),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps domain and auth errors onto HTTP status codes. Anything it
// does not recognise is a 500.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, store.ErrDuplicate),
		errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrInvalidTransition):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInactiveAccount),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrTokenExpired),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrAccountLocked):
		return http.StatusLocked
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := envelope{Success: false, Message: err.Error()}

	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Message = "validation failed"
		body.Errors = verr.Fields
	}
	if status >= http.StatusInternalServerError {
		hlog.FromRequest(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		body.Message = "internal server error"
		if !a.production {
			body.Errors = []string{err.Error()}
		}
	}
	if status == http.StatusRequestEntityTooLarge {
		body.Message = "request body too large"
	}
	writeJSON(w, status, body)
}

// decodeJSON reads exactly one JSON value, rejecting unknown fields.
func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: request body is required", store.ErrInvalidInput)
		}
		return fmt.Errorf("%w: malformed JSON: %v", store.ErrInvalidInput, err)
	}
	if decoder.More() {
		return fmt.Errorf("%w: request body must contain a single JSON object", store.ErrInvalidInput)
	}
	return nil
}

func listFilter(r *http.Request) store.ListFilter {
	q := r.URL.Query()
	return store.ListFilter{
		Page:          parsePositive(q.Get("page"), 1, store.MaxPage),
		Limit:         parsePositive(q.Get("limit"), store.DefaultPageSize, store.MaxPageSize),
		Search:        strings.TrimSpace(q.Get("search")),
		Status:        strings.TrimSpace(q.Get("status")),
		Sort:          strings.TrimSpace(q.Get("sort")),
		Category:      strings.TrimSpace(q.Get("category")),
		LowStock:      parseBool(q.Get("lowStock")),
		ClientID:      strings.TrimSpace(q.Get("clientId")),
		PaymentStatus: strings.TrimSpace(q.Get("paymentStatus")),
		Overdue:       parseBool(q.Get("overdue")),
	}
}

func parsePositive(raw string, fallback int, max int) int {
	value := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			value = parsed
		}
	}
	if max > 0 && value > max {
		return max
	}
	return value
}

func parseBool(raw string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && parsed
}
