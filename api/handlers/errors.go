package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/api"
	"github.com/deepshield/deepshield-api/databases"
	"github.com/deepshield/deepshield-api/features"
	"github.com/deepshield/deepshield-api/models"
	"github.com/deepshield/deepshield-api/moderation"
)

// defaultPageSize applies when a list request asks for a page but carries
// no limit
const defaultPageSize = 50

const maxPageSize = 200

// statusFor maps a workflow error to its status code and error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, moderation.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, api.ErrInvalidCredentials):
		return http.StatusUnauthorized, "UNAUTHENTICATED"
	case errors.Is(err, moderation.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, moderation.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, features.ErrFeatureDisabled):
		return http.StatusNotFound, "FEATURE_DISABLED"
	case errors.Is(err, moderation.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_TRANSITION"
	case errors.Is(err, moderation.ErrDuplicateSubmission):
		return http.StatusConflict, "DUPLICATE_SUBMISSION"
	case errors.Is(err, moderation.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "TIMEOUT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// writeError logs err and writes the matching error body
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}

	log := zap.S().With("url", r.URL.Path, "code", code, "error", err)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(models.ErrorResponse{Success: false, Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.S().Errorw("failed to encode response", "error", err)
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return invalidRequest("malformed request body")
	}
	return nil
}

// actor returns the caller set by the auth middleware. Routes are always
// mounted behind it, so a missing actor is a wiring bug.
func actor(r *http.Request) api.Actor {
	a, _ := api.ActorFromContext(r.Context())
	return a
}

type listParams struct {
	limit int
	page  int
}

// parseList reads limit and page from the query string. A request with
// neither gets the whole sequence.
func parseList(r *http.Request) (listParams, error) {
	p := listParams{page: 1}
	q := r.URL.Query()
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, invalidRequest("limit must be a positive integer")
		}
		p.limit = min(n, maxPageSize)
	}
	if v := q.Get("page"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return p, invalidRequest("page must be a positive integer")
		}
		p.page = n
		if p.limit == 0 {
			p.limit = defaultPageSize
		}
	}
	return p, nil
}

func (p listParams) findOptions() *options.FindOptions {
	return databases.Page(p.limit, p.page)
}

func invalidRequest(msg string) error {
	return fmt.Errorf("%w: %s", moderation.ErrValidation, msg)
}

// storeError marks a failed read as an upstream failure
func storeError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, moderation.ErrUpstreamUnavailable, err)
}
