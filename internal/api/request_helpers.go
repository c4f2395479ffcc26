package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/tasks-api/internal/api/shared"
	"github.com/phrazzld/tasks-api/internal/domain"
	"github.com/phrazzld/tasks-api/internal/platform/logger"
	"github.com/phrazzld/tasks-api/internal/store"
)

// maxResourceIDLength bounds the opaque task id accepted by write routes.
const maxResourceIDLength = 128

// requireActor extracts the authenticated caller placed in the context by the
// authentication middleware, writing a 401 when it is missing.
func requireActor(w http.ResponseWriter, r *http.Request) (domain.Actor, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		logger.FromContext(r.Context()).Warn("actor not found in request context")
		HandleAPIError(w, r, domain.ErrUnauthorized, "")
		return domain.Actor{}, false
	}
	return actor, true
}

// getPathResourceID returns the raw task id of a write route. Ids are opaque
// to this service; the consumer resolves them.
func getPathResourceID(r *http.Request, paramName string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, paramName))
	if id == "" {
		return "", domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}
	if len(id) > maxResourceIDLength {
		return "", domain.NewValidationError(paramName, "is too long", domain.ErrInvalidID)
	}
	return id, nil
}

// getPathUUID extracts a UUID from the URL path parameters.
func getPathUUID(r *http.Request, paramName string) (uuid.UUID, error) {
	pathParam := chi.URLParam(r, paramName)
	if pathParam == "" {
		return uuid.Nil, domain.NewValidationError(paramName, "is required", domain.ErrValidation)
	}

	id, err := uuid.Parse(pathParam)
	if err != nil {
		return uuid.Nil, domain.NewValidationError(paramName, "has invalid format", domain.ErrInvalidID)
	}

	return id, nil
}

// getPagination reads limit and offset query parameters.
func getPagination(r *http.Request) (limit, offset int, err error) {
	query := r.URL.Query()

	limit = store.DefaultListLimit
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return 0, 0, domain.NewValidationError("limit", "must be a positive integer", domain.ErrValidation)
		}
	}
	if raw := query.Get("offset"); raw != "" {
		offset, err = strconv.Atoi(raw)
		if err != nil || offset < 0 {
			return 0, 0, domain.NewValidationError("offset", "must be a non-negative integer", domain.ErrValidation)
		}
	}

	return store.ClampLimit(limit), offset, nil
}

// handleActorAndPathUUID extracts both the caller and a UUID path parameter,
// writing an error response if either extraction fails.
func handleActorAndPathUUID(
	w http.ResponseWriter,
	r *http.Request,
	paramName string,
) (domain.Actor, uuid.UUID, bool) {
	actor, ok := requireActor(w, r)
	if !ok {
		return domain.Actor{}, uuid.Nil, false
	}

	pathID, err := getPathUUID(r, paramName)
	if err != nil {
		logger.FromContext(r.Context()).Warn("invalid "+paramName,
			slog.String("param_name", paramName),
			slog.String("value", chi.URLParam(r, paramName)))
		HandleAPIError(w, r, err, "")
		return domain.Actor{}, uuid.Nil, false
	}

	return actor, pathID, true
}
