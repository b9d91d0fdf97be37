package api

import (
	"errors"
	"net/http"

	"github.com/platinummonkey/taskboard/pkg/auth"
	"github.com/platinummonkey/taskboard/pkg/httputil"
	"github.com/platinummonkey/taskboard/pkg/observability"
	"github.com/platinummonkey/taskboard/pkg/rbac"
	"github.com/platinummonkey/taskboard/pkg/users"
)

// Error codes carried in ErrorResponse.Code
const (
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeInvalidOperation = "invalid_operation"
	CodeInvalidRole      = "invalid_role"
	CodeInvalidInput     = "invalid_input"
	CodeNotFound         = "not_found"
	CodeConflict         = "conflict"
	CodeInternal         = "internal"
)

// errorStatus maps a service error to an HTTP status and code. Unknown
// errors are internal.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, rbac.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, CodeUnauthorized
	case errors.Is(err, rbac.ErrForbidden):
		return http.StatusForbidden, CodeForbidden
	case errors.Is(err, rbac.ErrInvalidOperation), errors.Is(err, auth.ErrTokenRevoked):
		return http.StatusBadRequest, CodeInvalidOperation
	case errors.Is(err, rbac.ErrInvalidRole):
		return http.StatusBadRequest, CodeInvalidRole
	case errors.Is(err, rbac.ErrInvalidInput):
		return http.StatusBadRequest, CodeInvalidInput
	case errors.Is(err, rbac.ErrProjectNotFound),
		errors.Is(err, rbac.ErrTaskNotFound),
		errors.Is(err, rbac.ErrMemberNotFound),
		errors.Is(err, rbac.ErrUserNotFound),
		errors.Is(err, auth.ErrTokenNotFound):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, rbac.ErrMemberExists), errors.Is(err, users.ErrUserExists):
		return http.StatusConflict, CodeConflict
	default:
		return http.StatusInternalServerError, CodeInternal
	}
}

// WriteError renders err as a JSON error response. Internal errors are
// logged and their text is not sent to the client.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)

	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).WithError(err).
			WithField("path", r.URL.Path).
			Error("request failed")
		httputil.WriteInternalError(w)
		return
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="taskboard"`)
	}

	httputil.WriteErrorResponse(w, status, httputil.ErrorResponse{
		Error: err.Error(),
		Code:  code,
	})
}
