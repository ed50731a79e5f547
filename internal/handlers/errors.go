// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/repository"
	"codeberg.org/kantama/portal/internal/services/applications"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"codeberg.org/kantama/portal/internal/services/financiers"
	"codeberg.org/kantama/portal/internal/storage"
	"github.com/labstack/echo/v4"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	Details []string     `json:"details,omitempty"`
}

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// errorTable maps domain errors to responses. The first match wins.
var errorTable = []errorMapping{
	{errBadRequest, http.StatusBadRequest, "bad_request", "error_bad_request"},
	{authsvc.ErrInvalidEmail, http.StatusBadRequest, "validation_error", "error_validation"},
	{authsvc.ErrDuplicateIdentity, http.StatusBadRequest, "duplicate_identity", "error_duplicate_identity"},
	{authsvc.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials", "error_invalid_credentials"},
	{authsvc.ErrAccountInactive, http.StatusForbidden, "account_inactive", "error_account_inactive"},
	{authsvc.ErrInvalidToken, http.StatusBadRequest, "invalid_token", "error_invalid_token"},
	{authsvc.ErrTokenExpired, http.StatusBadRequest, "token_expired", "error_token_expired"},
	{authsvc.ErrInvalidSession, http.StatusUnauthorized, "invalid_session", "error_invalid_session"},
	{authsvc.ErrAlreadyVerified, http.StatusBadRequest, "already_verified", "error_already_verified"},
	{authsvc.ErrInvalidRole, http.StatusBadRequest, "invalid_role", "error_invalid_role"},
	{authsvc.ErrFinancierRequired, http.StatusBadRequest, "financier_required", "error_financier_required"},
	{applications.ErrIllegalTransition, http.StatusConflict, "illegal_transition", "error_illegal_transition"},
	{applications.ErrUnauthorized, http.StatusForbidden, "unauthorized", "error_unauthorized"},
	{applications.ErrApplicationLocked, http.StatusConflict, "application_locked", "error_application_locked"},
	{applications.ErrFinancierUnavailable, http.StatusUnprocessableEntity, "financier_unavailable", "error_financier_unavailable"},
	{applications.ErrInvalidType, http.StatusBadRequest, "invalid_application_type", "error_invalid_application_type"},
	{financiers.ErrNameRequired, http.StatusBadRequest, "validation_error", "error_validation"},
	{financiers.ErrDuplicateName, http.StatusBadRequest, "duplicate_financier", "error_duplicate_financier"},
	{repository.ErrNotFound, http.StatusNotFound, "not_found", "error_not_found"},
	{storage.ErrTooLarge, http.StatusRequestEntityTooLarge, "file_too_large", "error_file_too_large"},
}

// httpErrorCodes maps echo's own errors.
var httpErrorCodes = map[int][2]string{
	http.StatusBadRequest:            {"bad_request", "error_bad_request"},
	http.StatusUnauthorized:          {"invalid_session", "error_invalid_session"},
	http.StatusForbidden:             {"unauthorized", "error_unauthorized"},
	http.StatusNotFound:              {"not_found", "error_not_found"},
	http.StatusMethodNotAllowed:      {"method_not_allowed", "error_bad_request"},
	http.StatusRequestEntityTooLarge: {"file_too_large", "error_file_too_large"},
	http.StatusTooManyRequests:       {"too_many_requests", "error_too_many_requests"},
}

// errorResponse resolves err to a status code and a localized body.
func errorResponse(c echo.Context, err error) (int, ErrorResponse) {
	ctx := c.Request().Context()

	var verr *ValidationError
	if errors.As(err, &verr) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: i18n.T(ctx, "error_validation"),
			Fields:  verr.Fields,
		}
	}

	var perr *authsvc.PasswordValidationError
	if errors.As(err, &perr) {
		return http.StatusBadRequest, ErrorResponse{
			Error:   "weak_password",
			Message: i18n.T(ctx, "error_weak_password"),
			Details: perr.Messages(ctx),
		}
	}

	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			return m.status, ErrorResponse{Error: m.code, Message: i18n.T(ctx, m.message)}
		}
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		if codes, ok := httpErrorCodes[he.Code]; ok {
			return he.Code, ErrorResponse{Error: codes[0], Message: i18n.T(ctx, codes[1])}
		}
		if he.Code < http.StatusInternalServerError {
			return he.Code, ErrorResponse{Error: "bad_request", Message: http.StatusText(he.Code)}
		}
	}

	slog.ErrorContext(ctx, "request_failed", "method", c.Request().Method, "path", c.Path(), "error", err)
	return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: i18n.T(ctx, "error_internal")}
}

// ErrorHandler is the echo HTTP error handler for the API.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status, body := errorResponse(c, err)

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		slog.Error("failed to write error response", "error", writeErr)
	}
}
