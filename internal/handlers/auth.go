// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"log/slog"
	"net/http"

	"codeberg.org/kantama/portal/internal/i18n"
	"codeberg.org/kantama/portal/internal/models"
	authsvc "codeberg.org/kantama/portal/internal/services/auth"
	"github.com/labstack/echo/v4"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email" validate:"required,email,max=254"`
	Password    string `json:"password" validate:"required,max=72"`
	FirstName   string `json:"first_name" validate:"max=100"`
	LastName    string `json:"last_name" validate:"max=100"`
	CompanyName string `json:"company_name" validate:"max=200"`
	BusinessID  string `json:"business_id" validate:"max=20"`
	Phone       string `json:"phone" validate:"max=40"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ForgotPasswordRequest is the body of POST /auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest is the body of POST /auth/reset-password.
type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

// checkPassword applies the password policy to a password chosen through the API.
func (h *Handlers) checkPassword(password string, attributes ...string) error {
	return h.auth.PasswordPolicy().Check(password, attributes...)
}

// Register creates a customer account and signs it in.
func (h *Handlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.checkPassword(req.Password, req.Email, req.FirstName, req.LastName); err != nil {
		return err
	}

	user, session, err := h.auth.Register(c.Request().Context(), authsvc.RegisterParams{
		Email:       req.Email,
		Password:    req.Password,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		CompanyName: req.CompanyName,
		BusinessID:  req.BusinessID,
		Phone:       req.Phone,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: session, TokenType: "bearer", User: user})
}

// Login exchanges credentials for a session token.
func (h *Handlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := bind(c, &req); err != nil {
		return err
	}

	user, session, err := h.auth.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, TokenResponse{AccessToken: session, TokenType: "bearer", User: user})
}

// VerifyEmail consumes a verification token from the path.
func (h *Handlers) VerifyEmail(c echo.Context) error {
	ctx := c.Request().Context()
	if err := h.auth.VerifyEmail(ctx, c.Param("token")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(ctx, "msg_email_verified")})
}

// ResendVerification mails a fresh verification link to the current user.
func (h *Handlers) ResendVerification(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.auth.ResendVerification(ctx, user.ID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(ctx, "msg_verification_sent")})
}

// Me returns the current user.
func (h *Handlers) Me(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, user)
}

// ForgotPassword answers identically whether or not the email is known,
// including for bodies that do not parse. Only infrastructure failures
// surface as errors.
func (h *Handlers) ForgotPassword(c echo.Context) error {
	ctx := c.Request().Context()
	var req ForgotPasswordRequest
	if err := c.Bind(&req); err != nil {
		slog.Info("password_reset_ignored", "reason", "unparsable_body")
	} else if err := h.auth.RequestPasswordReset(ctx, req.Email); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(ctx, "msg_password_reset_requested")})
}

// ResetPassword sets a new password with a reset token.
func (h *Handlers) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	if err := h.checkPassword(req.Password); err != nil {
		return err
	}
	ctx := c.Request().Context()
	if err := h.auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: i18n.T(ctx, "msg_password_reset")})
}
