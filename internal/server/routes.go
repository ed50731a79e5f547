// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"codeberg.org/kantama/portal/internal/handlers"
	"codeberg.org/kantama/portal/internal/metrics"
	"codeberg.org/kantama/portal/internal/middleware"
	"codeberg.org/kantama/portal/internal/models"
	"github.com/labstack/echo/v4"
)

func setupRoutes(e *echo.Echo, app *App) {
	h := handlers.New(app.Repo, handlers.Services{
		Auth:         app.Auth,
		Applications: app.Applications,
		Financiers:   app.Financiers,
		Attachments:  app.Attachments,
		Hub:          app.Hub,
	})

	authn := middleware.Authenticate(app.Auth)
	limit := middleware.RateLimit(app.Config.RateLimit, app.rateLimitStore(), app.Now)
	admin := middleware.RequireRole(models.RoleAdmin)
	staff := middleware.RequireRole(models.RoleAdmin, models.RoleFinancierStaff)
	applicant := middleware.RequireRole(models.RoleAdmin, models.RoleCustomer)

	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	api := e.Group("/api")

	a := api.Group("/auth")
	a.POST("/register", h.Register, limit)
	a.POST("/login", h.Login, limit)
	a.POST("/verify/:token", h.VerifyEmail, limit)
	a.POST("/forgot-password", h.ForgotPassword, limit)
	a.POST("/reset-password", h.ResetPassword, limit)
	a.POST("/resend-verification", h.ResendVerification, authn, limit)
	a.GET("/me", h.Me, authn)

	api.GET("/events", h.Events, authn)

	apps := api.Group("/applications", authn)
	apps.GET("", h.ListApplications)
	apps.POST("", h.CreateApplication, applicant)
	apps.GET("/:id", h.GetApplication)
	apps.PUT("/:id", h.UpdateApplication)
	apps.POST("/:id/transitions", h.TransitionApplication)
	apps.PUT("/:id/financier", h.AssignFinancier, admin)
	apps.GET("/:id/history", h.ApplicationHistory)
	apps.GET("/:id/attachments", h.ListAttachments)
	apps.POST("/:id/attachments", h.UploadAttachment)

	fin := api.Group("/financiers", authn)
	fin.GET("", h.ListFinanciers, staff)
	fin.POST("", h.CreateFinancier, admin)
	fin.GET("/:id", h.GetFinancier, staff)
	fin.POST("/:id/deactivate", h.DeactivateFinancier, admin)
	fin.POST("/:id/activate", h.ActivateFinancier, admin)

	users := api.Group("/admin/users", authn, admin)
	users.GET("", h.ListUsers)
	users.POST("", h.CreateUser)
	users.POST("/:id/deactivate", h.DeactivateUser)
	users.POST("/:id/activate", h.ActivateUser)
}
