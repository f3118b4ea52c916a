// Package main runs the impersonation service without a database using
// in-memory repositories. Useful for:
// - Quick development and testing
// - Demo environments for the admin console
// - Exercising the API without PostgreSQL
//
// Note: All sessions and audit events are lost when the server stops. For
// production, use cmd/impersonation with PostgreSQL.
package main

import (
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/tendant/chi-demo/app"

	"github.com/carelog/impersonation/pkg/audit"
	"github.com/carelog/impersonation/pkg/directory"
	"github.com/carelog/impersonation/pkg/impersonation"
)

const (
	port = 4000
	// Fixed demo credential for the seeded administrator
	adminCredential = "dev-admin-credential"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting in-memory impersonation service (no database required)")

	directoryRepo := directory.NewInMemoryRepository()
	sessionRepo := impersonation.NewInMemorySessionRepository()
	auditSink := audit.NewInMemorySink()
	authorizer := directory.NewStaticAuthorizer(directoryRepo)

	seedDirectory(directoryRepo, authorizer)

	service := impersonation.NewService(sessionRepo, directoryRepo, authorizer, auditSink)

	sweeper := impersonation.NewSweeper(service, impersonation.CleanupInterval)
	if err := sweeper.Start(); err != nil {
		slog.Error("Failed to start expiration sweeper", "err", err)
		os.Exit(1)
	}
	defer sweeper.Stop()

	server := app.NewApp(app.WithPort(port))
	app.RegisterHealthzRoutes(server.R)

	handle := impersonation.NewHandle(service)
	handle.RegisterRoutes(server.R)

	slog.Info("In-memory impersonation service ready", "port", port)
	slog.Info("Admin credential for testing", "credential", adminCredential)
	server.Run()
}

func seedDirectory(repo *directory.InMemoryRepository, authorizer *directory.StaticAuthorizer) {
	org := repo.AddOrganization(directory.Organization{
		Name: "Mercy General Hospital",
	})

	admin := repo.AddUser(directory.User{
		Email: "admin@example.com",
		Name:  "System Administrator",
		Role:  directory.RoleAdmin,
	})
	authorizer.Register(adminCredential, admin.ID)

	demoUsers := []directory.User{
		{Email: "jody.ward@example.com", Name: "Jody Ward", Role: directory.RoleCoordinator, OrganizationID: orgID(org.ID)},
		{Email: "sam.okafor@example.com", Name: "Sam Okafor", Role: directory.RoleReporter, OrganizationID: orgID(org.ID)},
		{Email: "lee.reyes@example.com", Name: "Lee Reyes", Role: directory.RoleReadonly},
	}
	for _, u := range demoUsers {
		repo.AddUser(u)
	}

	slog.Info("Seeded demo directory", "users", len(demoUsers)+1, "organization", org.Name)
}

func orgID(id uuid.UUID) *uuid.UUID {
	return &id
}
