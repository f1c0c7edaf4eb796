// seed inserts the default organization and a verified super admin for local testing.
// Idempotent: existing rows are left untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"consultancy-auth/backend/internal/account/domain"
	accountrepo "consultancy-auth/backend/internal/account/repository"
	accountservice "consultancy-auth/backend/internal/account/service"
	"consultancy-auth/backend/internal/config"
	"consultancy-auth/backend/internal/db"
	"consultancy-auth/backend/internal/logger"
	orgdomain "consultancy-auth/backend/internal/organization/domain"
	orgrepo "consultancy-auth/backend/internal/organization/repository"
	"consultancy-auth/backend/internal/security"
)

func main() {
	email := flag.String("email", "admin@example.com", "Super admin email")
	password := flag.String("password", "Admin-password-1", "Super admin password")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	if cfg.IsProduction() {
		log.Fatal("seed: refusing to run with APP_ENV=production")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db", zap.Error(err))
	}
	defer conn.Close()

	orgs := orgrepo.NewPostgresRepository(conn)
	accounts := accountrepo.NewPostgresRepository(conn)
	now := time.Now().UTC()

	org, err := orgs.GetOrganizationByName(ctx, accountservice.DefaultOrganizationName)
	if err != nil {
		log.Fatal("seed: org lookup", zap.Error(err))
	}
	if org == nil {
		org = &orgdomain.Org{ID: uuid.New().String(), Name: accountservice.DefaultOrganizationName, CreatedAt: now}
		if err := orgs.CreateOrganization(ctx, org); err != nil {
			log.Fatal("seed: create org", zap.Error(err))
		}
		log.Info("seed: created organization", zap.String("id", org.ID))
	}

	exists, err := accounts.ExistsByEmail(ctx, *email)
	if err != nil {
		log.Fatal("seed: account lookup", zap.Error(err))
	}
	if exists {
		log.Info("seed: already applied, skipping", zap.String("email", *email))
		return
	}

	a := &domain.Account{
		ID:                uuid.New().String(),
		Email:             *email,
		PasswordHash:      *password,
		Role:              domain.RoleSuperAdmin,
		FirstName:         "Super",
		LastName:          "Admin",
		VerifiedAt:        &now,
		PasswordUpdatedAt: &now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := a.PreparePassword(security.NewHasher(cfg.BcryptCost).Hash); err != nil {
		log.Fatal("seed: hash password", zap.Error(err))
	}
	a.PrevPasswords = []string{a.PasswordHash}
	if err := a.Validate(); err != nil {
		log.Fatal("seed: invalid account", zap.Error(err))
	}
	if err := accounts.Create(ctx, a); err != nil {
		log.Fatal("seed: create account", zap.Error(err))
	}
	log.Info("seed: created super admin", zap.String("email", a.Email), zap.String("id", a.ID))
}
