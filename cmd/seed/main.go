// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev requester (dev@example.com) already exists.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"migrant-health-access/backend/internal/config"
	"migrant-health-access/backend/internal/db"
	recorddomain "migrant-health-access/backend/internal/healthrecord/domain"
	recordrepo "migrant-health-access/backend/internal/healthrecord/repository"
	migrantdomain "migrant-health-access/backend/internal/migrant/domain"
	migrantrepo "migrant-health-access/backend/internal/migrant/repository"
	"migrant-health-access/backend/internal/policy/domain"
	"migrant-health-access/backend/internal/policy/engine"
	policyrepo "migrant-health-access/backend/internal/policy/repository"
	requesterdomain "migrant-health-access/backend/internal/requester/domain"
	requesterrepo "migrant-health-access/backend/internal/requester/repository"
	"migrant-health-access/backend/internal/security"
)

const (
	devEmail      = "dev@example.com"
	devAdminEmail = "admin@example.com"
	devPassword   = "password123"

	devRequesterID = "dev-requester-001"
	devAdminID     = "dev-requester-002"
	devMigrantID   = "dev-migrant-001"
	devMigrantUID  = "MIG-2026-0001"
	devPolicyID    = "dev-policy-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; create a .env from .env.example or set DATABASE_URL")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	requesters := requesterrepo.NewPostgresRepository(conn)
	migrants := migrantrepo.NewPostgresRepository(conn)
	records := recordrepo.NewPostgresRepository(conn)
	policies := policyrepo.NewPostgresRepository(conn)

	existing, err := requesters.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	passwordHash, err := hasher.Hash([]byte(devPassword))
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	now := time.Now().UTC()

	for _, r := range []*requesterdomain.Requester{
		{
			ID: devRequesterID, Email: devEmail, Name: "Dev Clinician",
			Role: requesterdomain.RoleClinician, PasswordHash: passwordHash,
			CreatedAt: now, UpdatedAt: now,
		},
		{
			ID: devAdminID, Email: devAdminEmail, Name: "Dev Admin",
			Role: requesterdomain.RoleAdmin, PasswordHash: passwordHash,
			CreatedAt: now, UpdatedAt: now,
		},
	} {
		if err := requesters.Create(ctx, r); err != nil {
			log.Fatalf("create requester %s: %v", r.Email, err)
		}
	}

	if err := migrants.Create(ctx, &migrantdomain.Migrant{
		ID:          devMigrantID,
		UniqueID:    devMigrantUID,
		Name:        "Amina Perera",
		Phone:       "+94771234567",
		DateOfBirth: "1994-03-12",
		CreatedAt:   now,
	}); err != nil {
		log.Fatalf("create migrant: %v", err)
	}

	for i, rec := range []*recorddomain.Record{
		{
			ID: "dev-record-001", MigrantID: devMigrantUID, RecordType: "vaccination",
			Title: "COVID-19 booster", Notes: "No adverse reaction.", CreatedBy: devRequesterID,
		},
		{
			ID: "dev-record-002", MigrantID: devMigrantUID, RecordType: "visit",
			Title: "General checkup", Notes: "Blood pressure normal.", CreatedBy: devRequesterID,
		},
	} {
		rec.CreatedAt = now.Add(time.Duration(i) * time.Minute)
		if err := records.Create(ctx, rec); err != nil {
			log.Fatalf("create record %s: %v", rec.ID, err)
		}
	}

	if err := policies.Create(ctx, &domain.Policy{
		ID:        devPolicyID,
		Name:      "default-consent",
		Rego:      engine.DefaultRegoPolicy,
		Active:    true,
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create consent policy: %v", err)
	}

	log.Println("Seed applied: dev@example.com / admin@example.com (password123), migrant", devMigrantUID)
}
