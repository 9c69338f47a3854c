// seed inserts development principals for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"reservo/authcore/internal/config"
	"reservo/authcore/internal/db"
	principal "reservo/authcore/internal/principal/domain"
	principalrepo "reservo/authcore/internal/principal/repository"
	"reservo/authcore/internal/security"
)

const (
	devEmail   = "dev@example.com"
	adminEmail = "admin@example.com"
	devSecret  = "password123"
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

	principals := principalrepo.NewPostgres(conn)
	ctx := context.Background()

	existing, err := principals.GetByEmail(ctx, devEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		os.Exit(0)
	}

	hasher := security.NewHasher(cfg.BcryptCost)
	secretHash, err := hasher.Hash([]byte(devSecret))
	if err != nil {
		log.Fatalf("hash secret: %v", err)
	}

	now := time.Now().UTC()

	if err := principals.Create(ctx, &principal.Principal{
		ID:         "dev-client-001",
		Email:      devEmail,
		Name:       "Dev User",
		Kind:       principal.KindClient,
		Role:       "customer",
		SecretHash: secretHash,
		Active:     true,
		Verified:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}); err != nil {
		log.Fatalf("create dev principal: %v", err)
	}

	if err := principals.Create(ctx, &principal.Principal{
		ID:          "dev-admin-001",
		Email:       adminEmail,
		Name:        "Dev Admin",
		Kind:        principal.KindAdmin,
		Role:        "operator",
		Permissions: []string{"principals.revoke"},
		SecretHash:  secretHash,
		Active:      true,
		Verified:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		log.Fatalf("create admin principal: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s\n", devEmail, devSecret)
	fmt.Printf("Admin login: %s / %s\n", adminEmail, devSecret)
}
