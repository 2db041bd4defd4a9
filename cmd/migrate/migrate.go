package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"checkin-keeper/internal/bootstrap"
	"checkin-keeper/internal/config"
	"checkin-keeper/internal/database"
	"checkin-keeper/internal/repository"
	"checkin-keeper/services"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./cmd/migrate <command>")
		fmt.Println("Commands:")
		fmt.Println("  encrypt-credentials - Encrypt any legacy plaintext account cookies")
		fmt.Println("  seed-providers      - Upsert the builtin provider definitions")
		fmt.Println("  ensure-indexes      - Create the MongoDB indexes")
		os.Exit(1)
	}

	command := os.Args[1]

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to MongoDB
	client, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	db := client.Database(cfg.DBName)
	ctx := context.Background()

	switch command {
	case "encrypt-credentials":
		encryption, err := services.NewEncryptionService(cfg.EncryptionPassword, cfg.DataDir)
		if err != nil {
			log.Fatalf("Failed to initialize encryption: %v", err)
		}
		accounts := repository.NewMongoAccountRepository(db)
		migrated, failed, err := encryption.MigrateUnencryptedAccounts(ctx, accounts)
		if err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		fmt.Printf("Encrypted credentials for %d accounts (%d failed)\n", migrated, failed)

	case "seed-providers":
		providers := repository.NewMongoProviderRepository(db)
		seeded, err := bootstrap.SeedBuiltinProviders(ctx, providers)
		if err != nil {
			log.Fatalf("Seeding failed: %v", err)
		}
		fmt.Printf("Seeded %d builtin providers\n", seeded)

	case "ensure-indexes":
		if err := database.EnsureIndexes(ctx, db); err != nil {
			log.Fatalf("Index creation failed: %v", err)
		}
		fmt.Println("Indexes created successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		os.Exit(1)
	}
}
