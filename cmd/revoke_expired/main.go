package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/mansoorceksport/deviceauth/internal/repository"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Marks every unrevoked refresh session past its expiry as revoked with
// reason "expired". Refresh does the same lazily; this catches tokens that
// are never presented again so device listings stay accurate.
func main() {
	mongoURI := flag.String("mongo", "mongodb://localhost:27017", "MongoDB connection URI")
	dbName := flag.String("db", "deviceauth", "Database name")
	dryRun := flag.Bool("dry-run", false, "Show what would be done without making changes")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(*mongoURI))
	if err != nil {
		log.Fatalf("Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())

	sessions := repository.NewMongoSessionRepository(client.Database(*dbName))
	now := time.Now().UTC()

	fmt.Printf("🔍 Finding sessions expired before %s\n", now.Format(time.RFC3339))

	pending, err := sessions.CountExpired(ctx, now)
	if err != nil {
		log.Fatalf("Failed to count expired sessions: %v", err)
	}
	fmt.Printf("📋 Found %d expired sessions\n", pending)

	if pending == 0 {
		return
	}

	if *dryRun {
		fmt.Println("\n⚠️  This was a dry run. No changes were made.")
		fmt.Println("   Run without -dry-run to apply changes.")
		return
	}

	revoked, err := sessions.RevokeExpired(ctx, now)
	if err != nil {
		log.Fatalf("Failed to revoke expired sessions: %v", err)
	}
	fmt.Printf("✅ Revoked %d sessions\n", revoked)
}
