package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/islandtours/tour-booking-backend/internal/config"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	var dbURLFlag string
	flag.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flag.Parse()

	// Try loading .env from current working directory (optional)
	// This avoids having to pass secrets on the command line.
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and -database-url was not provided")
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		MaxConnections:     5,
		MaxIdleConnections: 2,
		// ConnMaxLifetime left as zero (driver default)
	}

	db, err := database.NewConnection(dbCfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("Connected to database. Truncating tables...")

	truncateSQL := `
TRUNCATE TABLE
    payment_audits,
    payments,
    bookings
RESTART IDENTITY CASCADE;`

	if _, err := db.Exec(truncateSQL); err != nil {
		log.Fatalf("failed to truncate tables: %v", err)
	}

	// Seat counters are derived from bookings; reset them too
	if _, err := db.Exec(`UPDATE tours SET booked_participants = 0, updated_at = NOW()`); err != nil {
		log.Fatalf("failed to reset tour seat counters: %v", err)
	}

	fmt.Println("All booking data cleared (tables truncated, seat counters reset).")

	tables := []string{"payment_audits", "payments", "bookings"}
	fmt.Println("Post-clear row counts:")
	for _, table := range tables {
		var count int
		if err := db.Get(&count, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)); err != nil {
			log.Printf("failed to count %s: %v", table, err)
			continue
		}
		fmt.Printf("  %-15s %d\n", table, count)
	}
}
