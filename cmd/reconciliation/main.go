package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/islandtours/tour-booking-backend/internal/config"
	"github.com/islandtours/tour-booking-backend/internal/database"
	"github.com/sirupsen/logrus"
)

// Lists bookings flagged for manual reconciliation: late settlements on
// expired bookings and payments stuck pending past the timeout.
func main() {
	var limit, offset int
	flag.IntVar(&limit, "limit", 50, "maximum entries to list")
	flag.IntVar(&offset, "offset", 0, "entries to skip")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	auditRepo := database.NewPaymentAuditRepository(db, logger)
	entries, err := auditRepo.ListRequiringReconciliation(limit, offset)
	if err != nil {
		log.Fatalf("Failed to list reconciliation queue: %v", err)
	}

	if len(entries) == 0 {
		fmt.Println("Reconciliation queue is empty.")
		return
	}

	fmt.Printf("%d entries requiring manual reconciliation:\n\n", len(entries))
	for _, entry := range entries {
		bookingID := "-"
		if entry.BookingID != nil {
			bookingID = entry.BookingID.String()
		}
		orderRef := "-"
		if entry.OrderReference != nil {
			orderRef = *entry.OrderReference
		}
		reason := ""
		if entry.ErrorMessage != nil {
			reason = *entry.ErrorMessage
		}
		fmt.Printf("booking=%s order=%s source=%s at=%s\n  %s\n",
			bookingID, orderRef, entry.EventSource,
			entry.CreatedAt.Format("2006-01-02 15:04:05"), reason)
	}
}
