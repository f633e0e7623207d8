package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/utils"
	"github.com/svcops/spareparts_backend/workflow"
)

// Adjusts one (spare, location) ledger key to physically counted quantities.
// Every change is posted as an audited adjustment movement.
func main() {
	spareID := flag.Int("spare-id", 0, "Required: spare part id")
	locationType := flag.String("location-type", "", "Required: location type (PL/SC/TN/BR/WH)")
	locationID := flag.Int("location-id", 0, "Required: location id")
	good := flag.String("good", "", "Required: counted good quantity")
	defective := flag.String("defective", "0", "Counted defective quantity")
	inTransit := flag.String("in-transit", "0", "Counted in-transit quantity")
	userID := flag.Int("user-id", 0, "Required: acting user id for the audit trail")
	remarks := flag.String("remarks", "", "Optional: count remarks")
	requestKey := flag.String("request-key", "", "Optional: idempotency key (defaults to a fresh uuid)")
	flag.Parse()

	if *spareID <= 0 || strings.TrimSpace(*locationType) == "" || *locationID <= 0 || *userID <= 0 || strings.TrimSpace(*good) == "" {
		fmt.Fprintln(os.Stderr, "--spare-id, --location-type, --location-id, --good and --user-id are required")
		os.Exit(1)
	}

	countedGood, err := utils.ParseDecimal(*good)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid good quantity: %v\n", err)
		os.Exit(1)
	}
	countedDefective, err := utils.ParseDecimal(*defective)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid defective quantity: %v\n", err)
		os.Exit(1)
	}
	countedInTransit, err := utils.ParseDecimal(*inTransit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid in-transit quantity: %v\n", err)
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	key := strings.TrimSpace(*requestKey)
	if key == "" {
		key = uuid.NewString()
	}

	ctx := utils.SetUserIdInContext(context.Background(), *userID)
	ctx = utils.SetCorrelationIdInContext(ctx, key)

	result, err := workflow.ReconcileInventory(ctx, &workflow.ReconcileInput{
		SpareId:          *spareID,
		LocationType:     *locationType,
		LocationId:       *locationID,
		CountedGood:      countedGood,
		CountedDefective: countedDefective,
		CountedInTransit: countedInTransit,
		Remarks:          *remarks,
		RequestKey:       key,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "reconcile failed: %v\n", err)
		os.Exit(1)
	}

	if result.Skipped {
		fmt.Printf("request key %s already processed, nothing to do\n", key)
		return
	}
	if len(result.Deltas) == 0 {
		fmt.Println("ledger already matches the count, no adjustment posted")
		return
	}
	for _, delta := range result.Deltas {
		fmt.Printf("spare=%d location=%s bucket=%s change=%s\n",
			delta.SpareId, delta.Location.String(), delta.Bucket, delta.Change.String())
	}
	fmt.Printf("posted adjustment movement(s): %v (request key %s)\n", result.MovementIds, key)
}
