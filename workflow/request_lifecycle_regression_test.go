package workflow_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
	"github.com/svcops/spareparts_backend/workflow"
)

// End-to-end regression coverage for the request lifecycle against real MySQL
// and Redis. One container pair serves all subtests; each subtest works on
// its own requests and spare parts so they stay independent.
func TestRequestLifecycle(t *testing.T) {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "spareparts_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	db := config.GetDB()
	if db == nil {
		t.Fatalf("db is nil after ConnectDatabaseWithRetry")
	}

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	ctx = utils.SetUserNameInContext(ctx, "Tester")
	ctx = utils.SetUsernameInContext(ctx, "tester@local")
	ctx = utils.SetCorrelationIdInContext(ctx, "lifecycle-test")

	const plantId = 1
	const serviceCenterId = 10
	plant := models.LocationRef{Type: models.LocationTypePlant, Id: plantId}
	serviceCenter := models.LocationRef{Type: models.LocationTypeServiceCenter, Id: serviceCenterId}

	err := db.Create(&models.PlantAssignment{
		ServiceCenterId: serviceCenterId,
		PlantId:         plantId,
		EffectiveFrom:   time.Now().UTC().AddDate(0, -1, 0),
	}).Error
	if err != nil {
		t.Fatalf("seed plant assignment: %v", err)
	}

	seedSpare := func(t *testing.T, code string, openingGood int64) *models.SparePart {
		t.Helper()
		spare := models.SparePart{PartCode: code, Description: code, Brand: "Test"}
		if err := db.Create(&spare).Error; err != nil {
			t.Fatalf("seed spare %s: %v", code, err)
		}
		if openingGood > 0 {
			_, err := workflow.ReconcileInventory(ctx, &workflow.ReconcileInput{
				SpareId:      spare.ID,
				LocationType: string(plant.Type),
				LocationId:   plant.Id,
				CountedGood:  decimal.NewFromInt(openingGood),
				Remarks:      "opening stock",
			})
			if err != nil {
				t.Fatalf("opening stock for %s: %v", code, err)
			}
		}
		return &spare
	}

	createRequest := func(t *testing.T, kind string, spareId int, qty int64) *models.SpareRequest {
		t.Helper()
		request, err := models.CreateSpareRequest(ctx, &models.NewSpareRequest{
			Kind:                    kind,
			DestinationLocationType: string(models.LocationTypeServiceCenter),
			DestinationLocationId:   serviceCenterId,
			Items: []models.NewSpareRequestItem{
				{SpareId: spareId, RequestedQty: decimal.NewFromInt(qty)},
			},
		})
		if err != nil {
			t.Fatalf("CreateSpareRequest: %v", err)
		}
		return request
	}

	approveAllLevels := func(t *testing.T, request *models.SpareRequest) {
		t.Helper()
		levels, err := config.RequiredApprovalLevels(string(request.Kind))
		if err != nil {
			t.Fatalf("RequiredApprovalLevels: %v", err)
		}
		for _, level := range levels {
			_, err := workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
				RequestId: request.ID,
				Level:     level.Level,
				Decision:  "Approved",
			})
			if err != nil {
				t.Fatalf("approve level %d: %v", level.Level, err)
			}
		}
	}

	bucketQty := func(t *testing.T, spareId int, loc models.LocationRef, bucket models.InventoryBucket) decimal.Decimal {
		t.Helper()
		qty, err := models.GetBucketQty(ctx, spareId, loc, bucket)
		if err != nil {
			t.Fatalf("GetBucketQty: %v", err)
		}
		return qty
	}

	expectQty := func(t *testing.T, got decimal.Decimal, want int64, label string) {
		t.Helper()
		if got.Cmp(decimal.NewFromInt(want)) != 0 {
			t.Fatalf("%s: expected %d, got %s", label, want, got.String())
		}
	}

	t.Run("HappyPathWithShortfallAndSplit", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-001", 100)
		request := createRequest(t, "MSL", spare.ID, 10)
		if request.CurrentStatus != models.RequestStatusPending {
			t.Fatalf("new request must be Pending, got %s", request.CurrentStatus)
		}
		if !strings.HasPrefix(request.RequestNumber, "SR-") {
			t.Fatalf("request number must come from the SR series, got %q", request.RequestNumber)
		}

		approveAllLevels(t, request)

		result, err := workflow.FulfillRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("FulfillRequest: %v", err)
		}
		if !strings.HasPrefix(result.ReferenceNumber, "DN-") {
			t.Fatalf("delivery note must come from the DN series, got %q", result.ReferenceNumber)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 90, "plant good after fulfill")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 10, "SC in-transit after fulfill")

		updated, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if updated.CurrentStatus != models.RequestStatusAllocated {
			t.Fatalf("expected Allocated, got %s", updated.CurrentStatus)
		}

		// Receive 8 of 10: the missing 2 go back to the plant.
		receipt, err := workflow.RecordReceipt(ctx, &workflow.RecordReceiptInput{
			RequestId: request.ID,
			Items: []workflow.ReceiptItemInput{
				{ItemId: updated.Items[0].ID, ReceivedQty: decimal.NewFromInt(8)},
			},
		})
		if err != nil {
			t.Fatalf("RecordReceipt: %v", err)
		}
		expectQty(t, receipt.ShortfallQty, 2, "shortfall")
		if receipt.ReturnMovementId == nil {
			t.Fatal("shortfall must post a return movement")
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 92, "plant good after shortfall return")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 8, "SC in-transit after receipt")

		// Verify 8: 6 good, 2 defective.
		verification, err := workflow.RecordVerification(ctx, &workflow.RecordVerificationInput{
			RequestId: request.ID,
			Items: []workflow.VerificationItemInput{
				{ItemId: updated.Items[0].ID, GoodQty: decimal.NewFromInt(6), DefectiveQty: decimal.NewFromInt(2)},
			},
		})
		if err != nil {
			t.Fatalf("RecordVerification: %v", err)
		}
		expectQty(t, verification.VerifiedGoodQty, 6, "verified good")
		expectQty(t, verification.VerifiedDefective, 2, "verified defective")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketGood), 6, "SC good after verification")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketDefective), 2, "SC defective after verification")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 0, "SC in-transit after verification")

		// Conservation: 92 + 6 + 2 == opening 100.
		final, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if final.CurrentStatus != models.RequestStatusVerified {
			t.Fatalf("expected Verified, got %s", final.CurrentStatus)
		}

		histories, err := models.GetRequestStatusHistory(db, request.ID)
		if err != nil {
			t.Fatalf("GetRequestStatusHistory: %v", err)
		}
		// created(Pending), Approved, Allocated, Received, Verified
		if len(histories) != 5 {
			t.Fatalf("expected 5 audit rows, got %d", len(histories))
		}
	})

	t.Run("ApprovalIdempotencyAndConflict", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-002", 50)
		request := createRequest(t, "MSL", spare.ID, 5)

		first, err := workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
			RequestId: request.ID, Level: 1, Decision: "Approved",
		})
		if err != nil {
			t.Fatalf("first approval: %v", err)
		}

		// Same decision again is a no-op returning the stored row.
		again, err := workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
			RequestId: request.ID, Level: 1, Decision: "Approved",
		})
		if err != nil {
			t.Fatalf("idempotent resubmission: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("resubmission must return the original approval, got %d vs %d", again.ID, first.ID)
		}

		// A conflicting decision for the same level fails.
		_, err = workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
			RequestId: request.ID, Level: 1, Decision: "Rejected",
		})
		if !errors.Is(err, workflow.ErrApprovalAlreadyRecorded) {
			t.Fatalf("expected ErrApprovalAlreadyRecorded, got %v", err)
		}
	})

	t.Run("FulfillBeforeApprovalIsRejected", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-003", 50)
		request := createRequest(t, "MSL", spare.ID, 5)

		_, err := workflow.FulfillRequest(ctx, request.ID)
		if !errors.Is(err, workflow.ErrApprovalNotEligible) {
			t.Fatalf("expected ErrApprovalNotEligible, got %v", err)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 50, "plant good untouched")
	})

	t.Run("RejectionShortCircuits", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-004", 50)
		request := createRequest(t, "MSL", spare.ID, 5)

		_, err := workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
			RequestId: request.ID, Level: 1, Decision: "Rejected", Remarks: "not justified",
		})
		if err != nil {
			t.Fatalf("rejection: %v", err)
		}
		updated, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if updated.CurrentStatus != models.RequestStatusRejected {
			t.Fatalf("expected Rejected, got %s", updated.CurrentStatus)
		}

		// Level 2 after rejection has nothing to decide.
		_, err = workflow.SubmitApprovalDecision(ctx, &workflow.SubmitApprovalInput{
			RequestId: request.ID, Level: 2, Decision: "Approved",
		})
		if err == nil {
			t.Fatal("expected error approving a rejected request")
		}
	})

	t.Run("InsufficientStockRollsBackAndRetries", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-005", 3)
		request := createRequest(t, "MSL", spare.ID, 5)
		approveAllLevels(t, request)

		_, err := workflow.FulfillRequest(ctx, request.ID)
		if !errors.Is(err, models.ErrInsufficientStock) {
			t.Fatalf("expected ErrInsufficientStock, got %v", err)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 3, "plant good unchanged after failed fulfill")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 0, "SC in-transit unchanged")

		updated, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if updated.CurrentStatus != models.RequestStatusApproved {
			t.Fatalf("request must stay Approved for retry, got %s", updated.CurrentStatus)
		}

		// Top up and retry the same request.
		_, err = workflow.ReconcileInventory(ctx, &workflow.ReconcileInput{
			SpareId:      spare.ID,
			LocationType: string(plant.Type),
			LocationId:   plant.Id,
			CountedGood:  decimal.NewFromInt(20),
			Remarks:      "stock arrived",
		})
		if err != nil {
			t.Fatalf("ReconcileInventory: %v", err)
		}
		if _, err := workflow.FulfillRequest(ctx, request.ID); err != nil {
			t.Fatalf("retry after top-up: %v", err)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 15, "plant good after retried fulfill")
	})

	t.Run("ConcurrentFulfillmentNeverOversells", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-006", 100)
		first := createRequest(t, "MSL", spare.ID, 60)
		second := createRequest(t, "MSL", spare.ID, 60)
		approveAllLevels(t, first)
		approveAllLevels(t, second)

		var wg sync.WaitGroup
		results := make([]error, 2)
		for i, id := range []int{first.ID, second.ID} {
			wg.Add(1)
			go func(slot, requestId int) {
				defer wg.Done()
				_, err := workflow.FulfillRequest(ctx, requestId)
				results[slot] = err
			}(i, id)
		}
		wg.Wait()

		var succeeded, insufficient int
		for _, err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, models.ErrInsufficientStock):
				insufficient++
			default:
				t.Fatalf("unexpected error: %v", err)
			}
		}
		if succeeded != 1 || insufficient != 1 {
			t.Fatalf("expected exactly one winner, got %d success / %d insufficient", succeeded, insufficient)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 40, "plant good after the race")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 60, "SC in-transit after the race")
	})

	t.Run("CancelAfterAllocationReturnsStock", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-007", 30)
		request := createRequest(t, "MSL", spare.ID, 10)
		approveAllLevels(t, request)
		if _, err := workflow.FulfillRequest(ctx, request.ID); err != nil {
			t.Fatalf("FulfillRequest: %v", err)
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 20, "plant good after fulfill")

		result, err := workflow.CancelRequest(ctx, request.ID, "no longer needed")
		if err != nil {
			t.Fatalf("CancelRequest: %v", err)
		}
		if result.ReversalMovementId == nil {
			t.Fatal("cancel after allocation must post a compensating movement")
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 30, "plant good restored")
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 0, "SC in-transit cleared")

		updated, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if updated.CurrentStatus != models.RequestStatusCancelled {
			t.Fatalf("expected Cancelled, got %s", updated.CurrentStatus)
		}

		// The original allocation movement is marked reversed, never edited.
		movements, err := models.GetStockMovementsByRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetStockMovementsByRequest: %v", err)
		}
		var reversed, reversal bool
		for _, movement := range movements {
			if movement.Status == models.MovementStatusReversed && !movement.IsReversal {
				reversed = true
			}
			if movement.IsReversal && movement.ReversesMovementId != nil {
				reversal = true
			}
		}
		if !reversed || !reversal {
			t.Fatalf("expected a reversed original and a linked reversal, got %+v", movements)
		}
	})

	t.Run("ExemptKindFulfillsWithoutApprovals", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-008", 10)
		request := createRequest(t, "TECH_ISSUE", spare.ID, 4)

		result, err := workflow.FulfillRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("FulfillRequest(exempt kind): %v", err)
		}
		if result.MovementId == 0 {
			t.Fatal("expected an allocation movement")
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 6, "plant good after exempt fulfill")

		updated, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if updated.CurrentStatus != models.RequestStatusAllocated {
			t.Fatalf("expected Allocated, got %s", updated.CurrentStatus)
		}
		if updated.Items[0].ApprovedQty == nil ||
			updated.Items[0].ApprovedQty.Cmp(decimal.NewFromInt(4)) != 0 {
			t.Fatalf("exempt fulfill must fix approved qty at requested, got %+v", updated.Items[0].ApprovedQty)
		}
	})

	t.Run("ReconcileIsIdempotentPerKey", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-009", 0)
		input := &workflow.ReconcileInput{
			SpareId:      spare.ID,
			LocationType: string(plant.Type),
			LocationId:   plant.Id,
			CountedGood:  decimal.NewFromInt(12),
			RequestKey:   "reconcile-LIFE-009",
		}
		first, err := workflow.ReconcileInventory(ctx, input)
		if err != nil {
			t.Fatalf("ReconcileInventory: %v", err)
		}
		if first.Skipped || len(first.MovementIds) != 1 {
			t.Fatalf("expected one adjustment movement, got %+v", first)
		}

		second, err := workflow.ReconcileInventory(ctx, input)
		if err != nil {
			t.Fatalf("ReconcileInventory(repeat): %v", err)
		}
		if !second.Skipped {
			t.Fatal("repeated request key must be skipped")
		}
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 12, "plant good reconciled once")
	})

	t.Run("ReceiptRejectsDuplicateLines", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-010", 50)
		request := createRequest(t, "MSL", spare.ID, 8)
		approveAllLevels(t, request)
		if _, err := workflow.FulfillRequest(ctx, request.ID); err != nil {
			t.Fatalf("FulfillRequest: %v", err)
		}

		fresh, err := models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		itemId := fresh.Items[0].ID
		_, err = workflow.RecordReceipt(ctx, &workflow.RecordReceiptInput{
			RequestId: request.ID,
			Items: []workflow.ReceiptItemInput{
				{ItemId: itemId, ReceivedQty: decimal.NewFromInt(3)},
				{ItemId: itemId, ReceivedQty: decimal.NewFromInt(3)},
			},
		})
		if err == nil || !strings.Contains(err.Error(), "more than once") {
			t.Fatalf("expected duplicate line rejection, got %v", err)
		}

		// Nothing moved and the request is still receivable.
		fresh, err = models.GetSpareRequest(ctx, request.ID)
		if err != nil {
			t.Fatalf("GetSpareRequest: %v", err)
		}
		if fresh.CurrentStatus != models.RequestStatusAllocated {
			t.Fatalf("expected request to stay Allocated, got %s", fresh.CurrentStatus)
		}
		expectQty(t, bucketQty(t, spare.ID, serviceCenter, models.BucketInTransit), 8, "in transit untouched")
		expectQty(t, bucketQty(t, spare.ID, plant, models.BucketGood), 42, "plant good untouched")
	})

	t.Run("RequestDestinationDefaultsToActorLocation", func(t *testing.T) {
		spare := seedSpare(t, "LIFE-011", 0)
		actorCtx := utils.SetActorLocationInContext(ctx, string(models.LocationTypeServiceCenter), serviceCenterId)
		request, err := models.CreateSpareRequest(actorCtx, &models.NewSpareRequest{
			Kind: "MSL",
			Items: []models.NewSpareRequestItem{
				{SpareId: spare.ID, RequestedQty: decimal.NewFromInt(2)},
			},
		})
		if err != nil {
			t.Fatalf("CreateSpareRequest: %v", err)
		}
		if request.DestinationLocationType != models.LocationTypeServiceCenter ||
			request.DestinationLocationId != serviceCenterId {
			t.Fatalf("expected destination to default to SC/%d, got %s/%d",
				serviceCenterId, request.DestinationLocationType, request.DestinationLocationId)
		}
	})
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("spareparts-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("spareparts-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=spareparts_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
