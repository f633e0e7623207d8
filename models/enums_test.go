package models_test

import (
	"testing"

	"github.com/svcops/spareparts_backend/models"
)

func TestRequestStatusTransitions(t *testing.T) {
	allowed := []struct {
		from, to models.RequestStatus
	}{
		{models.RequestStatusPending, models.RequestStatusApproved},
		{models.RequestStatusPending, models.RequestStatusRejected},
		{models.RequestStatusApproved, models.RequestStatusAllocated},
		{models.RequestStatusApproved, models.RequestStatusRejected},
		{models.RequestStatusAllocated, models.RequestStatusReceived},
		{models.RequestStatusReceived, models.RequestStatusVerified},
		// Cancellation is reachable from any non-terminal status.
		{models.RequestStatusPending, models.RequestStatusCancelled},
		{models.RequestStatusApproved, models.RequestStatusCancelled},
		{models.RequestStatusAllocated, models.RequestStatusCancelled},
		{models.RequestStatusReceived, models.RequestStatusCancelled},
	}
	for _, edge := range allowed {
		if !models.CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be allowed", edge.from, edge.to)
		}
	}

	forbidden := []struct {
		from, to models.RequestStatus
	}{
		{models.RequestStatusPending, models.RequestStatusAllocated},
		{models.RequestStatusPending, models.RequestStatusReceived},
		{models.RequestStatusApproved, models.RequestStatusVerified},
		{models.RequestStatusAllocated, models.RequestStatusApproved},
		{models.RequestStatusReceived, models.RequestStatusAllocated},
		// Terminal statuses never move, not even to Cancelled.
		{models.RequestStatusRejected, models.RequestStatusPending},
		{models.RequestStatusRejected, models.RequestStatusCancelled},
		{models.RequestStatusVerified, models.RequestStatusCancelled},
		{models.RequestStatusCancelled, models.RequestStatusPending},
		{models.RequestStatusCancelled, models.RequestStatusCancelled},
	}
	for _, edge := range forbidden {
		if models.CanTransition(edge.from, edge.to) {
			t.Errorf("expected %s -> %s to be rejected", edge.from, edge.to)
		}
	}
}

func TestRequestStatusIsTerminal(t *testing.T) {
	terminal := []models.RequestStatus{
		models.RequestStatusRejected,
		models.RequestStatusVerified,
		models.RequestStatusCancelled,
	}
	for _, status := range terminal {
		if !status.IsTerminal() {
			t.Errorf("expected %s to be terminal", status)
		}
	}
	open := []models.RequestStatus{
		models.RequestStatusPending,
		models.RequestStatusApproved,
		models.RequestStatusAllocated,
		models.RequestStatusReceived,
	}
	for _, status := range open {
		if status.IsTerminal() {
			t.Errorf("expected %s to be open", status)
		}
	}
}

func TestParseRequestStatusRejectsUnknown(t *testing.T) {
	if _, err := models.ParseRequestStatus("Shipped"); err == nil {
		t.Fatal("expected error for unknown status")
	}
	status, err := models.ParseRequestStatus("allocated")
	if err != nil {
		t.Fatalf("ParseRequestStatus: %v", err)
	}
	if status != models.RequestStatusAllocated {
		t.Fatalf("expected Allocated, got %s", status)
	}
}

func TestParseLocationTypeAndKind(t *testing.T) {
	locType, err := models.ParseLocationType("sc")
	if err != nil {
		t.Fatalf("ParseLocationType: %v", err)
	}
	if locType != models.LocationTypeServiceCenter {
		t.Fatalf("expected service center, got %s", locType)
	}
	if _, err := models.ParseLocationType("XX"); err == nil {
		t.Fatal("expected error for unknown location type")
	}

	kind, err := models.ParseRequestKind("tech_issue")
	if err != nil {
		t.Fatalf("ParseRequestKind: %v", err)
	}
	if kind != models.RequestKindTechIssue {
		t.Fatalf("expected TECH_ISSUE, got %s", kind)
	}
	if _, err := models.ParseRequestKind("WARRANTY"); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestParseMovementTypeAndCondition(t *testing.T) {
	movementType, err := models.ParseMovementType("adjustment")
	if err != nil {
		t.Fatalf("ParseMovementType: %v", err)
	}
	if movementType != models.MovementTypeAdjustment {
		t.Fatalf("expected AJ, got %s", movementType)
	}
	if _, err := models.ParseMovementType("teleport"); err == nil {
		t.Fatal("expected error for unknown movement type")
	}

	condition, err := models.ParseItemCondition("Defective")
	if err != nil {
		t.Fatalf("ParseItemCondition: %v", err)
	}
	if condition != models.ConditionDefective {
		t.Fatalf("expected D, got %s", condition)
	}
	if _, err := models.ParseItemCondition("broken"); err == nil {
		t.Fatal("expected error for unknown condition")
	}
}

func TestItemConditionBucket(t *testing.T) {
	if models.ConditionGood.Bucket() != models.BucketGood {
		t.Fatal("good condition must map to the good bucket")
	}
	if models.ConditionDefective.Bucket() != models.BucketDefective {
		t.Fatal("defective condition must map to the defective bucket")
	}
}
