package models

import (
	"fmt"
	"strings"
)

// Status and type enums are closed typed constants. Raw strings only cross
// the boundary through the Parse* helpers; nothing mid-pipeline compares
// untyped strings.

type LocationType string

const (
	LocationTypePlant         LocationType = "PL"
	LocationTypeServiceCenter LocationType = "SC"
	LocationTypeTechnician    LocationType = "TN"
	LocationTypeBranch        LocationType = "BR"
	LocationTypeWarehouse     LocationType = "WH"
	LocationTypeSupplier      LocationType = "SP"
	LocationTypeCustomer      LocationType = "CU"
)

var locationTypeNames = map[LocationType]string{
	LocationTypePlant:         "plant",
	LocationTypeServiceCenter: "service_center",
	LocationTypeTechnician:    "technician",
	LocationTypeBranch:        "branch",
	LocationTypeWarehouse:     "warehouse",
	LocationTypeSupplier:      "supplier",
	LocationTypeCustomer:      "customer",
}

func (t LocationType) Name() string {
	if n, ok := locationTypeNames[t]; ok {
		return n
	}
	return string(t)
}

func ParseLocationType(s string) (LocationType, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, name := range locationTypeNames {
		if s == name || strings.EqualFold(s, string(code)) {
			return code, nil
		}
	}
	return "", fmt.Errorf("invalid location type %q", s)
}

type InventoryBucket string

const (
	BucketGood      InventoryBucket = "G"
	BucketDefective InventoryBucket = "D"
	BucketInTransit InventoryBucket = "T"
)

var bucketNames = map[InventoryBucket]string{
	BucketGood:      "good",
	BucketDefective: "defective",
	BucketInTransit: "in_transit",
}

func (b InventoryBucket) Name() string {
	if n, ok := bucketNames[b]; ok {
		return n
	}
	return string(b)
}

func ParseInventoryBucket(s string) (InventoryBucket, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, name := range bucketNames {
		if s == name || strings.EqualFold(s, string(code)) {
			return code, nil
		}
	}
	return "", fmt.Errorf("invalid inventory bucket %q", s)
}

type RequestKind string

const (
	RequestKindMsl         RequestKind = "MSL"
	RequestKindBulk        RequestKind = "BULK"
	RequestKindTechIssue   RequestKind = "TECH_ISSUE"
	RequestKindConsReturn  RequestKind = "CONS_RETURN"
	RequestKindConsFillup  RequestKind = "CONS_FILLUP"
)

var requestKindNames = map[RequestKind]string{
	RequestKindMsl:        "msl",
	RequestKindBulk:       "bulk",
	RequestKindTechIssue:  "tech_issue",
	RequestKindConsReturn: "consignment_return",
	RequestKindConsFillup: "consignment_fillup",
}

func (k RequestKind) Name() string {
	if n, ok := requestKindNames[k]; ok {
		return n
	}
	return string(k)
}

func ParseRequestKind(s string) (RequestKind, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for code, name := range requestKindNames {
		if s == name || strings.EqualFold(s, string(code)) {
			return code, nil
		}
	}
	return "", fmt.Errorf("invalid request kind %q", s)
}

type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "Pending"
	RequestStatusApproved  RequestStatus = "Approved"
	RequestStatusRejected  RequestStatus = "Rejected"
	RequestStatusAllocated RequestStatus = "Allocated"
	RequestStatusReceived  RequestStatus = "Received"
	RequestStatusVerified  RequestStatus = "Verified"
	RequestStatusCancelled RequestStatus = "Cancelled"
)

func (s RequestStatus) IsTerminal() bool {
	switch s {
	case RequestStatusRejected, RequestStatusVerified, RequestStatusCancelled:
		return true
	}
	return false
}

// requestTransitions is the closed transition table for the request state
// machine. Cancelled is reachable from every non-terminal state and handled
// in CanTransition directly.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestStatusPending:   {RequestStatusApproved, RequestStatusRejected},
	RequestStatusApproved:  {RequestStatusAllocated, RequestStatusRejected},
	RequestStatusAllocated: {RequestStatusReceived},
	RequestStatusReceived:  {RequestStatusVerified},
}

func CanTransition(from, to RequestStatus) bool {
	if to == RequestStatusCancelled {
		return !from.IsTerminal()
	}
	for _, next := range requestTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func ParseRequestStatus(s string) (RequestStatus, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return RequestStatusPending, nil
	case "approved":
		return RequestStatusApproved, nil
	case "rejected":
		return RequestStatusRejected, nil
	case "allocated":
		return RequestStatusAllocated, nil
	case "received":
		return RequestStatusReceived, nil
	case "verified":
		return RequestStatusVerified, nil
	case "cancelled":
		return RequestStatusCancelled, nil
	}
	return "", fmt.Errorf("invalid request status %q", s)
}

type MovementType string

const (
	MovementTypeIssue      MovementType = "IS"
	MovementTypeReturn     MovementType = "RT"
	MovementTypeTransfer   MovementType = "TR"
	MovementTypeAdjustment MovementType = "AJ"
)

func ParseMovementType(s string) (MovementType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "issue", "is":
		return MovementTypeIssue, nil
	case "return", "rt":
		return MovementTypeReturn, nil
	case "transfer", "tr":
		return MovementTypeTransfer, nil
	case "adjustment", "aj":
		return MovementTypeAdjustment, nil
	}
	return "", fmt.Errorf("invalid movement type %q", s)
}

type MovementStatus string

const (
	MovementStatusPosted   MovementStatus = "Posted"
	MovementStatusReversed MovementStatus = "Reversed"
)

type ItemCondition string

const (
	ConditionGood      ItemCondition = "G"
	ConditionDefective ItemCondition = "D"
)

func ParseItemCondition(s string) (ItemCondition, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "good", "g":
		return ConditionGood, nil
	case "defective", "d":
		return ConditionDefective, nil
	}
	return "", fmt.Errorf("invalid item condition %q", s)
}

// Bucket returns the destination bucket a verified condition credits.
func (c ItemCondition) Bucket() InventoryBucket {
	if c == ConditionDefective {
		return BucketDefective
	}
	return BucketGood
}

type ApprovalDecision string

const (
	ApprovalDecisionApproved ApprovalDecision = "Approved"
	ApprovalDecisionRejected ApprovalDecision = "Rejected"
)

func ParseApprovalDecision(s string) (ApprovalDecision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "approve":
		return ApprovalDecisionApproved, nil
	case "rejected", "reject":
		return ApprovalDecisionRejected, nil
	}
	return "", fmt.Errorf("invalid approval decision %q", s)
}

type OutboxPublishStatus = string

const (
	OutboxPublishStatusPending    OutboxPublishStatus = "PENDING"
	OutboxPublishStatusProcessing OutboxPublishStatus = "PROCESSING"
	OutboxPublishStatusSent       OutboxPublishStatus = "SENT"
	OutboxPublishStatusFailed     OutboxPublishStatus = "FAILED"
	OutboxPublishStatusDead       OutboxPublishStatus = "DEAD"
)

type OutboxReferenceType string

const (
	OutboxReferenceTypeMovement OutboxReferenceType = "MV"
	OutboxReferenceTypeRequest  OutboxReferenceType = "RQ"
)

type OutboxAction string

const (
	OutboxActionCreate OutboxAction = "C"
	OutboxActionUpdate OutboxAction = "U"
)
