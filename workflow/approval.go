package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/svcops/spareparts_backend/config"
	"github.com/svcops/spareparts_backend/models"
	"github.com/svcops/spareparts_backend/utils"
)

// ApprovalEvaluation is the pure eligibility view of one request: which
// levels the kind requires, which are still undecided, and whether the
// chain can ever complete.
type ApprovalEvaluation struct {
	RequestId      int                    `json:"request_id"`
	RequiredLevels []config.ApprovalLevel `json:"required_levels"`
	PendingLevels  []config.ApprovalLevel `json:"pending_levels"`
	Rejected       bool                   `json:"rejected"`
	Eligible       bool                   `json:"eligible"`
}

// EvaluateApproval computes eligibility from the approval matrix and the
// decided levels. It has no side effects and can be re-run at any point; the
// fulfillment orchestrator calls it again inside its own transaction so a
// stale answer can never release stock.
func EvaluateApproval(tx *gorm.DB, request *models.SpareRequest) (*ApprovalEvaluation, error) {
	required, err := config.RequiredApprovalLevels(string(request.Kind))
	if err != nil {
		return nil, err
	}
	approvals, err := models.GetApprovalsForRequest(tx, request.ID)
	if err != nil {
		return nil, err
	}

	decided := make(map[int]models.ApprovalDecision, len(approvals))
	for _, approval := range approvals {
		decided[approval.Level] = approval.Decision
	}

	eval := ApprovalEvaluation{
		RequestId:      request.ID,
		RequiredLevels: required,
		PendingLevels:  []config.ApprovalLevel{},
	}
	for _, level := range required {
		switch decided[level.Level] {
		case models.ApprovalDecisionApproved:
			// level satisfied
		case models.ApprovalDecisionRejected:
			eval.Rejected = true
		default:
			eval.PendingLevels = append(eval.PendingLevels, level)
		}
	}
	eval.Eligible = !eval.Rejected && len(eval.PendingLevels) == 0 &&
		!request.IsFrozen &&
		(request.CurrentStatus == models.RequestStatusApproved ||
			(request.CurrentStatus == models.RequestStatusPending && len(required) == 0))
	return &eval, nil
}

type ApprovalItemInput struct {
	ItemId      int             `json:"item_id" binding:"required"`
	ApprovedQty decimal.Decimal `json:"approved_qty"`
}

type SubmitApprovalInput struct {
	RequestId int    `json:"request_id"`
	Level     int    `json:"level" binding:"required"`
	Decision  string `json:"decision" binding:"required"`
	Remarks   string `json:"remarks"`
	// Optional per-item grants. Only honored on the final level; omitted
	// items are approved at their requested quantity.
	Items []ApprovalItemInput `json:"items"`
}

// SubmitApprovalDecision records one level's decision. Re-submitting the
// identical decision for a level is a no-op returning the stored row;
// submitting a conflicting one fails with ErrApprovalAlreadyRecorded. When
// the final required level approves, the per-item approved quantities are
// fixed onto the request items and the request moves Pending -> Approved.
// A rejection at any level short-circuits to Rejected.
func SubmitApprovalDecision(ctx context.Context, input *SubmitApprovalInput) (*models.Approval, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == 0 {
		return nil, errors.New("user id is required")
	}
	decision, err := models.ParseApprovalDecision(input.Decision)
	if err != nil {
		return nil, err
	}

	var approval *models.Approval
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var request models.SpareRequest
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Preload("Items").First(&request, input.RequestId).Error
		if err != nil {
			return utils.ErrorRecordNotFound
		}
		if request.IsFrozen {
			return ErrRequestFrozen
		}

		required, err := config.RequiredApprovalLevels(string(request.Kind))
		if err != nil {
			return err
		}
		level := levelByNumber(required, input.Level)
		if level == nil {
			return fmt.Errorf("level %d is not part of the %s approval chain", input.Level, request.Kind)
		}

		existing, err := models.GetApprovalForLevel(tx, request.ID, input.Level)
		if err == nil {
			if existing.Decision == decision {
				approval = existing
				return nil
			}
			return ErrApprovalAlreadyRecorded
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		if request.CurrentStatus != models.RequestStatusPending {
			return fmt.Errorf("request %d is %s, approvals only apply to pending requests",
				request.ID, request.CurrentStatus)
		}

		record := models.Approval{
			RequestId:      request.ID,
			Level:          input.Level,
			Role:           level.Role,
			ApproverUserId: userId,
			Decision:       decision,
			Remarks:        input.Remarks,
			DecidedAt:      time.Now().UTC(),
		}
		if err := tx.Create(&record).Error; err != nil {
			if isDuplicateKeyErr(err) {
				// Raced with a concurrent submission for the same level.
				stored, loadErr := models.GetApprovalForLevel(tx, request.ID, input.Level)
				if loadErr != nil {
					return loadErr
				}
				if stored.Decision == decision {
					approval = stored
					return nil
				}
				return ErrApprovalAlreadyRecorded
			}
			return err
		}
		approval = &record

		if decision == models.ApprovalDecisionRejected {
			return models.TransitionRequestStatus(tx, &request, models.RequestStatusRejected, userId,
				fmt.Sprintf("rejected at level %d (%s)", input.Level, level.Role))
		}

		if len(input.Items) > 0 {
			if err := storeItemGrants(tx, &request, record.ID, input.Items); err != nil {
				return err
			}
		}

		eval, err := EvaluateApproval(tx, &request)
		if err != nil {
			return err
		}
		if len(eval.PendingLevels) > 0 {
			return nil
		}

		if err := applyApprovedQuantities(tx, &request, record.ID); err != nil {
			return err
		}
		return models.TransitionRequestStatus(tx, &request, models.RequestStatusApproved, userId,
			fmt.Sprintf("all %d approval levels satisfied", len(required)))
	})
	if err != nil {
		err = mapTxContention(err)
		config.LogError(logger, "approval.go", "SubmitApprovalDecision", "Error submitting approval decision", input, err)
		return nil, err
	}
	return approval, nil
}

func levelByNumber(levels []config.ApprovalLevel, number int) *config.ApprovalLevel {
	for i := range levels {
		if levels[i].Level == number {
			return &levels[i]
		}
	}
	return nil
}

func storeItemGrants(tx *gorm.DB, request *models.SpareRequest, approvalId int, grants []ApprovalItemInput) error {
	itemsById := make(map[int]*models.SpareRequestItem, len(request.Items))
	for i := range request.Items {
		itemsById[request.Items[i].ID] = &request.Items[i]
	}
	for _, grant := range grants {
		item, ok := itemsById[grant.ItemId]
		if !ok {
			return fmt.Errorf("item %d does not belong to request %d", grant.ItemId, request.ID)
		}
		if grant.ApprovedQty.IsNegative() || grant.ApprovedQty.GreaterThan(item.RequestedQty) {
			return fmt.Errorf("item %d: approved qty %s outside [0, %s]",
				grant.ItemId, grant.ApprovedQty.String(), item.RequestedQty.String())
		}
		record := models.ApprovalItemQty{
			ApprovalId:  approvalId,
			ItemId:      grant.ItemId,
			ApprovedQty: grant.ApprovedQty,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

// applyApprovedQuantities fixes approved_qty on every request item: the final
// level's per-item grant when one was recorded, the requested quantity
// otherwise.
func applyApprovedQuantities(tx *gorm.DB, request *models.SpareRequest, finalApprovalId int) error {
	var grants []models.ApprovalItemQty
	if err := tx.Where("approval_id = ?", finalApprovalId).Find(&grants).Error; err != nil {
		return err
	}
	grantByItem := make(map[int]decimal.Decimal, len(grants))
	for _, grant := range grants {
		grantByItem[grant.ItemId] = grant.ApprovedQty
	}

	for i := range request.Items {
		item := &request.Items[i]
		approved := item.RequestedQty
		if granted, ok := grantByItem[item.ID]; ok {
			approved = granted
		}
		item.ApprovedQty = &approved
		if err := item.CheckQtyChain(); err != nil {
			return err
		}
		err := tx.Model(&models.SpareRequestItem{}).Where("id = ?", item.ID).
			Update("approved_qty", approved).Error
		if err != nil {
			return err
		}
	}
	return nil
}
