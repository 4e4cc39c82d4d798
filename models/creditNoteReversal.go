package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReversalErrorCode string

const (
	ReversalErrorNotFound           ReversalErrorCode = "NOT_FOUND"
	ReversalErrorAlreadyCancelled   ReversalErrorCode = "ALREADY_CANCELLED"
	ReversalErrorInvoiceNotFound    ReversalErrorCode = "INVOICE_NOT_FOUND"
	ReversalErrorTransactionFailure ReversalErrorCode = "TRANSACTION_FAILURE"
)

// ReversalError is the structured failure the reversal engine reports.
// Callers inspect Code; transports surface Error().
type ReversalError struct {
	Code ReversalErrorCode
	Err  error
}

func (e *ReversalError) Error() string {
	return fmt.Sprintf("%s: %v", e.Code, e.Err)
}

func (e *ReversalError) Unwrap() error {
	return e.Err
}

func reversalFailure(code ReversalErrorCode, err error) *ReversalError {
	return &ReversalError{Code: code, Err: err}
}

// ReversalErrorCodeOf extracts the engine error code, defaulting to
// TRANSACTION_FAILURE for wrapped storage errors.
func ReversalErrorCodeOf(err error) ReversalErrorCode {
	var re *ReversalError
	if errors.As(err, &re) {
		return re.Code
	}
	return ReversalErrorTransactionFailure
}

type ReversalSummary struct {
	CreditNoteNumber       string           `json:"credit_note_number"`
	Status                 CreditNoteStatus `json:"status"`
	ReversedAllocations    int              `json:"reversed_allocations"`
	ReversedStockMovements int              `json:"reversed_stock_movements"`
}

// ReverseCreditNote cancels a credit note and undoes its downstream
// effects as one atomic transaction:
//
//  1. lock the credit note row
//  2. restore paid_amount/balance_due on every allocated invoice and
//     delete the allocations
//  3. append a mirrored stock movement per original CREDIT_NOTE
//     movement and adjust product stock
//  4. set status=Cancelled, applied_amount=0, balance=total_amount
//
// Cancelled is terminal: a second reversal fails with AlreadyCancelled
// and changes nothing. Any failure mid-sequence rolls the whole
// transaction back.
func ReverseCreditNote(ctx context.Context, companyId string, creditNoteId int, reason string) (*ReversalSummary, error) {
	logger := config.GetLogger()
	if err := requireCompanyId(companyId); err != nil {
		return nil, reversalFailure(ReversalErrorTransactionFailure, err)
	}
	db := config.GetDB()
	if db == nil {
		return nil, reversalFailure(ReversalErrorTransactionFailure, errors.New("db is nil"))
	}

	// Best-effort advisory lock; the row lock below is authoritative.
	release, err := utils.CompanyLock(ctx, companyId, "creditNoteLock", "creditNoteReversal.go", "ReverseCreditNote")
	if err != nil {
		return nil, reversalFailure(ReversalErrorTransactionFailure, err)
	}
	defer release()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var creditNote CreditNote
	if err := forUpdate(tx.WithContext(ctx)).
		Where("company_id = ? AND id = ?", companyId, creditNoteId).
		First(&creditNote).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, reversalFailure(ReversalErrorNotFound, errors.New("credit note not found"))
		}
		return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("fetch credit note: %w", err))
	}

	if creditNote.CurrentStatus == CreditNoteStatusCancelled {
		tx.Rollback()
		return nil, reversalFailure(ReversalErrorAlreadyCancelled, errors.New("credit note is already cancelled"))
	}

	summary := ReversalSummary{
		CreditNoteNumber: creditNote.CreditNoteNumber,
		Status:           CreditNoteStatusCancelled,
	}

	// Unwind invoice allocations.
	if creditNote.isApplied() {
		var allocations []CreditNoteAllocation
		if err := tx.WithContext(ctx).
			Where("company_id = ? AND credit_note_id = ?", companyId, creditNote.ID).
			Find(&allocations).Error; err != nil {
			tx.Rollback()
			return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("fetch allocations: %w", err))
		}

		for _, allocation := range allocations {
			var invoice Invoice
			if err := forUpdate(tx.WithContext(ctx)).
				Where("company_id = ? AND id = ?", companyId, allocation.InvoiceId).
				First(&invoice).Error; err != nil {
				tx.Rollback()
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, reversalFailure(ReversalErrorInvoiceNotFound,
						fmt.Errorf("allocated invoice %d not found", allocation.InvoiceId))
				}
				return nil, reversalFailure(ReversalErrorTransactionFailure,
					fmt.Errorf("fetch allocated invoice %d: %w", allocation.InvoiceId, err))
			}

			newPaid := invoice.PaidAmount.Sub(allocation.AllocatedAmount)
			if newPaid.IsNegative() {
				if config.StrictInvoiceRestore() {
					tx.Rollback()
					return nil, reversalFailure(ReversalErrorTransactionFailure,
						fmt.Errorf("restoring allocation would make invoice %s paid amount negative", invoice.InvoiceNumber))
				}
				newPaid = decimal.Zero
			}
			newBalanceDue := invoice.BalanceDue.Add(allocation.AllocatedAmount)

			// Restore only the two balance fields; the invoice's wider
			// state is out of the engine's hands.
			if err := tx.WithContext(ctx).Model(&Invoice{}).
				Where("company_id = ? AND id = ?", companyId, invoice.ID).
				Updates(map[string]interface{}{
					"paid_amount": newPaid,
					"balance_due": newBalanceDue,
				}).Error; err != nil {
				tx.Rollback()
				return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("restore invoice %d: %w", invoice.ID, err))
			}
			summary.ReversedAllocations++
		}

		if err := tx.WithContext(ctx).
			Where("company_id = ? AND credit_note_id = ?", companyId, creditNote.ID).
			Delete(&CreditNoteAllocation{}).Error; err != nil {
			tx.Rollback()
			return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("delete allocations: %w", err))
		}
	}

	// Mirror inventory movements. Originals stay untouched; each gets
	// one appended row with the direction flipped.
	if creditNote.affectsInventory() {
		var movements []StockMovement
		if err := tx.WithContext(ctx).
			Where("company_id = ? AND reference_type = ? AND reference_id = ?",
				companyId, StockReferenceTypeCreditNote, creditNote.ID).
			Find(&movements).Error; err != nil {
			tx.Rollback()
			return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("fetch stock movements: %w", err))
		}

		for _, original := range movements {
			mirrored := StockMovement{
				CompanyId:     companyId,
				ProductId:     original.ProductId,
				MovementType:  original.MovementType.Flip(),
				Quantity:      original.Quantity,
				ReferenceType: StockReferenceTypeCreditNoteReversal,
				ReferenceId:   creditNote.ID,
				Notes:         "reversal of credit note " + creditNote.CreditNoteNumber,
			}
			if err := recordStockMovement(tx.WithContext(ctx), &mirrored); err != nil {
				tx.Rollback()
				return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("mirror stock movement %d: %w", original.ID, err))
			}
			summary.ReversedStockMovements++
		}
	}

	notes := creditNote.Notes
	if reason != "" {
		if notes != "" {
			notes += "\n"
		}
		notes += "Reversed: " + reason
	}
	if err := tx.WithContext(ctx).Model(&CreditNote{}).
		Where("company_id = ? AND id = ?", companyId, creditNote.ID).
		Updates(map[string]interface{}{
			"current_status": CreditNoteStatusCancelled,
			"applied_amount": decimal.Zero,
			"balance":        creditNote.TotalAmount,
			"notes":          notes,
		}).Error; err != nil {
		tx.Rollback()
		return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("cancel credit note: %w", err))
	}

	if err := tx.Commit().Error; err != nil {
		return nil, reversalFailure(ReversalErrorTransactionFailure, fmt.Errorf("commit: %w", err))
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	logger.WithField("module", "creditNoteReversal.go").
		WithField("creditNote", summary.CreditNoteNumber).
		WithField("allocations", summary.ReversedAllocations).
		WithField("stockMovements", summary.ReversedStockMovements).
		WithField("userId", userId).
		WithField("correlationId", correlationId).
		Info("credit note reversed")

	return &summary, nil
}

// ReversalPreview is the read-only pre-flight view of everything a
// reversal would touch. No side effects.
type ReversalPreview struct {
	CreditNote     *CreditNote            `json:"credit_note"`
	Allocations    []CreditNoteAllocation `json:"allocations"`
	Invoices       []*Invoice             `json:"invoices"`
	StockMovements []*StockMovement       `json:"stock_movements"`
}

func GetCreditNoteReversalPreview(ctx context.Context, companyId string, creditNoteId int) (*ReversalPreview, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}

	creditNote, err := GetCreditNote(ctx, companyId, creditNoteId)
	if err != nil {
		return nil, err
	}

	preview := ReversalPreview{
		CreditNote:  creditNote,
		Allocations: creditNote.Allocations,
	}

	for _, allocation := range creditNote.Allocations {
		invoice, err := GetInvoice(ctx, companyId, allocation.InvoiceId)
		if err != nil {
			return nil, fmt.Errorf("allocated invoice %d: %w", allocation.InvoiceId, err)
		}
		preview.Invoices = append(preview.Invoices, invoice)
	}

	refType := StockReferenceTypeCreditNote
	movements, err := GetStockMovements(ctx, companyId, nil, &refType, &creditNoteId)
	if err != nil {
		return nil, err
	}
	preview.StockMovements = movements

	return &preview, nil
}
