package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/shopspring/decimal"
)

type CreditNote struct {
	ID               int                    `gorm:"primary_key" json:"id"`
	CompanyId        string                 `gorm:"index;not null" json:"company_id"`
	CustomerId       int                    `gorm:"index;not null" json:"customer_id" binding:"required"`
	CreditNoteNumber string                 `gorm:"size:255;not null" json:"credit_note_number"`
	CreditNoteDate   time.Time              `gorm:"not null" json:"credit_note_date"`
	CurrencyCode     utils.CurrencyCode     `gorm:"size:3;not null;default:KES" json:"currency_code"`
	ExchangeRate     decimal.Decimal        `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	FxDate           time.Time              `json:"fx_date"`
	TotalAmount      decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	AppliedAmount    decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"applied_amount"`
	Balance          decimal.Decimal        `gorm:"type:decimal(20,4);default:0" json:"balance"`
	AffectsInventory *bool                  `gorm:"default:false" json:"affects_inventory"`
	CurrentStatus    CreditNoteStatus       `gorm:"size:20;not null" json:"current_status"`
	Notes            string                 `gorm:"type:text" json:"notes"`
	Allocations      []CreditNoteAllocation `gorm:"foreignKey:CreditNoteId" json:"allocations"`
	CreatedAt        time.Time              `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time              `gorm:"autoUpdateTime" json:"updated_at"`
}

// CreditNoteAllocation links a credit note to an invoice it was applied
// against. Rows are created by ApplyCreditNoteToInvoice and deleted en
// masse by the reversal engine, never independently.
type CreditNoteAllocation struct {
	ID              int             `gorm:"primary_key" json:"id"`
	CompanyId       string          `gorm:"index;not null" json:"company_id"`
	CreditNoteId    int             `gorm:"index;not null" json:"credit_note_id"`
	InvoiceId       int             `gorm:"index;not null" json:"invoice_id"`
	AllocatedAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allocated_amount"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type NewCreditNoteItem struct {
	ProductId int             `json:"product_id" binding:"required"`
	Quantity  decimal.Decimal `json:"quantity" binding:"required"`
}

type NewCreditNote struct {
	CustomerId       int                 `json:"customer_id" binding:"required"`
	CreditNoteDate   time.Time           `json:"credit_note_date" binding:"required"`
	CurrencyCode     string              `json:"currency_code"`
	ExchangeRate     decimal.Decimal     `json:"exchange_rate"`
	TotalAmount      decimal.Decimal     `json:"total_amount" binding:"required"`
	AffectsInventory *bool               `json:"affects_inventory"`
	Items            []NewCreditNoteItem `json:"items"`
	Notes            string              `json:"notes"`
}

func (cn CreditNote) affectsInventory() bool {
	return utils.DereferencePtr(cn.AffectsInventory)
}

func (cn CreditNote) isApplied() bool {
	return cn.AppliedAmount.GreaterThan(decimal.Zero)
}

func (input NewCreditNote) validate(ctx context.Context, companyId string) error {
	if err := utils.ValidateResourceId[Customer](ctx, companyId, input.CustomerId); err != nil {
		return errors.New("customer not found")
	}
	if !input.TotalAmount.IsPositive() {
		return errors.New("total amount must be positive")
	}
	affects := input.AffectsInventory != nil && *input.AffectsInventory
	if affects && len(input.Items) == 0 {
		return errors.New("inventory credit note requires at least one item")
	}
	for _, item := range input.Items {
		if !item.Quantity.IsPositive() {
			return errors.New("item quantity must be positive")
		}
		if err := utils.ValidateResourceId[Product](ctx, companyId, item.ProductId); err != nil {
			return errors.New("product not found")
		}
	}
	return nil
}

// CreateCreditNote issues a credit note as Draft. An inventory-affecting
// note records one IN movement per returned item (goods back from the
// customer); the reversal engine mirrors exactly these rows later.
func CreateCreditNote(ctx context.Context, companyId string, input *NewCreditNote) (*CreditNote, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	currency := utils.ResolveCurrencyCode(input.CurrencyCode)
	rate := input.ExchangeRate
	if currency == utils.CurrencyKES {
		rate = decimal.NewFromInt(1)
	} else if !rate.IsPositive() {
		var err error
		rate, err = GetDisplayRate(ctx, companyId, input.CreditNoteDate)
		if err != nil {
			return nil, err
		}
	}

	creditNote := CreditNote{
		CompanyId:        companyId,
		CustomerId:       input.CustomerId,
		CreditNoteDate:   input.CreditNoteDate,
		CurrencyCode:     currency,
		ExchangeRate:     rate,
		FxDate:           input.CreditNoteDate,
		TotalAmount:      input.TotalAmount,
		AppliedAmount:    decimal.Zero,
		Balance:          input.TotalAmount,
		AffectsInventory: input.AffectsInventory,
		CurrentStatus:    CreditNoteStatusDraft,
		Notes:            input.Notes,
	}
	if creditNote.AffectsInventory == nil {
		creditNote.AffectsInventory = utils.NewFalse()
	}

	tx := db.Begin()
	seqNo, prefix, err := nextDocumentNumber(tx, ctx, companyId, "credit_notes", "CN-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	creditNote.CreditNoteNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&creditNote).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if creditNote.affectsInventory() {
		for _, item := range input.Items {
			movement := StockMovement{
				CompanyId:     companyId,
				ProductId:     item.ProductId,
				MovementType:  MovementTypeIn,
				Quantity:      item.Quantity,
				ReferenceType: StockReferenceTypeCreditNote,
				ReferenceId:   creditNote.ID,
				Notes:         "credit note " + creditNote.CreditNoteNumber,
			}
			if err := recordStockMovement(tx.WithContext(ctx), &movement); err != nil {
				tx.Rollback()
				return nil, err
			}
		}
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &creditNote, nil
}

func MarkCreditNoteSent(ctx context.Context, companyId string, id int) (*CreditNote, error) {
	db := config.GetDB()

	creditNote, err := GetCreditNote(ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if creditNote.CurrentStatus != CreditNoteStatusDraft {
		return nil, errors.New("only draft credit notes can be sent")
	}
	if err := db.WithContext(ctx).Model(creditNote).
		Update("current_status", CreditNoteStatusSent).Error; err != nil {
		return nil, err
	}
	creditNote.CurrentStatus = CreditNoteStatusSent
	return creditNote, nil
}

// ApplyCreditNoteToInvoice allocates part of a credit note's balance
// against an invoice: the invoice's paid_amount grows, its balance_due
// shrinks, and the note moves to Applied. Runs as one transaction under
// the same row lock the reversal engine takes, so application and
// reversal of the same note serialize.
func ApplyCreditNoteToInvoice(ctx context.Context, companyId string, creditNoteId int, invoiceId int, amount decimal.Decimal) (*CreditNoteAllocation, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if !amount.IsPositive() {
		return nil, errors.New("allocation amount must be positive")
	}
	db := config.GetDB()

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
		return nil, utils.ErrorRecordNotFound
	}

	switch creditNote.CurrentStatus {
	case CreditNoteStatusCancelled:
		tx.Rollback()
		return nil, errors.New("cannot apply a cancelled credit note")
	case CreditNoteStatusDraft:
		tx.Rollback()
		return nil, errors.New("credit note must be sent before applying")
	}
	if creditNote.Balance.LessThan(amount) {
		tx.Rollback()
		return nil, errors.New("credit note balance is less than the applied amount")
	}

	var invoice Invoice
	if err := forUpdate(tx.WithContext(ctx)).
		Where("company_id = ? AND id = ?", companyId, invoiceId).
		First(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, errors.New("invoice not found")
	}
	if invoice.CurrencyCode != creditNote.CurrencyCode {
		tx.Rollback()
		return nil, errors.New("credit note and invoice currencies differ")
	}
	if invoice.BalanceDue.LessThan(amount) {
		tx.Rollback()
		return nil, errors.New("invoice balance due is less than the applied amount")
	}

	allocation := CreditNoteAllocation{
		CompanyId:       companyId,
		CreditNoteId:    creditNote.ID,
		InvoiceId:       invoice.ID,
		AllocatedAmount: amount,
	}
	if err := tx.WithContext(ctx).Create(&allocation).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	newPaid := invoice.PaidAmount.Add(amount)
	newBalanceDue := invoice.BalanceDue.Sub(amount)
	newInvoiceStatus := InvoiceStatusPartialPaid
	if newBalanceDue.IsZero() {
		newInvoiceStatus = InvoiceStatusPaid
	}
	if err := tx.WithContext(ctx).Model(&Invoice{}).
		Where("company_id = ? AND id = ?", companyId, invoice.ID).
		Updates(map[string]interface{}{
			"paid_amount":    newPaid,
			"balance_due":    newBalanceDue,
			"current_status": newInvoiceStatus,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	newApplied := creditNote.AppliedAmount.Add(amount)
	newBalance := creditNote.Balance.Sub(amount)
	if err := tx.WithContext(ctx).Model(&CreditNote{}).
		Where("company_id = ? AND id = ?", companyId, creditNote.ID).
		Updates(map[string]interface{}{
			"applied_amount": newApplied,
			"balance":        newBalance,
			"current_status": CreditNoteStatusApplied,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &allocation, nil
}

func GetCreditNote(ctx context.Context, companyId string, id int) (*CreditNote, error) {
	return utils.FetchModel[CreditNote](ctx, companyId, id, "Allocations")
}

func GetCreditNotes(ctx context.Context, companyId string, customerId *int, status *CreditNoteStatus) ([]*CreditNote, error) {
	db := config.GetDB()
	var results []*CreditNote

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	if status != nil {
		dbCtx = dbCtx.Where("current_status = ?", *status)
	}
	err := dbCtx.Order("id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// DisplayTotal converts the credit note total into the target display
// currency, preferring the note's locked rate for USD documents.
func (cn CreditNote) DisplayTotal(target utils.CurrencyCode, currentDisplayRate decimal.Decimal) decimal.Decimal {
	rate := cn.ExchangeRate
	return utils.NormalizeInvoiceAmount(cn.TotalAmount, string(cn.CurrencyCode), &rate, target, currentDisplayRate)
}
