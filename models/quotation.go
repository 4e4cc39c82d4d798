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

type Quotation struct {
	ID              int                `gorm:"primary_key" json:"id"`
	CompanyId       string             `gorm:"index;not null" json:"company_id"`
	CustomerId      int                `gorm:"index;not null" json:"customer_id" binding:"required"`
	QuotationNumber string             `gorm:"size:255;not null" json:"quotation_number"`
	QuotationDate   time.Time          `gorm:"not null" json:"quotation_date"`
	ExpiryDate      time.Time          `json:"expiry_date"`
	CurrencyCode    utils.CurrencyCode `gorm:"size:3;not null;default:KES" json:"currency_code"`
	ExchangeRate    decimal.Decimal    `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	FxDate          time.Time          `json:"fx_date"`
	TotalAmount     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	CurrentStatus   QuotationStatus    `gorm:"size:20;not null" json:"current_status"`
	InvoiceId       *int               `gorm:"index" json:"invoice_id"`
	Notes           string             `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewQuotation struct {
	CustomerId    int             `json:"customer_id" binding:"required"`
	QuotationDate time.Time       `json:"quotation_date" binding:"required"`
	ExpiryDate    time.Time       `json:"expiry_date"`
	CurrencyCode  string          `json:"currency_code"`
	ExchangeRate  decimal.Decimal `json:"exchange_rate"`
	TotalAmount   decimal.Decimal `json:"total_amount" binding:"required"`
	Notes         string          `json:"notes"`
}

func CreateQuotation(ctx context.Context, companyId string, input *NewQuotation) (*Quotation, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if err := utils.ValidateResourceId[Customer](ctx, companyId, input.CustomerId); err != nil {
		return nil, errors.New("customer not found")
	}
	if !input.TotalAmount.IsPositive() {
		return nil, errors.New("total amount must be positive")
	}
	db := config.GetDB()

	currency := utils.ResolveCurrencyCode(input.CurrencyCode)
	rate := input.ExchangeRate
	if currency == utils.CurrencyKES {
		rate = decimal.NewFromInt(1)
	} else if !rate.IsPositive() {
		var err error
		rate, err = GetDisplayRate(ctx, companyId, input.QuotationDate)
		if err != nil {
			return nil, err
		}
	}

	quotation := Quotation{
		CompanyId:     companyId,
		CustomerId:    input.CustomerId,
		QuotationDate: input.QuotationDate,
		ExpiryDate:    input.ExpiryDate,
		CurrencyCode:  currency,
		ExchangeRate:  rate,
		FxDate:        input.QuotationDate,
		TotalAmount:   input.TotalAmount,
		CurrentStatus: QuotationStatusDraft,
		Notes:         input.Notes,
	}

	tx := db.Begin()
	seqNo, prefix, err := nextDocumentNumber(tx, ctx, companyId, "quotations", "QT-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	quotation.QuotationNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&quotation).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &quotation, nil
}

func GetQuotation(ctx context.Context, companyId string, id int) (*Quotation, error) {
	return utils.FetchModel[Quotation](ctx, companyId, id)
}

func GetQuotations(ctx context.Context, companyId string, customerId *int) ([]*Quotation, error) {
	db := config.GetDB()
	var results []*Quotation

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if customerId != nil && *customerId > 0 {
		dbCtx = dbCtx.Where("customer_id = ?", *customerId)
	}
	err := dbCtx.Order("id desc").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// ConvertQuotationToInvoice turns an accepted (or sent) quotation into a
// draft invoice carrying the quotation's currency and its locked fx
// rate, and marks the quotation Invoiced. One quotation converts at
// most once.
func ConvertQuotationToInvoice(ctx context.Context, companyId string, quotationId int) (*Invoice, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	tx := db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	var quotation Quotation
	if err := forUpdate(tx.WithContext(ctx)).
		Where("company_id = ? AND id = ?", companyId, quotationId).
		First(&quotation).Error; err != nil {
		tx.Rollback()
		return nil, utils.ErrorRecordNotFound
	}

	if quotation.CurrentStatus == QuotationStatusInvoiced {
		tx.Rollback()
		return nil, errors.New("quotation has already been invoiced")
	}
	if quotation.CurrentStatus == QuotationStatusDeclined {
		tx.Rollback()
		return nil, errors.New("cannot invoice a declined quotation")
	}

	invoice := Invoice{
		CompanyId:     companyId,
		CustomerId:    quotation.CustomerId,
		InvoiceDate:   time.Now().UTC(),
		DueDate:       quotation.ExpiryDate,
		CurrencyCode:  quotation.CurrencyCode,
		ExchangeRate:  quotation.ExchangeRate,
		FxDate:        quotation.FxDate,
		TotalAmount:   quotation.TotalAmount,
		PaidAmount:    decimal.Zero,
		BalanceDue:    quotation.TotalAmount,
		CurrentStatus: InvoiceStatusDraft,
		Notes:         quotation.Notes,
	}

	seqNo, prefix, err := nextDocumentNumber(tx, ctx, companyId, "invoices", "INV-")
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	invoice.InvoiceNumber = prefix + fmt.Sprint(seqNo)

	if err := tx.WithContext(ctx).Create(&invoice).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.WithContext(ctx).Model(&Quotation{}).
		Where("company_id = ? AND id = ?", companyId, quotation.ID).
		Updates(map[string]interface{}{
			"current_status": QuotationStatusInvoiced,
			"invoice_id":     invoice.ID,
		}).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}
