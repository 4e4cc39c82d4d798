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

type Invoice struct {
	ID            int                `gorm:"primary_key" json:"id"`
	CompanyId     string             `gorm:"index;not null" json:"company_id"`
	CustomerId    int                `gorm:"index;not null" json:"customer_id" binding:"required"`
	InvoiceNumber string             `gorm:"size:255;not null" json:"invoice_number"`
	InvoiceDate   time.Time          `gorm:"not null" json:"invoice_date"`
	DueDate       time.Time          `json:"due_date"`
	CurrencyCode  utils.CurrencyCode `gorm:"size:3;not null;default:KES" json:"currency_code"`
	ExchangeRate  decimal.Decimal    `gorm:"type:decimal(20,4);default:1" json:"exchange_rate"`
	FxDate        time.Time          `json:"fx_date"`
	TotalAmount   decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"total_amount"`
	PaidAmount    decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"paid_amount"`
	BalanceDue    decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"balance_due"`
	CurrentStatus InvoiceStatus      `gorm:"size:20;not null" json:"current_status"`
	Notes         string             `gorm:"type:text" json:"notes"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInvoice struct {
	CustomerId   int             `json:"customer_id" binding:"required"`
	InvoiceDate  time.Time       `json:"invoice_date" binding:"required"`
	DueDate      time.Time       `json:"due_date"`
	CurrencyCode string          `json:"currency_code"`
	ExchangeRate decimal.Decimal `json:"exchange_rate"`
	TotalAmount  decimal.Decimal `json:"total_amount" binding:"required"`
	Notes        string          `json:"notes"`
}

func (input NewInvoice) validate(ctx context.Context, companyId string) error {
	if err := utils.ValidateResourceId[Customer](ctx, companyId, input.CustomerId); err != nil {
		return errors.New("customer not found")
	}
	if !input.TotalAmount.IsPositive() {
		return errors.New("total amount must be positive")
	}
	return nil
}

func CreateInvoice(ctx context.Context, companyId string, input *NewInvoice) (*Invoice, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if err := input.validate(ctx, companyId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	currency := utils.ResolveCurrencyCode(input.CurrencyCode)
	rate := input.ExchangeRate
	fxDate := input.InvoiceDate
	if currency == utils.CurrencyKES {
		rate = decimal.NewFromInt(1)
	} else if !rate.IsPositive() {
		// lock the display rate in force on the invoice date
		var err error
		rate, err = GetDisplayRate(ctx, companyId, input.InvoiceDate)
		if err != nil {
			return nil, err
		}
	}

	invoice := Invoice{
		CompanyId:     companyId,
		CustomerId:    input.CustomerId,
		InvoiceDate:   input.InvoiceDate,
		DueDate:       input.DueDate,
		CurrencyCode:  currency,
		ExchangeRate:  rate,
		FxDate:        fxDate,
		TotalAmount:   input.TotalAmount,
		PaidAmount:    decimal.Zero,
		BalanceDue:    input.TotalAmount,
		CurrentStatus: InvoiceStatusDraft,
		Notes:         input.Notes,
	}

	tx := db.Begin()
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
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func GetInvoice(ctx context.Context, companyId string, id int) (*Invoice, error) {
	return utils.FetchModel[Invoice](ctx, companyId, id)
}

func GetInvoices(ctx context.Context, companyId string, customerId *int, status *InvoiceStatus) ([]*Invoice, error) {
	db := config.GetDB()
	var results []*Invoice

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

func MarkInvoiceSent(ctx context.Context, companyId string, id int) (*Invoice, error) {
	db := config.GetDB()

	invoice, err := GetInvoice(ctx, companyId, id)
	if err != nil {
		return nil, err
	}
	if invoice.CurrentStatus != InvoiceStatusDraft {
		return nil, errors.New("only draft invoices can be sent")
	}
	if err := db.WithContext(ctx).Model(invoice).
		Update("current_status", InvoiceStatusSent).Error; err != nil {
		return nil, err
	}
	invoice.CurrentStatus = InvoiceStatusSent
	return invoice, nil
}

// DisplayTotal converts the invoice total into the target display
// currency using the document's locked rate when applicable.
func (inv Invoice) DisplayTotal(target utils.CurrencyCode, currentDisplayRate decimal.Decimal) decimal.Decimal {
	rate := inv.ExchangeRate
	return utils.NormalizeInvoiceAmount(inv.TotalAmount, string(inv.CurrencyCode), &rate, target, currentDisplayRate)
}
