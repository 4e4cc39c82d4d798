package models

import (
	"context"
	"errors"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/google/uuid"
)

// Company is the tenant. Every document row carries its CompanyId and
// every operation receives it explicitly; nothing reads it from globals.
type Company struct {
	ID               uuid.UUID          `gorm:"type:char(36);primary_key" json:"id"`
	Name             string             `gorm:"size:255;not null" json:"name" binding:"required"`
	Email            string             `gorm:"size:255" json:"email"`
	BaseCurrency     utils.CurrencyCode `gorm:"size:3;not null;default:KES" json:"base_currency"`
	DisplayCurrency  utils.CurrencyCode `gorm:"size:3;not null;default:KES" json:"display_currency"`
	CreditNotePrefix string             `gorm:"size:20;default:CN-" json:"credit_note_prefix"`
	InvoicePrefix    string             `gorm:"size:20;default:INV-" json:"invoice_prefix"`
	QuotationPrefix  string             `gorm:"size:20;default:QT-" json:"quotation_prefix"`
	CreditNoteSeq    int64              `gorm:"not null;default:0" json:"-"`
	InvoiceSeq       int64              `gorm:"not null;default:0" json:"-"`
	QuotationSeq     int64              `gorm:"not null;default:0" json:"-"`
	CreatedAt        time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCompany struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"omitempty,email"`
	DisplayCurrency string `json:"display_currency"`
}

func CreateCompany(ctx context.Context, input *NewCompany) (*Company, error) {
	db := config.GetDB()

	company := Company{
		ID:              uuid.New(),
		Name:            input.Name,
		Email:           input.Email,
		BaseCurrency:    utils.CurrencyKES,
		DisplayCurrency: utils.ResolveCurrencyCode(input.DisplayCurrency),
	}

	if err := db.WithContext(ctx).Create(&company).Error; err != nil {
		return nil, err
	}
	return &company, nil
}

func GetCompany(ctx context.Context, companyId string) (*Company, error) {
	db := config.GetDB()

	cacheKey := "company:" + companyId
	var cached Company
	if hit, err := config.GetRedisObject(cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	var result Company
	err := db.WithContext(ctx).Where("id = ?", companyId).First(&result).Error
	if err != nil {
		return nil, utils.ErrorRecordNotFound
	}
	_ = config.SetRedisObject(cacheKey, result, 10*time.Minute)
	return &result, nil
}

// UpdateDisplayCurrency switches the currency the company's screens
// render in. Stored document amounts are never touched; conversion
// happens at read time through the normalization helpers.
func UpdateDisplayCurrency(ctx context.Context, companyId string, currency string) (*Company, error) {
	db := config.GetDB()

	company, err := GetCompany(ctx, companyId)
	if err != nil {
		return nil, err
	}
	resolved := utils.ResolveCurrencyCode(currency)
	if err := db.WithContext(ctx).Model(company).
		Update("display_currency", resolved).Error; err != nil {
		return nil, err
	}
	company.DisplayCurrency = resolved
	_ = config.RemoveRedisKey("company:" + companyId)
	return company, nil
}

func requireCompanyId(companyId string) error {
	if companyId == "" {
		return errors.New("company id is required")
	}
	return nil
}
