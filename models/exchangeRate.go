package models

import (
	"context"
	"errors"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ExchangeRate is one historical rate-lock row: on RateDate, 1 USD was
// worth Rate KES. Documents copy the rate in force on their issue date
// and keep it forever (fx_date locking).
type ExchangeRate struct {
	ID        int             `gorm:"primary_key" json:"id"`
	CompanyId string          `gorm:"index;not null" json:"company_id"`
	RateDate  time.Time       `gorm:"index;not null" json:"rate_date" binding:"required"`
	Rate      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"rate"`
	Notes     string          `gorm:"size:255" json:"notes"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewExchangeRate struct {
	RateDate time.Time       `json:"rate_date" binding:"required"`
	Rate     decimal.Decimal `json:"rate" binding:"required"`
	Notes    string          `json:"notes"`
}

func CreateExchangeRate(ctx context.Context, companyId string, input *NewExchangeRate) (*ExchangeRate, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if !input.Rate.IsPositive() {
		return nil, errors.New("rate must be positive")
	}
	db := config.GetDB()

	rate := ExchangeRate{
		CompanyId: companyId,
		RateDate:  input.RateDate,
		Rate:      input.Rate,
		Notes:     input.Notes,
	}
	if err := db.WithContext(ctx).Create(&rate).Error; err != nil {
		return nil, err
	}
	return &rate, nil
}

func GetExchangeRates(ctx context.Context, companyId string) ([]*ExchangeRate, error) {
	db := config.GetDB()
	var results []*ExchangeRate
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Order("rate_date desc").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// GetDisplayRate returns the KES-per-USD rate in force on the given
// date: the newest row dated on or before it. Companies with no rate
// rows fall back to the configured default so display never breaks.
func GetDisplayRate(ctx context.Context, companyId string, at time.Time) (decimal.Decimal, error) {
	db := config.GetDB()

	var row ExchangeRate
	err := db.WithContext(ctx).
		Where("company_id = ?", companyId).
		Where("rate_date <= ?", at).
		Order("rate_date desc").
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.ParseDecimal(config.DefaultDisplayRate())
		}
		return decimal.Zero, err
	}
	return row.Rate, nil
}
