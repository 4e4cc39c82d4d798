package models

import (
	"context"
	"fmt"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
)

// Region used to interpret national-format phone numbers.
const customerPhoneRegion = "KE"

type Customer struct {
	ID        int       `gorm:"primary_key" json:"id"`
	CompanyId string    `gorm:"index;not null" json:"company_id"`
	Name      string    `gorm:"size:255;not null" json:"name" binding:"required"`
	Email     string    `gorm:"size:255" json:"email"`
	Phone     string    `gorm:"size:50" json:"phone"`
	KraPin    string    `gorm:"size:30" json:"kra_pin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewCustomer struct {
	Name   string `json:"name" binding:"required"`
	Email  string `json:"email" binding:"omitempty,email"`
	Phone  string `json:"phone"`
	KraPin string `json:"kra_pin"`
}

func CreateCustomer(ctx context.Context, companyId string, input *NewCustomer) (*Customer, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	if input.Phone != "" {
		if err := utils.ValidatePhoneNumber(input.Phone, customerPhoneRegion); err != nil {
			return nil, fmt.Errorf("invalid phone number: %w", err)
		}
	}
	db := config.GetDB()

	customer := Customer{
		CompanyId: companyId,
		Name:      input.Name,
		Email:     input.Email,
		Phone:     input.Phone,
		KraPin:    input.KraPin,
	}
	if err := db.WithContext(ctx).Create(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

func GetCustomer(ctx context.Context, companyId string, id int) (*Customer, error) {
	return utils.FetchModel[Customer](ctx, companyId, id)
}

func GetCustomers(ctx context.Context, companyId string) ([]*Customer, error) {
	return utils.FetchAllModels[Customer](ctx, companyId)
}
