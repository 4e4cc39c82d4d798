package models

import (
	"context"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// StockMovement is one row of the append-only inventory ledger. Rows
// are immutable history; undoing a movement appends a mirrored row
// under a reversal reference type.
type StockMovement struct {
	ID            int                `gorm:"primary_key" json:"id"`
	CompanyId     string             `gorm:"index;not null" json:"company_id"`
	ProductId     int                `gorm:"index;not null" json:"product_id"`
	MovementType  MovementType       `gorm:"size:3;not null" json:"movement_type"`
	Quantity      decimal.Decimal    `gorm:"type:decimal(20,4);not null" json:"quantity"`
	ReferenceType StockReferenceType `gorm:"size:30;index;not null" json:"reference_type"`
	ReferenceId   int                `gorm:"index;not null" json:"reference_id"`
	Notes         string             `gorm:"size:255" json:"notes"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
}

// recordStockMovement appends a ledger row and applies the signed delta
// to the product's cached quantity, inside the caller's transaction.
func recordStockMovement(tx *gorm.DB, movement *StockMovement) error {
	if err := tx.Create(movement).Error; err != nil {
		return err
	}
	delta := movement.Quantity
	if movement.MovementType == MovementTypeOut {
		delta = delta.Neg()
	}
	return applyStockDelta(tx, movement.CompanyId, movement.ProductId, delta)
}

func GetStockMovements(ctx context.Context, companyId string, productId *int, referenceType *StockReferenceType, referenceId *int) ([]*StockMovement, error) {
	db := config.GetDB()
	var results []*StockMovement

	dbCtx := db.WithContext(ctx).Where("company_id = ?", companyId)
	if productId != nil && *productId > 0 {
		dbCtx = dbCtx.Where("product_id = ?", *productId)
	}
	if referenceType != nil && *referenceType != "" {
		dbCtx = dbCtx.Where("reference_type = ?", *referenceType)
	}
	if referenceId != nil && *referenceId > 0 {
		dbCtx = dbCtx.Where("reference_id = ?", *referenceId)
	}
	err := dbCtx.Order("id").Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
