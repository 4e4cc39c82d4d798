package models

import (
	"context"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID            int                `gorm:"primary_key" json:"id"`
	CompanyId     string             `gorm:"index;not null" json:"company_id"`
	Name          string             `gorm:"size:255;not null" json:"name" binding:"required"`
	Sku           string             `gorm:"size:100" json:"sku"`
	UnitPrice     decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"unit_price"`
	CurrencyCode  utils.CurrencyCode `gorm:"size:3;not null;default:KES" json:"currency_code"`
	StockQuantity decimal.Decimal    `gorm:"type:decimal(20,4);default:0" json:"stock_quantity"`
	TrackStock    *bool              `gorm:"default:true" json:"track_stock"`
	CreatedAt     time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewProduct struct {
	Name         string          `json:"name" binding:"required"`
	Sku          string          `json:"sku"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	CurrencyCode string          `json:"currency_code"`
	OpeningStock decimal.Decimal `json:"opening_stock"`
	TrackStock   *bool           `json:"track_stock"`
}

func CreateProduct(ctx context.Context, companyId string, input *NewProduct) (*Product, error) {
	if err := requireCompanyId(companyId); err != nil {
		return nil, err
	}
	db := config.GetDB()

	product := Product{
		CompanyId:     companyId,
		Name:          input.Name,
		Sku:           input.Sku,
		UnitPrice:     input.UnitPrice,
		CurrencyCode:  utils.ResolveCurrencyCode(input.CurrencyCode),
		StockQuantity: input.OpeningStock,
		TrackStock:    input.TrackStock,
	}
	if product.TrackStock == nil {
		product.TrackStock = utils.NewTrue()
	}

	tx := db.Begin()
	if err := tx.WithContext(ctx).Create(&product).Error; err != nil {
		tx.Rollback()
		return nil, err
	}
	if input.OpeningStock.IsPositive() {
		movement := StockMovement{
			CompanyId:     companyId,
			ProductId:     product.ID,
			MovementType:  MovementTypeIn,
			Quantity:      input.OpeningStock,
			ReferenceType: StockReferenceTypeOpeningStock,
			ReferenceId:   product.ID,
			Notes:         "opening stock",
		}
		if err := tx.WithContext(ctx).Create(&movement).Error; err != nil {
			tx.Rollback()
			return nil, err
		}
	}
	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetProduct(ctx context.Context, companyId string, id int) (*Product, error) {
	return utils.FetchModel[Product](ctx, companyId, id)
}

func GetProducts(ctx context.Context, companyId string) ([]*Product, error) {
	return utils.FetchAllModels[Product](ctx, companyId)
}

// applyStockDelta adjusts a product's cached stock_quantity inside the
// caller's transaction. Negative results are floored at zero; the
// movement ledger stays the source of truth for history.
func applyStockDelta(tx *gorm.DB, companyId string, productId int, delta decimal.Decimal) error {
	var product Product
	if err := forUpdate(tx).
		Where("company_id = ? AND id = ?", companyId, productId).
		First(&product).Error; err != nil {
		return err
	}

	newQty := product.StockQuantity.Add(delta)
	if newQty.IsNegative() {
		newQty = decimal.Zero
	}
	return tx.Model(&Product{}).
		Where("company_id = ? AND id = ?", companyId, productId).
		Update("stock_quantity", newQty).Error
}
