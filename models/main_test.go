package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/models"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB points the package at a shared in-memory SQLite database.
// Tests isolate themselves by company id, so the shared schema is fine.
func setupTestDB(t *testing.T) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	config.SetDB(db)
	models.MigrateTable()
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func seedCompany(t *testing.T, ctx context.Context) *models.Company {
	t.Helper()
	company, err := models.CreateCompany(ctx, &models.NewCompany{
		Name:  "Biashara Traders Ltd",
		Email: "ops@biashara.co.ke",
	})
	if err != nil {
		t.Fatalf("seed company: %v", err)
	}
	return company
}

func seedCustomer(t *testing.T, ctx context.Context, companyId string) *models.Customer {
	t.Helper()
	customer, err := models.CreateCustomer(ctx, companyId, &models.NewCustomer{
		Name:   "Wanjiku Hardware",
		Email:  "accounts@wanjiku.co.ke",
		KraPin: "A012345678Z",
	})
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return customer
}

func seedSentInvoice(t *testing.T, ctx context.Context, companyId string, customerId int, currency string, total string) *models.Invoice {
	t.Helper()
	invoice, err := models.CreateInvoice(ctx, companyId, &models.NewInvoice{
		CustomerId:   customerId,
		InvoiceDate:  time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		CurrencyCode: currency,
		TotalAmount:  dec(t, total),
	})
	if err != nil {
		t.Fatalf("seed invoice: %v", err)
	}
	invoice, err = models.MarkInvoiceSent(ctx, companyId, invoice.ID)
	if err != nil {
		t.Fatalf("send invoice: %v", err)
	}
	return invoice
}

func seedSentCreditNote(t *testing.T, ctx context.Context, companyId string, customerId int, total string, items []models.NewCreditNoteItem) *models.CreditNote {
	t.Helper()
	input := models.NewCreditNote{
		CustomerId:     customerId,
		CreditNoteDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
		TotalAmount:    dec(t, total),
		Items:          items,
	}
	if len(items) > 0 {
		affects := true
		input.AffectsInventory = &affects
	}
	creditNote, err := models.CreateCreditNote(ctx, companyId, &input)
	if err != nil {
		t.Fatalf("seed credit note: %v", err)
	}
	creditNote, err = models.MarkCreditNoteSent(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("send credit note: %v", err)
	}
	return creditNote
}

func seedProduct(t *testing.T, ctx context.Context, companyId string, openingStock string) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(ctx, companyId, &models.NewProduct{
		Name:         "Cement Bag 50kg",
		Sku:          "CEM-50",
		UnitPrice:    dec(t, "750"),
		OpeningStock: dec(t, openingStock),
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product
}
