package models_test

import (
	"context"
	"strings"
	"testing"

	"github.com/biasharahq/biashara_backend/config"
	"github.com/biasharahq/biashara_backend/models"
)

func TestReverseAppliedCreditNote(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)

	invoice1 := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "1000")
	invoice2 := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "500")
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "600", nil)

	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice1.ID, dec(t, "400")); err != nil {
		t.Fatalf("apply to invoice 1: %v", err)
	}
	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice2.ID, dec(t, "200")); err != nil {
		t.Fatalf("apply to invoice 2: %v", err)
	}

	summary, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "customer dispute withdrawn")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if summary.Status != models.CreditNoteStatusCancelled {
		t.Fatalf("summary status = %s, want Cancelled", summary.Status)
	}
	if summary.ReversedAllocations != 2 {
		t.Fatalf("reversed allocations = %d, want 2", summary.ReversedAllocations)
	}
	if summary.CreditNoteNumber != creditNote.CreditNoteNumber {
		t.Fatalf("summary number = %s, want %s", summary.CreditNoteNumber, creditNote.CreditNoteNumber)
	}

	reversed, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch reversed note: %v", err)
	}
	if reversed.CurrentStatus != models.CreditNoteStatusCancelled {
		t.Fatalf("status = %s, want Cancelled", reversed.CurrentStatus)
	}
	if !reversed.AppliedAmount.IsZero() {
		t.Fatalf("applied amount = %s, want 0", reversed.AppliedAmount)
	}
	if !reversed.Balance.Equal(reversed.TotalAmount) {
		t.Fatalf("balance = %s, want total %s", reversed.Balance, reversed.TotalAmount)
	}
	if len(reversed.Allocations) != 0 {
		t.Fatalf("allocations remaining = %d, want 0", len(reversed.Allocations))
	}
	if !strings.Contains(reversed.Notes, "Reversed: customer dispute withdrawn") {
		t.Fatalf("notes missing reversal reason: %q", reversed.Notes)
	}

	for _, seeded := range []*models.Invoice{invoice1, invoice2} {
		restored, err := models.GetInvoice(ctx, companyId, seeded.ID)
		if err != nil {
			t.Fatalf("fetch invoice %d: %v", seeded.ID, err)
		}
		if !restored.PaidAmount.IsZero() {
			t.Fatalf("invoice %s paid = %s, want 0", restored.InvoiceNumber, restored.PaidAmount)
		}
		if !restored.BalanceDue.Equal(restored.TotalAmount) {
			t.Fatalf("invoice %s balance due = %s, want %s", restored.InvoiceNumber, restored.BalanceDue, restored.TotalAmount)
		}
	}
}

func TestReverseCancelledCreditNoteIsTerminal(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "300", nil)

	if _, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "first pass"); err != nil {
		t.Fatalf("first reverse: %v", err)
	}

	_, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "second pass")
	if err == nil {
		t.Fatal("second reverse succeeded, want AlreadyCancelled")
	}
	if code := models.ReversalErrorCodeOf(err); code != models.ReversalErrorAlreadyCancelled {
		t.Fatalf("error code = %s, want %s", code, models.ReversalErrorAlreadyCancelled)
	}

	after, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if strings.Contains(after.Notes, "second pass") {
		t.Fatalf("failed reversal mutated notes: %q", after.Notes)
	}
}

func TestReverseNotFound(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)

	_, err := models.ReverseCreditNote(ctx, company.ID.String(), 999999, "")
	if err == nil {
		t.Fatal("reverse of missing note succeeded")
	}
	if code := models.ReversalErrorCodeOf(err); code != models.ReversalErrorNotFound {
		t.Fatalf("error code = %s, want %s", code, models.ReversalErrorNotFound)
	}
}

func TestReverseSurfacesStorageFailure(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "600", nil)

	if err := config.GetDB().Migrator().DropTable(&models.CreditNote{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}

	_, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "")
	if err == nil {
		t.Fatal("reverse succeeded against broken storage")
	}
	if code := models.ReversalErrorCodeOf(err); code != models.ReversalErrorTransactionFailure {
		t.Fatalf("error code = %s, want %s", code, models.ReversalErrorTransactionFailure)
	}
}

func TestReverseInventoryCreditNote(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)
	product := seedProduct(t, ctx, companyId, "10")

	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "2250", []models.NewCreditNoteItem{
		{ProductId: product.ID, Quantity: dec(t, "3")},
	})

	stocked, err := models.GetProduct(ctx, companyId, product.ID)
	if err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if !stocked.StockQuantity.Equal(dec(t, "13")) {
		t.Fatalf("stock after credit note = %s, want 13", stocked.StockQuantity)
	}

	summary, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "returned goods rejected")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if summary.ReversedStockMovements != 1 {
		t.Fatalf("reversed stock movements = %d, want 1", summary.ReversedStockMovements)
	}

	restocked, err := models.GetProduct(ctx, companyId, product.ID)
	if err != nil {
		t.Fatalf("fetch product: %v", err)
	}
	if !restocked.StockQuantity.Equal(dec(t, "10")) {
		t.Fatalf("stock after reversal = %s, want 10", restocked.StockQuantity)
	}

	// originals stay in the ledger; the reversal appends mirrored rows
	originalRef := models.StockReferenceTypeCreditNote
	originals, err := models.GetStockMovements(ctx, companyId, nil, &originalRef, &creditNote.ID)
	if err != nil {
		t.Fatalf("fetch original movements: %v", err)
	}
	if len(originals) != 1 || originals[0].MovementType != models.MovementTypeIn {
		t.Fatalf("original movements = %+v, want one IN row", originals)
	}

	mirroredRef := models.StockReferenceTypeCreditNoteReversal
	mirrored, err := models.GetStockMovements(ctx, companyId, nil, &mirroredRef, &creditNote.ID)
	if err != nil {
		t.Fatalf("fetch mirrored movements: %v", err)
	}
	if len(mirrored) != 1 {
		t.Fatalf("mirrored movements = %d, want 1", len(mirrored))
	}
	if mirrored[0].MovementType != models.MovementTypeOut {
		t.Fatalf("mirrored movement type = %s, want OUT", mirrored[0].MovementType)
	}
	if !mirrored[0].Quantity.Equal(originals[0].Quantity) {
		t.Fatalf("mirrored quantity = %s, want %s", mirrored[0].Quantity, originals[0].Quantity)
	}
}

func TestReverseUnappliedNonInventoryCreditNote(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "150", nil)

	summary, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if summary.ReversedAllocations != 0 || summary.ReversedStockMovements != 0 {
		t.Fatalf("summary = %+v, want no reversed allocations or movements", summary)
	}

	after, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if after.CurrentStatus != models.CreditNoteStatusCancelled {
		t.Fatalf("status = %s, want Cancelled", after.CurrentStatus)
	}
}

func TestReverseRollsBackWhenAllocatedInvoiceMissing(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)

	invoice1 := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "1000")
	invoice2 := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "500")
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "600", nil)

	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice1.ID, dec(t, "400")); err != nil {
		t.Fatalf("apply to invoice 1: %v", err)
	}
	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice2.ID, dec(t, "200")); err != nil {
		t.Fatalf("apply to invoice 2: %v", err)
	}

	// simulate external data loss of the second allocated invoice
	if err := config.GetDB().
		Where("company_id = ? AND id = ?", companyId, invoice2.ID).
		Delete(&models.Invoice{}).Error; err != nil {
		t.Fatalf("delete invoice 2: %v", err)
	}

	_, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "should roll back")
	if err == nil {
		t.Fatal("reverse succeeded with a missing allocated invoice")
	}
	if code := models.ReversalErrorCodeOf(err); code != models.ReversalErrorInvoiceNotFound {
		t.Fatalf("error code = %s, want %s", code, models.ReversalErrorInvoiceNotFound)
	}

	// nothing may have been persisted: invoice 1 keeps its allocation
	// effects and the note stays Applied with both allocation rows
	after, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch note: %v", err)
	}
	if after.CurrentStatus != models.CreditNoteStatusApplied {
		t.Fatalf("status = %s, want Applied", after.CurrentStatus)
	}
	if !after.AppliedAmount.Equal(dec(t, "600")) {
		t.Fatalf("applied amount = %s, want 600", after.AppliedAmount)
	}
	if len(after.Allocations) != 2 {
		t.Fatalf("allocations = %d, want 2", len(after.Allocations))
	}

	untouched, err := models.GetInvoice(ctx, companyId, invoice1.ID)
	if err != nil {
		t.Fatalf("fetch invoice 1: %v", err)
	}
	if !untouched.PaidAmount.Equal(dec(t, "400")) {
		t.Fatalf("invoice 1 paid = %s, want 400 untouched", untouched.PaidAmount)
	}
}

func TestReverseClampsNegativePaidAmount(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)

	invoice := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "1000")
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "400", nil)
	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice.ID, dec(t, "400")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// drift the invoice below the allocated amount, as an external
	// payment correction would
	if err := config.GetDB().Model(&models.Invoice{}).
		Where("company_id = ? AND id = ?", companyId, invoice.ID).
		Update("paid_amount", dec(t, "100")).Error; err != nil {
		t.Fatalf("drift paid amount: %v", err)
	}

	if _, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "clamp"); err != nil {
		t.Fatalf("reverse: %v", err)
	}

	restored, err := models.GetInvoice(ctx, companyId, invoice.ID)
	if err != nil {
		t.Fatalf("fetch invoice: %v", err)
	}
	if !restored.PaidAmount.IsZero() {
		t.Fatalf("paid amount = %s, want clamped to 0", restored.PaidAmount)
	}
}

func TestReverseStrictModeRejectsNegativeRestore(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)

	invoice := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "1000")
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "400", nil)
	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice.ID, dec(t, "400")); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if err := config.GetDB().Model(&models.Invoice{}).
		Where("company_id = ? AND id = ?", companyId, invoice.ID).
		Update("paid_amount", dec(t, "100")).Error; err != nil {
		t.Fatalf("drift paid amount: %v", err)
	}

	t.Setenv("STRICT_INVOICE_RESTORE", "true")

	_, err := models.ReverseCreditNote(ctx, companyId, creditNote.ID, "strict")
	if err == nil {
		t.Fatal("strict reverse succeeded, want failure")
	}
	if code := models.ReversalErrorCodeOf(err); code != models.ReversalErrorTransactionFailure {
		t.Fatalf("error code = %s, want %s", code, models.ReversalErrorTransactionFailure)
	}

	after, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch note: %v", err)
	}
	if after.CurrentStatus != models.CreditNoteStatusApplied {
		t.Fatalf("status = %s, want Applied after rollback", after.CurrentStatus)
	}
}

func TestReversalPreviewHasNoSideEffects(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()
	customer := seedCustomer(t, ctx, companyId)
	product := seedProduct(t, ctx, companyId, "5")

	invoice := seedSentInvoice(t, ctx, companyId, customer.ID, "KES", "1000")
	creditNote := seedSentCreditNote(t, ctx, companyId, customer.ID, "750", []models.NewCreditNoteItem{
		{ProductId: product.ID, Quantity: dec(t, "1")},
	})
	if _, err := models.ApplyCreditNoteToInvoice(ctx, companyId, creditNote.ID, invoice.ID, dec(t, "300")); err != nil {
		t.Fatalf("apply: %v", err)
	}

	preview, err := models.GetCreditNoteReversalPreview(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(preview.Allocations) != 1 {
		t.Fatalf("preview allocations = %d, want 1", len(preview.Allocations))
	}
	if len(preview.Invoices) != 1 || preview.Invoices[0].ID != invoice.ID {
		t.Fatalf("preview invoices = %+v, want the allocated invoice", preview.Invoices)
	}
	if len(preview.StockMovements) != 1 {
		t.Fatalf("preview stock movements = %d, want 1", len(preview.StockMovements))
	}

	after, err := models.GetCreditNote(ctx, companyId, creditNote.ID)
	if err != nil {
		t.Fatalf("fetch note: %v", err)
	}
	if after.CurrentStatus != models.CreditNoteStatusApplied {
		t.Fatalf("preview mutated status to %s", after.CurrentStatus)
	}
	if !after.AppliedAmount.Equal(dec(t, "300")) {
		t.Fatalf("preview mutated applied amount to %s", after.AppliedAmount)
	}
}
