package models

import "fmt"

type CreditNoteStatus string

const (
	CreditNoteStatusDraft     CreditNoteStatus = "Draft"
	CreditNoteStatusSent      CreditNoteStatus = "Sent"
	CreditNoteStatusApplied   CreditNoteStatus = "Applied"
	CreditNoteStatusCancelled CreditNoteStatus = "Cancelled"
)

type InvoiceStatus string

const (
	InvoiceStatusDraft       InvoiceStatus = "Draft"
	InvoiceStatusSent        InvoiceStatus = "Sent"
	InvoiceStatusPartialPaid InvoiceStatus = "Partial Paid"
	InvoiceStatusPaid        InvoiceStatus = "Paid"
	InvoiceStatusCancelled   InvoiceStatus = "Cancelled"
)

type QuotationStatus string

const (
	QuotationStatusDraft    QuotationStatus = "Draft"
	QuotationStatusSent     QuotationStatus = "Sent"
	QuotationStatusAccepted QuotationStatus = "Accepted"
	QuotationStatusInvoiced QuotationStatus = "Invoiced"
	QuotationStatusDeclined QuotationStatus = "Declined"
)

type MovementType string

const (
	MovementTypeIn  MovementType = "IN"
	MovementTypeOut MovementType = "OUT"
)

// Flip returns the opposite movement direction.
func (m MovementType) Flip() MovementType {
	if m == MovementTypeIn {
		return MovementTypeOut
	}
	return MovementTypeIn
}

// StockReferenceType tags a stock movement with the document that
// produced it. Reversal movements never mutate the originals; they are
// appended under their own tag.
type StockReferenceType string

const (
	StockReferenceTypeOpeningStock       StockReferenceType = "OPENING_STOCK"
	StockReferenceTypeInvoice            StockReferenceType = "INVOICE"
	StockReferenceTypeCreditNote         StockReferenceType = "CREDIT_NOTE"
	StockReferenceTypeCreditNoteReversal StockReferenceType = "CREDIT_NOTE_REVERSAL"
)

// ParseCreditNoteStatus validates free-form status input.
func ParseCreditNoteStatus(str string) (CreditNoteStatus, error) {
	switch CreditNoteStatus(str) {
	case CreditNoteStatusDraft, CreditNoteStatusSent, CreditNoteStatusApplied, CreditNoteStatusCancelled:
		return CreditNoteStatus(str), nil
	}
	return "", fmt.Errorf("%s is not a valid credit note status", str)
}
