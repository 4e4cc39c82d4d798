package config

import (
	"os"
	"strings"
)

// StrictInvoiceRestore makes credit-note reversal fail when restoring an
// allocation would push an invoice's paid_amount below zero, instead of
// flooring at zero.
//
// Set via env:
// - STRICT_INVOICE_RESTORE=true
func StrictInvoiceRestore() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_INVOICE_RESTORE")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// DefaultDisplayRate is the KES-per-USD rate used when a company has no
// exchange-rate rows yet.
//
// Set via env:
// - DEFAULT_DISPLAY_RATE=130
func DefaultDisplayRate() string {
	v := strings.TrimSpace(os.Getenv("DEFAULT_DISPLAY_RATE"))
	if v == "" {
		return "130"
	}
	return v
}
