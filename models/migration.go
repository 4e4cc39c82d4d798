package models

import (
	"log"

	"github.com/biasharahq/biashara_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Company{}, &User{}, &Customer{},
		&Product{}, &StockMovement{},
		&ExchangeRate{},
		&Quotation{}, &Invoice{},
		&CreditNote{}, &CreditNoteAllocation{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
