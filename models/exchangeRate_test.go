package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/biasharahq/biashara_backend/models"
)

func TestGetDisplayRatePicksNewestOnOrBefore(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()

	rates := []struct {
		date time.Time
		rate string
	}{
		{time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "125"},
		{time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "128.5"},
		{time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), "132"},
	}
	for _, r := range rates {
		if _, err := models.CreateExchangeRate(ctx, companyId, &models.NewExchangeRate{
			RateDate: r.date,
			Rate:     dec(t, r.rate),
		}); err != nil {
			t.Fatalf("create rate %s: %v", r.rate, err)
		}
	}

	got, err := models.GetDisplayRate(ctx, companyId, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("display rate: %v", err)
	}
	if !got.Equal(dec(t, "128.5")) {
		t.Fatalf("rate = %s, want 128.5 (newest on or before date)", got)
	}

	got, err = models.GetDisplayRate(ctx, companyId, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("display rate: %v", err)
	}
	if !got.Equal(dec(t, "132")) {
		t.Fatalf("rate = %s, want 132", got)
	}
}

func TestGetDisplayRateFallsBackToDefault(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)

	got, err := models.GetDisplayRate(ctx, company.ID.String(), time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("display rate: %v", err)
	}
	if !got.Equal(dec(t, "130")) {
		t.Fatalf("rate = %s, want configured default 130", got)
	}
}

func TestCreateExchangeRateRejectsNonPositive(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)

	_, err := models.CreateExchangeRate(ctx, company.ID.String(), &models.NewExchangeRate{
		RateDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		Rate:     dec(t, "0"),
	})
	if err == nil {
		t.Fatal("zero rate accepted")
	}
}
