package models_test

import (
	"context"
	"testing"

	"github.com/biasharahq/biashara_backend/models"
	"github.com/biasharahq/biashara_backend/utils"
)

func TestLoginIssuesTenantScopedToken(t *testing.T) {
	setupTestDB(t)
	ctx := context.Background()
	company := seedCompany(t, ctx)
	companyId := company.ID.String()

	if _, err := models.CreateUser(ctx, companyId, &models.NewUser{
		Name:     "Atieno O.",
		Email:    "atieno@biashara.co.ke",
		Password: "correct-horse-battery",
	}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	token, user, err := models.Login(ctx, &models.LoginInput{
		Email:    "atieno@biashara.co.ke",
		Password: "correct-horse-battery",
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if user.CompanyId != companyId {
		t.Fatalf("user company = %s, want %s", user.CompanyId, companyId)
	}

	parsed, err := utils.JwtValidate(token)
	if err != nil {
		t.Fatalf("validate token: %v", err)
	}
	claims, ok := parsed.Claims.(*utils.JwtCustomClaim)
	if !ok {
		t.Fatalf("unexpected claims type %T", parsed.Claims)
	}
	if claims.CompanyId != companyId {
		t.Fatalf("token company = %s, want %s", claims.CompanyId, companyId)
	}

	if _, _, err := models.Login(ctx, &models.LoginInput{
		Email:    "atieno@biashara.co.ke",
		Password: "wrong",
	}); err == nil {
		t.Fatal("login with wrong password succeeded")
	}
}
