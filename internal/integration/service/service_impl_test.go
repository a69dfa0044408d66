package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/verigate/verigate/internal/integration/domain"
	"github.com/verigate/verigate/internal/integration/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupIntegrationService(t *testing.T) (domain.Service, *snowflake.Node) {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&domain.ProviderIntegration{}, &domain.OperationRoute{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	svc := NewService(Params{
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(db),
	})
	return svc, node
}

func createIntegration(t *testing.T, svc domain.Service, status domain.IntegrationStatus) *domain.ProviderIntegration {
	t.Helper()
	integration, err := svc.Create(context.Background(), domain.CreateRequest{
		Name:        "KYC Doc Sandbox",
		ProviderTag: "kycdoc_sandbox_" + string(status),
		Family:      "kycdoc",
		Status:      status,
		CreditCost:  3,
		Credential: domain.Credential{
			BaseURL: "https://sandbox.kycdoc.test",
			APIKey:  "sk_live_9f8e7d6c5b4a",
		},
	})
	if err != nil {
		t.Fatalf("create integration: %v", err)
	}
	return integration
}

func TestResolveActiveRoute(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	created := createIntegration(t, svc, domain.IntegrationStatusActive)

	ctx := context.Background()
	if _, err := svc.BindOperation(ctx, domain.BindOperationRequest{
		OperationTag:  "pan_verification",
		IntegrationID: created.ID,
		DisplayName:   "PAN Verification",
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	resolved, err := svc.Resolve(ctx, "pan_verification")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != created.ID {
		t.Fatalf("resolved wrong integration %s", resolved.ID)
	}

	// The call path needs real credential material.
	cred, err := resolved.DecodeCredential()
	if err != nil {
		t.Fatalf("decode credential: %v", err)
	}
	if cred.APIKey != "sk_live_9f8e7d6c5b4a" {
		t.Fatalf("resolve must return the unredacted credential, got %q", cred.APIKey)
	}
}

func TestResolveIsExactMatchOnly(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	created := createIntegration(t, svc, domain.IntegrationStatusActive)

	ctx := context.Background()
	if _, err := svc.BindOperation(ctx, domain.BindOperationRequest{
		OperationTag:  "pan_verification",
		IntegrationID: created.ID,
		DisplayName:   "PAN Verification",
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if _, err := svc.Resolve(ctx, "pan"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("partial tag must not resolve, got %v", err)
	}
	if _, err := svc.Resolve(ctx, "PAN Verification"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("display name must not resolve, got %v", err)
	}
}

func TestResolveInactiveIntegrationIsUnavailable(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	created := createIntegration(t, svc, domain.IntegrationStatusInactive)

	ctx := context.Background()
	if _, err := svc.BindOperation(ctx, domain.BindOperationRequest{
		OperationTag:  "voter_id",
		IntegrationID: created.ID,
	}); err != nil {
		t.Fatalf("bind: %v", err)
	}

	if _, err := svc.Resolve(ctx, "voter_id"); !errors.Is(err, domain.ErrProviderUnavailable) {
		t.Fatalf("inactive integration must be unavailable, got %v", err)
	}
}

func TestBindOperationRejectsDuplicateTag(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	first := createIntegration(t, svc, domain.IntegrationStatusActive)
	second := createIntegration(t, svc, domain.IntegrationStatusInactive)

	ctx := context.Background()
	if _, err := svc.BindOperation(ctx, domain.BindOperationRequest{
		OperationTag:  "gst_lookup",
		IntegrationID: first.ID,
	}); err != nil {
		t.Fatalf("first bind: %v", err)
	}

	if _, err := svc.BindOperation(ctx, domain.BindOperationRequest{
		OperationTag:  "gst_lookup",
		IntegrationID: second.ID,
	}); !errors.Is(err, domain.ErrDuplicateRoute) {
		t.Fatalf("expected duplicate route, got %v", err)
	}
}

func TestListRedactsCredentials(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	createIntegration(t, svc, domain.IntegrationStatusActive)

	integrations, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(integrations) != 1 {
		t.Fatalf("expected one integration, got %d", len(integrations))
	}

	var cred domain.Credential
	if err := json.Unmarshal(integrations[0].Credential, &cred); err != nil {
		t.Fatalf("decode listed credential: %v", err)
	}
	if cred.APIKey == "sk_live_9f8e7d6c5b4a" {
		t.Fatal("listing must never expose the raw key")
	}
	if cred.APIKey != "****************5b4a" {
		t.Fatalf("expected masked key keeping a short suffix, got %q", cred.APIKey)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := setupIntegrationService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateRequest{ProviderTag: "x", Credential: domain.Credential{BaseURL: "https://x"}}); !errors.Is(err, domain.ErrInvalidName) {
		t.Fatalf("expected invalid name, got %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "x", Credential: domain.Credential{BaseURL: "https://x"}}); !errors.Is(err, domain.ErrInvalidProviderTag) {
		t.Fatalf("expected invalid provider tag, got %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "x", ProviderTag: "x", CreditCost: -1, Credential: domain.Credential{BaseURL: "https://x"}}); !errors.Is(err, domain.ErrInvalidCreditCost) {
		t.Fatalf("expected invalid credit cost, got %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "x", ProviderTag: "x", Status: "retired", Credential: domain.Credential{BaseURL: "https://x"}}); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected invalid status, got %v", err)
	}
	if _, err := svc.Create(ctx, domain.CreateRequest{Name: "x", ProviderTag: "x"}); !errors.Is(err, domain.ErrInvalidCredential) {
		t.Fatalf("expected invalid credential, got %v", err)
	}
}
