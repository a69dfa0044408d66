package seed

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/bwmarrin/snowflake"
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	plandomain "github.com/verigate/verigate/internal/plan/domain"
	"gorm.io/gorm"
)

const (
	demoPlanName    = "Standard PRO"
	demoOfficerName = "Demo Officer"
)

// EnsureDemoData seeds a plan, an officer, and sandbox provider
// integrations so a fresh install can run lookups immediately.
func EnsureDemoData(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := ensurePlanTx(ctx, tx, node)
		if err != nil {
			return err
		}
		if err := ensureOfficerTx(ctx, tx, node, plan.ID); err != nil {
			return err
		}
		return ensureIntegrationsTx(ctx, tx, node)
	})
}

func ensurePlanTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (*plandomain.RatePlan, error) {
	var plan plandomain.RatePlan
	err := tx.WithContext(ctx).Where("name = ?", demoPlanName).First(&plan).Error
	if err == nil {
		return &plan, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	plan = plandomain.RatePlan{
		ID:   node.Generate(),
		Name: demoPlanName,
		AllowedOperationTags: []string{
			"pan_verification",
			"voter_id",
			"gst_lookup",
			"upi_resolve",
			"bank_account",
			"rc_lookup",
		},
	}
	if err := tx.WithContext(ctx).Create(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func ensureOfficerTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node, planID snowflake.ID) error {
	var existing officerdomain.Officer
	err := tx.WithContext(ctx).Where("name = ?", demoOfficerName).First(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	return tx.WithContext(ctx).Create(&officerdomain.Officer{
		ID:               node.Generate(),
		Name:             demoOfficerName,
		BadgeNo:          "DEMO-001",
		Status:           officerdomain.OfficerStatusActive,
		PlanID:           &planID,
		CreditsRemaining: 100,
		TotalCredits:     100,
	}).Error
}

func ensureIntegrationsTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) error {
	integrations := []struct {
		name       string
		tag        string
		family     string
		cost       int64
		operations []string
	}{
		{"Sandbox KYC Docs", "kycdoc_sandbox", "kycdoc", 3, []string{"pan_verification", "voter_id", "gst_lookup"}},
		{"Sandbox Finsight", "finsight_sandbox", "finsight", 2, []string{"upi_resolve", "bank_account"}},
		{"Sandbox Vahanix", "vahanix_sandbox", "vahanix", 4, []string{"rc_lookup"}},
	}

	for _, item := range integrations {
		var existing integrationdomain.ProviderIntegration
		err := tx.WithContext(ctx).Where("provider_tag = ?", item.tag).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		cred, err := json.Marshal(integrationdomain.Credential{
			BaseURL: "https://sandbox.invalid/" + item.family,
			APIKey:  "sandbox-key",
			Secret:  "sandbox-secret",
		})
		if err != nil {
			return err
		}

		integration := integrationdomain.ProviderIntegration{
			ID:          node.Generate(),
			Name:        item.name,
			ProviderTag: item.tag,
			Family:      item.family,
			Status:      integrationdomain.IntegrationStatusActive,
			CreditCost:  item.cost,
			Credential:  cred,
		}
		if err := tx.WithContext(ctx).Create(&integration).Error; err != nil {
			return err
		}

		for _, op := range item.operations {
			if err := tx.WithContext(ctx).Create(&integrationdomain.OperationRoute{
				ID:            node.Generate(),
				OperationTag:  op,
				IntegrationID: integration.ID,
				DisplayName:   item.name,
			}).Error; err != nil {
				return err
			}
		}
	}
	return nil
}
