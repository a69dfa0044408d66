package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// IntegrationStatus controls whether the gateway may dispatch to an
// integration. Anything other than active is never dispatched to.
type IntegrationStatus string

const (
	IntegrationStatusActive   IntegrationStatus = "active"
	IntegrationStatusInactive IntegrationStatus = "inactive"
	IntegrationStatusDisabled IntegrationStatus = "disabled"
)

// ProviderIntegration is one registered external verification provider:
// connection material, operational status, and the credit cost charged per
// successful lookup.
type ProviderIntegration struct {
	ID          snowflake.ID      `json:"id" gorm:"primaryKey"`
	Name        string            `json:"name" gorm:"type:text;not null"`
	ProviderTag string            `json:"provider_tag" gorm:"type:text;not null;uniqueIndex"`
	Family      string            `json:"family" gorm:"type:text;not null"`
	Status      IntegrationStatus `json:"status" gorm:"type:text;not null;default:'inactive'"`
	CreditCost  int64             `json:"credit_cost" gorm:"not null;default:0"`
	Credential  datatypes.JSON    `json:"credential" gorm:"type:jsonb"`
	CreatedAt   time.Time         `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt   time.Time         `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (ProviderIntegration) TableName() string { return "provider_integrations" }

func (i ProviderIntegration) IsUsable() bool {
	return i.Status == IntegrationStatusActive
}

// Credential is the decoded secret material handed to provider adapters.
type Credential struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
	Secret  string `json:"secret,omitempty"`
}

// DecodeCredential parses the stored credential JSON. Only the adapter call
// path may use the result; display paths must go through Redacted.
func (i ProviderIntegration) DecodeCredential() (Credential, error) {
	var cred Credential
	if len(i.Credential) == 0 {
		return cred, ErrInvalidCredential
	}
	if err := json.Unmarshal(i.Credential, &cred); err != nil {
		return cred, ErrInvalidCredential
	}
	if strings.TrimSpace(cred.BaseURL) == "" {
		return cred, ErrInvalidCredential
	}
	return cred, nil
}

// Redacted returns a display-safe copy with secret material masked.
func (i ProviderIntegration) Redacted() ProviderIntegration {
	out := i
	cred, err := i.DecodeCredential()
	if err != nil {
		out.Credential = nil
		return out
	}
	masked := Credential{
		BaseURL: cred.BaseURL,
		APIKey:  maskSecret(cred.APIKey),
	}
	if cred.Secret != "" {
		masked.Secret = maskSecret(cred.Secret)
	}
	raw, err := json.Marshal(masked)
	if err != nil {
		out.Credential = nil
		return out
	}
	out.Credential = raw
	return out
}

func maskSecret(value string) string {
	if len(value) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

// OperationRoute binds a logical operation tag to exactly one provider
// integration. Resolution is an exact key lookup; display names are never
// matched.
type OperationRoute struct {
	ID            snowflake.ID `json:"id" gorm:"primaryKey"`
	OperationTag  string       `json:"operation_tag" gorm:"type:text;not null;uniqueIndex"`
	IntegrationID snowflake.ID `json:"integration_id" gorm:"not null;index"`
	DisplayName   string       `json:"display_name" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (OperationRoute) TableName() string { return "operation_routes" }
