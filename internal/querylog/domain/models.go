package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// QueryStatus is the lifecycle of a lookup attempt. A record is created
// pending and transitions to exactly one terminal state.
type QueryStatus string

const (
	QueryStatusPending QueryStatus = "pending"
	QueryStatusSuccess QueryStatus = "success"
	QueryStatusFailed  QueryStatus = "failed"
)

// QueryRecord is the audit trail for one lookup attempt. Every invocation
// of the gateway produces a record; nothing is dropped silently. Terminal
// failed records always carry zero credits charged.
type QueryRecord struct {
	ID             snowflake.ID   `json:"id" gorm:"primaryKey"`
	OfficerID      snowflake.ID   `json:"officer_id" gorm:"not null;index"`
	OperationTag   string         `json:"operation_tag" gorm:"type:text;not null;index"`
	ProviderTag    string         `json:"provider_tag" gorm:"type:text;index"`
	InputSummary   string         `json:"input_summary" gorm:"type:text"`
	InputPayload   datatypes.JSON `json:"input_payload" gorm:"type:jsonb"`
	Status         QueryStatus    `json:"status" gorm:"type:text;not null;index"`
	ResultSummary  string         `json:"result_summary" gorm:"type:text"`
	FullResult     datatypes.JSON `json:"full_result" gorm:"type:jsonb"`
	ErrorKind      string         `json:"error_kind" gorm:"type:text"`
	CreditsCharged int64          `json:"credits_charged" gorm:"not null;default:0"`
	CreatedAt      time.Time      `json:"created_at" gorm:"not null;index"`
	CompletedAt    *time.Time     `json:"completed_at"`
}

// TableName sets the database table name.
func (QueryRecord) TableName() string { return "query_records" }
