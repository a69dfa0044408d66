package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

// OfficerStatus gates access to PRO lookups.
type OfficerStatus string

const (
	OfficerStatusActive    OfficerStatus = "active"
	OfficerStatusSuspended OfficerStatus = "suspended"
)

// Officer is an authenticated end-user of the verification portal.
//
// CreditsRemaining is a materialized projection over the ledger: it equals
// TotalCredits plus the signed sum of the officer's ledger entries, minus
// any reservations still pending. It is mutated only through the ledger
// service, never by a direct field write.
type Officer struct {
	ID               snowflake.ID  `json:"id" gorm:"primaryKey"`
	Name             string        `json:"name" gorm:"type:text;not null"`
	BadgeNo          string        `json:"badge_no" gorm:"type:text"`
	Status           OfficerStatus `json:"status" gorm:"type:text;not null;default:'active'"`
	PlanID           *snowflake.ID `json:"plan_id" gorm:"index"`
	CreditsRemaining int64         `json:"credits_remaining" gorm:"not null;default:0"`
	TotalCredits     int64         `json:"total_credits" gorm:"not null;default:0"`
	CreatedAt        time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt        time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (Officer) TableName() string { return "officers" }

func (o Officer) IsActive() bool {
	return o.Status == OfficerStatusActive
}

var (
	ErrOfficerNotFound = errors.New("officer_not_found")
)
