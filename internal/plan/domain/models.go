package domain

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/lib/pq"
)

// RatePlan maps a subscribed plan to the operation tags it may invoke.
type RatePlan struct {
	ID                   snowflake.ID   `json:"id" gorm:"primaryKey"`
	Name                 string         `json:"name" gorm:"type:text;not null"`
	AllowedOperationTags pq.StringArray `json:"allowed_operation_tags" gorm:"type:text[];not null"`
	CreatedAt            time.Time      `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt            time.Time      `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (RatePlan) TableName() string { return "rate_plans" }

// Allows reports whether the plan's allowed set contains the operation tag.
func (p RatePlan) Allows(operationTag string) bool {
	for _, tag := range p.AllowedOperationTags {
		if tag == operationTag {
			return true
		}
	}
	return false
}

var (
	ErrPlanNotFound = errors.New("plan_not_found")
)
