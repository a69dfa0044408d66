package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// LedgerAction classifies a balance-affecting event.
type LedgerAction string

const (
	ActionTopUp     LedgerAction = "topup"
	ActionRenewal   LedgerAction = "renewal"
	ActionDeduction LedgerAction = "deduction"
	ActionRefund    LedgerAction = "refund"
)

// LedgerEntry is an immutable credit transaction. Entries are only ever
// appended; corrections happen through compensating refund entries.
type LedgerEntry struct {
	ID             snowflake.ID  `json:"id" gorm:"primaryKey"`
	OfficerID      snowflake.ID  `json:"officer_id" gorm:"not null;index"`
	Action         LedgerAction  `json:"action" gorm:"type:text;not null;index"`
	CreditsDelta   int64         `json:"credits_delta" gorm:"not null"`
	RelatedQueryID *snowflake.ID `json:"related_query_id" gorm:"index"`
	Remarks        string        `json:"remarks" gorm:"type:text"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;index"`
}

// TableName sets the database table name.
func (LedgerEntry) TableName() string { return "ledger_entries" }

// ReservationStatus tracks a tentative deduction through settlement.
type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

// Reservation is an uncommitted credit deduction held while a provider call
// is in flight. Every reservation is settled exactly once: committed into a
// deduction entry or released back to the balance.
type Reservation struct {
	ID        snowflake.ID      `json:"id" gorm:"primaryKey"`
	OfficerID snowflake.ID      `json:"officer_id" gorm:"not null;index"`
	Amount    int64             `json:"amount" gorm:"not null"`
	Status    ReservationStatus `json:"status" gorm:"type:text;not null;index"`
	QueryID   *snowflake.ID     `json:"query_id"`
	CreatedAt time.Time         `json:"created_at" gorm:"not null;index"`
	SettledAt *time.Time        `json:"settled_at"`
}

// TableName sets the database table name.
func (Reservation) TableName() string { return "credit_reservations" }
