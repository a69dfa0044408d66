package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/pkg/db/pagination"
)

type Service interface {
	// Reserve atomically checks the officer's balance and holds amount
	// against it, returning a reservation token. The check-and-decrement is
	// a single guarded update; two concurrent reservations can never both
	// succeed past the balance.
	Reserve(ctx context.Context, officerID snowflake.ID, amount int64) (snowflake.ID, error)

	// Commit converts a pending reservation into a permanent deduction
	// entry linked to queryID. Committing an already committed reservation
	// is a no-op.
	Commit(ctx context.Context, token snowflake.ID, queryID snowflake.ID) error

	// Release reverses a pending reservation and restores the balance.
	// Releasing an already released reservation is a no-op.
	Release(ctx context.Context, token snowflake.ID) error

	// Credit appends a positive topup/renewal/refund entry and increments
	// the balance. Administrative top-ups and compensating refunds go
	// through here, never through a direct field write.
	Credit(ctx context.Context, officerID snowflake.ID, amount int64, action LedgerAction, remarks string) (*LedgerEntry, error)

	// Balance reads the materialized credits_remaining projection.
	Balance(ctx context.Context, officerID snowflake.ID) (int64, error)

	// SweepExpiredReservations releases pending reservations created before
	// the cutoff, returning how many were released. Run by the background
	// reconciliation job so a crash mid-settlement cannot strand credits.
	SweepExpiredReservations(ctx context.Context, olderThan time.Time) (int, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type ListRequest struct {
	pagination.Pagination
	OfficerID snowflake.ID
	Action    LedgerAction
	StartAt   *time.Time
	EndAt     *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Entries []LedgerEntry `json:"entries"`
}

var (
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidAction       = errors.New("invalid_action")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	// ErrInconsistentSettlement means commit/release was invoked on a token
	// in a state that contradicts exactly-once settlement: committing a
	// released reservation, releasing a committed one, or settling an
	// unknown token. This is a programming error and is never swallowed.
	ErrInconsistentSettlement = errors.New("inconsistent_settlement")
)
