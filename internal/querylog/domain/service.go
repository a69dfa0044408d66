package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/pkg/db/pagination"
)

type Service interface {
	// Start writes a pending record for an in-flight provider call.
	Start(ctx context.Context, req StartRequest) (*QueryRecord, error)

	// MarkSuccess settles a pending record with the normalized result and
	// the credits charged. A record settles at most once.
	MarkSuccess(ctx context.Context, id snowflake.ID, creditsCharged int64, resultSummary string, fullResult map[string]any) error

	// MarkFailed settles a pending record with an error kind. Failed
	// lookups are never billed, so credits charged stays zero.
	MarkFailed(ctx context.Context, id snowflake.ID, errorKind, resultSummary string) error

	// RecordFailure writes a record that is terminal from the start, for
	// attempts rejected before any provider call (authorization denials,
	// unavailable providers, insufficient credits).
	RecordFailure(ctx context.Context, req StartRequest, errorKind, resultSummary string) (*QueryRecord, error)

	List(ctx context.Context, req ListRequest) (ListResponse, error)
}

type StartRequest struct {
	OfficerID    snowflake.ID
	OperationTag string
	ProviderTag  string
	Input        map[string]any
}

type ListRequest struct {
	pagination.Pagination
	OfficerID    snowflake.ID
	OperationTag string
	Status       QueryStatus
	StartAt      *time.Time
	EndAt        *time.Time
}

type ListResponse struct {
	pagination.PageInfo
	Queries []QueryRecord `json:"queries"`
}

type Repository interface {
	Insert(ctx context.Context, record *QueryRecord) error
	Settle(ctx context.Context, id snowflake.ID, update TerminalUpdate) (bool, error)
	FindByID(ctx context.Context, id snowflake.ID) (*QueryRecord, error)
	List(ctx context.Context, filter ListRequest, limit int, cursor *pagination.Cursor) ([]*QueryRecord, error)
}

// TerminalUpdate carries the one-shot transition out of pending.
type TerminalUpdate struct {
	Status         QueryStatus
	ResultSummary  string
	FullResult     []byte
	ErrorKind      string
	CreditsCharged int64
	CompletedAt    time.Time
}

var (
	ErrInvalidOperationTag = errors.New("invalid_operation_tag")
	ErrInvalidOfficer      = errors.New("invalid_officer")
	ErrRecordNotFound      = errors.New("query_record_not_found")
	ErrInvalidTimeRange    = errors.New("invalid_time_range")
	ErrInvalidPageToken    = errors.New("invalid_page_token")

	// ErrAlreadySettled signals a second terminal transition on the same
	// record, which exactly-once settlement forbids.
	ErrAlreadySettled = errors.New("query_already_settled")
)
