package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
)

// InvokeRequest is the call contract consumed by the portal's lookup
// forms: which officer wants which logical operation run on which input.
type InvokeRequest struct {
	OfficerID    snowflake.ID
	OperationTag string
	Input        map[string]any
}

// InvokeResult is the terminal outcome of one lookup. Failed lookups carry
// the error kind for the audit trail and zero credits charged.
type InvokeResult struct {
	QueryID        snowflake.ID               `json:"query_id"`
	Status         querylogdomain.QueryStatus `json:"status"`
	ResultSummary  string                     `json:"result_summary"`
	FullResult     map[string]any             `json:"full_result,omitempty"`
	CreditsCharged int64                      `json:"credits_charged"`
	ErrorKind      string                     `json:"error_kind,omitempty"`
}

// Service sequences authorization, credit reservation, the provider call,
// and settlement for every PRO lookup. It is the only writer of ledger and
// query log state.
type Service interface {
	Invoke(ctx context.Context, req InvokeRequest) (*InvokeResult, error)
}

var (
	ErrInvalidOperationTag = errors.New("invalid_operation_tag")
	ErrInvalidOfficer      = errors.New("invalid_officer")
)
