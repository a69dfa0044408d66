package service

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/verigate/verigate/internal/clock"
	"github.com/verigate/verigate/internal/querylog/domain"
	"github.com/verigate/verigate/internal/querylog/masking"
	"github.com/verigate/verigate/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		log:   p.Log.Named("querylog.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) buildRecord(req domain.StartRequest) (*domain.QueryRecord, error) {
	if req.OfficerID == 0 {
		return nil, domain.ErrInvalidOfficer
	}
	operationTag := strings.TrimSpace(req.OperationTag)
	if operationTag == "" {
		return nil, domain.ErrInvalidOperationTag
	}

	var payload []byte
	if len(req.Input) > 0 {
		raw, err := json.Marshal(req.Input)
		if err == nil {
			payload = raw
		}
	}

	return &domain.QueryRecord{
		ID:           s.genID.Generate(),
		OfficerID:    req.OfficerID,
		OperationTag: operationTag,
		ProviderTag:  strings.TrimSpace(req.ProviderTag),
		InputSummary: masking.Summarize(req.Input),
		InputPayload: payload,
		Status:       domain.QueryStatusPending,
		CreatedAt:    s.clock.Now(),
	}, nil
}

func (s *Service) Start(ctx context.Context, req domain.StartRequest) (*domain.QueryRecord, error) {
	record, err := s.buildRecord(req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) MarkSuccess(ctx context.Context, id snowflake.ID, creditsCharged int64, resultSummary string, fullResult map[string]any) error {
	var raw []byte
	if len(fullResult) > 0 {
		encoded, err := json.Marshal(fullResult)
		if err == nil {
			raw = encoded
		}
	}

	settled, err := s.repo.Settle(ctx, id, domain.TerminalUpdate{
		Status:         domain.QueryStatusSuccess,
		ResultSummary:  resultSummary,
		FullResult:     raw,
		CreditsCharged: creditsCharged,
		CompletedAt:    s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !settled {
		s.log.Error("second terminal transition on query record",
			zap.Int64("query_id", int64(id)),
			zap.String("attempted", string(domain.QueryStatusSuccess)),
		)
		return domain.ErrAlreadySettled
	}
	return nil
}

func (s *Service) MarkFailed(ctx context.Context, id snowflake.ID, errorKind, resultSummary string) error {
	settled, err := s.repo.Settle(ctx, id, domain.TerminalUpdate{
		Status:        domain.QueryStatusFailed,
		ResultSummary: resultSummary,
		ErrorKind:     errorKind,
		CompletedAt:   s.clock.Now(),
	})
	if err != nil {
		return err
	}
	if !settled {
		s.log.Error("second terminal transition on query record",
			zap.Int64("query_id", int64(id)),
			zap.String("attempted", string(domain.QueryStatusFailed)),
		)
		return domain.ErrAlreadySettled
	}
	return nil
}

func (s *Service) RecordFailure(ctx context.Context, req domain.StartRequest, errorKind, resultSummary string) (*domain.QueryRecord, error) {
	record, err := s.buildRecord(req)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	record.Status = domain.QueryStatusFailed
	record.ErrorKind = errorKind
	record.ResultSummary = resultSummary
	record.CompletedAt = &now

	if err := s.repo.Insert(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (domain.ListResponse, error) {
	if req.StartAt != nil && req.EndAt != nil && req.EndAt.Before(*req.StartAt) {
		return domain.ListResponse{}, domain.ErrInvalidTimeRange
	}

	limit := req.PageSize
	if limit <= 0 {
		limit = 25
	}

	var cursor *pagination.Cursor
	if req.PageToken != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return domain.ListResponse{}, domain.ErrInvalidPageToken
		}
		cursor = decoded
	}

	records, err := s.repo.List(ctx, req, limit, cursor)
	if err != nil {
		return domain.ListResponse{}, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(records, limit, func(r *domain.QueryRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{
			ID:        strconv.FormatInt(int64(r.ID), 10),
			CreatedAt: r.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		return token
	})

	out := make([]domain.QueryRecord, 0, len(page))
	for _, r := range page {
		out = append(out, *r)
	}
	return domain.ListResponse{
		PageInfo: *pageInfo,
		Queries:  out,
	}, nil
}
