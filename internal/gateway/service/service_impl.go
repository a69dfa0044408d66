package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/verigate/verigate/internal/authz"
	"github.com/verigate/verigate/internal/config"
	gatewaydomain "github.com/verigate/verigate/internal/gateway/domain"
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	"github.com/verigate/verigate/internal/provider/adapters"
	providerdomain "github.com/verigate/verigate/internal/provider/domain"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	"github.com/verigate/verigate/pkg/telemetry"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	errorKindAuthorizationDenied = "authorization_denied"
	errorKindProviderUnavailable = "provider_unavailable"
	errorKindInsufficientCredits = "insufficient_credits"
)

type Params struct {
	fx.In

	Log      *zap.Logger
	Config   config.Config
	Authz    authz.Service
	Integs   integrationdomain.Service
	Ledger   ledgerdomain.Service
	QueryLog querylogdomain.Service
	Registry *adapters.Registry
	Metrics  *telemetry.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	cfg      config.Config
	authz    authz.Service
	integs   integrationdomain.Service
	ledger   ledgerdomain.Service
	queryLog querylogdomain.Service
	registry *adapters.Registry
	metrics  *telemetry.Metrics
}

func NewService(p Params) gatewaydomain.Service {
	return &Service{
		log:      p.Log.Named("gateway.service"),
		cfg:      p.Config,
		authz:    p.Authz,
		integs:   p.Integs,
		ledger:   p.Ledger,
		queryLog: p.QueryLog,
		registry: p.Registry,
		metrics:  p.Metrics,
	}
}

// Invoke runs one lookup through authorization, reservation, the provider
// call, and settlement. Cheap rejections (authorization, unavailable
// provider, insufficient credits) return the matching sentinel error
// alongside the audit record; provider-side failures return a failed
// result with the error kind captured for administrators.
func (s *Service) Invoke(ctx context.Context, req gatewaydomain.InvokeRequest) (*gatewaydomain.InvokeResult, error) {
	if req.OfficerID == 0 {
		return nil, gatewaydomain.ErrInvalidOfficer
	}
	operationTag := strings.ToLower(strings.TrimSpace(req.OperationTag))
	if operationTag == "" {
		return nil, gatewaydomain.ErrInvalidOperationTag
	}

	// Authorizing. Must fail before any credential lookup or reservation.
	if _, err := s.authz.Authorize(ctx, req.OfficerID, operationTag); err != nil {
		if errors.Is(err, authz.ErrAuthorizationDenied) || errors.Is(err, officerdomain.ErrOfficerNotFound) {
			result, recErr := s.recordCheapFailure(ctx, req, operationTag, "", errorKindAuthorizationDenied, "operation not permitted for this account")
			if recErr != nil {
				return nil, recErr
			}
			return result, authz.ErrAuthorizationDenied
		}
		return nil, err
	}

	integration, err := s.integs.Resolve(ctx, operationTag)
	if err != nil {
		if errors.Is(err, integrationdomain.ErrProviderUnavailable) {
			result, recErr := s.recordCheapFailure(ctx, req, operationTag, "", errorKindProviderUnavailable, "verification source is unavailable")
			if recErr != nil {
				return nil, recErr
			}
			return result, integrationdomain.ErrProviderUnavailable
		}
		return nil, err
	}

	adapter, err := s.buildAdapter(integration)
	if err != nil {
		s.log.Error("integration credential rejected by adapter",
			zap.String("provider", integration.ProviderTag),
			zap.Error(err),
		)
		result, recErr := s.recordCheapFailure(ctx, req, operationTag, integration.ProviderTag, errorKindProviderUnavailable, "verification source is unavailable")
		if recErr != nil {
			return nil, recErr
		}
		return result, integrationdomain.ErrProviderUnavailable
	}

	backoff := s.cfg.RetryBackoff
	maxAttempts := s.cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var result *gatewaydomain.InvokeResult
	for attempt := 1; ; attempt++ {
		var kind providerdomain.ErrorKind
		result, kind, err = s.attempt(ctx, req, operationTag, integration, adapter)
		if err != nil || result.Status == querylogdomain.QueryStatusSuccess {
			return result, err
		}

		// Retries are new invocations: fresh reservation, fresh record.
		if !kind.Retryable() || attempt >= maxAttempts {
			return result, nil
		}
		s.metrics.ObserveRetry(operationTag, string(kind))

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			// Caller abandoned the request. The attempt above is already
			// settled; just stop retrying.
			return result, nil
		}
		backoff *= 2
	}
}

// attempt runs Reserving -> Invoking -> Settling once. Every reservation it
// creates is committed or released before it returns.
func (s *Service) attempt(
	ctx context.Context,
	req gatewaydomain.InvokeRequest,
	operationTag string,
	integration *integrationdomain.ProviderIntegration,
	adapter providerdomain.Adapter,
) (*gatewaydomain.InvokeResult, providerdomain.ErrorKind, error) {
	// Reserving.
	token, err := s.ledger.Reserve(ctx, req.OfficerID, integration.CreditCost)
	if err != nil {
		if errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
			result, recErr := s.recordCheapFailure(ctx, req, operationTag, integration.ProviderTag, errorKindInsufficientCredits, "not enough credits for this lookup")
			if recErr != nil {
				return nil, "", recErr
			}
			return result, "", ledgerdomain.ErrInsufficientCredits
		}
		return nil, "", err
	}

	// Settlement must survive caller abandonment: once a reservation
	// exists, the pipeline runs to a terminal state even if the officer
	// navigates away.
	settleCtx := context.WithoutCancel(ctx)

	// Invoking.
	record, err := s.queryLog.Start(settleCtx, querylogdomain.StartRequest{
		OfficerID:    req.OfficerID,
		OperationTag: operationTag,
		ProviderTag:  integration.ProviderTag,
		Input:        req.Input,
	})
	if err != nil {
		if relErr := s.ledger.Release(settleCtx, token); relErr != nil {
			s.log.Error("release after query log failure", zap.Error(relErr))
		}
		return nil, "", err
	}

	callCtx, cancel := context.WithTimeout(settleCtx, s.cfg.ProviderTimeout)
	started := time.Now()
	providerResult, callErr := adapter.Invoke(callCtx, operationTag, req.Input)
	cancel()
	s.metrics.ObserveProviderCall(integration.ProviderTag, time.Since(started))

	// Settling.
	if callErr != nil {
		kind := providerdomain.KindOf(callErr)
		if err := s.ledger.Release(settleCtx, token); err != nil {
			return nil, "", err
		}
		if err := s.queryLog.MarkFailed(settleCtx, record.ID, string(kind), callErr.Error()); err != nil {
			return nil, "", err
		}
		s.metrics.ObserveLookup(operationTag, string(querylogdomain.QueryStatusFailed))
		return &gatewaydomain.InvokeResult{
			QueryID:   record.ID,
			Status:    querylogdomain.QueryStatusFailed,
			ErrorKind: string(kind),
		}, kind, nil
	}

	if err := s.ledger.Commit(settleCtx, token, record.ID); err != nil {
		return nil, "", err
	}
	if err := s.queryLog.MarkSuccess(settleCtx, record.ID, integration.CreditCost, providerResult.Summary, providerResult.Data); err != nil {
		// The deduction is committed; a settled record here means a replay
		// collision and must be loud, not fatal to the caller.
		s.log.Error("success settlement on already terminal record",
			zap.Int64("query_id", int64(record.ID)),
			zap.Error(err),
		)
	}

	s.metrics.ObserveLookup(operationTag, string(querylogdomain.QueryStatusSuccess))
	s.metrics.ObserveCreditsCharged(operationTag, integration.CreditCost)

	return &gatewaydomain.InvokeResult{
		QueryID:        record.ID,
		Status:         querylogdomain.QueryStatusSuccess,
		ResultSummary:  providerResult.Summary,
		FullResult:     providerResult.Data,
		CreditsCharged: integration.CreditCost,
	}, "", nil
}

func (s *Service) buildAdapter(integration *integrationdomain.ProviderIntegration) (providerdomain.Adapter, error) {
	cred, err := integration.DecodeCredential()
	if err != nil {
		return nil, err
	}
	return s.registry.NewAdapter(integration.Family, providerdomain.AdapterConfig{
		BaseURL: cred.BaseURL,
		APIKey:  cred.APIKey,
		Secret:  cred.Secret,
		Timeout: s.cfg.ProviderTimeout,
	})
}

// recordCheapFailure writes the terminal audit record for an attempt
// rejected before any provider call. No reservation exists at this point.
func (s *Service) recordCheapFailure(
	ctx context.Context,
	req gatewaydomain.InvokeRequest,
	operationTag, providerTag, errorKind, summary string,
) (*gatewaydomain.InvokeResult, error) {
	record, err := s.queryLog.RecordFailure(context.WithoutCancel(ctx), querylogdomain.StartRequest{
		OfficerID:    req.OfficerID,
		OperationTag: operationTag,
		ProviderTag:  providerTag,
		Input:        req.Input,
	}, errorKind, summary)
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveLookup(operationTag, string(querylogdomain.QueryStatusFailed))
	return &gatewaydomain.InvokeResult{
		QueryID:       record.ID,
		Status:        querylogdomain.QueryStatusFailed,
		ResultSummary: summary,
		ErrorKind:     errorKind,
	}, nil
}
