package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/verigate/verigate/internal/authz"
	"github.com/verigate/verigate/internal/clock"
	"github.com/verigate/verigate/internal/config"
	gatewaydomain "github.com/verigate/verigate/internal/gateway/domain"
	integrationdomain "github.com/verigate/verigate/internal/integration/domain"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	ledgerservice "github.com/verigate/verigate/internal/ledger/service"
	officerdomain "github.com/verigate/verigate/internal/officer/domain"
	"github.com/verigate/verigate/internal/provider/adapters"
	providerdomain "github.com/verigate/verigate/internal/provider/domain"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	querylogrepository "github.com/verigate/verigate/internal/querylog/repository"
	querylogservice "github.com/verigate/verigate/internal/querylog/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type authzStub struct {
	mu      sync.Mutex
	calls   int
	officer *officerdomain.Officer
	err     error
}

func (a *authzStub) Authorize(ctx context.Context, officerID snowflake.ID, operationTag string) (*officerdomain.Officer, error) {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.officer, nil
}

type integrationStub struct {
	mu          sync.Mutex
	resolves    int
	integration *integrationdomain.ProviderIntegration
	err         error
}

func (s *integrationStub) Resolve(ctx context.Context, operationTag string) (*integrationdomain.ProviderIntegration, error) {
	s.mu.Lock()
	s.resolves++
	s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return s.integration, nil
}

func (s *integrationStub) List(ctx context.Context) ([]integrationdomain.ProviderIntegration, error) {
	return nil, nil
}

func (s *integrationStub) Create(ctx context.Context, req integrationdomain.CreateRequest) (*integrationdomain.ProviderIntegration, error) {
	return nil, nil
}

func (s *integrationStub) SetStatus(ctx context.Context, id snowflake.ID, status integrationdomain.IntegrationStatus) error {
	return nil
}

func (s *integrationStub) BindOperation(ctx context.Context, req integrationdomain.BindOperationRequest) (*integrationdomain.OperationRoute, error) {
	return nil, nil
}

func (s *integrationStub) ListRoutes(ctx context.Context) ([]integrationdomain.OperationRoute, error) {
	return nil, nil
}

func (s *integrationStub) resolveCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolves
}

// scriptedAdapter returns the queued outcomes in order, repeating the last
// one once the script runs out.
type scriptedAdapter struct {
	mu      sync.Mutex
	calls   int
	results []*providerdomain.Result
	errs    []error
}

func (a *scriptedAdapter) Invoke(ctx context.Context, operationTag string, input map[string]any) (*providerdomain.Result, error) {
	a.mu.Lock()
	idx := a.calls
	a.calls++
	a.mu.Unlock()
	if idx >= len(a.errs) {
		idx = len(a.errs) - 1
	}
	if err := a.errs[idx]; err != nil {
		return nil, err
	}
	return a.results[idx], nil
}

func (a *scriptedAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type scriptedFactory struct {
	adapter providerdomain.Adapter
}

func (f *scriptedFactory) Family() string { return "scripted" }

func (f *scriptedFactory) NewAdapter(cfg providerdomain.AdapterConfig) (providerdomain.Adapter, error) {
	return f.adapter, nil
}

type gatewayFixture struct {
	svc     gatewaydomain.Service
	db      *gorm.DB
	node    *snowflake.Node
	authz   *authzStub
	integs  *integrationStub
	officer snowflake.ID
}

func setupGateway(t *testing.T, credits, cost int64, adapter providerdomain.Adapter) *gatewayFixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	if err := db.AutoMigrate(
		&officerdomain.Officer{},
		&ledgerdomain.LedgerEntry{},
		&ledgerdomain.Reservation{},
		&querylogdomain.QueryRecord{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	officerID := node.Generate()
	officer := officerdomain.Officer{
		ID:               officerID,
		Name:             "Test Officer",
		Status:           officerdomain.OfficerStatusActive,
		CreditsRemaining: credits,
		TotalCredits:     credits,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	if err := db.Create(&officer).Error; err != nil {
		t.Fatalf("seed officer: %v", err)
	}

	credential, err := json.Marshal(integrationdomain.Credential{
		BaseURL: "https://sandbox.example.test",
		APIKey:  "test-key",
	})
	if err != nil {
		t.Fatalf("credential: %v", err)
	}
	integration := &integrationdomain.ProviderIntegration{
		ID:          node.Generate(),
		Name:        "Scripted Sandbox",
		ProviderTag: "scripted_sandbox",
		Family:      "scripted",
		Status:      integrationdomain.IntegrationStatusActive,
		CreditCost:  cost,
		Credential:  credential,
	}

	auth := &authzStub{officer: &officer}
	integs := &integrationStub{integration: integration}

	clk := clock.NewSystemClock()
	ledgerSvc := ledgerservice.NewService(ledgerservice.Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
	})
	queryLogSvc := querylogservice.NewService(querylogservice.Params{
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clk,
		Repo:  querylogrepository.Provide(db),
	})

	svc := NewService(Params{
		Log: zap.NewNop(),
		Config: config.Config{
			ProviderTimeout: time.Second,
			MaxAttempts:     2,
			RetryBackoff:    time.Millisecond,
		},
		Authz:    auth,
		Integs:   integs,
		Ledger:   ledgerSvc,
		QueryLog: queryLogSvc,
		Registry: adapters.NewRegistry(&scriptedFactory{adapter: adapter}),
	})

	return &gatewayFixture{
		svc:     svc,
		db:      db,
		node:    node,
		authz:   auth,
		integs:  integs,
		officer: officerID,
	}
}

func (f *gatewayFixture) balance(t *testing.T) int64 {
	t.Helper()
	var officer officerdomain.Officer
	if err := f.db.First(&officer, "id = ?", f.officer).Error; err != nil {
		t.Fatalf("load officer: %v", err)
	}
	return officer.CreditsRemaining
}

func (f *gatewayFixture) reservations(t *testing.T) []ledgerdomain.Reservation {
	t.Helper()
	var rows []ledgerdomain.Reservation
	if err := f.db.Order("created_at asc").Find(&rows).Error; err != nil {
		t.Fatalf("load reservations: %v", err)
	}
	return rows
}

func (f *gatewayFixture) records(t *testing.T) []querylogdomain.QueryRecord {
	t.Helper()
	var rows []querylogdomain.QueryRecord
	if err := f.db.Order("created_at asc, id asc").Find(&rows).Error; err != nil {
		t.Fatalf("load query records: %v", err)
	}
	return rows
}

func TestInvokeSuccessChargesExactCost(t *testing.T) {
	adapter := &scriptedAdapter{
		results: []*providerdomain.Result{{Summary: "record found", Data: map[string]any{"name": "R****H"}}},
		errs:    []error{nil},
	}
	f := setupGateway(t, 5, 3, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "pan_verification",
		Input:        map[string]any{"pan_number": "ABCPD1234F"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if result.Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.ErrorKind)
	}
	if result.CreditsCharged != 3 {
		t.Fatalf("expected 3 credits charged, got %d", result.CreditsCharged)
	}
	if got := f.balance(t); got != 2 {
		t.Fatalf("expected balance 2, got %d", got)
	}

	reservations := f.reservations(t)
	if len(reservations) != 1 || reservations[0].Status != ledgerdomain.ReservationStatusCommitted {
		t.Fatalf("expected one committed reservation, got %+v", reservations)
	}

	records := f.records(t)
	if len(records) != 1 || records[0].Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected one success record, got %+v", records)
	}
	if records[0].CreditsCharged != 3 {
		t.Fatalf("expected record charged 3, got %d", records[0].CreditsCharged)
	}
}

func TestInvokeZeroCostOperationSucceeds(t *testing.T) {
	adapter := &scriptedAdapter{
		results: []*providerdomain.Result{{Summary: "record found", Data: map[string]any{"name": "R****H"}}},
		errs:    []error{nil},
	}
	f := setupGateway(t, 5, 0, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "ifsc_lookup",
		Input:        map[string]any{"ifsc": "HDFC0000001"},
	})
	if err != nil {
		t.Fatalf("zero-cost invoke: %v", err)
	}

	if result.Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected success, got %s (%s)", result.Status, result.ErrorKind)
	}
	if result.CreditsCharged != 0 {
		t.Fatalf("expected 0 credits charged, got %d", result.CreditsCharged)
	}
	if got := f.balance(t); got != 5 {
		t.Fatalf("expected untouched balance 5, got %d", got)
	}

	reservations := f.reservations(t)
	if len(reservations) != 1 || reservations[0].Status != ledgerdomain.ReservationStatusCommitted {
		t.Fatalf("expected one committed reservation, got %+v", reservations)
	}

	var entries int64
	_ = f.db.Model(&ledgerdomain.LedgerEntry{}).Count(&entries).Error
	if entries != 0 {
		t.Fatalf("zero-cost lookup must not append ledger entries, got %d", entries)
	}

	records := f.records(t)
	if len(records) != 1 || records[0].Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected one success record, got %+v", records)
	}
	if records[0].CreditsCharged != 0 {
		t.Fatalf("expected record charged 0, got %d", records[0].CreditsCharged)
	}
}

func TestInvokeProviderFailureIsNotBilled(t *testing.T) {
	adapter := &scriptedAdapter{
		results: []*providerdomain.Result{nil},
		errs:    []error{providerdomain.NewError(providerdomain.KindNotFound, "no record matched")},
	}
	f := setupGateway(t, 5, 3, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "pan_verification",
		Input:        map[string]any{"pan_number": "ABCPD1234F"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if result.Status != querylogdomain.QueryStatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if result.ErrorKind != string(providerdomain.KindNotFound) {
		t.Fatalf("expected not_found kind, got %q", result.ErrorKind)
	}
	if got := f.balance(t); got != 5 {
		t.Fatalf("failed lookup must not be billed, balance %d", got)
	}

	// not_found is terminal on first occurrence
	if adapter.callCount() != 1 {
		t.Fatalf("expected a single provider call, got %d", adapter.callCount())
	}

	reservations := f.reservations(t)
	if len(reservations) != 1 || reservations[0].Status != ledgerdomain.ReservationStatusReleased {
		t.Fatalf("expected one released reservation, got %+v", reservations)
	}
}

func TestInvokeRetriesWithFreshReservation(t *testing.T) {
	adapter := &scriptedAdapter{
		results: []*providerdomain.Result{nil, {Summary: "resolved", Data: map[string]any{"name": "S****A"}}},
		errs:    []error{providerdomain.NewError(providerdomain.KindRateLimited, "throttled"), nil},
	}
	f := setupGateway(t, 10, 2, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "upi_resolve",
		Input:        map[string]any{"upi_id": "someone@okbank"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if result.Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected success after retry, got %s (%s)", result.Status, result.ErrorKind)
	}
	if adapter.callCount() != 2 {
		t.Fatalf("expected 2 provider calls, got %d", adapter.callCount())
	}
	if got := f.balance(t); got != 8 {
		t.Fatalf("expected single charge of 2, balance %d", got)
	}

	reservations := f.reservations(t)
	if len(reservations) != 2 {
		t.Fatalf("each attempt must hold its own reservation, got %d", len(reservations))
	}
	statuses := map[ledgerdomain.ReservationStatus]int{}
	for _, r := range reservations {
		statuses[r.Status]++
	}
	if statuses[ledgerdomain.ReservationStatusReleased] != 1 || statuses[ledgerdomain.ReservationStatusCommitted] != 1 {
		t.Fatalf("expected one released and one committed reservation, got %v", statuses)
	}

	records := f.records(t)
	if len(records) != 2 {
		t.Fatalf("each attempt must write its own record, got %d", len(records))
	}
}

func TestInvokeStopsRetryingAtMaxAttempts(t *testing.T) {
	adapter := &scriptedAdapter{
		results: []*providerdomain.Result{nil},
		errs:    []error{providerdomain.NewError(providerdomain.KindTimeout, "deadline exceeded")},
	}
	f := setupGateway(t, 10, 2, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "rc_lookup",
		Input:        map[string]any{"registration_number": "KA01AB1234"},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}

	if result.Status != querylogdomain.QueryStatusFailed {
		t.Fatalf("expected failed result, got %s", result.Status)
	}
	if adapter.callCount() != 2 {
		t.Fatalf("expected max 2 attempts, got %d", adapter.callCount())
	}
	if got := f.balance(t); got != 10 {
		t.Fatalf("expected full balance restored, got %d", got)
	}

	for _, r := range f.reservations(t) {
		if r.Status != ledgerdomain.ReservationStatusReleased {
			t.Fatalf("expected every reservation released, got %+v", r)
		}
	}
}

func TestInvokeInsufficientCredits(t *testing.T) {
	adapter := &scriptedAdapter{results: []*providerdomain.Result{nil}, errs: []error{nil}}
	f := setupGateway(t, 1, 3, adapter)

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "pan_verification",
		Input:        map[string]any{"pan_number": "ABCPD1234F"},
	})
	if !errors.Is(err, ledgerdomain.ErrInsufficientCredits) {
		t.Fatalf("expected insufficient credits sentinel, got %v", err)
	}
	if result == nil || result.Status != querylogdomain.QueryStatusFailed {
		t.Fatalf("expected failed audit record, got %+v", result)
	}
	if result.ErrorKind != "insufficient_credits" {
		t.Fatalf("expected insufficient_credits kind, got %q", result.ErrorKind)
	}

	if adapter.callCount() != 0 {
		t.Fatal("provider must not be called without a reservation")
	}
	if len(f.reservations(t)) != 0 {
		t.Fatal("no reservation may exist after a balance rejection")
	}
	if got := f.balance(t); got != 1 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
}

func TestInvokeAuthorizationDeniedBeforeResolve(t *testing.T) {
	adapter := &scriptedAdapter{results: []*providerdomain.Result{nil}, errs: []error{nil}}
	f := setupGateway(t, 5, 3, adapter)
	f.authz.err = authz.ErrAuthorizationDenied

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "gst_lookup",
		Input:        map[string]any{"gstin": "29ABCDE1234F1Z5"},
	})
	if !errors.Is(err, authz.ErrAuthorizationDenied) {
		t.Fatalf("expected authorization denied, got %v", err)
	}
	if result == nil || result.ErrorKind != "authorization_denied" {
		t.Fatalf("expected denial audit record, got %+v", result)
	}

	if f.integs.resolveCalls() != 0 {
		t.Fatal("credential resolution must not run for a denied officer")
	}
	if adapter.callCount() != 0 {
		t.Fatal("provider must not be called for a denied officer")
	}
	if got := f.balance(t); got != 5 {
		t.Fatalf("balance must be untouched, got %d", got)
	}
}

func TestInvokeProviderUnavailable(t *testing.T) {
	adapter := &scriptedAdapter{results: []*providerdomain.Result{nil}, errs: []error{nil}}
	f := setupGateway(t, 5, 3, adapter)
	f.integs.err = integrationdomain.ErrProviderUnavailable

	result, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID:    f.officer,
		OperationTag: "pan_verification",
		Input:        map[string]any{"pan_number": "ABCPD1234F"},
	})
	if !errors.Is(err, integrationdomain.ErrProviderUnavailable) {
		t.Fatalf("expected provider unavailable, got %v", err)
	}
	if result == nil || result.ErrorKind != "provider_unavailable" {
		t.Fatalf("expected unavailable audit record, got %+v", result)
	}
	if len(f.reservations(t)) != 0 {
		t.Fatal("no reservation may exist when resolution fails")
	}
}

func TestInvokeValidatesRequest(t *testing.T) {
	adapter := &scriptedAdapter{results: []*providerdomain.Result{nil}, errs: []error{nil}}
	f := setupGateway(t, 5, 3, adapter)

	if _, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OperationTag: "pan_verification",
	}); !errors.Is(err, gatewaydomain.ErrInvalidOfficer) {
		t.Fatalf("expected invalid officer, got %v", err)
	}
	if _, err := f.svc.Invoke(context.Background(), gatewaydomain.InvokeRequest{
		OfficerID: f.officer,
	}); !errors.Is(err, gatewaydomain.ErrInvalidOperationTag) {
		t.Fatalf("expected invalid operation tag, got %v", err)
	}
}

func TestInvokeSettlesDespiteCallerCancellation(t *testing.T) {
	release := make(chan struct{})
	adapter := &blockingAdapter{release: release, result: &providerdomain.Result{Summary: "record found"}}
	f := setupGateway(t, 5, 3, adapter)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	var result *gatewaydomain.InvokeResult
	var invokeErr error
	go func() {
		defer close(done)
		result, invokeErr = f.svc.Invoke(ctx, gatewaydomain.InvokeRequest{
			OfficerID:    f.officer,
			OperationTag: "pan_verification",
			Input:        map[string]any{"pan_number": "ABCPD1234F"},
		})
	}()

	// Abandon the request while the provider call is in flight.
	adapter.waitUntilCalled(t)
	cancel()
	close(release)
	<-done

	if invokeErr != nil {
		t.Fatalf("invoke: %v", invokeErr)
	}
	if result.Status != querylogdomain.QueryStatusSuccess {
		t.Fatalf("expected settlement to complete, got %s", result.Status)
	}
	if got := f.balance(t); got != 2 {
		t.Fatalf("expected charge applied once, balance %d", got)
	}

	reservations := f.reservations(t)
	if len(reservations) != 1 || reservations[0].Status != ledgerdomain.ReservationStatusCommitted {
		t.Fatalf("expected committed reservation, got %+v", reservations)
	}
}

// blockingAdapter parks the provider call until released so the test can
// cancel the caller context mid-flight.
type blockingAdapter struct {
	mu      sync.Mutex
	called  chan struct{}
	once    sync.Once
	release chan struct{}
	result  *providerdomain.Result
}

func (a *blockingAdapter) Invoke(ctx context.Context, operationTag string, input map[string]any) (*providerdomain.Result, error) {
	a.mu.Lock()
	if a.called == nil {
		a.called = make(chan struct{})
	}
	called := a.called
	a.mu.Unlock()
	a.once.Do(func() { close(called) })

	select {
	case <-a.release:
		return a.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *blockingAdapter) waitUntilCalled(t *testing.T) {
	t.Helper()
	a.mu.Lock()
	if a.called == nil {
		a.called = make(chan struct{})
	}
	called := a.called
	a.mu.Unlock()

	select {
	case <-called:
	case <-time.After(2 * time.Second):
		t.Fatal("provider call never started")
	}
}
