package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/verigate/verigate/internal/authz"
	"github.com/verigate/verigate/internal/config"
	gatewaydomain "github.com/verigate/verigate/internal/gateway/domain"
	ledgerdomain "github.com/verigate/verigate/internal/ledger/domain"
	querylogdomain "github.com/verigate/verigate/internal/querylog/domain"
	"go.uber.org/zap"
)

type fakeGatewayService struct {
	lastReq gatewaydomain.InvokeRequest
	result  *gatewaydomain.InvokeResult
	err     error
}

func (f *fakeGatewayService) Invoke(ctx context.Context, req gatewaydomain.InvokeRequest) (*gatewaydomain.InvokeResult, error) {
	f.lastReq = req
	if f.err != nil {
		return f.result, f.err
	}
	return f.result, nil
}

func newTestServer(t *testing.T, gateway gatewaydomain.Service) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := NewEngine(config.Config{})
	NewServer(Params{
		Gin:        engine,
		Cfg:        config.Config{},
		Log:        zap.NewNop(),
		GatewaySvc: gateway,
	})
	return engine
}

func postLookup(t *testing.T, engine *gin.Engine, officer string, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookups", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if officer != "" {
		req.Header.Set(HeaderOfficer, officer)
	}

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestInvokeEndpointSuccess(t *testing.T) {
	officerID := snowflake.ID(7123456789)
	fake := &fakeGatewayService{
		result: &gatewaydomain.InvokeResult{
			QueryID:        snowflake.ID(42),
			Status:         querylogdomain.QueryStatusSuccess,
			ResultSummary:  "PAN is valid",
			CreditsCharged: 3,
		},
	}
	engine := newTestServer(t, fake)

	w := postLookup(t, engine, officerID.String(), map[string]any{
		"operation_tag": "pan_verification",
		"input":         map[string]any{"pan_number": "ABCPD1234F"},
	})

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if fake.lastReq.OfficerID != officerID {
		t.Fatalf("expected officer %s forwarded, got %s", officerID, fake.lastReq.OfficerID)
	}
	if fake.lastReq.OperationTag != "pan_verification" {
		t.Fatalf("unexpected operation tag %q", fake.lastReq.OperationTag)
	}

	var payload struct {
		Data gatewaydomain.InvokeResult `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Data.CreditsCharged != 3 {
		t.Fatalf("expected 3 credits in response, got %d", payload.Data.CreditsCharged)
	}
}

func TestInvokeEndpointRequiresOfficerHeader(t *testing.T) {
	engine := newTestServer(t, &fakeGatewayService{})

	w := postLookup(t, engine, "", map[string]any{"operation_tag": "pan_verification"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without officer header, got %d", w.Code)
	}

	w = postLookup(t, engine, "not-a-number", map[string]any{"operation_tag": "pan_verification"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for malformed officer header, got %d", w.Code)
	}
}

func TestInvokeEndpointErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "authorization denied", err: authz.ErrAuthorizationDenied, want: http.StatusForbidden},
		{name: "insufficient credits", err: ledgerdomain.ErrInsufficientCredits, want: http.StatusPaymentRequired},
		{name: "invalid operation tag", err: gatewaydomain.ErrInvalidOperationTag, want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestServer(t, &fakeGatewayService{err: tc.err})

			w := postLookup(t, engine, "12345", map[string]any{
				"operation_tag": "pan_verification",
				"input":         map[string]any{"pan_number": "X"},
			})
			if w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}

			var resp errorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error body: %v", err)
			}
			if resp.Error.Type == "" {
				t.Fatal("expected typed error payload")
			}
		})
	}
}

func TestInvokeEndpointRejectsMalformedBody(t *testing.T) {
	engine := newTestServer(t, &fakeGatewayService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/lookups", bytes.NewReader([]byte("{broken")))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderOfficer, "12345")

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", w.Code)
	}
}
