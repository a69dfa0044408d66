package finsight

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/verigate/verigate/internal/provider/domain"
)

// The finsight family fronts financial verification APIs: UPI handle
// resolution, bank account penny-less verification, and IFSC lookups.
// Requests authenticate with a key/secret header pair.

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Family() string {
	return "finsight"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	if baseURL == "" || apiKey == "" || secret == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		secret:  secret,
		client:  &http.Client{},
	}, nil
}

type Adapter struct {
	baseURL string
	apiKey  string
	secret  string
	client  *http.Client
}

var operationPaths = map[string]string{
	"upi_resolve":    "/api/v1/upi/resolve",
	"bank_account":   "/api/v1/bank/verify",
	"ifsc_lookup":    "/api/v1/ifsc",
	"mobile_to_bank": "/api/v1/mobile/accounts",
}

// finsight wraps every response in {code, message, result}; code mirrors
// the HTTP status except for domain-level misses.
type envelope struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Result  map[string]any `json:"result"`
}

func (a *Adapter) Invoke(ctx context.Context, operationTag string, input map[string]any) (*domain.Result, error) {
	path, ok := operationPaths[operationTag]
	if !ok {
		return nil, domain.NewError(domain.KindMalformed, "unsupported finsight operation %q", operationTag)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, domain.NewError(domain.KindMalformed, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, domain.NewError(domain.KindUnknown, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Client-Key", a.apiKey)
	req.Header.Set("X-Client-Secret", a.secret)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindTimeout, "finsight call timed out")
		}
		return nil, domain.NewError(domain.KindUnknown, "finsight call: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, domain.NewError(domain.KindUnauthorized, "finsight rejected credentials (%d)", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, domain.NewError(domain.KindRateLimited, "finsight rate limit hit")
	case http.StatusBadRequest:
		return nil, domain.NewError(domain.KindMalformed, "finsight rejected request")
	default:
		return nil, domain.NewError(domain.KindUnknown, "finsight returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, domain.NewError(domain.KindMalformed, "decode response: %v", err)
	}

	switch env.Code {
	case 200:
	case 404:
		return nil, domain.NewError(domain.KindNotFound, "%s", env.Message)
	default:
		return nil, domain.NewError(domain.KindUnknown, "finsight code %d: %s", env.Code, env.Message)
	}

	summary := env.Message
	if summary == "" {
		if name, ok := env.Result["account_holder"].(string); ok {
			summary = "resolved to " + name
		} else {
			summary = operationTag + " resolved"
		}
	}

	return &domain.Result{
		Summary: summary,
		Data:    env.Result,
	}, nil
}
