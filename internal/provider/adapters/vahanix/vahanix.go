package vahanix

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/verigate/verigate/internal/provider/domain"
)

// The vahanix family fronts vehicle-record APIs: registration certificate
// and chassis lookups. The upstream is an older gateway that takes
// form-encoded requests with the key in the form body.

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Family() string {
	return "vahanix"
}

func (f *Factory) NewAdapter(cfg domain.AdapterConfig) (domain.Adapter, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	apiKey := strings.TrimSpace(cfg.APIKey)
	if baseURL == "" || apiKey == "" {
		return nil, domain.ErrInvalidConfig
	}

	return &Adapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{},
	}, nil
}

type Adapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var operationTypes = map[string]string{
	"rc_lookup":      "rc",
	"chassis_lookup": "chassis",
	"dl_vehicle":     "dl",
}

type envelope struct {
	Status  string         `json:"status"`
	Remark  string         `json:"remark"`
	Vehicle map[string]any `json:"vehicle"`
}

func (a *Adapter) Invoke(ctx context.Context, operationTag string, input map[string]any) (*domain.Result, error) {
	lookupType, ok := operationTypes[operationTag]
	if !ok {
		return nil, domain.NewError(domain.KindMalformed, "unsupported vahanix operation %q", operationTag)
	}

	form := url.Values{}
	form.Set("apikey", a.apiKey)
	form.Set("type", lookupType)
	for key, value := range input {
		form.Set(key, fmt.Sprintf("%v", value))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/lookup", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, domain.NewError(domain.KindUnknown, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindTimeout, "vahanix call timed out")
		}
		return nil, domain.NewError(domain.KindUnknown, "vahanix call: %v", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, domain.NewError(domain.KindUnauthorized, "vahanix rejected key (%d)", resp.StatusCode)
	case http.StatusTooManyRequests:
		return nil, domain.NewError(domain.KindRateLimited, "vahanix rate limit hit")
	default:
		return nil, domain.NewError(domain.KindUnknown, "vahanix returned %d", resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, domain.NewError(domain.KindMalformed, "decode response: %v", err)
	}

	switch strings.ToUpper(env.Status) {
	case "OK", "SUCCESS":
	case "NOT_FOUND", "NO_RECORD":
		return nil, domain.NewError(domain.KindNotFound, "%s", env.Remark)
	case "INVALID":
		return nil, domain.NewError(domain.KindMalformed, "%s", env.Remark)
	default:
		return nil, domain.NewError(domain.KindUnknown, "vahanix status %s: %s", env.Status, env.Remark)
	}

	summary := env.Remark
	if summary == "" {
		if owner, ok := env.Vehicle["owner_name"].(string); ok {
			summary = "registered to " + owner
		} else {
			summary = "vehicle record found"
		}
	}

	return &domain.Result{
		Summary: summary,
		Data:    env.Vehicle,
	}, nil
}
