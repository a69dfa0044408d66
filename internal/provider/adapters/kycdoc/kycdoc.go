package kycdoc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/verigate/verigate/internal/provider/domain"
)

// The kycdoc family fronts document-verification APIs: PAN, Voter ID, GST
// and driving licence lookups. All endpoints share a bearer-key JSON
// contract with a common response envelope.

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Family() string {
	return "kycdoc"
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

var operationPaths = map[string]string{
	"pan_verification":    "/v2/pan",
	"voter_id":            "/v2/voter",
	"gst_lookup":          "/v2/gst",
	"driving_licence":     "/v2/dl",
	"aadhaar_masked":      "/v2/aadhaar/masked",
	"passport_verify":     "/v2/passport",
}

type envelope struct {
	Success bool           `json:"success"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}

func (a *Adapter) Invoke(ctx context.Context, operationTag string, input map[string]any) (*domain.Result, error) {
	path, ok := operationPaths[operationTag]
	if !ok {
		return nil, domain.NewError(domain.KindMalformed, "unsupported kycdoc operation %q", operationTag)
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
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, domain.NewError(domain.KindTimeout, "kycdoc call timed out")
		}
		return nil, domain.NewError(domain.KindUnknown, "kycdoc call: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, domain.NewError(domain.KindUnknown, "read response: %v", err)
	}

	if kindErr := classifyStatus(resp.StatusCode); kindErr != nil {
		return nil, kindErr
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, domain.NewError(domain.KindMalformed, "decode response: %v", err)
	}

	if !env.Success {
		// Providers report "no record" inside a 200 envelope.
		if strings.Contains(strings.ToLower(env.Message), "no record") {
			return nil, domain.NewError(domain.KindNotFound, "%s", env.Message)
		}
		return nil, domain.NewError(domain.KindUnknown, "%s", env.Message)
	}

	summary := env.Message
	if summary == "" {
		summary = fmt.Sprintf("%s verified", operationTag)
	}

	return &domain.Result{
		Summary: summary,
		Data:    env.Data,
	}, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.NewError(domain.KindUnauthorized, "kycdoc rejected credentials (%d)", code)
	case code == http.StatusTooManyRequests:
		return domain.NewError(domain.KindRateLimited, "kycdoc rate limit hit")
	case code == http.StatusNotFound:
		return domain.NewError(domain.KindNotFound, "no record found")
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return domain.NewError(domain.KindMalformed, "kycdoc rejected request (%d)", code)
	default:
		return domain.NewError(domain.KindUnknown, "kycdoc returned %d", code)
	}
}
