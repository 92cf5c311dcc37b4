package telephony

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/internal/clock"
	"github.com/shiftdesk/warm-transfer/internal/model"
	"github.com/shiftdesk/warm-transfer/internal/retry"
	"github.com/shiftdesk/warm-transfer/pkg/logger"
	"github.com/shiftdesk/warm-transfer/pkg/metrics"
)

const (
	defaultProviderURL = "https://api.twilio.com"

	// Ring-timeout bounds imposed by the provider API.
	defaultCallTimeoutSeconds = 30
	maxCallTimeoutSeconds     = 60

	defaultMaxRetries = 3
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second

	maxResponseBytes = 1 << 20
)

// statusCallbackEvents are the call lifecycle events the provider
// reports to the status webhook.
var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

// ErrNotConfigured means provider credentials are missing; phone
// transfers are unavailable on this deployment.
var ErrNotConfigured = errors.New("telephony: provider credentials not configured")

// Call is the provider's view of one outbound call leg.
type Call struct {
	ID     string
	Status model.CallStatus
}

// CallRequest describes one outbound bridge call.
type CallRequest struct {
	To             string
	VoiceScript    string
	TimeoutSeconds int
}

// ProviderError is a non-2xx REST response from the provider.
type ProviderError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("telephony: provider returned %d (code %d): %s", e.HTTPStatus, e.Code, e.Message)
}

// Transient reports whether the failure may clear on retry. Rate
// limits and provider-side errors do; 4xx rejections, such as a
// malformed destination number, do not.
func (e *ProviderError) Transient() bool {
	return e.HTTPStatus == http.StatusTooManyRequests || e.HTTPStatus >= 500
}

// GatewayConfig wires a Gateway.
type GatewayConfig struct {
	AccountSID string
	AuthToken  string

	// From is the provisioned number outbound calls originate from.
	From string

	// StatusCallbackURL receives call status webhooks. Empty disables
	// callbacks and the service relies on polling alone.
	StatusCallbackURL string

	// BaseURL overrides the provider endpoint, for tests.
	BaseURL string

	HTTPClient *http.Client

	// MaxRetries bounds placement attempts, default 3.
	MaxRetries int

	// RetryDelay is the first backoff, default 1s, doubling per
	// attempt and capped at 30s.
	RetryDelay time.Duration

	Clock  clock.Clock
	Logger *logger.Logger
}

// Gateway places and inspects calls through the provider's REST API.
type Gateway struct {
	accountSID  string
	authToken   string
	from        string
	callbackURL string
	baseURL     string
	http        *http.Client
	maxRetries  int
	retryDelay  time.Duration
	clk         clock.Clock
	logger      *logger.Logger
}

// NewGateway builds a Gateway, applying defaults for any zero Config
// field. The gateway may be built without credentials; PlaceCall and
// FetchStatus then fail with ErrNotConfigured.
func NewGateway(cfg GatewayConfig) *Gateway {
	g := &Gateway{
		accountSID:  cfg.AccountSID,
		authToken:   cfg.AuthToken,
		from:        cfg.From,
		callbackURL: cfg.StatusCallbackURL,
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		http:        cfg.HTTPClient,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		clk:         cfg.Clock,
		logger:      cfg.Logger,
	}
	if g.baseURL == "" {
		g.baseURL = defaultProviderURL
	}
	if g.http == nil {
		g.http = &http.Client{Timeout: 30 * time.Second}
	}
	if g.maxRetries <= 0 {
		g.maxRetries = defaultMaxRetries
	}
	if g.retryDelay <= 0 {
		g.retryDelay = defaultRetryDelay
	}
	if g.clk == nil {
		g.clk = clock.Real()
	}
	if g.logger == nil {
		g.logger = logger.NewNop()
	}
	return g
}

// Configured reports whether provider credentials are present.
func (g *Gateway) Configured() bool {
	return g.accountSID != "" && g.authToken != "" && g.from != ""
}

// PlaceCall starts an outbound call running req.VoiceScript when the
// callee answers. Transient provider failures are retried with
// exponential backoff; rejections fail fast.
func (g *Gateway) PlaceCall(ctx context.Context, req CallRequest) (*Call, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}

	timeout := req.TimeoutSeconds
	if timeout <= 0 {
		timeout = defaultCallTimeoutSeconds
	}
	if timeout > maxCallTimeoutSeconds {
		timeout = maxCallTimeoutSeconds
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", g.from)
	form.Set("Twiml", req.VoiceScript)
	form.Set("Timeout", strconv.Itoa(timeout))
	if g.callbackURL != "" {
		form.Set("StatusCallback", g.callbackURL)
		form.Set("StatusCallbackMethod", http.MethodPost)
		for _, event := range statusCallbackEvents {
			form.Add("StatusCallbackEvent", event)
		}
	}

	policy := retry.Policy{
		MaxAttempts:  g.maxRetries,
		InitialDelay: g.retryDelay,
		MaxDelay:     maxRetryDelay,
		Retryable:    transientError,
		OnRetry: func(attempt int, err error) {
			g.logger.Warn("call placement failed, retrying",
				zap.Int("attempt", attempt),
				zap.String("to", req.To),
				zap.Error(err),
			)
		},
	}

	var call *Call
	err := retry.Do(ctx, g.clk, policy, func(ctx context.Context) error {
		placed, err := g.do(ctx, http.MethodPost, g.callsURL(), form)
		if err != nil {
			return err
		}
		call = placed
		return nil
	})
	if err != nil {
		metrics.RecordCallPlacement("failed")
		return nil, err
	}

	metrics.RecordCallPlacement("placed")
	g.logger.Info("call placed",
		zap.String("call_id", call.ID),
		zap.String("to", req.To),
		zap.String("status", string(call.Status)),
	)
	return call, nil
}

// FetchStatus returns the provider's current view of a placed call.
func (g *Gateway) FetchStatus(ctx context.Context, callID string) (*Call, error) {
	if !g.Configured() {
		return nil, ErrNotConfigured
	}
	return g.do(ctx, http.MethodGet, g.callURL(callID), nil)
}

func (g *Gateway) callsURL() string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls.json", g.baseURL, g.accountSID)
}

func (g *Gateway) callURL(callID string) string {
	return fmt.Sprintf("%s/2010-04-01/Accounts/%s/Calls/%s.json", g.baseURL, g.accountSID, url.PathEscape(callID))
}

func (g *Gateway) do(ctx context.Context, method, endpoint string, form url.Values) (*Call, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("telephony: creating provider request: %w", err)
	}
	req.SetBasicAuth(g.accountSID, g.authToken)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("telephony: provider request: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("telephony: reading provider response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseProviderError(resp.StatusCode, payload)
	}

	var wire struct {
		SID    string `json:"sid"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(payload, &wire); err != nil {
		return nil, fmt.Errorf("telephony: decoding provider response: %w", err)
	}
	if wire.SID == "" {
		return nil, fmt.Errorf("telephony: provider response missing call sid")
	}
	return &Call{
		ID:     wire.SID,
		Status: model.CallStatus(strings.ToLower(wire.Status)),
	}, nil
}

// transientError classifies placement failures for the retry loop.
// Transport-level errors count as transient.
func transientError(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Transient()
	}
	return true
}

// parseProviderError decodes the provider's error body, falling back
// to raw text when it is not the documented JSON shape.
func parseProviderError(status int, body []byte) *ProviderError {
	provErr := &ProviderError{HTTPStatus: status}

	var wire struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Message != "" {
		provErr.Code = wire.Code
		provErr.Message = wire.Message
	} else {
		provErr.Message = strings.TrimSpace(string(body))
	}
	return provErr
}
