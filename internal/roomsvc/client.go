// Package roomsvc speaks the room provider's server-side admin API.
// The coordinator uses it to validate membership before minting join
// credentials and to disconnect the initiating agent once a phone
// transfer bridges.
package roomsvc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shiftdesk/warm-transfer/pkg/logger"
)

const rpcPrefix = "/twirp/livekit.RoomService/"

// maxResponseBytes bounds admin API response reads.
const maxResponseBytes = 1 << 20

// ErrNotConfigured means no room provider URL is set; admin operations
// are unavailable and callers should fall back to local state.
var ErrNotConfigured = errors.New("roomsvc: room provider URL not configured")

// TokenSource mints the short-lived admin tokens sent with each
// request. *token.Minter satisfies this.
type TokenSource interface {
	MintServiceToken(room string, ttl time.Duration) (string, error)
}

// Client is the admin surface the rest of the service depends on.
type Client interface {
	// IsMember reports whether identity is currently connected to room.
	// A missing room counts as not-a-member rather than an error.
	IsMember(ctx context.Context, room, identity string) (bool, error)

	// RemoveParticipant disconnects identity from room.
	RemoveParticipant(ctx context.Context, room, identity string) error
}

// Config holds configuration for the admin client.
type Config struct {
	// URL is the room provider host. ws:// and wss:// schemes are
	// rewritten to their HTTP equivalents for admin calls. Empty
	// disables the client.
	URL string

	// Tokens signs the per-request service tokens. Required when URL
	// is set.
	Tokens TokenSource

	// HTTPClient defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	Logger *logger.Logger
}

// New builds an admin client. With no URL configured it returns a
// client whose methods fail with ErrNotConfigured.
func New(cfg Config) Client {
	if cfg.URL == "" {
		return disabled{}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &twirpClient{
		baseURL: adminBaseURL(cfg.URL),
		tokens:  cfg.Tokens,
		http:    httpClient,
		logger:  log,
	}
}

// adminBaseURL maps the signaling URL onto the HTTP admin endpoint.
func adminBaseURL(raw string) string {
	url := strings.TrimRight(raw, "/")
	switch {
	case strings.HasPrefix(url, "wss://"):
		return "https://" + strings.TrimPrefix(url, "wss://")
	case strings.HasPrefix(url, "ws://"):
		return "http://" + strings.TrimPrefix(url, "ws://")
	}
	return url
}

type disabled struct{}

func (disabled) IsMember(context.Context, string, string) (bool, error) {
	return false, ErrNotConfigured
}

func (disabled) RemoveParticipant(context.Context, string, string) error {
	return ErrNotConfigured
}

// APIError is a non-2xx admin API response, carrying the provider's
// error code and message when the body parses.
type APIError struct {
	Status int
	Code   string
	Msg    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("roomsvc: %s (%s): %s", http.StatusText(e.Status), e.Code, e.Msg)
	}
	return fmt.Sprintf("roomsvc: %s: %s", http.StatusText(e.Status), e.Msg)
}

type twirpClient struct {
	baseURL string
	tokens  TokenSource
	http    *http.Client
	logger  *logger.Logger
}

type participant struct {
	Identity string `json:"identity"`
	State    string `json:"state"`
}

type listParticipantsRequest struct {
	Room string `json:"room"`
}

type listParticipantsResponse struct {
	Participants []participant `json:"participants"`
}

type removeParticipantRequest struct {
	Room     string `json:"room"`
	Identity string `json:"identity"`
}

func (c *twirpClient) IsMember(ctx context.Context, room, identity string) (bool, error) {
	var resp listParticipantsResponse
	err := c.call(ctx, "ListParticipants", room, listParticipantsRequest{Room: room}, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	for _, p := range resp.Participants {
		if p.Identity == identity {
			return true, nil
		}
	}
	return false, nil
}

func (c *twirpClient) RemoveParticipant(ctx context.Context, room, identity string) error {
	return c.call(ctx, "RemoveParticipant", room, removeParticipantRequest{Room: room, Identity: identity}, nil)
}

// call executes one Twirp RPC with a freshly minted service token. The
// response body is decoded into result when result is non-nil.
func (c *twirpClient) call(ctx context.Context, rpc, room string, request, result any) error {
	payload, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("roomsvc: encoding %s request: %w", rpc, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+rpcPrefix+rpc, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("roomsvc: creating %s request: %w", rpc, err)
	}

	serviceToken, err := c.tokens.MintServiceToken(room, 0)
	if err != nil {
		return fmt.Errorf("roomsvc: minting service token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+serviceToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("roomsvc: %s: %w", rpc, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("roomsvc: reading %s response: %w", rpc, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, body)
		c.logger.Debug("admin API call failed",
			zap.String("rpc", rpc),
			zap.String("room", room),
			zap.Int("status", apiErr.Status),
			zap.String("code", apiErr.Code),
		)
		return apiErr
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("roomsvc: decoding %s response: %w", rpc, err)
		}
	}
	return nil
}

// parseAPIError decodes a Twirp error body, falling back to the raw
// text when it is not the expected JSON shape.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var wire struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	if json.Unmarshal(body, &wire) == nil && wire.Code != "" {
		apiErr.Code = wire.Code
		apiErr.Msg = wire.Msg
	} else {
		apiErr.Msg = strings.TrimSpace(string(body))
	}
	return apiErr
}
