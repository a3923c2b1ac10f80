// Package whatsapp is the HTTP client for the WhatsApp Business
// messaging provider.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/clinicore/platform/internal/notification"
	"github.com/clinicore/platform/internal/shared/types"
)

// errCodeOutsideWindow is the provider's rejection code for free-form
// text to a recipient whose 24-hour session has expired.
const errCodeOutsideWindow = "outside_session_window"

// Config holds configuration for the WhatsApp provider client
type Config struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`

	// Rate limiting per the provider's messaging tier
	RatePerSecond float64 `json:"rate_per_second"`
	Burst         int     `json:"burst"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Timeout:       15 * time.Second,
		RatePerSecond: 10,
		Burst:         20,
	}
}

// Client talks to the WhatsApp provider's REST API. It implements the
// notification chat provider contract, translating the provider's
// session-window rejection into the sentinel the chat sender branches
// on.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// New creates a new WhatsApp provider client
func New(cfg Config) *Client {
	def := DefaultConfig()
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.RatePerSecond == 0 {
		cfg.RatePerSecond = def.RatePerSecond
	}
	if cfg.Burst == 0 {
		cfg.Burst = def.Burst
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
	}
}

type accountStatusResponse struct {
	Connected bool `json:"connected"`
}

// Connected checks whether the clinic's WhatsApp Business account is
// linked with the provider
func (c *Client) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/status", c.baseURL, clinicID)

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch whatsapp account status: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	var apiResp accountStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return false, fmt.Errorf("failed to decode response: %w", err)
	}

	return apiResp.Connected, nil
}

type sendTextRequest struct {
	ClinicID string `json:"clinic_id"`
	To       string `json:"to"`
	Body     string `json:"body"`
}

type sendTemplateRequest struct {
	ClinicID string   `json:"clinic_id"`
	To       string   `json:"to"`
	Template string   `json:"template"`
	Params   []string `json:"params"`
}

type sendResponse struct {
	MessageID string `json:"message_id"`
	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendText delivers a free-form text message. When the recipient's
// session window is closed the provider rejects the send and
// ErrOutsideSessionWindow is returned.
func (c *Client) SendText(ctx context.Context, clinicID types.ID, to, body string) (string, error) {
	payload, err := json.Marshal(sendTextRequest{
		ClinicID: clinicID.String(),
		To:       to,
		Body:     body,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	return c.send(ctx, c.baseURL+"/v1/messages/text", payload)
}

// SendTemplate delivers a pre-approved template message with positional
// parameters. Template sends work regardless of the session window.
func (c *Client) SendTemplate(ctx context.Context, clinicID types.ID, to string, template notification.MetaTemplateName, params []string) (string, error) {
	payload, err := json.Marshal(sendTemplateRequest{
		ClinicID: clinicID.String(),
		To:       to,
		Template: string(template),
		Params:   params,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal template request: %w", err)
	}

	return c.send(ctx, c.baseURL+"/v1/messages/template", payload)
}

func (c *Client) send(ctx context.Context, url string, payload []byte) (string, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	var apiResp sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted {
		return apiResp.MessageID, nil
	}

	if apiResp.ErrorCode == errCodeOutsideWindow {
		return "", notification.ErrOutsideSessionWindow
	}

	return "", fmt.Errorf("unexpected status code %d: %s %s", resp.StatusCode, apiResp.ErrorCode, apiResp.Error)
}

func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.httpClient.Do(req)
}
