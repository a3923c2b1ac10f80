// Package mail is the HTTP client for the transactional email provider.
package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/clinicore/platform/internal/shared/types"
)

// Config holds configuration for the mail provider client
type Config struct {
	BaseURL string        `json:"base_url"`
	APIKey  string        `json:"api_key"`
	Timeout time.Duration `json:"timeout"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Timeout: 15 * time.Second,
	}
}

// Client talks to the mail provider's REST API. It implements the
// notification mail provider contract.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// New creates a new mail provider client
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type accountStatusResponse struct {
	Connected bool `json:"connected"`
}

// Connected checks whether the clinic's sending domain is verified with
// the provider
func (c *Client) Connected(ctx context.Context, clinicID types.ID) (bool, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/status", c.baseURL, clinicID)

	resp, err := c.doRequest(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("failed to fetch mail account status: %w", err)
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

type sendMailRequest struct {
	ClinicID string `json:"clinic_id"`
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
}

type sendMailResponse struct {
	MessageID string `json:"message_id"`
}

// SendMail delivers one email and returns the provider message ID.
// Sends are not retried; a duplicate email is worse than a missed one
// the dispatcher can report.
func (c *Client) SendMail(ctx context.Context, clinicID types.ID, to, subject, htmlBody string) (string, error) {
	payload, err := json.Marshal(sendMailRequest{
		ClinicID: clinicID.String(),
		To:       to,
		Subject:  subject,
		HTML:     htmlBody,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal send request: %w", err)
	}

	url := c.baseURL + "/v1/messages"
	resp, err := c.doRequest(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to send mail: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, body)
	}

	var apiResp sendMailResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return apiResp.MessageID, nil
}

func (c *Client) doRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	return c.httpClient.Do(req)
}
