// Package exotel implements outbound call control against the Exotel
// HTTP API. Call flow logic (greeting, streaming) lives in the Exotel
// applet; this client only places and terminates calls.
package exotel

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/propvoice/enquiry-agent/pkg/config"
)

type Client struct {
	cfg  config.ExotelConfig
	base string
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg config.ExotelConfig, log *zap.Logger) *Client {
	return &Client{
		cfg:  cfg,
		base: "https://" + cfg.Subdomain,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

// newClientWithBase is used by tests to point at a local server.
func newClientWithBase(cfg config.ExotelConfig, base string, log *zap.Logger) *Client {
	c := NewClient(cfg, log)
	c.base = base
	return c
}

type connectResponse struct {
	Call struct {
		Sid string `json:"Sid"`
	} `json:"Call"`
}

// Connect dials the customer and bridges them into the agent applet flow.
func (c *Client) Connect(ctx context.Context, fromNumber, toNumber, sessionID string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/connect.json", c.base, c.cfg.AccountSID)

	form := url.Values{}
	form.Set("From", fromNumber)
	form.Set("To", toNumber)
	form.Set("CallerId", fromNumber)
	form.Set("Url", fmt.Sprintf("%s/exotel-webhook?session_id=%s", c.cfg.WebhookBaseURL, sessionID))
	form.Set("TimeLimit", "3600")
	form.Set("TimeOut", "30")
	form.Set("CallType", "trans")
	form.Set("Record", "true")

	c.log.Info("Initiating outbound call",
		zap.String("from", fromNumber),
		zap.String("to", toNumber),
		zap.String("session_id", sessionID),
	)

	raw, status, err := c.post(ctx, endpoint, form)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("call API error %d: %s", status, raw)
	}

	var parsed connectResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode call response: %w", err)
	}

	c.log.Info("Call initiated", zap.String("call_sid", parsed.Call.Sid))
	return parsed.Call.Sid, nil
}

// Hangup marks an active call completed.
func (c *Client) Hangup(ctx context.Context, callSID string) error {
	endpoint := fmt.Sprintf("%s/v1/Accounts/%s/Calls/%s", c.base, c.cfg.AccountSID, callSID)

	form := url.Values{}
	form.Set("Status", "completed")

	raw, status, err := c.post(ctx, endpoint, form)
	if err != nil {
		return err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return fmt.Errorf("hangup API error %d: %s", status, raw)
	}
	c.log.Info("Call terminated", zap.String("call_sid", callSID))
	return nil
}

func (c *Client) post(ctx context.Context, endpoint string, form url.Values) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.SetBasicAuth(c.cfg.APIKey, c.cfg.APIToken)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("telephony request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, err
	}
	return raw, resp.StatusCode, nil
}
