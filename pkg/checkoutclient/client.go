/**
 * @description
 * This package provides a client for the external payment processor's
 * checkout API. It encapsulates the logic for making authenticated HTTP
 * requests, building request bodies, and parsing responses, so the rest of
 * the system never sees the processor's API shape.
 *
 * The client performs no state transitions: it creates checkout sessions and
 * reports session status, nothing more.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 */
package checkoutclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Session statuses reported by the processor.
const (
	SessionOpen    = "open"
	SessionPaid    = "paid"
	SessionExpired = "expired"
	SessionFailed  = "failed"
)

// Client is a client for the processor's checkout API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new checkout API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateSessionRequest is the payload for opening a checkout session.
type CreateSessionRequest struct {
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
	Reference   string `json:"reference"`
	Description string `json:"description"`
}

// Session is the processor's view of a checkout session.
type Session struct {
	ID          string `json:"id"`
	CheckoutURL string `json:"checkout_url"`
	Status      string `json:"status"`
	AmountCents int64  `json:"amount"`
	Currency    string `json:"currency"`
}

// ErrorResponse represents an error from the processor API.
type ErrorResponse struct {
	StatusCode int `json:"-"`
	Errors     []struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (e *ErrorResponse) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf("processor api error: %s - %s", e.Errors[0].Title, e.Errors[0].Detail)
	}
	return fmt.Sprintf("processor api error (status %d)", e.StatusCode)
}

// IsClientRejection reports whether the processor definitively rejected the
// request, as opposed to failing transiently. 4xx answers are authoritative;
// everything else is ambiguous and eligible for retry.
func (e *ErrorResponse) IsClientRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

// CreateSession opens a checkout session for the given amount. The amount
// must be the offer's exact total in minor units; the caller is responsible
// for never correcting it.
func (c *Client) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/checkout/sessions", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create session request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	return c.doSession(httpReq, "create_session")
}

// GetSession fetches the current status of a checkout session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/checkout/sessions/"+sessionID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create session status request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)

	return c.doSession(httpReq, "get_session")
}

func (c *Client) doSession(req *http.Request, op string) (*Session, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s request: %w", op, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=checkout_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", op, resp.StatusCode)
			return nil, errResp
		}
		log.Printf("level=warn component=checkout_client op=%s status=%d title=%q detail=%q", op, resp.StatusCode, firstErrorTitle(errResp), firstErrorDetail(errResp))
		return nil, errResp
	}

	var session Session
	if err := json.Unmarshal(bodyBytes, &session); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return &session, nil
}

func firstErrorTitle(resp *ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Title
}

func firstErrorDetail(resp *ErrorResponse) string {
	if len(resp.Errors) == 0 {
		return ""
	}
	return resp.Errors[0].Detail
}
