// internal/automation/client.go
package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/unclebandit/outreach-backend/internal/config"
	appErrors "github.com/unclebandit/outreach-backend/internal/errors"
)

// InvitationStatus is the provider's view of a sent connection request.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationIgnored  InvitationStatus = "ignored"
)

// ErrAlreadyConnected is returned by SendInvitation when the target is
// already a connection. Callers treat it as a policy exclusion (skip), not
// a failure.
var ErrAlreadyConnected = errors.New("target is already connected")

// Client is the opaque, rate-limited remote automation service. Callers
// must hold a rate-limit token for the matching operation before invoking
// any method. Errors come back already classified.
type Client interface {
	VisitProfile(ctx context.Context, accountID int, profileURL string) (map[string]any, error)
	SendInvitation(ctx context.Context, accountID int, profileURL, note string) (string, error)
	SendFollowup(ctx context.Context, accountID int, profileURL, message string) error
	LikePosts(ctx context.Context, accountID int, profileURL string, count int) error
	CommentOnPosts(ctx context.Context, accountID int, profileURL, comment string) error
	CheckInvitationStatus(ctx context.Context, accountID int, invitationID string) (InvitationStatus, error)
	WithdrawRequest(ctx context.Context, accountID int, invitationID string) error
}

// HTTPClient talks to the automation provider over HTTP.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewHTTPClient(cfg config.AutomationConfig) *HTTPClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: cfg.Timeout()},
	}
}

// post sends one provider call and classifies the outcome at this boundary:
// transport failures and 5xx are retryable, 4xx are permanent.
func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return appErrors.NonRetryable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return appErrors.NonRetryable(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return appErrors.Retryable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return appErrors.Retryable(err)
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return appErrors.Retryablef("automation API %s: status %d: %s", path, resp.StatusCode, data)
	case resp.StatusCode >= 400:
		if resp.StatusCode == http.StatusConflict {
			return appErrors.NonRetryable(ErrAlreadyConnected)
		}
		return appErrors.NonRetryablef("automation API %s: status %d: %s", path, resp.StatusCode, data)
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return appErrors.NonRetryable(fmt.Errorf("automation API %s: bad response: %w", path, err))
		}
	}
	return nil
}

func (c *HTTPClient) VisitProfile(ctx context.Context, accountID int, profileURL string) (map[string]any, error) {
	var out map[string]any
	err := c.post(ctx, "/api/v1/profile/visit", map[string]any{
		"account_id":  accountID,
		"profile_url": profileURL,
	}, &out)
	return out, err
}

func (c *HTTPClient) SendInvitation(ctx context.Context, accountID int, profileURL, note string) (string, error) {
	var out struct {
		InvitationID string `json:"invitation_id"`
	}
	err := c.post(ctx, "/api/v1/invitations", map[string]any{
		"account_id":  accountID,
		"profile_url": profileURL,
		"note":        note,
	}, &out)
	return out.InvitationID, err
}

func (c *HTTPClient) SendFollowup(ctx context.Context, accountID int, profileURL, message string) error {
	return c.post(ctx, "/api/v1/messages", map[string]any{
		"account_id":  accountID,
		"profile_url": profileURL,
		"message":     message,
	}, nil)
}

func (c *HTTPClient) LikePosts(ctx context.Context, accountID int, profileURL string, count int) error {
	return c.post(ctx, "/api/v1/posts/like", map[string]any{
		"account_id":  accountID,
		"profile_url": profileURL,
		"count":       count,
	}, nil)
}

func (c *HTTPClient) CommentOnPosts(ctx context.Context, accountID int, profileURL, comment string) error {
	return c.post(ctx, "/api/v1/posts/comment", map[string]any{
		"account_id":  accountID,
		"profile_url": profileURL,
		"comment":     comment,
	}, nil)
}

func (c *HTTPClient) CheckInvitationStatus(ctx context.Context, accountID int, invitationID string) (InvitationStatus, error) {
	var out struct {
		Status InvitationStatus `json:"status"`
	}
	err := c.post(ctx, "/api/v1/invitations/status", map[string]any{
		"account_id":    accountID,
		"invitation_id": invitationID,
	}, &out)
	return out.Status, err
}

func (c *HTTPClient) WithdrawRequest(ctx context.Context, accountID int, invitationID string) error {
	return c.post(ctx, "/api/v1/invitations/withdraw", map[string]any{
		"account_id":    accountID,
		"invitation_id": invitationID,
	}, nil)
}
