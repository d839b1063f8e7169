// Package reader is the client of the remote Google-Reader-compatible API.
package reader

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

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Kamar-Folarin/feed-sync/internal/config"
	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
	"github.com/Kamar-Folarin/feed-sync/internal/quota"
)

const (
	apiPrefix       = "/reader/api/0"
	maxResponseSize = 32 << 20
)

// Gate is the quota gate every call passes through
type Gate interface {
	Await(ctx context.Context, zone models.Zone) error
	RecordLocalCall(zone models.Zone)
	OnResponse(ctx context.Context, h http.Header)
	Used(zone models.Zone) (used, limit int64)
}

// Client is a quota-aware client of the remote content API
type Client struct {
	client  *http.Client
	baseURL string
	appID   string
	appKey  string
	gate    Gate
	limiter *rate.Limiter
	logger  *logrus.Logger

	maxRetries      int
	initialBackoff  time.Duration
	maxBackoff      time.Duration
	retryMultiplier float64
}

// ClientOption allows configuring the client
type ClientOption func(*Client)

// WithRetryConfig configures retry behavior
func WithRetryConfig(maxRetries int, initialBackoff, maxBackoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialBackoff = initialBackoff
		c.maxBackoff = maxBackoff
	}
}

// WithRateLimiter overrides request pacing
func WithRateLimiter(l *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = l
	}
}

// TokenSource builds the credential source from configuration. A refresh
// token with client credentials yields an auto-refreshing source; otherwise
// the static access token is used.
func TokenSource(ctx context.Context, cfg *config.ReaderConfig) oauth2.TokenSource {
	if cfg.RefreshToken != "" && cfg.ClientID != "" {
		oc := &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.TokenURL},
		}
		return oc.TokenSource(ctx, &oauth2.Token{
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
		})
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken})
}

// NewClient creates a client authenticated by ts and gated by gate
func NewClient(cfg *config.ReaderConfig, ts oauth2.TokenSource, gate Gate, logger *logrus.Logger, opts ...ClientOption) *Client {
	httpClient := oauth2.NewClient(context.Background(), ts)
	httpClient.Timeout = cfg.Timeout

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		client:          httpClient,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		appID:           cfg.AppID,
		appKey:          cfg.AppKey,
		gate:            gate,
		limiter:         rate.NewLimiter(limit, 1),
		logger:          logger,
		maxRetries:      cfg.RateLimit.MaxRetries,
		initialBackoff:  cfg.RateLimit.InitialBackoff,
		maxBackoff:      cfg.RateLimit.MaxBackoff,
		retryMultiplier: cfg.RateLimit.RetryMultiplier,
	}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListSubscriptions returns every subscription with its folder categories
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	var out subscriptionList
	if err := c.get(ctx, "/subscription/list", nil, &out); err != nil {
		return nil, err
	}
	for i, s := range out.Subscriptions {
		if s.ID == "" {
			return nil, apperrors.NewMalformedError(fmt.Sprintf("subscription %d has no id", i), nil)
		}
	}
	return out.Subscriptions, nil
}

// ListTags returns every folder, tag and state stream
func (c *Client) ListTags(ctx context.Context) ([]Tag, error) {
	var out tagList
	if err := c.get(ctx, "/tag/list", nil, &out); err != nil {
		return nil, err
	}
	return out.Tags, nil
}

// UnreadCounts returns the unread counter of every stream
func (c *Client) UnreadCounts(ctx context.Context) ([]UnreadCount, error) {
	var out unreadCountList
	if err := c.get(ctx, "/unread-count", nil, &out); err != nil {
		return nil, err
	}
	return out.UnreadCounts, nil
}

// StreamContents returns one page of items of stream, oldest-first after ot when set
func (c *Client) StreamContents(ctx context.Context, stream, continuation string, n int, ot time.Time) (*StreamPage, error) {
	if stream == "" {
		return nil, apperrors.NewValidationError("stream cannot be empty", nil)
	}

	query := url.Values{}
	if n > 0 {
		query.Set("n", strconv.Itoa(n))
	}
	if continuation != "" {
		query.Set("c", continuation)
	}
	if !ot.IsZero() {
		query.Set("ot", strconv.FormatInt(ot.Unix(), 10))
	}

	var page StreamPage
	if err := c.get(ctx, "/stream/contents/"+url.PathEscape(stream), query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// EditTag adds and/or removes one stream (state or label) on a set of items
func (c *Client) EditTag(ctx context.Context, add, remove string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if add == "" && remove == "" {
		return apperrors.NewValidationError("edit-tag needs a tag to add or remove", nil)
	}

	form := url.Values{}
	if add != "" {
		form.Set("a", add)
	}
	if remove != "" {
		form.Set("r", remove)
	}
	for _, id := range ids {
		form.Add("i", id)
	}

	return c.doRequestWithBackoff(ctx, models.ZoneWrite, http.MethodPost, "/edit-tag", nil, form, nil)
}

func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	return c.doRequestWithBackoff(ctx, models.ZoneRead, http.MethodGet, path, query, nil, result)
}

// doRequestWithBackoff performs one logical call: quota gate, pacing,
// dispatch, header reconciliation, and bounded exponential retry of
// transient failures.
func (c *Client) doRequestWithBackoff(ctx context.Context, zone models.Zone, method, path string, query, form url.Values, result interface{}) error {
	logger := c.logger.WithFields(logrus.Fields{
		"method": method,
		"path":   path,
		"zone":   zone,
	})

	attempt := 0
	operation := func() error {
		attempt++
		err := c.doOnce(ctx, zone, method, path, query, form, result)
		if err == nil {
			return nil
		}
		if apperrors.IsTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialBackoff
	b.MaxInterval = c.maxBackoff
	if c.retryMultiplier > 0 {
		b.Multiplier = c.retryMultiplier
	}
	b.MaxElapsedTime = 0

	retries := c.maxRetries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)

	err := backoff.RetryNotify(operation, policy, func(err error, wait time.Duration) {
		logger.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait,
		}).Warn("Request failed, retrying")
	})
	if err == nil {
		return nil
	}

	// only the caller's deadline ends the run; a per-request timeout stays transient
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperrors.NewTimeoutError("remote call deadline exceeded", err)
	case apperrors.IsTransient(err):
		logger.WithError(err).WithField("attempts", attempt).Error("Request failed after retries")
	}
	return err
}

func (c *Client) doOnce(ctx context.Context, zone models.Zone, method, path string, query, form url.Values, result interface{}) error {
	if err := c.gate.Await(ctx, zone); err != nil {
		return err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	req, err := c.newRequest(ctx, method, path, query, form)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	c.gate.RecordLocalCall(zone)
	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return apperrors.NewUnauthorizedError("failed to refresh access token", err)
		}
		return apperrors.NewTransientError("request failed", err)
	}
	defer resp.Body.Close()

	c.gate.OnResponse(ctx, resp.Header)

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return apperrors.NewTransientError("failed to read response body", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		used, limit := c.gate.Used(zone)
		var resetAfter time.Duration
		if obs := quota.ParseHeaders(resp.Header); obs.ResetAfterSeconds != nil {
			resetAfter = time.Duration(*obs.ResetAfterSeconds) * time.Second
		}
		return apperrors.NewQuotaExceededError(string(zone), used, limit, resetAfter)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyStatus(resp.StatusCode, string(body))
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return apperrors.NewMalformedError("failed to decode response", NewAPIError(resp.StatusCode, path, err))
		}
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, query, form url.Values) (*http.Request, error) {
	target := c.baseURL + apiPrefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	req.Header.Set("Accept", "application/json")
	if c.appID != "" {
		req.Header.Set("AppId", c.appID)
	}
	if c.appKey != "" {
		req.Header.Set("AppKey", c.appKey)
	}
	return req, nil
}
