// Package translate rewrites text into stylized dialects through
// funtranslations-compatible providers, falling back across providers.
package translate

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pario-ai/dexcache/pkg/config"
	"github.com/pario-ai/dexcache/pkg/models"
	"github.com/pario-ai/dexcache/pkg/router"
)

const (
	op           = "dialect.rewrite"
	maxBodyBytes = 1 << 20
	secretHeader = "X-Funtranslations-Api-Secret"
)

// Client rewrites text into a dialect.
type Client struct {
	router     *router.Router
	limiters   map[string]*rate.Limiter
	httpClient *http.Client
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client over the configured providers and routes.
func New(cfg config.DialectConfig, opts ...Option) *Client {
	c := &Client{
		router:     router.New(cfg),
		limiters:   make(map[string]*rate.Limiter),
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, p := range cfg.Providers {
		if p.RequestsPerHour <= 0 {
			continue
		}
		burst := p.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiters[p.Name] = rate.NewLimiter(rate.Limit(p.RequestsPerHour/3600), burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// translationPayload is the provider's response body.
type translationPayload struct {
	Contents *struct {
		Translated  string `json:"translated"`
		Text        string `json:"text"`
		Translation string `json:"translation"`
	} `json:"contents"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Rewrite returns text rendered in dialect. Routes are tried in order; a
// route that is unavailable or throttled hands over to the next one. It fails
// with models.ErrRateLimited, models.ErrUnavailable or models.ErrParse.
func (c *Client) Rewrite(ctx context.Context, text string, dialect models.Dialect) (string, error) {
	if dialect == models.DialectNone || dialect == "" {
		return "", models.Errorf(models.KindInvalidArgument, op, "no dialect to rewrite into")
	}

	routes, err := c.router.Resolve(dialect)
	if err != nil {
		return "", models.NewError(models.KindUnavailable, op, err)
	}

	var lastErr error
	for _, route := range routes {
		if lim, ok := c.limiters[route.Provider.Name]; ok && !lim.Allow() {
			lastErr = models.Errorf(models.KindRateLimited, op, "provider %s: local request budget exhausted", route.Provider.Name)
			c.logger.Debug("provider throttled locally, trying next", zap.String("provider", route.Provider.Name))
			continue
		}

		out, err := c.do(ctx, route, text)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !models.Retryable(models.KindOf(err)) || ctx.Err() != nil {
			return "", err
		}
		c.logger.Info("translation provider failed, trying next",
			zap.String("provider", route.Provider.Name),
			zap.String("dialect", route.Dialect),
			zap.Error(err))
	}
	return "", lastErr
}

func (c *Client) do(ctx context.Context, route router.Route, text string) (string, error) {
	target := strings.TrimRight(route.Provider.URL, "/") + "/translate/" + url.PathEscape(route.Dialect) +
		"?" + url.Values{"text": {text}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", models.NewError(models.KindUnavailable, op, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if route.Provider.APIKey != "" {
		req.Header.Set(secretHeader, route.Provider.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", models.NewError(models.KindUnavailable, op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return "", models.NewError(models.KindUnavailable, op, fmt.Errorf("read response: %w", err))
	}

	var payload translationPayload
	decodeErr := json.Unmarshal(body, &payload)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", models.Errorf(models.KindRateLimited, op, "provider %s: %s", route.Provider.Name, payload.message(resp.Status))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", models.Errorf(models.KindUnavailable, op, "provider %s: %s", route.Provider.Name, payload.message(resp.Status))
	case decodeErr != nil:
		return "", models.NewError(models.KindParse, op, decodeErr)
	case payload.Contents == nil || payload.Contents.Translated == "":
		return "", models.Errorf(models.KindParse, op, "provider %s: response has no translation", route.Provider.Name)
	}
	return payload.Contents.Translated, nil
}

func (p translationPayload) message(fallback string) string {
	if p.Error != nil && p.Error.Message != "" {
		return p.Error.Message
	}
	return fallback
}
