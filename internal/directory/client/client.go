// Package client talks to the remote person directory over HTTP.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"safetyaudit/internal/directory"
	dErrors "safetyaudit/pkg/domain-errors"
	"safetyaudit/pkg/platform/circuit"
	"safetyaudit/pkg/platform/sentinel"
	"safetyaudit/pkg/requestcontext"
)

// Client implements directory.Directory. Every failed call is recorded on a
// circuit breaker whose transitions are logged.
type Client struct {
	http    *resty.Client
	breaker *circuit.Breaker
	logger  *slog.Logger
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.SetTimeout(d)
		}
	}
}

func WithRetryCount(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.http.SetRetryCount(n)
		}
	}
}

func WithFailureThreshold(n int) Option {
	return func(c *Client) {
		c.breaker = circuit.New("directory", circuit.WithFailureThreshold(n))
	}
}

func New(baseURL string, opts ...Option) *Client {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(5*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetRetryMaxWaitTime(2*time.Second).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})

	c := &Client{
		http:    httpClient,
		breaker: circuit.New("directory"),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type statusRequest struct {
	Status     directory.Status `json:"status"`
	LeaveStart *time.Time       `json:"leaveStart"`
}

type listResponse struct {
	Persons []directory.PersonRecord `json:"persons"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *Client) SetPersonStatus(ctx context.Context, personID string, status directory.Status, leaveStart *time.Time) error {
	var apiErr errorResponse
	resp, err := c.request(ctx).
		SetPathParam("personID", personID).
		SetBody(statusRequest{Status: status, LeaveStart: leaveStart}).
		SetError(&apiErr).
		Put("/persons/{personID}/status")
	if err := c.outcome(ctx, "set person status", resp, err, apiErr); err != nil {
		return err
	}
	return nil
}

func (c *Client) ListByBranch(ctx context.Context, branchID string, filter directory.Filter) ([]directory.PersonRecord, error) {
	params := url.Values{}
	if filter.Status != "" {
		params.Set("status", string(filter.Status))
	}
	if len(filter.IDs) > 0 {
		params.Set("ids", strings.Join(filter.IDs, ","))
	}

	var result listResponse
	var apiErr errorResponse
	resp, err := c.request(ctx).
		SetPathParam("branchID", branchID).
		SetQueryParamsFromValues(params).
		SetResult(&result).
		SetError(&apiErr).
		Get("/branches/{branchID}/persons")
	if err := c.outcome(ctx, "list branch persons", resp, err, apiErr); err != nil {
		return nil, err
	}
	if result.Persons == nil {
		return []directory.PersonRecord{}, nil
	}
	return result.Persons, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	req := c.http.R().SetContext(ctx)
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		req.SetHeader("X-Request-ID", requestID)
	}
	return req
}

// outcome records the call on the breaker and maps failures onto
// CodeDependency. A 404 is not a directory failure.
func (c *Client) outcome(ctx context.Context, op string, resp *resty.Response, err error, apiErr errorResponse) error {
	if err == nil && resp.StatusCode() == http.StatusNotFound {
		c.recordSuccess(ctx)
		return dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound, op+": person or branch not found")
	}
	if err == nil && resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		err = errors.New(msg)
	}
	if err != nil {
		c.recordFailure(ctx)
		return dErrors.Wrap(fmt.Errorf("%s: %w", op, err), dErrors.CodeDependency, "person directory unavailable")
	}
	c.recordSuccess(ctx)
	return nil
}

func (c *Client) recordFailure(ctx context.Context) {
	if _, change := c.breaker.RecordFailure(); change.Opened {
		c.logger.WarnContext(ctx, "circuit breaker opened",
			"breaker", c.breaker.Name(),
		)
	}
}

func (c *Client) recordSuccess(ctx context.Context) {
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "circuit breaker closed",
			"breaker", c.breaker.Name(),
		)
	}
}

// BreakerState exposes the breaker for health reporting.
func (c *Client) BreakerState() circuit.State {
	return c.breaker.State()
}
