// Package workerhttp invokes role workers over HTTP.
package workerhttp

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

	"github.com/cenkalti/backoff/v5"

	"github.com/Strob0t/taskcrew/internal/port/worker"
	"github.com/Strob0t/taskcrew/internal/resilience"
)

func init() {
	worker.Register("http", func(opts worker.Options) (worker.Invoker, error) {
		if opts.BaseURL == "" {
			return nil, errors.New("workerhttp: base url is required")
		}
		return NewClient(opts), nil
	})
}

// maxResponseBytes caps how much of a worker reply is read.
const maxResponseBytes = 8 << 20

var errMalformedReply = errors.New("malformed worker reply")

// Client posts worker requests to {baseURL}/{role}. Each role has its own
// circuit breaker so one failing worker does not block the others.
type Client struct {
	baseURL         string
	apiKey          string
	timeout         time.Duration
	maxRetries      int
	initialInterval time.Duration
	httpClient      *http.Client
	breakers        *resilience.Breakers
}

// NewClient creates a worker client from transport options.
func NewClient(opts worker.Options) *Client {
	maxFailures := opts.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = 5
	}
	breakerTimeout := opts.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 30 * time.Second
	}
	return &Client{
		baseURL:         strings.TrimRight(opts.BaseURL, "/"),
		apiKey:          opts.APIKey,
		timeout:         opts.Timeout,
		maxRetries:      opts.MaxRetries,
		initialInterval: opts.RetryInitialInterval,
		httpClient:      &http.Client{},
		breakers:        resilience.NewBreakers(maxFailures, breakerTimeout),
	}
}

// BreakerStates reports the circuit state per role. It implements
// worker.CircuitReporter.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.States()
}

// Invoke sends req to the worker of req.Role. Transport failures, non-2xx
// replies and success:false all come back as *worker.InvocationError.
func (c *Client) Invoke(ctx context.Context, req worker.Request) (worker.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return worker.Response{}, &worker.InvocationError{Role: req.Role, TaskID: req.TaskID, Err: fmt.Errorf("marshal request: %w", err)}
	}

	op := func() (worker.Response, error) {
		resp, err := c.attempt(ctx, req, body)
		if err != nil && !retryable(err) && !attemptTimedOut(ctx, err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}

	var resp worker.Response
	if c.maxRetries > 0 {
		b := backoff.NewExponentialBackOff()
		if c.initialInterval > 0 {
			b.InitialInterval = c.initialInterval
		}
		resp, err = backoff.Retry(ctx, op,
			backoff.WithBackOff(b),
			backoff.WithMaxTries(uint(c.maxRetries)+1),
		)
	} else {
		resp, err = c.attempt(ctx, req, body)
	}
	if err != nil {
		var ie *worker.InvocationError
		if errors.As(err, &ie) {
			return worker.Response{}, ie
		}
		return worker.Response{}, &worker.InvocationError{Role: req.Role, TaskID: req.TaskID, Err: err}
	}
	return resp, worker.Check(req, resp)
}

// attempt runs one call under the per-attempt timeout, when one is set.
func (c *Client) attempt(ctx context.Context, req worker.Request, body []byte) (worker.Response, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.call(ctx, req, body)
}

// attemptTimedOut reports whether err is the per-attempt deadline rather than
// the caller's context ending.
func attemptTimedOut(parent context.Context, err error) bool {
	return parent.Err() == nil && errors.Is(err, context.DeadlineExceeded)
}

// call performs one POST through the role's breaker. Only transport errors and
// 5xx replies count as breaker failures.
func (c *Client) call(ctx context.Context, req worker.Request, body []byte) (worker.Response, error) {
	var (
		resp      worker.Response
		clientErr error
	)
	err := c.breakers.For(string(req.Role)).Execute(func() error {
		r, status, err := c.post(ctx, req, body)
		if err != nil {
			return err
		}
		if status >= 500 {
			return &worker.InvocationError{
				Role: req.Role, TaskID: req.TaskID, StatusCode: status,
				Message: replyMessage(req, status, r),
			}
		}
		if status >= 400 {
			clientErr = &worker.InvocationError{
				Role: req.Role, TaskID: req.TaskID, StatusCode: status,
				Message: replyMessage(req, status, r),
			}
			return nil
		}
		resp = r
		return nil
	})
	if err != nil {
		if errors.Is(err, resilience.ErrCircuitOpen) {
			return worker.Response{}, &worker.InvocationError{
				Role: req.Role, TaskID: req.TaskID,
				Message: fmt.Sprintf("%s worker unavailable: circuit open", req.Role),
				Err:     err,
			}
		}
		return worker.Response{}, err
	}
	if clientErr != nil {
		return worker.Response{}, clientErr
	}
	return resp, nil
}

func (c *Client) post(ctx context.Context, req worker.Request, body []byte) (worker.Response, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+string(req.Role), bytes.NewReader(body))
	if err != nil {
		return worker.Response{}, 0, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return worker.Response{}, 0, fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return worker.Response{}, httpResp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	var resp worker.Response
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil && httpResp.StatusCode < 400 {
			return worker.Response{}, httpResp.StatusCode, fmt.Errorf("%w: %v", errMalformedReply, err)
		}
	}
	return resp, httpResp.StatusCode, nil
}

func replyMessage(req worker.Request, status int, resp worker.Response) string {
	if resp.Error != "" {
		return resp.Error
	}
	return fmt.Sprintf("%s worker returned HTTP %d", req.Role, status)
}

// retryable reports whether another attempt may succeed: network failures and
// 5xx replies. Client errors, decode errors and an open circuit are final.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ie *worker.InvocationError
	if errors.As(err, &ie) {
		if errors.Is(ie.Err, resilience.ErrCircuitOpen) {
			return false
		}
		return ie.StatusCode >= 500
	}
	return !errors.Is(err, errMalformedReply)
}

var _ worker.Invoker = (*Client)(nil)
