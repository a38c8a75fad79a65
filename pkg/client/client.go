// Package client is the Go SDK for the AChE predictor API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/ache-predictor/pkg/errors"
)

const Version = "0.1.0"

// UploadFilename names uploads sent from a reader.
const UploadFilename = "molecules.txt"

// Logger defines the logging interface used by the Client.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(format string, args ...interface{}) {}
func (noopLogger) Infof(format string, args ...interface{})  {}
func (noopLogger) Errorf(format string, args ...interface{}) {}

// Client talks to one API server.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	token        string
	userAgent    string
	logger       Logger
	retryMax     int
	retryWaitMin time.Duration
	retryWaitMax time.Duration
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode  int      `json:"status_code"`
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Stage       string   `json:"stage,omitempty"`
	Diagnostics []string `json:"diagnostics,omitempty"`
	RequestID   string   `json:"request_id"`

	retryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := e.Message
	if len(e.Diagnostics) > 1 {
		msg = strings.Join(e.Diagnostics, "; ")
	}
	return fmt.Sprintf("ache: %s (HTTP %d): %s [request_id=%s]", e.Code, e.StatusCode, msg, e.RequestID)
}

func (e *APIError) IsNotFound() bool     { return e.StatusCode == http.StatusNotFound }
func (e *APIError) IsUnauthorized() bool { return e.StatusCode == http.StatusUnauthorized }
func (e *APIError) IsRateLimited() bool  { return e.StatusCode == http.StatusTooManyRequests }
func (e *APIError) IsServerError() bool  { return e.StatusCode >= 500 && e.StatusCode < 600 }

// NewClient creates a client for baseURL, e.g. "http://localhost:8080".
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New(errors.ErrCodeValidation, "client: base URL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeValidation, "client: invalid base URL")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, errors.New(errors.ErrCodeValidation, "client: base URL scheme must be http or https")
	}

	c := &Client{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		httpClient:   &http.Client{Timeout: 15 * time.Minute},
		userAgent:    "ache-go-sdk/" + Version,
		logger:       noopLogger{},
		retryMax:     3,
		retryWaitMin: 500 * time.Millisecond,
		retryWaitMax: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the server root.
func (c *Client) BaseURL() string { return c.baseURL }

// request describes one call. body is rebuilt for every attempt.
type request struct {
	method string
	path   string
	query  url.Values
	accept string
	body   func() (io.Reader, string, error)
}

// multipartBody uploads data in the "file" field.
func multipartBody(filename string, data []byte) func() (io.Reader, string, error) {
	return func() (io.Reader, string, error) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		fw, err := mw.CreateFormFile("file", filename)
		if err != nil {
			return nil, "", err
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", err
		}
		if err := mw.Close(); err != nil {
			return nil, "", err
		}
		return &buf, mw.FormDataContentType(), nil
	}
}

// do sends r, retrying network errors, 5xx and 429. The caller owns the
// returned response body.
func (c *Client) do(ctx context.Context, r request) (*http.Response, error) {
	fullURL := c.baseURL + r.path
	if len(r.query) > 0 {
		fullURL += "?" + r.query.Encode()
	}
	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}
	requestID := uuid.New().String()

	var lastErr error
	for attempt := 0; attempt <= c.retryMax; attempt++ {
		if attempt > 0 {
			wait := c.calculateBackoff(attempt)
			if apiErr, ok := lastErr.(*APIError); ok && apiErr.IsRateLimited() {
				if ra := apiErr.retryAfter; ra > 0 {
					wait = ra
				}
			}
			c.logger.Debugf("retry attempt %d after %v", attempt, wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var body io.Reader
		contentType := ""
		if r.body != nil {
			var err error
			if body, contentType, err = r.body(); err != nil {
				return nil, errors.Wrap(err, errors.ErrCodeSerialization, "client: failed to encode request")
			}
		}
		req, err := http.NewRequestWithContext(ctx, r.method, fullURL, body)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeValidation, "client: failed to create request")
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		}
		req.Header.Set("Accept", accept)
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("X-Request-ID", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.logger.Errorf("%s %s failed: %v", r.method, r.path, err)
			lastErr = errors.Wrap(err, errors.ErrCodeServiceUnavailable, "client: request failed")
			continue
		}
		c.logger.Debugf("%s %s %d (%v)", r.method, r.path, resp.StatusCode, time.Since(start))

		if resp.StatusCode < 400 {
			return resp, nil
		}
		apiErr := decodeAPIError(resp, requestID)
		lastErr = apiErr
		if !apiErr.IsServerError() && !apiErr.IsRateLimited() {
			return nil, apiErr
		}
	}
	return nil, lastErr
}

func decodeAPIError(resp *http.Response, requestID string) *APIError {
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	apiErr := &APIError{StatusCode: resp.StatusCode, RequestID: requestID}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, apiErr); err != nil {
			apiErr.Message = strings.TrimSpace(string(raw))
		}
		apiErr.StatusCode = resp.StatusCode
		if apiErr.RequestID == "" {
			apiErr.RequestID = requestID
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		apiErr.retryAfter = time.Duration(secs) * time.Second
	}
	return apiErr
}

// getJSON decodes a 2xx JSON body into out.
func (c *Client) getJSON(ctx context.Context, r request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "client: failed to decode response")
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.retryWaitMin * time.Duration(1<<uint(attempt-1))
	if backoff > c.retryWaitMax {
		backoff = c.retryWaitMax
	}
	if q := int64(backoff / 4); q > 0 {
		backoff += time.Duration(rand.Int63n(q))
	}
	return backoff
}

//Personal.AI order the ending
