// Package client is a typed HTTP client for the check-in API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"classcheckin/internal/attendance"
	"classcheckin/internal/auth"
	"classcheckin/internal/share"
)

// Session is a session as served by the API, with its deadline.
type Session struct {
	attendance.Session
	Deadline time.Time `json:"deadline"`
}

// StartedSession is the response to StartSession. Share is nil when the
// server has no share renderer configured.
type StartedSession struct {
	Session Session      `json:"session"`
	Share   *share.Share `json:"share"`
}

// EndResult reports the state after EndSession; AlreadyEnded is set when the call changed nothing.
type EndResult struct {
	Session      Session `json:"session"`
	AlreadyEnded bool    `json:"already_ended"`
}

// CheckinResult reports the stored record; AlreadyCheckedIn is set for a repeated check-in.
type CheckinResult struct {
	Record           attendance.Record `json:"record"`
	AlreadyCheckedIn bool              `json:"already_checked_in"`
}

// Records is the record list of one session. Provisional is set while the session is active.
type Records struct {
	SessionID   string              `json:"session_id"`
	Provisional bool                `json:"provisional"`
	Records     []attendance.Record `json:"records"`
}

// LoginResult is returned by Login.
type LoginResult struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        auth.User `json:"user"`
}

// ListOptions narrows ListSessions.
type ListOptions struct {
	CourseID string
	Status   attendance.SessionStatus
	Limit    int
	Offset   int
}

// Client talks to one API base URL. It is safe for concurrent use.
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	pollMin    time.Duration
	pollMax    time.Duration

	mu    sync.RWMutex
	token string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option { return func(c *Client) { c.token = token } }

// WithRetry sets how many times transient failures are retried and the first backoff delay.
func WithRetry(maxRetries int, backoff time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.backoff = backoff
	}
}

// New creates a client for baseURL, e.g. "http://localhost:8081".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		backoff:    200 * time.Millisecond,
		pollMin:    5 * time.Second,
		pollMax:    15 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates and keeps the returned token for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", body, &res, true); err != nil {
		return LoginResult{}, err
	}
	c.SetToken(res.AccessToken)
	return res, nil
}

// StartSession creates a session and returns it with its share link and QR.
// It is not retried on network errors since a lost response may hide a created session.
func (c *Client) StartSession(ctx context.Context, courseID string, durationMinutes int) (StartedSession, error) {
	var res StartedSession
	body := map[string]any{"course_id": courseID, "duration_minutes": durationMinutes}
	err := c.do(ctx, http.MethodPost, "/v1/sessions", body, &res, false)
	return res, err
}

// EndSession ends a session. Repeating it is safe.
func (c *Client) EndSession(ctx context.Context, sessionID string) (EndResult, error) {
	var res EndResult
	err := c.do(ctx, http.MethodPost, "/v1/sessions/"+url.PathEscape(sessionID)+"/end", nil, &res, true)
	return res, err
}

// CheckIn records the authenticated student against a session code. Repeating it is safe.
func (c *Client) CheckIn(ctx context.Context, code string) (CheckinResult, error) {
	var res CheckinResult
	err := c.do(ctx, http.MethodPost, "/v1/checkins", map[string]string{"session_code": code}, &res, true)
	return res, err
}

// GetSession fetches the current state of a session.
func (c *Client) GetSession(ctx context.Context, sessionID string) (Session, error) {
	var res Session
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID), nil, &res, true)
	return res, err
}

// ListSessions lists sessions newest first.
func (c *Client) ListSessions(ctx context.Context, opts ListOptions) ([]Session, error) {
	q := url.Values{}
	if opts.CourseID != "" {
		q.Set("course_id", opts.CourseID)
	}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		q.Set("offset", strconv.Itoa(opts.Offset))
	}
	path := "/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var res struct {
		Sessions []Session `json:"sessions"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &res, true)
	return res.Sessions, err
}

// ListRecords returns the records of a session.
func (c *Client) ListRecords(ctx context.Context, sessionID string) (Records, error) {
	var res Records
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/records", nil, &res, true)
	return res, err
}

// ManualCheckin sets a student's status by hand while the session is active.
func (c *Client) ManualCheckin(ctx context.Context, sessionID, studentID string, status attendance.RecordStatus) (attendance.Record, error) {
	var res attendance.Record
	path := "/v1/sessions/" + url.PathEscape(sessionID) + "/records/" + url.PathEscape(studentID)
	err := c.do(ctx, http.MethodPut, path, map[string]string{"status": string(status)}, &res, true)
	return res, err
}

// Summary returns the attendance counts of a session.
func (c *Client) Summary(ctx context.Context, sessionID string) (attendance.Summary, error) {
	var res attendance.Summary
	err := c.do(ctx, http.MethodGet, "/v1/sessions/"+url.PathEscape(sessionID)+"/summary", nil, &res, true)
	return res, err
}

// do sends one request, retrying transient failures with exponential backoff.
// Network errors are only retried when retryNetwork is set.
func (c *Client) do(ctx context.Context, method, path string, in, out any, retryNetwork bool) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	delay := c.backoff
	for attempt := 0; ; attempt++ {
		err := c.once(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		retry := IsTransient(err)
		if _, isAPI := asAPIError(err); !isAPI && retryNetwork && ctx.Err() == nil {
			retry = true
		}
		if !retry || attempt >= c.maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.RUnlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var body struct {
			Error string `json:"error"`
			Kind  string `json:"kind"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(raw, &body) == nil && body.Error != "" {
			apiErr.Message, apiErr.Kind, apiErr.Code = body.Error, body.Kind, body.Code
		} else {
			apiErr.Message = strings.TrimSpace(string(raw))
			if apiErr.Message == "" {
				apiErr.Message = http.StatusText(resp.StatusCode)
			}
		}
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
