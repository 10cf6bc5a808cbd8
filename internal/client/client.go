// Package client talks to the event-flow HTTP API on behalf of a scanner
// device or the command line.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tho-bre/event-flow/internal/domain"
)

const defaultTimeout = 15 * time.Second

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the bearer token in use, if any.
func (c *Client) Token() string {
	return c.token
}

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Code    string
	Message string
	// Total is set on rejected taps.
	Total *int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d %s)", e.Message, e.Status, e.Code)
}

var codeErrors = map[string]error{
	"event_name_required":       domain.ErrEventNameRequired,
	"invalid_range":             domain.ErrInvalidRange,
	"invalid_direction":         domain.ErrInvalidDirection,
	"invalid_interval":          domain.ErrInvalidInterval,
	"email_required":            domain.ErrEmailRequired,
	"password_too_short":        domain.ErrPasswordTooShort,
	"association_name_required": domain.ErrAssociationNameRequired,
	"email_taken":               domain.ErrEmailTaken,
	"event_not_found":           domain.ErrEventNotFound,
	"total_at_zero":             domain.ErrTotalAtZero,
	"event_not_active":          domain.ErrEventNotActive,
	"ledger_full":               domain.ErrLedgerFull,
	"version_conflict":          domain.ErrVersionConflict,
	"unauthorized":              domain.ErrAuthFailed,
	"pending_activation":        domain.ErrPendingActivation,
	"account_not_activated":     domain.ErrAccountNotActivated,
}

// Unwrap maps the error code back onto the domain error so callers can
// use errors.Is across the wire.
func (e *APIError) Unwrap() error {
	if err, ok := codeErrors[e.Code]; ok {
		return err
	}
	switch {
	case e.Status == http.StatusNotFound:
		return domain.ErrNotFound
	case e.Status == http.StatusConflict:
		return domain.ErrInvalidState
	case e.Status == http.StatusBadRequest:
		return domain.ErrValidation
	}
	return nil
}

// IsTransient reports whether err means the server could not be reached,
// failed on its side or ran out of retries on a contended event, so the
// request may succeed later unchanged.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status >= http.StatusInternalServerError || apiErr.Code == "version_conflict"
	}
	return !errors.Is(err, context.Canceled)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	res, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// send performs the request and returns the response only for 2xx
// answers; the caller closes its body.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return res, nil
	}
	defer res.Body.Close()

	apiErr := &APIError{Status: res.StatusCode, Message: http.StatusText(res.StatusCode)}
	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
		Total *int   `json:"total"`
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<16)).Decode(&payload); err == nil {
		apiErr.Code = payload.Code
		apiErr.Total = payload.Total
		if payload.Error != "" {
			apiErr.Message = payload.Error
		}
	}
	return nil, apiErr
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Register asks for a new association. A nil error is never returned on
// success: the server answers domain.ErrPendingActivation until an
// operator activates the account.
func (c *Client) Register(ctx context.Context, email, password, associationName string) error {
	return c.do(ctx, http.MethodPost, "/auth/register", map[string]string{
		"email":            email,
		"password":         password,
		"association_name": associationName,
	}, nil)
}

// Login opens a session and keeps its token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	var s Session
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &s)
	if err != nil {
		return Session{}, err
	}
	c.token = s.Token
	return s, nil
}

func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "/auth/logout", nil, nil); err != nil {
		return err
	}
	c.token = ""
	return nil
}

func (c *Client) Me(ctx context.Context) (Association, error) {
	var a Association
	err := c.do(ctx, http.MethodGet, "/me", nil, &a)
	return a, err
}

func (c *Client) Events(ctx context.Context) ([]Event, error) {
	var events []Event
	err := c.do(ctx, http.MethodGet, "/events", nil, &events)
	return events, err
}

func (c *Client) Event(ctx context.Context, id string) (Event, error) {
	var e Event
	err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(id), nil, &e)
	return e, err
}

func (c *Client) CreateEvent(ctx context.Context, name string, startsAt, endsAt time.Time) (Event, error) {
	var e Event
	err := c.do(ctx, http.MethodPost, "/events", map[string]any{
		"name":      name,
		"starts_at": startsAt,
		"ends_at":   endsAt,
	}, &e)
	return e, err
}

func (c *Client) Summary(ctx context.Context) (Summary, error) {
	var s Summary
	err := c.do(ctx, http.MethodGet, "/events/summary", nil, &s)
	return s, err
}

// Tap records one tap. A zero at lets the server stamp it.
func (c *Client) Tap(ctx context.Context, eventID string, dir domain.Direction, at time.Time) (TapResult, error) {
	body := map[string]any{"direction": string(dir)}
	if !at.IsZero() {
		body["at"] = at
	}
	var res TapResult
	err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(eventID)+"/taps", body, &res)
	return res, err
}

func (c *Client) RecentTaps(ctx context.Context, eventID string, limit int) ([]Tap, error) {
	path := fmt.Sprintf("/events/%s/taps?limit=%d", url.PathEscape(eventID), limit)
	var taps []Tap
	err := c.do(ctx, http.MethodGet, path, nil, &taps)
	return taps, err
}

func (c *Client) Report(ctx context.Context, eventID, interval string) (Report, error) {
	var rep Report
	err := c.do(ctx, http.MethodGet, reportPath(eventID, "report", interval), nil, &rep)
	return rep, err
}

// ReportPDF downloads the PDF export and the file name the server
// suggests for it.
func (c *Client) ReportPDF(ctx context.Context, eventID, interval string) ([]byte, string, error) {
	res, err := c.send(ctx, http.MethodGet, reportPath(eventID, "report.pdf", interval), nil)
	if err != nil {
		return nil, "", err
	}
	defer res.Body.Close()

	out, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read pdf: %w", err)
	}
	name := "report.pdf"
	if _, params, err := mime.ParseMediaType(res.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = params["filename"]
	}
	return out, name, nil
}

func reportPath(eventID, leaf, interval string) string {
	path := "/events/" + url.PathEscape(eventID) + "/" + leaf
	if interval != "" {
		path += "?interval=" + url.QueryEscape(interval)
	}
	return path
}
