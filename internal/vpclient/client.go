package vpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vpatient/internal/domain"
)

const (
	StateField = "json"
	// UserHeader carries the trainee the state belongs to.
	UserHeader = "X-Vp-User"

	saveRoute     = "/activity/virtualpatient/save/"
	navigateRoute = "/activity/virtualpatient/navigate/"

	defaultTimeout = 30 * time.Second
	// Navigate replies are a single small JSON object.
	maxResponseSize = 1 << 20
)

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.HTTPClient = httpClient
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithUser sends userID with every request.
func WithUser(userID string) Option {
	return func(c *Client) {
		c.User = userID
	}
}

// Client talks to the virtual patient activity endpoints of one origin.
type Client struct {
	BaseURL    string
	User       string
	HTTPClient *http.Client
	log        *slog.Logger
}

func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: defaultTimeout},
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SavePath returns the autosave endpoint path for a patient.
func SavePath(patientID string) string {
	return saveRoute + url.PathEscape(patientID) + "/"
}

// NavigatePath returns the navigate endpoint path for a page and patient.
func NavigatePath(pageID, patientID string) string {
	return navigateRoute + url.PathEscape(pageID) + "/" + url.PathEscape(patientID) + "/"
}

// EncodeState builds the request body: the state as the single form field "json".
func EncodeState(state domain.PageState) string {
	return url.Values{StateField: {string(state)}}.Encode()
}

// Save posts the state to the autosave endpoint. The reply is drained and
// discarded; only transport failures and non-2xx statuses are reported.
func (c *Client) Save(ctx context.Context, patientID string, state domain.PageState) error {
	resp, target, err := c.post(ctx, "save", SavePath(patientID), state)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.TransportError{Op: "save", URL: target, StatusCode: resp.StatusCode}
	}
	c.log.Debug("vpclient: state saved", "patient", patientID, "bytes", len(state))
	return nil
}

// Navigate posts the state to the navigate endpoint and returns the
// server's redirect instruction.
func (c *Client) Navigate(ctx context.Context, pageID, patientID string, state domain.PageState) (*domain.NavigateResponse, error) {
	resp, target, err := c.post(ctx, "navigate", NavigatePath(pageID, patientID), state)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))
		return nil, &domain.TransportError{Op: "navigate", URL: target, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &domain.TransportError{Op: "navigate", URL: target, Err: fmt.Errorf("read body: %w", err)}
	}

	var out domain.NavigateResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &domain.MalformedResponseError{Body: string(data), Err: fmt.Errorf("parse json: %w", err)}
	}
	if out.Redirect == "" {
		return nil, &domain.MalformedResponseError{Body: string(data), Err: errors.New("redirect is missing")}
	}
	c.log.Debug("vpclient: navigate accepted", "page", pageID, "patient", patientID, "redirect", out.Redirect)
	return &out, nil
}

func (c *Client) post(ctx context.Context, op, path string, state domain.PageState) (*http.Response, string, error) {
	target := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(EncodeState(state)))
	if err != nil {
		return nil, target, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.User != "" {
		req.Header.Set(UserHeader, c.User)
	}

	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, target, &domain.TransportError{Op: op, URL: target, Err: err}
	}
	return resp, target, nil
}
