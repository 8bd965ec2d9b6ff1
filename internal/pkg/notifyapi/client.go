package notifyapi

import (
	"bytes"
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

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/yrippert-maker/klg-asutk-app-sub001/internal/domain/notification"
)

const (
	DefaultPrefix  = "/api/v1"
	DefaultTimeout = 15 * time.Second
)

// HTTPError is a non-2xx reply from the notification API.
type HTTPError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound
}

// Client talks to the notification REST API. It implements notification.Source.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ notification.Source = (*Client)(nil)

// NewClient creates a client for baseURL. A relative base (no path) gets the
// default /api/v1 prefix. When ts is non-nil every request carries its bearer
// token; httpClient may be nil.
func NewClient(baseURL string, ts oauth2.TokenSource, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported api url scheme %q", u.Scheme)
	}
	if u.Path == "" {
		u.Path = DefaultPrefix
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	if ts != nil {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		wrapped := *httpClient
		wrapped.Transport = &oauth2.Transport{Source: ts, Base: base}
		httpClient = &wrapped
	}

	return &Client{baseURL: u.String(), httpClient: httpClient}, nil
}

// StaticToken returns a token source for a fixed bearer token, or nil when
// token is empty.
func StaticToken(token string) oauth2.TokenSource {
	if token == "" {
		return nil
	}
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
}

// List fetches the most recent notifications, newest first.
func (c *Client) List(ctx context.Context, params notification.ListParams) ([]notification.Notification, error) {
	q := url.Values{}
	if params.PerPage > 0 {
		q.Set("per_page", strconv.Itoa(params.PerPage))
	}
	q.Set("unread_only", strconv.FormatBool(params.UnreadOnly))

	var out notification.ListResponse
	if err := c.doJSON(ctx, http.MethodGet, "/notifications?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	if out.Items == nil {
		out.Items = []notification.Notification{}
	}
	return out.Items, nil
}

// MarkRead marks one notification as read
func (c *Client) MarkRead(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return notification.ErrNotificationNotFound
	}
	return c.doJSON(ctx, http.MethodPost, "/notifications/"+url.PathEscape(id)+"/read", nil, nil)
}

// MarkAllRead marks every notification of the caller as read
func (c *Client) MarkAllRead(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/notifications/read-all", nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, requestPath string, body, out any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+requestPath, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, requestPath, err)
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return fmt.Errorf("reading response body: %w", readErr)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decoding %s %s: %w", method, requestPath, err)
		}
		return nil
	}

	return decodeError(resp.StatusCode, payload)
}

// decodeError understands both {"code","message"} and the stub server's
// {"success":false,"error":{"code","message"}} envelope.
func decodeError(status int, payload []byte) error {
	var flat struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	var wrapped struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}

	httpErr := &HTTPError{StatusCode: status}
	if json.Unmarshal(payload, &wrapped) == nil && wrapped.Error.Message != "" {
		httpErr.Code = wrapped.Error.Code
		httpErr.Message = wrapped.Error.Message
	} else if json.Unmarshal(payload, &flat) == nil && flat.Message != "" {
		httpErr.Code = flat.Code
		httpErr.Message = flat.Message
	} else {
		httpErr.Message = strings.TrimSpace(string(payload))
	}
	if httpErr.Message == "" {
		httpErr.Message = http.StatusText(status)
	}
	return httpErr
}
