package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenProvider returns the current bearer token. It is consulted fresh on
// every authenticated call so that a logout or token refresh takes effect on
// the very next request.
type TokenProvider func(ctx context.Context) (string, error)

type ClientOptions struct {
	BaseURL       string
	TokenProvider TokenProvider
	HTTPClient    *http.Client
	UserAgent     string
}

// Client is the JSON transport shared by every component that talks to the
// lead service. It never retries: a superseded or failed call surfaces as a
// structured *Error and the caller decides what to do.
type Client struct {
	baseURL       string
	tokenProvider TokenProvider
	httpClient    *http.Client
	userAgent     string
}

func NewClient(opts ClientOptions) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:4000/api"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:       baseURL,
		tokenProvider: opts.TokenProvider,
		httpClient:    httpClient,
		userAgent:     strings.TrimSpace(opts.UserAgent),
	}
}

// BaseURL reports the resolved base URL, mainly for logging.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) Get(ctx context.Context, path string, query url.Values, out any, fallback string) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out, fallback, true)
}

func (c *Client) Post(ctx context.Context, path string, body, out any, fallback string) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out, fallback, true)
}

func (c *Client) Put(ctx context.Context, path string, body, out any, fallback string) error {
	return c.doJSON(ctx, http.MethodPut, path, nil, body, out, fallback, true)
}

func (c *Client) Delete(ctx context.Context, path string, fallback string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, nil, nil, fallback, true)
}

// PostPublic issues a POST without a bearer header. Only the auth endpoints
// (register, login) are called this way.
func (c *Client) PostPublic(ctx context.Context, path string, body, out any, fallback string) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out, fallback, false)
}

func (c *Client) doJSON(
	ctx context.Context,
	method, requestPath string,
	query url.Values,
	body, out any,
	fallback string,
	authed bool,
) error {
	token := ""
	if authed {
		if c.tokenProvider == nil {
			return Unauthenticated("")
		}
		var err error
		token, err = c.tokenProvider(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(token) == "" {
			return Unauthenticated("")
		}
	}

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return &Error{Kind: KindUnknown, Message: fallback, Err: err}
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	requestURL := c.baseURL + requestPath
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return &Error{Kind: KindUnknown, Message: fallback, Err: err}
	}
	if authed {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("X-Correlation-Id", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Kind: KindNetwork, Message: fallback, Err: err}
	}
	payload, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return &Error{Kind: KindNetwork, Message: fallback, Err: readErr}
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		if out == nil || len(payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return &Error{Kind: KindUnknown, StatusCode: resp.StatusCode, Message: fallback, Err: err}
		}
		return nil
	}

	message := fallback
	var errPayload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(payload, &errPayload) == nil && strings.TrimSpace(errPayload.Message) != "" {
		message = strings.TrimSpace(errPayload.Message)
	}
	return &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    message,
	}
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindUnauthenticated
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 400 && status <= 499:
		return KindValidation
	case status >= 500 && status <= 599:
		return KindServer
	default:
		return KindUnknown
	}
}
