// Package graph is a thin Microsoft Graph REST client: token acquisition,
// retrying transport and JSON plumbing shared by the remote store, the
// document library and the mailer.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gklog "github.com/go-kit/log"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

const defaultBaseURL = "https://graph.microsoft.com/v1.0"

// Config tunes the HTTP transport shared by all Graph calls.
type Config struct {
	TimeoutSeconds int64 `json:"timeout_seconds" validate:"gte=0"`
	RetryMax       int   `json:"retry_max" validate:"gte=0"`
}

// Tokens yields bearer tokens for outgoing requests.
type Tokens interface {
	Token(ctx context.Context) (string, error)
}

// API is the request surface consumed by the store, library, directory and
// mail packages. *Client implements it.
type API interface {
	GetJSON(ctx context.Context, path string, out any) error
	PostJSON(ctx context.Context, path string, in, out any) error
	PatchJSON(ctx context.Context, path string, in, out any) error
	Put(ctx context.Context, path string, data []byte, contentType string, out any) error
	Delete(ctx context.Context, path string) error
	Download(ctx context.Context, path string, w io.Writer) error
}

var _ API = (*Client)(nil)

// APIError is a non-2xx Graph response with its error body decoded.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code == "" && e.Message == "" {
		return fmt.Sprintf("graph: http %d", e.StatusCode)
	}
	return fmt.Sprintf("graph: http %d: %s: %s", e.StatusCode, e.Code, e.Message)
}

// IsNotFound reports whether err is a Graph 404 anywhere in its chain.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client issues authenticated requests against the Graph REST API.
type Client struct {
	httpClient *retryablehttp.Client
	baseURL    string
	tokens     Tokens
	log        gklog.Logger
}

func NewClient(tokens Tokens, cfg Config, logger gklog.Logger) *Client {
	c := retryablehttp.NewClient()
	c.RetryMax = cfg.RetryMax
	c.HTTPClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	c.Logger = nil

	return &Client{
		httpClient: c,
		baseURL:    defaultBaseURL,
		tokens:     tokens,
		log:        gklog.With(logger, "component", "graph"),
	}
}

// GetJSON issues a GET and decodes the response body into out when out is
// non-nil.
func (c *Client) GetJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, "", out)
}

// PostJSON issues a POST with a JSON body.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	return c.doJSON(ctx, http.MethodPost, path, body, "application/json", out)
}

// PatchJSON issues a PATCH with a JSON body.
func (c *Client) PatchJSON(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	return c.doJSON(ctx, http.MethodPatch, path, body, "application/json", out)
}

// Put uploads raw bytes, decoding the JSON response into out when non-nil.
func (c *Client) Put(ctx context.Context, path string, data []byte, contentType string, out any) error {
	return c.doJSON(ctx, http.MethodPut, path, data, contentType, out)
}

// Delete issues a DELETE; Graph answers 204 on success.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.doJSON(ctx, http.MethodDelete, path, nil, "", nil)
}

// Download streams the body of a GET to w.
func (c *Client) Download(ctx context.Context, path string, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return errors.Wrap(err, "download content")
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	url := path
	if strings.HasPrefix(path, "/") {
		url = c.baseURL + path
	}

	var rawBody io.Reader
	if body != nil {
		rawBody = bytes.NewReader(body)
	}
	req, err := retryablehttp.NewRequest(method, url, rawBody)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", method, path)
	}
	return resp, nil
}

// EscapePath percent-encodes each segment of a drive path while keeping the
// separators.
func EscapePath(p string) string {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}

// decodeAPIError reads a non-2xx body and surfaces the Graph error envelope
// when present.
func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apiErr
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}
