package client

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// ErrNotFound is returned when the addressed record does not exist.
var ErrNotFound = errors.New("not found")

const defaultTimeout = 120 * time.Second

// Client is the top level object that allows for interaction with the panel's job backend.
// The base URL is the backend's API root, e.g. http://localhost:8000/api/comfy.
type Client struct {
	baseURL    string
	clientid   string
	timeout    time.Duration
	httpclient *resty.Client
}

// NewClient creates a new job backend client with the default request timeout
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, defaultTimeout)
}

// NewClientWithTimeout creates a new job backend client whose requests time out after timeout
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		clientid: uuid.New().String(),
		timeout:  timeout,
	}
	c.httpclient = newRestyClient(resty.New(), c.baseURL, timeout)
	return c
}

func newRestyClient(r *resty.Client, baseURL string, timeout time.Duration) *resty.Client {
	r.SetBaseURL(baseURL).
		SetHeader("Accept", "application/json").
		SetHeader("Content-Type", "application/json").
		SetError(&errorDetail{})
	if timeout > 0 {
		r.SetTimeout(timeout)
	}
	return r
}

// ClientID returns the unique id this client uses on the event stream
func (c *Client) ClientID() string {
	return c.clientid
}

// BaseURL returns the backend API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// set the underlying http client
func (c *Client) SetHttpClient(client *http.Client) {
	c.httpclient = newRestyClient(resty.NewWithClient(client), c.baseURL, c.timeout)
}

// NewEventStream returns a stream subscribed to the backend's /ws push channel under this client's id.
func (c *Client) NewEventStream(handlers *EventHandlers) (*EventStream, error) {
	wsurl, err := websocketURL(c.baseURL, "/ws", url.Values{"clientId": {c.clientid}})
	if err != nil {
		return nil, fmt.Errorf("building event stream url: %w", err)
	}
	return NewEventStream(wsurl, handlers), nil
}

// responseError describes a non-2xx response using the backend's error body when present.
func responseError(resp *resty.Response) error {
	if e, ok := resp.Error().(*errorDetail); ok {
		if msg := e.message(); msg != "" {
			return fmt.Errorf("%s %s: %d %s", resp.Request.Method, resp.Request.URL, resp.StatusCode(), msg)
		}
	}
	return fmt.Errorf("%s %s: %s %s", resp.Request.Method, resp.Request.URL, resp.Status(), strings.TrimSpace(resp.String()))
}
