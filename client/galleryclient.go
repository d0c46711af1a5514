package client

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// GalleryClient talks to a gallery store. The base URL is the store's API root, e.g.
// http://localhost:8000/api; records live under /gallery.
type GalleryClient struct {
	baseURL    string
	timeout    time.Duration
	httpclient *resty.Client
}

func NewGalleryClient(baseURL string) *GalleryClient {
	return NewGalleryClientWithTimeout(baseURL, 30*time.Second)
}

func NewGalleryClientWithTimeout(baseURL string, timeout time.Duration) *GalleryClient {
	g := &GalleryClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: timeout,
	}
	g.httpclient = newRestyClient(resty.New(), g.baseURL, timeout)
	return g
}

// set the underlying http client
func (g *GalleryClient) SetHttpClient(client *http.Client) {
	g.httpclient = newRestyClient(resty.NewWithClient(client), g.baseURL, g.timeout)
}

// ListGallery returns gallery items newest first, restricted to workflowID when it is not empty.
func (g *GalleryClient) ListGallery(ctx context.Context, workflowID string) ([]GalleryItem, error) {
	var items []GalleryItem
	req := g.httpclient.R().
		SetContext(ctx).
		SetHeader("Cache-Control", "no-store").
		SetResult(&items)
	if workflowID != "" {
		req.SetQueryParam("workflow_id", workflowID)
	}

	resp, err := req.Get("/gallery")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if items == nil {
		items = []GalleryItem{}
	}
	return items, nil
}

func (g *GalleryClient) CreateGalleryItem(ctx context.Context, item GalleryItemCreate) (*GalleryItem, error) {
	created := &GalleryItem{}
	resp, err := g.httpclient.R().
		SetContext(ctx).
		SetBody(item).
		SetResult(created).
		Post("/gallery")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return created, nil
}

// DeleteGalleryItem removes one record. The image file stays on the backend.
func (g *GalleryClient) DeleteGalleryItem(ctx context.Context, id int64) error {
	resp, err := g.httpclient.R().
		SetContext(ctx).
		SetPathParam("id", strconv.FormatInt(id, 10)).
		Delete("/gallery/{id}")
	if err != nil {
		return err
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("gallery item %d: %w", id, ErrNotFound)
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

// ClearGallery removes every record.
func (g *GalleryClient) ClearGallery(ctx context.Context) error {
	resp, err := g.httpclient.R().
		SetContext(ctx).
		Delete("/gallery")
	if err != nil {
		return err
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

// NewEventStream returns a stream of the store's gallery_updated notifications.
func (g *GalleryClient) NewEventStream(handlers *EventHandlers) (*EventStream, error) {
	wsurl, err := websocketURL(g.baseURL, "/gallery/ws", nil)
	if err != nil {
		return nil, fmt.Errorf("building gallery stream url: %w", err)
	}
	return NewEventStream(wsurl, handlers), nil
}
