package client

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
)

/*
backend routes, relative to the API root:

GET  /health
GET  /queue
GET  /status/{prompt_id}
GET  /image?filename=&subfolder=&type=
GET  /models
GET  /loras
GET  /ws

POST /generate
POST /interrupt
POST /clear-vram
*/

// Generate submits req. Rejections by the backend come back as a handle with status
// JobFailedToQueue; only transport failures and invalid requests return an error.
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*JobHandle, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	handle := &JobHandle{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(handle).
		Post("/generate")
	if err != nil {
		return nil, err
	}

	if resp.IsError() {
		reason := responseError(resp).Error()
		slog.Warn("generation request rejected", "status", resp.StatusCode(), "reason", reason)
		return &JobHandle{Status: JobFailedToQueue, Detail: reason}, nil
	}
	if !handle.Queued() {
		if handle.Status == "" {
			handle.Status = JobFailedToQueue
		}
		handle.Detail = handle.Message
	}
	return handle, nil
}

// Status polls the state of a queued job.
func (c *Client) Status(ctx context.Context, promptID string) (*JobStatus, error) {
	status := &JobStatus{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetPathParam("prompt_id", promptID).
		SetResult(status).
		Get("/status/{prompt_id}")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if status.PromptID == "" {
		status.PromptID = promptID
	}
	return status, nil
}

// Health reports whether the backend can reach ComfyUI. An unreachable backend is
// reported as "disconnected" rather than as an error.
func (c *Client) Health(ctx context.Context) *HealthStatus {
	health := &HealthStatus{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetResult(health).
		Get("/health")
	if err != nil || resp.IsError() {
		if err == nil {
			err = responseError(resp)
		}
		slog.Error("health check failed", "error", err)
		return &HealthStatus{Status: "disconnected", Devices: []Device{}}
	}
	return health
}

// Models retrieves the checkpoint and unet models installed on the ComfyUI server.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	list := &modelList{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetResult(list).
		Get("/models")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if list.Error != "" {
		return nil, fmt.Errorf("listing models: %s", list.Error)
	}
	return list.Models, nil
}

// Loras retrieves the LoRA names installed on the ComfyUI server.
func (c *Client) Loras(ctx context.Context) ([]string, error) {
	list := &loraList{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetResult(list).
		Get("/loras")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	if list.Error != "" {
		return nil, fmt.Errorf("listing loras: %s", list.Error)
	}
	return list.Loras, nil
}

func (c *Client) Queue(ctx context.Context) (*QueueInfo, error) {
	queue := &QueueInfo{}
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetResult(queue).
		Get("/queue")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return queue, nil
}

// Interrupt asks the backend to stop the running job. Client-side polls are not
// stopped; they observe the failure the backend reports.
func (c *Client) Interrupt(ctx context.Context) error {
	return c.post(ctx, "/interrupt")
}

// ClearVRAM asks ComfyUI to unload models and free memory.
func (c *Client) ClearVRAM(ctx context.Context) error {
	return c.post(ctx, "/clear-vram")
}

func (c *Client) post(ctx context.Context, path string) error {
	resp, err := c.httpclient.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{}).
		Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return responseError(resp)
	}
	return nil
}

// GetImage retrieves the bytes of an output file.
func (c *Client) GetImage(ctx context.Context, ref OutputRef) ([]byte, error) {
	imageType := ref.Type
	if imageType == "" {
		imageType = "output"
	}
	req := c.httpclient.R().
		SetContext(ctx).
		SetHeader("Accept", "*/*").
		SetQueryParam("filename", ref.Filename).
		SetQueryParam("type", imageType)
	if ref.Subfolder != "" {
		req.SetQueryParam("subfolder", ref.Subfolder)
	}

	resp, err := req.Get("/image")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, responseError(resp)
	}
	return resp.Body(), nil
}

// ImageMetadata retrieves an output file and returns its PNG text chunks. ComfyUI stores
// the executed prompt and the workflow graph under the "prompt" and "workflow" keys.
func (c *Client) ImageMetadata(ctx context.Context, ref OutputRef) (map[string]string, error) {
	data, err := c.GetImage(ctx, ref)
	if err != nil {
		return nil, err
	}
	return GetPngMetadata(bytes.NewReader(data))
}
