package client

import (
	"encoding/json"
	"time"
)

// GenerationRequest is the body of a generation submission. The backend turns it into
// a node graph and queues it.
type GenerationRequest struct {
	PositivePrompt string   `json:"positive_prompt" validate:"required"`
	NegativePrompt string   `json:"negative_prompt"`
	Width          int      `json:"width" validate:"gte=1"`
	Height         int      `json:"height" validate:"gte=1"`
	Steps          int      `json:"steps" validate:"gte=1"`
	CFG            float64  `json:"cfg" validate:"gte=0"`
	SamplerName    string   `json:"sampler_name"`
	Model          string   `json:"model,omitempty"`
	LoraNames      []string `json:"lora_names,omitempty"`
	BatchSize      int      `json:"batch_size" validate:"gte=1"`
	WorkflowID     string   `json:"workflow_id,omitempty"`
}

// DefaultGenerationRequest returns a request populated with the backend's defaults.
func DefaultGenerationRequest() GenerationRequest {
	return GenerationRequest{
		NegativePrompt: "blurry, low quality, text, watermark",
		Width:          1088,
		Height:         1920,
		Steps:          8,
		CFG:            1.0,
		SamplerName:    "res_multistep",
		BatchSize:      1,
		WorkflowID:     "default",
	}
}

// Clone returns a deep copy, so later edits by the caller cannot reach a submitted request.
func (r GenerationRequest) Clone() GenerationRequest {
	if r.LoraNames != nil {
		r.LoraNames = append([]string(nil), r.LoraNames...)
	}
	return r
}

// OutputRef identifies one output file on the backend.
type OutputRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type,omitempty"`
}

// GalleryItemCreate is the body used to record a finished image in the gallery.
type GalleryItemCreate struct {
	Filename       string  `json:"filename" binding:"required"`
	Subfolder      string  `json:"subfolder"`
	PromptPositive string  `json:"prompt_positive" binding:"required"`
	PromptNegative string  `json:"prompt_negative"`
	Model          string  `json:"model" binding:"required"`
	Width          int     `json:"width" binding:"required,gte=1"`
	Height         int     `json:"height" binding:"required,gte=1"`
	Steps          int     `json:"steps" binding:"required,gte=1"`
	CFG            float64 `json:"cfg" binding:"gte=0"`
	WorkflowID     string  `json:"workflow_id,omitempty"`
}

// GalleryItem is a persisted gallery record. Items are never modified after creation.
type GalleryItem struct {
	ID             int64     `json:"id"`
	Filename       string    `json:"filename"`
	Subfolder      string    `json:"subfolder"`
	PromptPositive string    `json:"prompt_positive"`
	PromptNegative string    `json:"prompt_negative"`
	Model          string    `json:"model"`
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	Steps          int       `json:"steps"`
	CFG            float64   `json:"cfg"`
	WorkflowID     string    `json:"workflow_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewGalleryItemCreate copies the parameters of req and pairs them with one output file.
func NewGalleryItemCreate(req GenerationRequest, ref OutputRef) GalleryItemCreate {
	model := req.Model
	if model == "" {
		model = "default"
	}
	return GalleryItemCreate{
		Filename:       ref.Filename,
		Subfolder:      ref.Subfolder,
		PromptPositive: req.PositivePrompt,
		PromptNegative: req.NegativePrompt,
		Model:          model,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		CFG:            req.CFG,
		WorkflowID:     req.WorkflowID,
	}
}

type HealthStatus struct {
	Status     string   `json:"status"`
	ComfyUIURL string   `json:"comfyui_url"`
	Devices    []Device `json:"devices"`
}

// Connected reports whether the backend could reach ComfyUI.
func (h *HealthStatus) Connected() bool {
	return h.Status == "connected"
}

type Device struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Index          int    `json:"index"`
	VRAMTotal      int64  `json:"vram_total"`
	VRAMFree       int64  `json:"vram_free"`
	TorchVRAMTotal int64  `json:"torch_vram_total"`
	TorchVRAMFree  int64  `json:"torch_vram_free"`
}

// QueueInfo mirrors ComfyUI's /queue payload. Each entry is [number, prompt_id, prompt, extra, outputs].
type QueueInfo struct {
	Running [][]interface{} `json:"queue_running"`
	Pending [][]interface{} `json:"queue_pending"`
}

// PromptIDs returns the prompt ids of the given queue entries in order.
func (q *QueueInfo) PromptIDs(entries [][]interface{}) []string {
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if len(e) < 2 {
			continue
		}
		if id, ok := e[1].(string); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

type modelList struct {
	Models []string `json:"models"`
	Error  string   `json:"error,omitempty"`
}

type loraList struct {
	Loras []string `json:"loras"`
	Error string   `json:"error,omitempty"`
}

// errorDetail is the error body returned by the backend and the gallery store.
// detail is a string for most errors and a list for request validation errors.
type errorDetail struct {
	Detail json.RawMessage `json:"detail"`
	Error  string          `json:"error"`
}

func (e *errorDetail) message() string {
	if len(e.Detail) > 0 && string(e.Detail) != "null" {
		var s string
		if err := json.Unmarshal(e.Detail, &s); err == nil {
			return s
		}
		return string(e.Detail)
	}
	return e.Error
}
