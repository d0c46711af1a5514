package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return NewClientWithTimeout(ts.URL+"/api/comfy", 5*time.Second)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestGenerateQueued(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/generate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		var req GenerationRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "a cat", req.PositivePrompt)
		assert.Equal(t, []string{"detail.safetensors"}, req.LoraNames)
		writeJSON(w, http.StatusOK, map[string]string{"status": "queued", "prompt_id": "abc"})
	})
	c := newTestBackend(t, mux)

	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	req.LoraNames = []string{"detail.safetensors"}
	handle, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, handle.Queued())
	assert.Equal(t, "abc", handle.PromptID)
}

func TestGenerateRejectedByBackend(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/generate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "ComfyUI unreachable"})
	})
	c := newTestBackend(t, mux)

	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	handle, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, handle.Queued())
	assert.Equal(t, JobFailedToQueue, handle.Status)
	assert.Contains(t, handle.Detail, "ComfyUI unreachable")
}

func TestGenerateValidationDetailList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/generate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]string{{"loc": "body.width", "msg": "bad width"}},
		})
	})
	c := newTestBackend(t, mux)

	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	handle, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, JobFailedToQueue, handle.Status)
	assert.Contains(t, handle.Detail, "bad width")
}

func TestGenerateHandleWithoutPromptID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/generate", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "failed_to_queue", "message": "no model"})
	})
	c := newTestBackend(t, mux)

	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	handle, err := c.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, handle.Queued())
	assert.Equal(t, "no model", handle.Detail)
}

func TestGenerateRejectsInvalidRequestLocally(t *testing.T) {
	c := NewClient("http://127.0.0.1:1/api/comfy")
	_, err := c.Generate(context.Background(), GenerationRequest{PositivePrompt: "  ", BatchSize: 1})
	assert.Error(t, err)
}

func TestGenerateTransportError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c := NewClientWithTimeout(url, time.Second)
	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	_, err := c.Generate(context.Background(), req)
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/status/p1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":    "completed",
			"filenames": []string{"a.png", "b.png"},
			"subfolder": "panel",
		})
	})
	mux.HandleFunc("/api/comfy/status/broken", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadGateway, map[string]string{"detail": "upstream"})
	})
	c := newTestBackend(t, mux)

	status, err := c.Status(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "p1", status.PromptID)
	assert.True(t, status.Completed())
	assert.Equal(t, []OutputRef{
		{Filename: "a.png", Subfolder: "panel", Type: "output"},
		{Filename: "b.png", Subfolder: "panel", Type: "output"},
	}, status.OutputRefs())

	_, err = c.Status(context.Background(), "broken")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream")
}

func TestJobStatusStates(t *testing.T) {
	single := &JobStatus{Status: JobStatusComplete, Filename: "one.png"}
	assert.True(t, single.Completed())
	assert.Len(t, single.OutputRefs(), 1)

	empty := &JobStatus{Status: JobStatusComplete}
	assert.False(t, empty.Completed())
	assert.Empty(t, empty.OutputRefs())

	assert.True(t, (&JobStatus{Status: JobStatusFailed}).Failed())
	assert.True(t, (&JobStatus{Status: JobStatusError}).Failed())
	assert.False(t, (&JobStatus{Status: "processing"}).Failed())
}

func TestHealth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":      "connected",
			"comfyui_url": "http://comfy:8188",
			"devices":     []map[string]interface{}{{"name": "cuda:0", "type": "cuda", "vram_total": 1024}},
		})
	})
	c := newTestBackend(t, mux)

	health := c.Health(context.Background())
	assert.True(t, health.Connected())
	require.Len(t, health.Devices, 1)
	assert.Equal(t, int64(1024), health.Devices[0].VRAMTotal)
}

func TestHealthUnreachableIsDisconnected(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	health := NewClientWithTimeout(url, time.Second).Health(context.Background())
	assert.False(t, health.Connected())
	assert.Equal(t, "disconnected", health.Status)
	assert.NotNil(t, health.Devices)
}

func TestModelsLorasQueue(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/models", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"models": []string{"flux-dev.safetensors"}})
	})
	mux.HandleFunc("/api/comfy/loras", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{"loras": []string{}, "error": "object_info failed"})
	})
	mux.HandleFunc("/api/comfy/queue", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"queue_running":[[1,"run-1",{},{},[]]],"queue_pending":[[2,"wait-1",{},{},[]],[3]]}`))
	})
	c := newTestBackend(t, mux)
	ctx := context.Background()

	models, err := c.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"flux-dev.safetensors"}, models)

	_, err = c.Loras(ctx)
	assert.ErrorContains(t, err, "object_info failed")

	queue, err := c.Queue(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"run-1"}, queue.PromptIDs(queue.Running))
	assert.Equal(t, []string{"wait-1"}, queue.PromptIDs(queue.Pending))
}

func TestInterruptAndClearVRAM(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	mux := http.NewServeMux()
	for _, p := range []string{"/api/comfy/interrupt", "/api/comfy/clear-vram"} {
		path := p
		mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			mu.Lock()
			hits = append(hits, path)
			mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	}
	c := newTestBackend(t, mux)

	require.NoError(t, c.Interrupt(context.Background()))
	require.NoError(t, c.ClearVRAM(context.Background()))
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/api/comfy/interrupt", "/api/comfy/clear-vram"}, hits)
}

func TestGetImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/image", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "a.png", q.Get("filename"))
		assert.Equal(t, "panel", q.Get("subfolder"))
		assert.Equal(t, "output", q.Get("type"))
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("pngbytes"))
	})
	c := newTestBackend(t, mux)

	data, err := c.GetImage(context.Background(), OutputRef{Filename: "a.png", Subfolder: "panel"})
	require.NoError(t, err)
	assert.Equal(t, []byte("pngbytes"), data)
}

func TestImageMetadata(t *testing.T) {
	png := buildPNG(t, textChunk("tEXt", "prompt", `{"3":{}}`))
	mux := http.NewServeMux()
	mux.HandleFunc("/api/comfy/image", func(w http.ResponseWriter, r *http.Request) {
		w.Write(png)
	})
	c := newTestBackend(t, mux)

	meta, err := c.ImageMetadata(context.Background(), OutputRef{Filename: "a.png"})
	require.NoError(t, err)
	assert.Equal(t, `{"3":{}}`, meta["prompt"])
}

func TestCloneIsDeep(t *testing.T) {
	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	req.LoraNames = []string{"one"}

	cp := req.Clone()
	req.LoraNames[0] = "changed"
	assert.Equal(t, "one", cp.LoraNames[0])
}

func TestValidate(t *testing.T) {
	ok := DefaultGenerationRequest()
	ok.PositivePrompt = "a cat"
	assert.NoError(t, ok.Validate())

	tests := []struct {
		name   string
		modify func(*GenerationRequest)
	}{
		{"empty prompt", func(r *GenerationRequest) { r.PositivePrompt = "" }},
		{"blank prompt", func(r *GenerationRequest) { r.PositivePrompt = " \t" }},
		{"negative width", func(r *GenerationRequest) { r.Width = -1 }},
		{"zero height", func(r *GenerationRequest) { r.Height = 0 }},
		{"zero steps", func(r *GenerationRequest) { r.Steps = 0 }},
		{"zero batch size", func(r *GenerationRequest) { r.BatchSize = 0 }},
		{"negative cfg", func(r *GenerationRequest) { r.CFG = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ok.Clone()
			tt.modify(&r)
			assert.Error(t, r.Validate())
		})
	}
}

func TestNewGalleryItemCreate(t *testing.T) {
	req := DefaultGenerationRequest()
	req.PositivePrompt = "a cat"
	item := NewGalleryItemCreate(req, OutputRef{Filename: "a.png", Subfolder: "panel"})
	assert.Equal(t, "a.png", item.Filename)
	assert.Equal(t, "panel", item.Subfolder)
	assert.Equal(t, "a cat", item.PromptPositive)
	assert.Equal(t, "default", item.Model)
	assert.Equal(t, req.Steps, item.Steps)
	assert.Equal(t, "default", item.WorkflowID)
}
