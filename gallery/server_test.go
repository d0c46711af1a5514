package gallery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfypanel/comfypanel/client"
)

func newTestServer(t *testing.T, opts ...ServerOption) (*Server, *httptest.Server) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	srv := NewServer(newTestStore(t), opts...)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestServerRoundTripWithGalleryClient(t *testing.T) {
	_, ts := newTestServer(t)
	gc := client.NewGalleryClient(ts.URL + "/api")
	ctx := context.Background()

	created, err := gc.CreateGalleryItem(ctx, sampleItem("cat1.png"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "cat1.png", created.Filename)

	other := sampleItem("dog.png")
	other.WorkflowID = "dogs"
	_, err = gc.CreateGalleryItem(ctx, other)
	require.NoError(t, err)

	items, err := gc.ListGallery(ctx, "")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "dog.png", items[0].Filename)

	dogs, err := gc.ListGallery(ctx, "dogs")
	require.NoError(t, err)
	require.Len(t, dogs, 1)

	require.NoError(t, gc.DeleteGalleryItem(ctx, created.ID))
	err = gc.DeleteGalleryItem(ctx, created.ID)
	assert.ErrorIs(t, err, client.ErrNotFound)

	require.NoError(t, gc.ClearGallery(ctx))
	items, err = gc.ListGallery(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCreateRequiresFilenameAndPrompt(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/gallery", "application/json", strings.NewReader(`{"subfolder":"x"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.NotEmpty(t, body["detail"])

	gc := client.NewGalleryClient(ts.URL + "/api")
	_, err = gc.CreateGalleryItem(context.Background(), client.GalleryItemCreate{Filename: "a.png"})
	assert.Error(t, err)
}

func TestCreateRequiresGenerationParameters(t *testing.T) {
	_, ts := newTestServer(t)
	gc := client.NewGalleryClient(ts.URL + "/api")

	tests := []struct {
		name   string
		modify func(*client.GalleryItemCreate)
	}{
		{"missing model", func(it *client.GalleryItemCreate) { it.Model = "" }},
		{"zero width", func(it *client.GalleryItemCreate) { it.Width = 0 }},
		{"zero height", func(it *client.GalleryItemCreate) { it.Height = 0 }},
		{"zero steps", func(it *client.GalleryItemCreate) { it.Steps = 0 }},
		{"negative cfg", func(it *client.GalleryItemCreate) { it.CFG = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := sampleItem("bad.png")
			tt.modify(&item)
			_, err := gc.CreateGalleryItem(context.Background(), item)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "422")
		})
	}

	zeroCFG := sampleItem("cfg0.png")
	zeroCFG.CFG = 0
	_, err := gc.CreateGalleryItem(context.Background(), zeroCFG)
	assert.NoError(t, err)

	items, err := gc.ListGallery(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestDeleteMissingReturnsDetail(t *testing.T) {
	_, ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/gallery/42", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Image not found", body["detail"])
}

func TestListLimit(t *testing.T) {
	_, ts := newTestServer(t, WithListLimit(2))
	gc := client.NewGalleryClient(ts.URL + "/api")
	ctx := context.Background()
	for _, name := range []string{"a.png", "b.png", "c.png"} {
		_, err := gc.CreateGalleryItem(ctx, sampleItem(name))
		require.NoError(t, err)
	}

	items, err := gc.ListGallery(ctx, "")
	require.NoError(t, err)
	assert.Len(t, items, 2)

	resp, err := http.Get(ts.URL + "/api/gallery?limit=3")
	require.NoError(t, err)
	defer resp.Body.Close()
	var all []client.GalleryItem
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&all))
	assert.Len(t, all, 3)

	bad, err := http.Get(ts.URL + "/api/gallery?limit=zero")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestBasePath(t *testing.T) {
	_, ts := newTestServer(t, WithBasePath(""))
	gc := client.NewGalleryClient(ts.URL)

	_, err := gc.CreateGalleryItem(context.Background(), sampleItem("root.png"))
	require.NoError(t, err)
	items, err := gc.ListGallery(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestHealthAndMetrics(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGalleryUpdatesArePushed(t *testing.T) {
	srv, ts := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/gallery/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, time.Second, 5*time.Millisecond)

	gc := client.NewGalleryClient(ts.URL + "/api")
	created, err := gc.CreateGalleryItem(context.Background(), sampleItem("pushed.png"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev client.StreamEvent
	require.NoError(t, conn.ReadJSON(&ev))
	require.Equal(t, client.EventGalleryUpdated, ev.Type)
	data := ev.ToGalleryUpdated()
	assert.Equal(t, ActionCreated, data.Action)
	assert.Equal(t, created.ID, data.ID)

	require.NoError(t, gc.ClearGallery(context.Background()))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, ActionCleared, ev.ToGalleryUpdated().Action)
}

func TestGalleryClientStreamReceivesUpdates(t *testing.T) {
	srv, ts := newTestServer(t)
	gc := client.NewGalleryClient(ts.URL + "/api")

	got := make(chan *client.EventGalleryUpdatedData, 4)
	stream, err := gc.NewEventStream((&client.EventHandlers{}).WithGalleryUpdatedHandler(func(msg *client.EventGalleryUpdatedData) {
		got <- msg
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stream.Run(ctx) }()
	require.Eventually(t, func() bool { return srv.Hub().Len() == 1 }, 2*time.Second, 5*time.Millisecond)

	created, err := gc.CreateGalleryItem(context.Background(), sampleItem("streamed.png"))
	require.NoError(t, err)
	require.NoError(t, gc.DeleteGalleryItem(context.Background(), created.ID))

	for _, want := range []string{ActionCreated, ActionDeleted} {
		select {
		case msg := <-got:
			assert.Equal(t, want, msg.Action)
			assert.Equal(t, created.ID, msg.ID)
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s notification", want)
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop")
	}
}

func TestHubDropsFramesForSlowSubscribers(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer; i++ {
		assert.Equal(t, 1, h.Publish([]byte("x")))
	}
	assert.Equal(t, 0, h.Publish([]byte("dropped")))
	assert.Len(t, ch, subscriberBuffer)

	h.Close()
	_, err := h.PublishEvent(client.NewGalleryUpdatedEvent(ActionCleared, 0))
	require.NoError(t, err)
	assert.Zero(t, h.Len())

	late, lateCancel := h.Subscribe()
	defer lateCancel()
	_, open := <-late
	assert.False(t, open)
}
