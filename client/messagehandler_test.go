package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeEvent(t *testing.T, raw string) StreamEvent {
	t.Helper()
	var ev StreamEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &ev))
	return ev
}

func TestStreamEventDecoding(t *testing.T) {
	ev := decodeEvent(t, `{"type":"progress","data":{"value":3,"max":8,"prompt_id":"p1","node":31}}`)
	require.Equal(t, EventProgress, ev.Type)
	p := ev.ToProgress()
	assert.Equal(t, 3, p.Value)
	assert.Equal(t, 8, p.Max)
	assert.Equal(t, "31", p.Node)
	assert.InDelta(t, 37.5, p.Percent(), 0.001)

	ev = decodeEvent(t, `{"type":"executing","data":{"node":"12","prompt_id":"p1"}}`)
	require.NotNil(t, ev.ToExecuting().Node)
	assert.Equal(t, "12", *ev.ToExecuting().Node)

	ev = decodeEvent(t, `{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`)
	assert.Nil(t, ev.ToExecuting().Node)

	ev = decodeEvent(t, `{"type":"executed","data":{"node":9,"prompt_id":"p1","output":{"images":[{"filename":"a.png","subfolder":"","type":"output"}],"text":["hello"]}}}`)
	ex := ev.ToExecuted()
	assert.Equal(t, "9", ex.Node)
	assert.Equal(t, []OutputRef{{Filename: "a.png", Type: "output"}}, ex.Images())
	assert.NotContains(t, ex.Output, "text")

	ev = decodeEvent(t, `{"type":"gallery_updated","data":{"action":"deleted","id":7}}`)
	assert.Equal(t, &EventGalleryUpdatedData{Action: "deleted", ID: 7}, ev.ToGalleryUpdated())
}

func TestStreamEventUnknownTag(t *testing.T) {
	ev := decodeEvent(t, `{"type":"crystools.monitor","data":{"cpu_utilization":12}}`)
	assert.Equal(t, EventUnknown, ev.Type)
	assert.Equal(t, "crystools.monitor", ev.Tag)
	assert.Nil(t, ev.Data)
}

func TestStreamEventBadPayload(t *testing.T) {
	var ev StreamEvent
	err := json.Unmarshal([]byte(`{"type":"progress","data":{"value":"three"}}`), &ev)
	assert.Error(t, err)
}

func TestGalleryUpdatedEventRoundTrip(t *testing.T) {
	b, err := json.Marshal(NewGalleryUpdatedEvent("created", 3))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"gallery_updated","data":{"action":"created","id":3}}`, string(b))

	b, err = json.Marshal(NewGalleryUpdatedEvent("cleared", 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"gallery_updated","data":{"action":"cleared"}}`, string(b))
}

func TestDispatchChain(t *testing.T) {
	var calls []string
	first := (&EventHandlers{}).
		WithProgressHandler(func(msg *EventProgressData) { calls = append(calls, "first") })
	second := (&EventHandlers{}).
		WithProgressHandler(func(msg *EventProgressData) { calls = append(calls, "second") })
	third := (&EventHandlers{}).
		WithExecutedHandler(func(msg *EventExecutedData) { calls = append(calls, "executed") })

	h := first.Then(second).Then(third)
	h.Dispatch(decodeEvent(t, `{"type":"progress","data":{"value":1,"max":2}}`))
	assert.Equal(t, []string{"first", "second"}, calls)

	calls = nil
	h.Dispatch(decodeEvent(t, `{"type":"executed","data":{"node":"1","output":{}}}`))
	assert.Equal(t, []string{"executed"}, calls)
}

func TestDispatchUnknownAndNil(t *testing.T) {
	var nilHandlers *EventHandlers
	assert.NotPanics(t, func() {
		nilHandlers.Dispatch(decodeEvent(t, `{"type":"progress","data":{}}`))
	})

	var tags []string
	var cached []string
	h := (&EventHandlers{}).
		WithUnknownHandler(func(ev StreamEvent) { tags = append(tags, ev.Tag) }).
		WithExecutionCachedHandler(func(msg *EventExecutionCachedData) { cached = append(cached, msg.Nodes...) })
	h.Dispatch(decodeEvent(t, `{"type":"something_new","data":{}}`))
	h.Dispatch(decodeEvent(t, `{"type":"execution_cached","data":{"nodes":["1","4"],"prompt_id":"p1"}}`))
	assert.Equal(t, []string{"something_new"}, tags)
	assert.Equal(t, []string{"1", "4"}, cached)
}

func TestDispatchSkipsMissingPayload(t *testing.T) {
	called := false
	h := (&EventHandlers{}).
		WithProgressHandler(func(msg *EventProgressData) { called = true }).
		WithExecutingHandler(func(msg *EventExecutingData) { called = true }).
		WithGalleryUpdatedHandler(func(msg *EventGalleryUpdatedData) { called = true })

	assert.NotPanics(t, func() {
		h.Dispatch(StreamEvent{Type: EventProgress})
		h.Dispatch(StreamEvent{Type: EventExecuting, Data: &EventProgressData{}})
		h.Dispatch(StreamEvent{Type: EventGalleryUpdated})
	})
	assert.False(t, called)

	ev := StreamEvent{Type: EventProgress}
	assert.Nil(t, ev.ToProgress())
	assert.Nil(t, ev.ToExecutionCached())
}

func TestDefaultEventHandlersDoNotPanic(t *testing.T) {
	h := DefaultEventHandlers()
	for _, raw := range []string{
		`{"type":"execution_start","data":{"prompt_id":"p1"}}`,
		`{"type":"executing","data":{"node":null,"prompt_id":"p1"}}`,
		`{"type":"execution_error","data":{"prompt_id":"p1","node_id":"3","exception_message":"boom"}}`,
		`{"type":"execution_interrupted","data":{"prompt_id":"p1"}}`,
		`{"type":"progress","data":{"value":1,"max":2}}`,
	} {
		assert.NotPanics(t, func() { h.Dispatch(decodeEvent(t, raw)) })
	}
}

func TestParseEventType(t *testing.T) {
	assert.Equal(t, EventExecutionError, ParseEventType("execution_error"))
	assert.Equal(t, EventUnknown, ParseEventType("nope"))
	assert.Equal(t, "execution_error", EventExecutionError.String())
	assert.Equal(t, "unknown", EventUnknown.String())
}
