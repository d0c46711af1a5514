package client

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
)

// StreamEvent is one frame of the push channel. Data holds the typed payload for the
// known tags and is nil for EventUnknown; Tag keeps the raw type string.
type StreamEvent struct {
	Type EventType
	Tag  string
	Data interface{}
}

func (e *StreamEvent) UnmarshalJSON(b []byte) error {
	// decode into an anonymous type to avoid recursing into this method
	var temp struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	e.Tag = temp.Type
	e.Type = ParseEventType(temp.Type)

	switch e.Type {
	case EventStatus:
		e.Data = &EventStatusData{}
	case EventExecutionStart:
		e.Data = &EventExecutionStartData{}
	case EventExecutionCached:
		e.Data = &EventExecutionCachedData{}
	case EventExecuting:
		e.Data = &EventExecutingData{}
	case EventProgress:
		e.Data = &EventProgressData{}
	case EventExecuted:
		e.Data = &EventExecutedData{}
	case EventExecutionError:
		e.Data = &EventExecutionErrorData{}
	case EventExecutionInterrupted:
		e.Data = &EventExecutionInterruptedData{}
	case EventGalleryUpdated:
		e.Data = &EventGalleryUpdatedData{}
	default:
		e.Data = nil
	}

	if e.Data != nil && len(temp.Data) > 0 && string(temp.Data) != "null" {
		if err := json.Unmarshal(temp.Data, e.Data); err != nil {
			return fmt.Errorf("decoding %s event: %w", temp.Type, err)
		}
	}
	return nil
}

func (e StreamEvent) MarshalJSON() ([]byte, error) {
	tag := e.Tag
	if tag == "" {
		tag = e.Type.String()
	}
	data := e.Data
	if data == nil {
		data = struct{}{}
	}
	return json.Marshal(struct {
		Type string      `json:"type"`
		Data interface{} `json:"data"`
	}{Type: tag, Data: data})
}

// NewGalleryUpdatedEvent builds the frame the gallery store pushes after a mutation.
func NewGalleryUpdatedEvent(action string, id int64) StreamEvent {
	return StreamEvent{
		Type: EventGalleryUpdated,
		Tag:  "gallery_updated",
		Data: &EventGalleryUpdatedData{Action: action, ID: id},
	}
}

// nodeID accepts node ids sent either as JSON strings or numbers.
func nodeID(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return strconv.Itoa(n)
	}
	return string(raw)
}

func (e *EventExecutedData) UnmarshalJSON(b []byte) error {
	var temp struct {
		Node      json.RawMessage            `json:"node"`
		OutputRaw map[string]json.RawMessage `json:"output"`
		PromptID  string                     `json:"prompt_id"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}

	e.Node = nodeID(temp.Node)
	e.PromptID = temp.PromptID
	e.Output = make(map[string][]OutputRef)

	// outputs are lists of file references, but nodes may also emit text or numbers.
	// only keep entries that name a file.
	for k, raw := range temp.OutputRaw {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			continue
		}
		for _, entry := range entries {
			var ref OutputRef
			if err := json.Unmarshal(entry, &ref); err != nil || ref.Filename == "" {
				slog.Debug("skipping non-file executed output", "node", e.Node, "key", k)
				continue
			}
			e.Output[k] = append(e.Output[k], ref)
		}
	}
	return nil
}

func (e EventExecutedData) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Node     string                 `json:"node"`
		Output   map[string][]OutputRef `json:"output"`
		PromptID string                 `json:"prompt_id"`
	}{e.Node, e.Output, e.PromptID})
}

func (e *EventExecutingData) UnmarshalJSON(b []byte) error {
	var temp struct {
		Node     json.RawMessage `json:"node"`
		PromptID string          `json:"prompt_id"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}
	e.PromptID = temp.PromptID
	if id := nodeID(temp.Node); id != "" {
		e.Node = &id
	} else {
		e.Node = nil
	}
	return nil
}

func (e *EventProgressData) UnmarshalJSON(b []byte) error {
	var temp struct {
		Value    int             `json:"value"`
		Max      int             `json:"max"`
		PromptID string          `json:"prompt_id"`
		Node     json.RawMessage `json:"node"`
	}
	if err := json.Unmarshal(b, &temp); err != nil {
		return err
	}
	e.Value = temp.Value
	e.Max = temp.Max
	e.PromptID = temp.PromptID
	e.Node = nodeID(temp.Node)
	return nil
}
