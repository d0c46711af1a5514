package client

// EventType tags a StreamEvent.
type EventType int

// our cast of characters, in the order ComfyUI usually sends them:
// status, execution_start, executing, progress, executed, executing(nil)
// plus the gallery store's own gallery_updated
const (
	EventUnknown EventType = iota
	EventStatus
	EventExecutionStart
	EventExecutionCached
	EventExecuting
	EventProgress
	EventExecuted
	EventExecutionError
	EventExecutionInterrupted
	EventGalleryUpdated
)

var eventTags = map[string]EventType{
	"status":                EventStatus,
	"execution_start":       EventExecutionStart,
	"execution_cached":      EventExecutionCached,
	"executing":             EventExecuting,
	"progress":              EventProgress,
	"executed":              EventExecuted,
	"execution_error":       EventExecutionError,
	"execution_interrupted": EventExecutionInterrupted,
	"gallery_updated":       EventGalleryUpdated,
}

// ParseEventType maps a wire tag to its EventType; unrecognized tags map to EventUnknown.
func ParseEventType(tag string) EventType {
	if t, ok := eventTags[tag]; ok {
		return t
	}
	return EventUnknown
}

func (t EventType) String() string {
	for tag, v := range eventTags {
		if v == t {
			return tag
		}
	}
	return "unknown"
}

type EventStatusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
	SID string `json:"sid,omitempty"`
}

/*
{"type": "status", "data": {"status": {"exec_info": {"queue_remaining": 1}}}}
*/

type EventExecutionStartData struct {
	PromptID string `json:"prompt_id"`
}

type EventExecutionCachedData struct {
	Nodes    []string `json:"nodes"`
	PromptID string   `json:"prompt_id"`
}

// EventExecutingData carries the node being executed. A nil Node means the prompt finished.
type EventExecutingData struct {
	Node     *string `json:"node"`
	PromptID string  `json:"prompt_id"`
}

/*
{"type": "executing", "data": {"node": "12", "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
{"type": "executing", "data": {"node": null, "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
*/

type EventProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	PromptID string `json:"prompt_id,omitempty"`
	Node     string `json:"node,omitempty"`
}

// Percent returns the progress as 0..100, or 0 when Max is unknown.
func (p *EventProgressData) Percent() float64 {
	if p.Max <= 0 {
		return 0
	}
	return float64(p.Value) / float64(p.Max) * 100
}

/*
{"type": "progress", "data": {"value": 1, "max": 20}}
*/

type EventExecutedData struct {
	Node     string                 `json:"node"`
	Output   map[string][]OutputRef `json:"-"`
	PromptID string                 `json:"prompt_id"`
}

// Images returns the image outputs reported by the executed node.
func (e *EventExecutedData) Images() []OutputRef {
	return e.Output["images"]
}

/*
{"type": "executed", "data": {"node": "19", "output": {"images": [{"filename": "ComfyUI_00046_.png", "subfolder": "", "type": "output"}]}, "prompt_id": "ed986d60-2a27-4d28-8871-2fdb36582902"}}
*/

type EventExecutionErrorData struct {
	PromptID         string   `json:"prompt_id"`
	Node             string   `json:"node_id"`
	NodeType         string   `json:"node_type"`
	Executed         []string `json:"executed"`
	ExceptionMessage string   `json:"exception_message"`
	ExceptionType    string   `json:"exception_type"`
	Traceback        []string `json:"traceback"`
}

type EventExecutionInterruptedData struct {
	PromptID string   `json:"prompt_id"`
	Node     string   `json:"node_id"`
	NodeType string   `json:"node_type"`
	Executed []string `json:"executed"`
}

// EventGalleryUpdatedData is pushed by the gallery store after a mutation. ID is zero
// for "cleared".
type EventGalleryUpdatedData struct {
	Action string `json:"action"`
	ID     int64  `json:"id,omitempty"`
}

// The To* accessors return nil when the event carries no payload of that type.

func (e *StreamEvent) ToStatus() *EventStatusData {
	d, _ := e.Data.(*EventStatusData)
	return d
}

func (e *StreamEvent) ToExecutionStart() *EventExecutionStartData {
	d, _ := e.Data.(*EventExecutionStartData)
	return d
}

func (e *StreamEvent) ToExecutionCached() *EventExecutionCachedData {
	d, _ := e.Data.(*EventExecutionCachedData)
	return d
}

func (e *StreamEvent) ToExecuting() *EventExecutingData {
	d, _ := e.Data.(*EventExecutingData)
	return d
}

func (e *StreamEvent) ToProgress() *EventProgressData {
	d, _ := e.Data.(*EventProgressData)
	return d
}

func (e *StreamEvent) ToExecuted() *EventExecutedData {
	d, _ := e.Data.(*EventExecutedData)
	return d
}

func (e *StreamEvent) ToExecutionError() *EventExecutionErrorData {
	d, _ := e.Data.(*EventExecutionErrorData)
	return d
}

func (e *StreamEvent) ToExecutionInterrupted() *EventExecutionInterruptedData {
	d, _ := e.Data.(*EventExecutionInterruptedData)
	return d
}

func (e *StreamEvent) ToGalleryUpdated() *EventGalleryUpdatedData {
	d, _ := e.Data.(*EventGalleryUpdatedData)
	return d
}
