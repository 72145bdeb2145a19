package protocol

import "encoding/json"

// ExecutionStartData is the payload for execution_start events.
// Marks the beginning of a generation identified by PromptID.
type ExecutionStartData struct {
	PromptID  string  `json:"prompt_id"`
	Timestamp float64 `json:"timestamp,omitempty"` // server epoch millis, informational
}

// ExecutingData is the payload for executing events.
// Node is a pointer on purpose: the server sends {"node": null} as the
// sentinel meaning "no node is executing anymore"; absence and null are
// semantically identical and both mean the pipeline finished.
type ExecutingData struct {
	Node        *string `json:"node"`
	DisplayNode string  `json:"display_node,omitempty"` // node type/title for display
	PromptID    string  `json:"prompt_id,omitempty"`
}

// ProgressData is the payload for progress events, reporting step
// progress inside the currently executing node.
type ProgressData struct {
	Value    int    `json:"value"`
	Max      int    `json:"max"`
	Node     string `json:"node,omitempty"`
	PromptID string `json:"prompt_id,omitempty"`
}

// StatusData is the payload for status events. The server nests queue
// depth two levels deep.
type StatusData struct {
	Status struct {
		ExecInfo struct {
			QueueRemaining int `json:"queue_remaining"`
		} `json:"exec_info"`
	} `json:"status"`
	SID string `json:"sid,omitempty"` // server-assigned session id
}

// ExecutionCachedData is the payload for execution_cached events,
// listing nodes the server skipped because a prior result was reusable.
type ExecutionCachedData struct {
	Nodes    []string `json:"nodes"`
	PromptID string   `json:"prompt_id,omitempty"`
}

// ExecutionInterruptedData is the payload for execution_interrupted events.
type ExecutionInterruptedData struct {
	PromptID string   `json:"prompt_id"`
	NodeID   string   `json:"node_id,omitempty"`
	NodeType string   `json:"node_type,omitempty"`
	Executed []string `json:"executed,omitempty"`
}

// ExecutionErrorData is the payload for execution_error events: a
// server-reported node failure, including the node's input/output
// snapshot at the time of failure.
type ExecutionErrorData struct {
	PromptID         string                     `json:"prompt_id"`
	NodeID           string                     `json:"node_id"`
	NodeType         string                     `json:"node_type"`
	ExceptionMessage string                     `json:"exception_message"`
	ExceptionType    string                     `json:"exception_type"`
	Traceback        []string                   `json:"traceback,omitempty"`
	CurrentInputs    map[string]json.RawMessage `json:"current_inputs,omitempty"`
	CurrentOutputs   []json.RawMessage          `json:"current_outputs,omitempty"`
}

// B64ImageData is the payload for b64_image preview frames.
type B64ImageData struct {
	ImageType string `json:"image_type"` // e.g. image/png
	ImageData string `json:"image_data"` // base64-encoded bytes
	PromptID  string `json:"prompt_id,omitempty"`
}
