// Package protocol defines the wire format spoken by the generation
// server's streaming endpoint.
//
// Every inbound frame is a JSON envelope { "type": ..., "data": ... }.
// The type discriminates how data is decoded; unrecognized types are
// still delivered to catch-all subscribers but carry no progress
// semantics.
//
// Generation lifecycle on the wire:
//
//	execution_start    {prompt_id}            - a generation begins
//	execution_cached   {nodes, prompt_id}     - nodes served from cache
//	executing          {node: "<id>"}          - a node starts running
//	progress           {value, max, node}      - sampling progress inside a node
//	executing          {node: null}            - sentinel: execution finished
//	execution_success  {prompt_id}             - terminal, clean finish
//	execution_interrupted {prompt_id, node_id} - terminal, user interrupt
//	execution_error    {prompt_id, node_id, ...} - terminal, node failure
//
// The null-node executing frame is the server's only "done executing"
// signal for the node pipeline; terminal events may arrive after it.
// status frames report queue depth and can arrive at any time.
package protocol

// Event types emitted by the generation server.
const (
	EventExecutionStart       = "execution_start"
	EventExecutionSuccess     = "execution_success"
	EventExecutionCached      = "execution_cached"
	EventExecutionInterrupted = "execution_interrupted"
	EventExecutionError       = "execution_error"
	EventProgress             = "progress"
	EventExecuting            = "executing"
	EventStatus               = "status"
	EventB64Image             = "b64_image"
)

// Synthetic event types emitted by the client itself, never by the
// server. Delivered through the same subscriber registry so consumers
// can observe connection lifecycle alongside generation traffic.
const (
	EventConnectionOpen  = "connection.open"
	EventConnectionClose = "connection.close"
	EventConnectionError = "connection.error"
)

// Coarse dispatch categories. Subscribers may register for a category
// instead of an exact event type.
const (
	CategoryExecution = "execution"
	CategoryProgress  = "progress"
	CategoryStatus    = "status"
	CategoryImage     = "image"
)

// Category maps an event type to its coarse dispatch bucket.
// Returns "" for types with no bucket (unknown and synthetic types).
func Category(eventType string) string {
	switch eventType {
	case EventExecutionStart, EventExecutionSuccess, EventExecutionCached,
		EventExecutionInterrupted, EventExecutionError, EventExecuting:
		return CategoryExecution
	case EventProgress:
		return CategoryProgress
	case EventStatus:
		return CategoryStatus
	case EventB64Image:
		return CategoryImage
	default:
		return ""
	}
}

// Terminal reports whether an event type ends a generation's in-flight
// state.
func Terminal(eventType string) bool {
	switch eventType {
	case EventExecutionSuccess, EventExecutionInterrupted, EventExecutionError:
		return true
	}
	return false
}
