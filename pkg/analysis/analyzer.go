// Package analysis classifies server-reported execution failures into
// actionable categories with remediation suggestions. Classification is
// text-based: the server reports Python exceptions as message/type
// strings, so rules match case-insensitive keywords, first match wins.
package analysis

import (
	"strings"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

// Category identifies the failure class of a generation error.
type Category string

const (
	CategoryMemory  Category = "memory"
	CategoryModel   Category = "model"
	CategoryInput   Category = "input"
	CategoryNetwork Category = "network"
	CategoryNode    Category = "node"
	CategoryUnknown Category = "unknown"
)

// Severity ranks how disruptive a failure class is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// GenerationError is an immutable record of one execution_error event.
type GenerationError struct {
	PromptID         string
	NodeID           string
	NodeType         string
	Message          string
	ExceptionType    string
	Traceback        []string
	CurrentInputs    map[string]string
	CurrentOutputs   []string
}

// Classification is the analyzer's verdict for one GenerationError.
type Classification struct {
	Category    Category
	Severity    Severity
	Suggestions []string
}

// rule is one entry in the ordered classification chain. A rule matches
// when any of its keywords appears in the combined message+type text.
type rule struct {
	category Category
	severity Severity
	keywords []string
	suggest  []string
}

// rules are evaluated top-down; ordering is load-bearing. Memory
// exhaustion phrases often also contain model or node names, so the
// memory rule must run first.
var rules = []rule{
	{
		category: CategoryMemory,
		severity: SeverityHigh,
		keywords: []string{
			"out of memory", "cuda out of memory", "oom",
			"allocation on device", "not enough memory",
		},
		suggest: []string{
			"Reduce the batch size",
			"Lower the output image dimensions",
			"Close other applications using GPU memory",
			"Enable model offloading if the server supports it",
		},
	},
	{
		category: CategoryModel,
		severity: SeverityHigh,
		keywords: []string{
			"model not found", "checkpoint", "safetensors",
			"could not load", "no such file", "missing model",
			"unknown model",
		},
		suggest: []string{
			"Verify the model file exists in the server's models directory",
			"Check the model name spelling in the workflow",
			"Re-download the model if the file may be corrupt",
		},
	},
	{
		category: CategoryInput,
		severity: SeverityMedium,
		keywords: []string{
			"invalid input", "validation", "required input",
			"type mismatch", "shape", "expected", "must be",
		},
		suggest: []string{
			"Check the node's input values and types",
			"Reconnect the node's input links in the workflow",
			"Compare inputs against the node's documented ranges",
		},
	},
	{
		category: CategoryNetwork,
		severity: SeverityMedium,
		keywords: []string{
			"timeout", "timed out", "connection refused",
			"connection reset", "unreachable", "network",
		},
		suggest: []string{
			"Check connectivity between the server and any remote resources",
			"Retry the generation",
			"Increase the relevant timeout if the resource is slow",
		},
	},
}

// nodeSuggestions apply when a failure cannot be classified by text but
// is associated with a specific node.
var nodeSuggestions = []string{
	"Inspect the failing node's inputs in the workflow",
	"Try bypassing or replacing the failing node",
	"Check the server log for the node's full traceback",
}

// unknownSuggestions are the fallback when nothing else matched.
var unknownSuggestions = []string{
	"Check the server log for details",
	"Retry the generation",
}

// NewGenerationError builds a GenerationError from an execution_error
// payload. Input/output snapshots are flattened to strings for display.
func NewGenerationError(data *protocol.ExecutionErrorData) *GenerationError {
	genErr := &GenerationError{
		PromptID:      data.PromptID,
		NodeID:        data.NodeID,
		NodeType:      data.NodeType,
		Message:       data.ExceptionMessage,
		ExceptionType: data.ExceptionType,
		Traceback:     append([]string(nil), data.Traceback...),
	}
	if len(data.CurrentInputs) > 0 {
		genErr.CurrentInputs = make(map[string]string, len(data.CurrentInputs))
		for k, v := range data.CurrentInputs {
			genErr.CurrentInputs[k] = string(v)
		}
	}
	for _, out := range data.CurrentOutputs {
		genErr.CurrentOutputs = append(genErr.CurrentOutputs, string(out))
	}
	return genErr
}

// Classify runs the ordered rule chain against a GenerationError.
func Classify(genErr *GenerationError) Classification {
	text := strings.ToLower(genErr.Message + " " + genErr.ExceptionType)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return Classification{
					Category:    r.category,
					Severity:    r.severity,
					Suggestions: append([]string(nil), r.suggest...),
				}
			}
		}
	}

	// No keyword matched; fall back to node association.
	if genErr.NodeID != "" || genErr.NodeType != "" {
		return Classification{
			Category:    CategoryNode,
			Severity:    SeverityMedium,
			Suggestions: append([]string(nil), nodeSuggestions...),
		}
	}

	return Classification{
		Category:    CategoryUnknown,
		Severity:    SeverityLow,
		Suggestions: append([]string(nil), unknownSuggestions...),
	}
}
