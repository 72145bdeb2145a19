package monitor

import (
	"sync"
	"time"

	"github.com/forgeboard/forgeboard/pkg/protocol"
)

// Progress is a snapshot of the in-flight (or most recent) generation.
// Snapshots returned by the Tracker are copies; callers can hold them
// across goroutines freely.
type Progress struct {
	PromptID        string     `json:"prompt_id,omitempty"`
	CurrentNode     string     `json:"current_node,omitempty"`
	CurrentNodeType string     `json:"current_node_type,omitempty"`
	Value           int        `json:"value"`
	Max             int        `json:"max"`
	IsGenerating    bool       `json:"is_generating"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	QueueRemaining  int        `json:"queue_remaining"`
	ExecutedNodes   []string   `json:"executed_nodes,omitempty"`
	CachedNodes     []string   `json:"cached_nodes,omitempty"`
	LastUpdate      time.Time  `json:"last_update"`
}

// PercentComplete returns Value/Max in [0,1], or 0 when Max is 0.
func (p Progress) PercentComplete() float64 {
	if p.Max == 0 {
		return 0
	}
	return float64(p.Value) / float64(p.Max)
}

// Elapsed returns how long the generation has been running (or ran).
// Zero when no generation has started.
func (p Progress) Elapsed(now time.Time) time.Duration {
	if p.StartTime == nil {
		return 0
	}
	end := now
	if p.EndTime != nil {
		end = *p.EndTime
	}
	if end.Before(*p.StartTime) {
		return 0
	}
	return end.Sub(*p.StartTime)
}

// EstimatedRemaining extrapolates time to completion from the observed
// rate. Defined only while generating with positive progress and a
// positive rate; ok is false otherwise.
func (p Progress) EstimatedRemaining(now time.Time) (time.Duration, bool) {
	if !p.IsGenerating || p.Value <= 0 || p.Max <= p.Value {
		return 0, false
	}
	elapsed := p.Elapsed(now)
	if elapsed <= 0 {
		return 0, false
	}
	rate := float64(p.Value) / elapsed.Seconds()
	if rate <= 0 {
		return 0, false
	}
	remaining := float64(p.Max-p.Value) / rate
	return time.Duration(remaining * float64(time.Second)), true
}

// Tracker derives the progress snapshot from the ordered event stream.
// Apply is the only mutator; everything else reads copies.
type Tracker struct {
	mu  sync.Mutex
	cur Progress

	// now is swapped out in tests for deterministic timestamps.
	now func() time.Time
}

// NewTracker returns a Tracker with an all-empty snapshot.
func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// Apply folds one event into the progress snapshot. Events with no
// progress semantics (previews, unknown types) are accepted and ignored.
// A decode failure leaves the snapshot untouched and is returned to the
// caller so the ingestion queue can retry.
func (t *Tracker) Apply(env *protocol.Envelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	switch env.Type {
	case protocol.EventExecutionStart:
		var data protocol.ExecutionStartData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		// Fresh in-flight state. Queue depth is server-scoped, not
		// generation-scoped, so it survives the reset.
		t.cur = Progress{
			PromptID:       data.PromptID,
			IsGenerating:   true,
			StartTime:      &now,
			QueueRemaining: t.cur.QueueRemaining,
		}

	case protocol.EventExecuting:
		var data protocol.ExecutingData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		if data.Node == nil {
			// Null node is the "execution finished" sentinel.
			t.cur.CurrentNode = ""
			t.cur.CurrentNodeType = ""
			t.cur.IsGenerating = false
			t.cur.EndTime = &now
			break
		}
		node := *data.Node
		// Idempotent under duplicate delivery: only append when the
		// node differs from the most recent entry.
		n := len(t.cur.ExecutedNodes)
		if n == 0 || t.cur.ExecutedNodes[n-1] != node {
			t.cur.ExecutedNodes = append(t.cur.ExecutedNodes, node)
		}
		t.cur.CurrentNode = node
		t.cur.CurrentNodeType = data.DisplayNode

	case protocol.EventProgress:
		var data protocol.ProgressData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		// Value > Max is accepted as-is; the server is trusted here and
		// PercentComplete simply exceeds 1.
		t.cur.Value = data.Value
		t.cur.Max = data.Max
		if data.Node != "" {
			t.cur.CurrentNode = data.Node
		}

	case protocol.EventExecutionSuccess, protocol.EventExecutionInterrupted, protocol.EventExecutionError:
		// The three terminal events are identical at the progress level;
		// only the error analyzer distinguishes the failure case.
		t.cur.IsGenerating = false
		t.cur.EndTime = &now
		t.cur.CurrentNode = ""
		t.cur.CurrentNodeType = ""

	case protocol.EventStatus:
		var data protocol.StatusData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		t.cur.QueueRemaining = data.Status.ExecInfo.QueueRemaining

	case protocol.EventExecutionCached:
		var data protocol.ExecutionCachedData
		if err := env.DecodeData(&data); err != nil {
			return err
		}
		t.cur.CachedNodes = append([]string(nil), data.Nodes...)

	default:
		// No progress transition; don't stamp LastUpdate either.
		return nil
	}

	t.cur.LastUpdate = now
	return nil
}

// Snapshot returns a copy of the current progress. Slices are cloned so
// the caller cannot observe later mutations.
func (t *Tracker) Snapshot() Progress {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := t.cur
	snap.ExecutedNodes = append([]string(nil), t.cur.ExecutedNodes...)
	snap.CachedNodes = append([]string(nil), t.cur.CachedNodes...)
	if t.cur.StartTime != nil {
		start := *t.cur.StartTime
		snap.StartTime = &start
	}
	if t.cur.EndTime != nil {
		end := *t.cur.EndTime
		snap.EndTime = &end
	}
	return snap
}

// Reset returns the snapshot to its empty form.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur = Progress{}
}
