package notify

import (
	"strings"
	"testing"
	"time"

	goslack "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgeboard/forgeboard/pkg/analysis"
)

func TestBuildCompletedMessage(t *testing.T) {
	blocks := BuildCompletedMessage("prompt-123", 7, 42*time.Second)

	require.Len(t, blocks, 1)
	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":white_check_mark:")
	assert.Contains(t, section.Text.Text, "prompt-123")
	assert.Contains(t, section.Text.Text, "7 nodes")
	assert.Contains(t, section.Text.Text, "42s")
}

func TestBuildInterruptedMessage(t *testing.T) {
	blocks := BuildInterruptedMessage("prompt-123")

	require.Len(t, blocks, 1)
	section, ok := blocks[0].(*goslack.SectionBlock)
	require.True(t, ok)
	assert.Contains(t, section.Text.Text, ":no_entry_sign:")
	assert.Contains(t, section.Text.Text, "interrupted")
	assert.Contains(t, section.Text.Text, "prompt-123")
}

func TestBuildFailedMessage(t *testing.T) {
	genErr := &analysis.GenerationError{
		PromptID: "prompt-123",
		NodeID:   "3",
		NodeType: "KSampler",
		Message:  "CUDA out of memory",
	}
	verdict := analysis.Classification{
		Category:    analysis.CategoryMemory,
		Severity:    analysis.SeverityHigh,
		Suggestions: []string{"Reduce the batch size", "Lower the output image dimensions"},
	}

	blocks := BuildFailedMessage(genErr, verdict)
	require.Len(t, blocks, 3)

	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":x:")
	assert.Contains(t, header.Text.Text, "prompt-123")
	assert.Contains(t, header.Text.Text, "KSampler")
	assert.Contains(t, header.Text.Text, "memory")
	assert.Contains(t, header.Text.Text, "high")

	errBlock := blocks[1].(*goslack.SectionBlock)
	assert.Contains(t, errBlock.Text.Text, "CUDA out of memory")

	suggestions := blocks[2].(*goslack.SectionBlock)
	assert.Contains(t, suggestions.Text.Text, "Reduce the batch size")
	assert.Contains(t, suggestions.Text.Text, "• ")
}

func TestBuildFailedMessageMinimal(t *testing.T) {
	// No node association, no message, no suggestions: the header block
	// alone.
	blocks := BuildFailedMessage(&analysis.GenerationError{PromptID: "p1"}, analysis.Classification{
		Category: analysis.CategoryUnknown,
		Severity: analysis.SeverityLow,
	})

	require.Len(t, blocks, 1)
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, "p1")
	assert.NotContains(t, header.Text.Text, "Node")
}

func TestBuildFailedMessageUnknownSeverityEmoji(t *testing.T) {
	blocks := BuildFailedMessage(&analysis.GenerationError{PromptID: "p1"}, analysis.Classification{
		Severity: analysis.Severity("bogus"),
	})
	header := blocks[0].(*goslack.SectionBlock)
	assert.Contains(t, header.Text.Text, ":question:")
}

func TestTruncateForSlack(t *testing.T) {
	short := "short message"
	assert.Equal(t, short, truncateForSlack(short))

	long := strings.Repeat("x", maxBlockTextLength+100)
	truncated := truncateForSlack(long)
	assert.Less(t, len(truncated), len(long))
	assert.Contains(t, truncated, "(truncated)")
}
