package notify

import (
	"fmt"
	"strings"
	"time"

	goslack "github.com/slack-go/slack"

	"github.com/forgeboard/forgeboard/pkg/analysis"
)

const maxBlockTextLength = 2900

var severityEmoji = map[analysis.Severity]string{
	analysis.SeverityLow:      ":information_source:",
	analysis.SeverityMedium:   ":warning:",
	analysis.SeverityHigh:     ":x:",
	analysis.SeverityCritical: ":rotating_light:",
}

// BuildCompletedMessage creates Block Kit blocks for a finished
// generation.
func BuildCompletedMessage(promptID string, nodeCount int, elapsed time.Duration) []goslack.Block {
	text := fmt.Sprintf(":white_check_mark: *Generation complete* — `%s`\n%d nodes executed in %s",
		promptID, nodeCount, elapsed.Round(time.Second))

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildInterruptedMessage creates Block Kit blocks for a user-interrupted
// generation.
func BuildInterruptedMessage(promptID string) []goslack.Block {
	text := fmt.Sprintf(":no_entry_sign: *Generation interrupted* — `%s`", promptID)

	return []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false),
			nil, nil,
		),
	}
}

// BuildFailedMessage creates Block Kit blocks for a failed generation,
// including the analyzer's verdict and its remediation suggestions.
func BuildFailedMessage(genErr *analysis.GenerationError, verdict analysis.Classification) []goslack.Block {
	emoji := severityEmoji[verdict.Severity]
	if emoji == "" {
		emoji = ":question:"
	}

	header := fmt.Sprintf("%s *Generation failed* — `%s`", emoji, genErr.PromptID)
	if genErr.NodeID != "" {
		header += fmt.Sprintf("\nNode `%s` (%s)", genErr.NodeID, genErr.NodeType)
	}
	header += fmt.Sprintf("\nCategory: *%s* · Severity: *%s*", verdict.Category, verdict.Severity)

	blocks := []goslack.Block{
		goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, header, false, false),
			nil, nil,
		),
	}

	if genErr.Message != "" {
		errText := fmt.Sprintf("*Error:*\n```%s```", truncateForSlack(genErr.Message))
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, errText, false, false),
			nil, nil,
		))
	}

	if len(verdict.Suggestions) > 0 {
		var sb strings.Builder
		sb.WriteString("*Suggestions:*")
		for _, s := range verdict.Suggestions {
			sb.WriteString("\n• ")
			sb.WriteString(s)
		}
		blocks = append(blocks, goslack.NewSectionBlock(
			goslack.NewTextBlockObject(goslack.MarkdownType, sb.String(), false, false),
			nil, nil,
		))
	}

	return blocks
}

func truncateForSlack(text string) string {
	if len(text) <= maxBlockTextLength {
		return text
	}
	return text[:maxBlockTextLength] + "\n\n_... (truncated)_"
}
