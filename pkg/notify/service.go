// Package notify delivers Slack notifications for terminal generation
// events. It consumes the monitor purely through its subscriber API and
// never feeds anything back into it.
package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/forgeboard/forgeboard/pkg/analysis"
	"github.com/forgeboard/forgeboard/pkg/monitor"
	"github.com/forgeboard/forgeboard/pkg/protocol"
)

const postTimeout = 5 * time.Second

// ServiceConfig holds the parameters needed to construct a Service.
type ServiceConfig struct {
	Token   string
	Channel string
}

// Service posts generation outcomes to Slack.
// Nil-safe: all methods are no-ops when the service is nil.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates a Slack notification service.
// Returns nil if Token or Channel is empty.
func NewService(cfg ServiceConfig) *Service {
	if cfg.Token == "" || cfg.Channel == "" {
		return nil
	}
	return &Service{
		client: NewClient(cfg.Token, cfg.Channel),
		logger: slog.Default().With("component", "slack-service"),
	}
}

// NewServiceWithClient creates a Service backed by a pre-built Client.
// Useful for testing with a mock API server.
func NewServiceWithClient(client *Client) *Service {
	return &Service{
		client: client,
		logger: slog.Default().With("component", "slack-service"),
	}
}

// Attach subscribes the service to a monitor client's terminal events.
// Returns the subscriptions so the caller can detach on shutdown; nil
// when the service is disabled.
func (s *Service) Attach(client *monitor.Client) []*monitor.Subscription {
	if s == nil {
		return nil
	}
	return []*monitor.Subscription{
		client.Subscribe(protocol.EventExecutionSuccess, func(env *protocol.Envelope) {
			snap := client.ProgressSnapshot()
			s.NotifyGenerationCompleted(context.Background(), snap)
		}),
		client.Subscribe(protocol.EventExecutionInterrupted, func(env *protocol.Envelope) {
			var data protocol.ExecutionInterruptedData
			if err := env.DecodeData(&data); err != nil {
				s.logger.Warn("Skipping notification for undecodable interrupt", "error", err)
				return
			}
			s.NotifyGenerationInterrupted(context.Background(), data.PromptID)
		}),
		client.Subscribe(protocol.EventExecutionError, func(env *protocol.Envelope) {
			var data protocol.ExecutionErrorData
			if err := env.DecodeData(&data); err != nil {
				s.logger.Warn("Skipping notification for undecodable error event", "error", err)
				return
			}
			genErr := analysis.NewGenerationError(&data)
			s.NotifyGenerationFailed(context.Background(), genErr, analysis.Classify(genErr))
		}),
	}
}

// NotifyGenerationCompleted posts a success notice.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyGenerationCompleted(ctx context.Context, snap monitor.Progress) {
	if s == nil {
		return
	}
	blocks := BuildCompletedMessage(snap.PromptID, len(snap.ExecutedNodes), snap.Elapsed(time.Now()))
	if err := s.client.PostMessage(ctx, blocks, postTimeout); err != nil {
		s.logger.Error("Failed to send completion notification",
			"prompt_id", snap.PromptID, "error", err)
	}
}

// NotifyGenerationInterrupted posts an interrupt notice.
// Fail-open: errors are logged, never returned.
func (s *Service) NotifyGenerationInterrupted(ctx context.Context, promptID string) {
	if s == nil {
		return
	}
	if err := s.client.PostMessage(ctx, BuildInterruptedMessage(promptID), postTimeout); err != nil {
		s.logger.Error("Failed to send interrupt notification",
			"prompt_id", promptID, "error", err)
	}
}

// NotifyGenerationFailed posts a failure notice with the analyzer's
// classification. Fail-open: errors are logged, never returned.
func (s *Service) NotifyGenerationFailed(ctx context.Context, genErr *analysis.GenerationError, verdict analysis.Classification) {
	if s == nil {
		return
	}
	if err := s.client.PostMessage(ctx, BuildFailedMessage(genErr, verdict), postTimeout); err != nil {
		s.logger.Error("Failed to send failure notification",
			"prompt_id", genErr.PromptID, "error", err)
	}
}
