// Package heartbeat runs scheduled synthetic turns so agents surface
// pending work without waiting for a user message.
package heartbeat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/conductorhq/conductor/internal/config"
	"github.com/conductorhq/conductor/pkg/protocol"
)

const defaultPrompt = "Heartbeat check-in: review the conversation state and report anything that needs attention. Reply HEARTBEAT_OK if nothing is pending."

// Handler receives the synthetic heartbeat message like any inbound one.
type Handler interface {
	Handle(ctx context.Context, msg protocol.ChannelMessage) protocol.ChannelMessage
}

// Scheduler fires heartbeat turns on a cron schedule.
type Scheduler struct {
	cfg     config.HeartbeatConfig
	handler Handler
}

// NewScheduler validates the cron expression and builds a scheduler.
func NewScheduler(cfg config.HeartbeatConfig, handler Handler) (*Scheduler, error) {
	if cfg.Schedule == "" {
		cfg.Schedule = "*/30 * * * *"
	}
	if cfg.ConversationID == "" {
		cfg.ConversationID = "heartbeat"
	}
	if !gronx.New().IsValid(cfg.Schedule) {
		return nil, fmt.Errorf("invalid heartbeat schedule %q", cfg.Schedule)
	}
	return &Scheduler{cfg: cfg, handler: handler}, nil
}

// Run blocks until ctx is cancelled, firing a turn at each scheduled
// tick. Tick computation errors end the loop; turn failures do not.
func (s *Scheduler) Run(ctx context.Context) error {
	slog.Info("heartbeat.started", "schedule", s.cfg.Schedule, "conversation", s.cfg.ConversationID)

	for {
		next, err := gronx.NextTick(s.cfg.Schedule, false)
		if err != nil {
			return fmt.Errorf("compute next heartbeat: %w", err)
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.fire(ctx)
	}
}

// fire runs one synthetic turn through the intake pipeline.
func (s *Scheduler) fire(ctx context.Context) {
	prompt := s.cfg.Prompt
	if prompt == "" {
		prompt = defaultPrompt
	}

	msg := protocol.NewMessage(s.cfg.ConversationID, protocol.TypeUserMessage, prompt)
	msg.Metadata = map[string]any{"heartbeat": true}

	out := s.handler.Handle(ctx, msg)
	if out.Type == protocol.TypeError {
		slog.Warn("heartbeat.turn_failed", "conversation", s.cfg.ConversationID, "error", out.Content)
		return
	}
	slog.Debug("heartbeat.turn_done", "conversation", s.cfg.ConversationID, "agent", out.AgentName)
}
