package workflow

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bandaid/internal/bus"
)

// Runner is one schedulable workflow.
type Runner interface {
	Run(ctx context.Context, workflowID, posterID string) error
}

// Scheduler consumes workflow.schedule messages and dispatches them. A
// failed run is nacked for redelivery; the step log makes the replay skip
// everything already done.
type Scheduler struct {
	research  Runner
	normalize Runner
	logger    zerolog.Logger
}

// NewScheduler wires the two workflows.
func NewScheduler(research, normalize Runner, logger zerolog.Logger) *Scheduler {
	return &Scheduler{research: research, normalize: normalize, logger: logger}
}

// Start consumes schedule messages until ctx is canceled.
func (s *Scheduler) Start(ctx context.Context, b *bus.Bus) error {
	msgs, err := b.Subscribe(ctx, bus.TopicWorkflowSchedule)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			var schedule bus.ScheduleWorkflow
			if err := bus.Decode(msg, &schedule); err != nil {
				s.logger.Warn().Err(err).Msg("decoding schedule message")
				msg.Ack()
				continue
			}

			var runner Runner
			switch schedule.Kind {
			case bus.WorkflowResearch:
				runner = s.research
			case bus.WorkflowNormalize:
				runner = s.normalize
			default:
				s.logger.Warn().Str("kind", schedule.Kind).Msg("unknown workflow kind")
				msg.Ack()
				continue
			}

			if err := runner.Run(ctx, schedule.WorkflowID, schedule.PosterID); err != nil {
				s.logger.Warn().Err(err).Str("workflow_id", schedule.WorkflowID).
					Str("kind", schedule.Kind).Msg("workflow run failed, retrying")
				time.Sleep(time.Second)
				msg.Nack()
				continue
			}
			msg.Ack()
		}
	}()
	return nil
}
