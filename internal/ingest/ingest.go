// Package ingest consumes storage upload notifications and turns them into
// poster submissions. Messages are acked only after the submission
// completes, so a crash mid-handling redelivers; duplicate deliveries are
// absorbed by the catalog's key-based dedupe.
package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bandaid/internal/bus"
)

// Uploads are announced with this action.
const actionPutObject = "PutObject"

// Submitter accepts new poster source URLs, implemented by the
// Orchestrator.
type Submitter interface {
	SubmitPoster(ctx context.Context, sourceURL string) (bool, error)
}

// Consumer drains the upload-event queue.
type Consumer struct {
	submitter Submitter
	logger    zerolog.Logger
}

// NewConsumer wires the consumer to the submitter.
func NewConsumer(submitter Submitter, logger zerolog.Logger) *Consumer {
	return &Consumer{submitter: submitter, logger: logger}
}

// Start consumes upload events until ctx is canceled.
func (c *Consumer) Start(ctx context.Context, b *bus.Bus) error {
	msgs, err := b.Subscribe(ctx, bus.TopicUploadEvents)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			var event bus.UploadEvent
			if err := bus.Decode(msg, &event); err != nil {
				c.logger.Warn().Err(err).Msg("decoding upload event")
				msg.Ack()
				continue
			}
			if event.Action != actionPutObject || event.Object.Key == "" {
				msg.Ack()
				continue
			}

			sourceURL := "r2://" + event.Object.Key
			created, err := c.submitter.SubmitPoster(ctx, sourceURL)
			if err != nil {
				c.logger.Warn().Err(err).Str("key", event.Object.Key).
					Msg("submitting upload, retrying")
				time.Sleep(time.Second)
				msg.Nack()
				continue
			}
			if created {
				c.logger.Info().Str("key", event.Object.Key).Msg("upload submitted")
			}
			msg.Ack()
		}
	}()
	return nil
}
