// Package bus carries the asynchronous messages between agents: poster
// change hints, listen attributions, workflow scheduling, and upload
// events. Delivery is at-least-once; consumers ack only after handling.
package bus

import (
	"context"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Topics.
const (
	TopicPosterChanged    = "poster.changed"
	TopicTrackListened    = "track.listened"
	TopicWorkflowSchedule = "workflow.schedule"
	TopicUploadEvents     = "uploads.events"
)

// Workflow kinds scheduled on TopicWorkflowSchedule.
const (
	WorkflowResearch  = "research"
	WorkflowNormalize = "normalize"
)

// PosterChanged is the Poster agent's state-change hint. The Orchestrator
// treats it as cache invalidation; loss or delay never affects correctness.
type PosterChanged struct {
	PosterID string `json:"posterId"`
}

// TrackListened attributes one watched-track play to a poster.
type TrackListened struct {
	UserID   string `json:"userId"`
	PosterID string `json:"posterId"`
	TrackURI string `json:"trackUri"`
}

// ScheduleWorkflow requests a background workflow run for a poster.
type ScheduleWorkflow struct {
	Kind       string `json:"kind"`
	WorkflowID string `json:"workflowId"`
	PosterID   string `json:"posterId"`
}

// UploadEvent mirrors the inbound storage notification for new uploads.
type UploadEvent struct {
	Action string `json:"action"`
	Object struct {
		Key string `json:"key"`
	} `json:"object"`
}

// Bus is the in-process pub/sub used for all cross-agent messaging.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// New creates a Bus backed by a buffered go-channel Pub/Sub.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			loggerAdapter{logger: logger},
		),
	}
}

// Close shuts down the pub/sub; in-flight subscribers drain first.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Publish encodes payload as JSON and publishes it on topic.
func (b *Bus) Publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message stream for topic. Subscribers must Ack or
// Nack every message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	ch, err := b.pubsub.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	return ch, nil
}

// Decode unmarshals a message payload into v.
func Decode(msg *message.Message, v any) error {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		return fmt.Errorf("decoding message %s: %w", msg.UUID, err)
	}
	return nil
}

// loggerAdapter bridges watermill's logging interface onto zerolog.
type loggerAdapter struct {
	logger zerolog.Logger
}

func (l loggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	l.event(l.logger.Error().Err(err), fields).Msg(msg)
}

func (l loggerAdapter) Info(msg string, fields watermill.LogFields) {
	l.event(l.logger.Info(), fields).Msg(msg)
}

func (l loggerAdapter) Debug(msg string, fields watermill.LogFields) {
	l.event(l.logger.Debug(), fields).Msg(msg)
}

func (l loggerAdapter) Trace(msg string, fields watermill.LogFields) {
	l.event(l.logger.Trace(), fields).Msg(msg)
}

func (l loggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	logger := l.logger
	for k, v := range fields {
		logger = logger.With().Interface(k, v).Logger()
	}
	return loggerAdapter{logger: logger}
}

func (l loggerAdapter) event(e *zerolog.Event, fields watermill.LogFields) *zerolog.Event {
	for k, v := range fields {
		e = e.Interface(k, v)
	}
	return e
}
