package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// PubsubTrackerConfig holds configuration for the Pub/Sub tracker.
type PubsubTrackerConfig struct {
	ProjectID  string
	TopicID    string
	GroupID    int64
	BatchSize  int           // Pub/Sub CountThreshold.
	BatchDelay time.Duration // Pub/Sub DelayThreshold.

	TopicExistsTimeout         time.Duration
	PublishConfirmationTimeout time.Duration
}

// NewPubsubTrackerDefaults returns a config with batching and timeout defaults.
func NewPubsubTrackerDefaults() *PubsubTrackerConfig {
	return &PubsubTrackerConfig{
		BatchSize:                  100,
		BatchDelay:                 100 * time.Millisecond,
		TopicExistsTimeout:         15 * time.Second,
		PublishConfirmationTimeout: 20 * time.Second,
	}
}

// pubsubEnvelope is the message body: one event plus who produced it.
type pubsubEnvelope struct {
	wireEvent
	Context Context `json:"context"`
}

// PubsubTracker publishes each event as one JSON message. The client's own
// batching groups messages on the wire.
type PubsubTracker struct {
	topic          *pubsub.Topic
	trackerContext Context
	groupID        int64
	confirmTimeout time.Duration
	logger         zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPubsubTracker creates a tracker for cfg.TopicID after checking that the topic exists.
func NewPubsubTracker(
	ctx context.Context,
	cfg *PubsubTrackerConfig,
	client *pubsub.Client,
	trackerContext Context,
	logger zerolog.Logger,
) (*PubsubTracker, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for tracker")
	}
	if cfg.TopicID == "" {
		return nil, fmt.Errorf("tracking topic id cannot be empty")
	}

	topic := client.Topic(cfg.TopicID)
	topic.PublishSettings.DelayThreshold = cfg.BatchDelay
	topic.PublishSettings.CountThreshold = cfg.BatchSize
	topic.PublishSettings.Timeout = 10 * time.Second

	existsCtx, cancel := context.WithTimeout(ctx, cfg.TopicExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	logger.Info().Str("topic_id", cfg.TopicID).Msg("PubsubTracker initialized successfully.")
	return &PubsubTracker{
		topic:          topic,
		trackerContext: trackerContext,
		groupID:        cfg.GroupID,
		confirmTimeout: cfg.PublishConfirmationTimeout,
		logger:         logger.With().Str("component", "PubsubTracker").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Track publishes event. Events arriving after Stop are dropped.
func (p *PubsubTracker) Track(ctx context.Context, event Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.logger.Warn().Str("event_id", event.ID).Msg("Tracker stopped, dropping event.")
		return
	}

	payload, err := json.Marshal(pubsubEnvelope{wireEvent: toWire(event, p.groupID), Context: p.trackerContext})
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to marshal tracking event.")
		return
	}

	res := p.topic.Publish(context.WithoutCancel(ctx), &pubsub.Message{
		Data: payload,
		Attributes: map[string]string{
			"event_type": string(event.Type),
			"event_id":   event.ID,
		},
	})
	p.wg.Add(1)
	go p.confirmPublish(res, event)
}

func (p *PubsubTracker) confirmPublish(res *pubsub.PublishResult, event Event) {
	defer p.wg.Done()
	getCtx, cancel := context.WithTimeout(context.Background(), p.confirmTimeout)
	defer cancel()

	msgID, err := res.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", event.ID).Msg("Failed to publish tracking event.")
		return
	}
	p.logger.Debug().Str("event_id", event.ID).Str("pubsub_msg_id", msgID).Msg("Tracking event published.")
}

// Stop rejects new events, flushes buffered ones and waits for their
// confirmations, respecting ctx's deadline.
func (p *PubsubTracker) Stop(ctx context.Context) error {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()

	p.logger.Info().Msg("Flushing tracking events and stopping Pub/Sub topic...")
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		p.wg.Wait()
		close(stopDone)
	}()
	select {
	case <-stopDone:
		p.logger.Info().Msg("PubsubTracker stopped gracefully.")
		return nil
	case <-ctx.Done():
		p.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for tracking events to flush.")
		return ctx.Err()
	}
}
