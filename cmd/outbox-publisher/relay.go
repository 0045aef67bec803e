package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/config"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollInterval   = 500 * time.Millisecond
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxIdleBackoff        = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetters interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) publishResult
	ResumePublish(orderingKey string)
}

type publishResult interface {
	Get(ctx context.Context) (string, error)
}

// RelayParams wire the relay. Topics resolves a publisher per topic name and
// may return nil for topics the deployment does not carry.
type RelayParams struct {
	Config      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	Events      eventStore
	DeadLetters deadLetters
	Registry    eventResolver
	Topics      func(topic string) topicPublisher
	Ping        func(context.Context) error
}

// Relay drains outbox_events to Pub/Sub. Events are keyed by aggregate so
// subscribers see an order's paid, completed and cancelled events in the
// order they were written.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	events      eventStore
	dead        deadLetters
	registry    eventResolver
	topics      func(topic string) topicPublisher
	ping        func(context.Context) error
	batchSize   int
	maxAttempts int
	interval    time.Duration
	jitter      *rand.Rand
	now         func() time.Time
}

func NewRelay(params RelayParams) (*Relay, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.Events == nil:
		return nil, errors.New("outbox repository is required")
	case params.DeadLetters == nil:
		return nil, errors.New("dlq repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	case params.Topics == nil:
		return nil, errors.New("topic publishers are required")
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		events:      params.Events,
		dead:        params.DeadLetters,
		registry:    params.Registry,
		topics:      params.Topics,
		ping:        params.Ping,
		batchSize:   params.Config.BatchSize,
		maxAttempts: params.Config.MaxAttempts,
		interval:    time.Duration(params.Config.PollIntervalMS) * time.Millisecond,
		jitter:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:         time.Now,
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.interval <= 0 {
		r.interval = defaultPollInterval
	}
	return r, nil
}

// Run polls until ctx ends. A failed batch doubles the wait up to
// maxIdleBackoff; a full batch is followed immediately by the next one.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if r.ping != nil {
		if err := r.ping(ctx); err != nil {
			return fmt.Errorf("pubsub ping failed: %w", err)
		}
	}

	wait := r.interval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		drained, err := r.drain(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = min(wait*2, maxIdleBackoff)
		case drained == r.batchSize:
			wait = r.interval
			continue
		default:
			wait = r.interval
		}

		if err := r.pause(ctx, wait); err != nil {
			return err
		}
	}
}

// drain claims one batch inside a transaction and reports how many rows it
// settled (published, retried or dead-lettered).
func (r *Relay) drain(ctx context.Context) (int, error) {
	settled := 0
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		batch, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		for _, event := range batch {
			if err := r.relayOne(ctx, tx, event); err != nil {
				return err
			}
			settled++
		}
		return nil
	})
	return settled, err
}

func (r *Relay) relayOne(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}

	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	fields["topic"] = resolved.Descriptor.Topic
	fields["event_id"] = resolved.Envelope.EventID

	err = r.publish(ctx, event, resolved)
	if err == nil {
		if markErr := r.events.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		r.logg.Info(r.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(err, &nonRetryable) {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonNonRetryable, err, fields)
	}
	if event.AttemptCount+1 >= r.maxAttempts {
		return r.deadLetter(ctx, tx, event, enums.OutboxDLQReasonMaxAttempts, fmt.Errorf("max publish attempts reached: %w", err), fields)
	}

	fields["error"] = err.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed; will retry")
	if markErr := r.events.MarkFailedTx(tx, event.ID, err); markErr != nil {
		return fmt.Errorf("mark failed %s: %w", event.ID, markErr)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	msg := &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: orderingKey(event),
		Attributes: map[string]string{
			"event_id":         resolved.Envelope.EventID,
			"event_type":       string(event.EventType),
			"aggregate_type":   string(event.AggregateType),
			"aggregate_id":     event.AggregateID.String(),
			"envelope_version": strconv.Itoa(resolved.Envelope.Version),
			"occurred_at":      resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.Role != "" {
		msg.Attributes["actor_role"] = actor.Role
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher for topic %s returned no result", topic))
	}
	if _, err := result.Get(publishCtx); err != nil {
		// an ordered publisher pauses the key after a failure
		pub.ResumePublish(msg.OrderingKey)
		return err
	}
	return nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      r.now().UTC(),
	}
	if err := r.dead.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) pause(ctx context.Context, d time.Duration) error {
	d += time.Duration(r.jitter.Int63n(int64(jitterWindow)))
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func orderingKey(event models.OutboxEvent) string {
	return string(event.AggregateType) + ":" + event.AggregateID.String()
}

type gcpTopic struct {
	publisher *gcppubsub.Publisher
}

func newGCPTopic(p *gcppubsub.Publisher) topicPublisher {
	if p == nil {
		return nil
	}
	p.EnableMessageOrdering = true
	return &gcpTopic{publisher: p}
}

func (t *gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return t.publisher.Publish(ctx, msg)
}

func (t *gcpTopic) ResumePublish(orderingKey string) {
	t.publisher.ResumePublish(orderingKey)
}
