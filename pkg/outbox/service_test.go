package outbox_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/asbolsyn/mealmarket-backend/pkg/db/dbtest"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()
	orderID := uuid.New()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &outbox.ActorRef{Role: "payment_provider"},
			Data:          payloads.OrderPaidEvent{OrderID: orderID, Quantity: 2},
		})
	}))

	rows, err := repo.ListByAggregate(enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, "payment_provider", envelope.Actor.Role)

	var data payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, 2, data.Quantity)
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()
	orderID := uuid.New()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Data:          payloads.OrderCancelledEvent{OrderID: orderID},
		}); err != nil {
			return err
		}
		return errors.New("state change failed")
	})
	require.Error(t, err)

	rows, err := repo.ListByAggregate(enums.AggregateOrder, orderID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRejectsMissingTxAndUnknownType(t *testing.T) {
	svc := outbox.NewService(outbox.NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, outbox.DomainEvent{EventType: enums.EventOrderPaid}))

	client := dbtest.Open(t)
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{EventType: "order_shipped"})
	})
	require.Error(t, err)

	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return svc.Emit(context.Background(), tx, outbox.DomainEvent{
			EventType:     enums.EventPayoutCompleted,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.PayoutCompletedEvent{},
		})
	})
	require.ErrorContains(t, err, "cannot be emitted")
}

func TestEmitIfNotExistsIsIdempotent(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()
	payoutID := uuid.New()

	event := outbox.DomainEvent{
		EventType:     enums.EventPayoutRequested,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Data:          payloads.PayoutRequestedEvent{PayoutID: payoutID},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
			return svc.EmitIfNotExists(ctx, tx, event)
		}))
	}

	rows, err := repo.ListByAggregate(enums.AggregatePayout, payoutID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
}

func TestPublishBookkeeping(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	dlq := outbox.NewDLQRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	ctx := context.Background()

	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		for _, id := range ids {
			if err := svc.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCompleted,
				AggregateType: enums.AggregateOrder,
				AggregateID:   id,
				Data:          payloads.OrderCompletedEvent{OrderID: id},
			}); err != nil {
				return err
			}
		}
		return nil
	}))

	var fetched []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		fetched, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, fetched[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, fetched[1].ID, errors.New("pubsub unavailable")); err != nil {
			return err
		}
		terminal := errors.New("payload rejected")
		msg := terminal.Error()
		if err := dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       fetched[2].ID,
			EventType:     fetched[2].EventType,
			AggregateType: fetched[2].AggregateType,
			AggregateID:   fetched[2].AggregateID,
			Payload:       fetched[2].Payload,
			ErrorReason:   enums.OutboxDLQReasonNonRetryable,
			ErrorMessage:  &msg,
		}); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, fetched[2].ID, terminal, 3)
	}))
	require.Len(t, fetched, 3)

	var remaining []models.OutboxEvent
	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 1)
	require.Equal(t, fetched[1].ID, remaining[0].ID)
	require.Equal(t, 1, remaining[0].AttemptCount)
	require.Equal(t, "pubsub unavailable", *remaining[0].LastError)

	entry, err := dlq.FindByEventID(ctx, fetched[2].ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)

	missing, err := dlq.FindByEventID(ctx, uuid.New())
	require.NoError(t, err)
	require.Nil(t, missing)

	listed, err := dlq.List(ctx, outbox.DeadLetterFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)

	none, err := dlq.List(ctx, outbox.DeadLetterFilter{Reason: enums.OutboxDLQReasonMaxAttempts})
	require.NoError(t, err)
	require.Empty(t, none)

	require.NoError(t, dlq.Requeue(ctx, fetched[2].ID))
	require.ErrorIs(t, dlq.Requeue(ctx, fetched[2].ID), outbox.ErrNotDeadLettered)

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		remaining, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		return err
	}))
	require.Len(t, remaining, 2)
}

func TestDeadLetterRejectsUnknownReason(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{EventID: uuid.New(), ErrorReason: "gave_up"})
	})
	require.Error(t, err)
}
