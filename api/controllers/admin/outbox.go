package admin

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/asbolsyn/mealmarket-backend/api/responses"
	"github.com/asbolsyn/mealmarket-backend/api/validators"
	"github.com/asbolsyn/mealmarket-backend/pkg/db/models"
	"github.com/asbolsyn/mealmarket-backend/pkg/enums"
	pkgerrors "github.com/asbolsyn/mealmarket-backend/pkg/errors"
	"github.com/asbolsyn/mealmarket-backend/pkg/logger"
	"github.com/asbolsyn/mealmarket-backend/pkg/outbox"
)

type deadLetterStore interface {
	List(ctx context.Context, filter outbox.DeadLetterFilter) ([]models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

// ListDeadLetters shows events the outbox relay gave up on, newest first.
// Optional filters: aggregate_type, aggregate_id, reason, limit.
func ListDeadLetters(store deadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		q := r.URL.Query()
		filter := outbox.DeadLetterFilter{
			AggregateType: enums.OutboxAggregateType(strings.TrimSpace(q.Get("aggregate_type"))),
			Reason:        enums.OutboxDLQErrorReason(strings.TrimSpace(q.Get("reason"))),
			Limit:         limit,
		}
		if filter.Reason != "" && !filter.Reason.IsValid() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown reason"))
			return
		}
		if raw := strings.TrimSpace(q.Get("aggregate_id")); raw != "" {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid aggregate_id"))
				return
			}
			filter.AggregateID = id
		}

		rows, err := store.List(r.Context(), filter)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		responses.WriteSuccess(w, rows)
	}
}

// RequeueDeadLetter hands a dead-lettered event back to the relay.
func RequeueDeadLetter(store deadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "dead letter store unavailable"))
			return
		}
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Requeue(r.Context(), eventID); err != nil {
			if errors.Is(err, outbox.ErrNotDeadLettered) {
				err = pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "event is not dead-lettered")
			}
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if logg != nil {
			logg.Info(logg.WithField(r.Context(), "event_id", eventID.String()), "dead letter requeued")
		}
		responses.WriteSuccess(w, map[string]any{"event_id": eventID, "requeued": true})
	}
}
