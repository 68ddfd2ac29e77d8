package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

// ChangeNotifier is told about every committed change-log version.
type ChangeNotifier interface {
	Notify(ctx context.Context, version int64)
}

// EventService manages chat events.
type EventService interface {
	List(ctx context.Context) ([]dto.EventResponse, error)
	Active(ctx context.Context) (dto.EventResponse, error)
	Create(ctx context.Context, actor Identity, req dto.EventCreateRequest) (dto.EventResponse, error)
}

type eventService struct {
	store     repository.Store
	notifier  ChangeNotifier
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEventService constructs the event service.
func NewEventService(store repository.Store, notifier ChangeNotifier, validate *validator.Validate, logger zerolog.Logger) EventService {
	return &eventService{
		store:     store,
		notifier:  notifier,
		validator: validate,
		logger:    logger.With().Str("component", "event_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-livechat/internal/service/event"),
		now:       time.Now,
	}
}

func (s *eventService) List(ctx context.Context) ([]dto.EventResponse, error) {
	events, err := s.store.Events().List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]dto.EventResponse, 0, len(events))
	for _, event := range events {
		items = append(items, dto.NewEventResponse(event))
	}
	return items, nil
}

func (s *eventService) Active(ctx context.Context) (dto.EventResponse, error) {
	event, err := s.store.Events().Active(ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.EventResponse{}, ErrNoActiveEvent
	}
	if err != nil {
		return dto.EventResponse{}, err
	}
	return dto.NewEventResponse(event), nil
}

func (s *eventService) Create(ctx context.Context, actor Identity, req dto.EventCreateRequest) (dto.EventResponse, error) {
	ctx, span := s.tracer.Start(ctx, "event.create")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	req.ID = strings.TrimSpace(req.ID)
	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.EventResponse{}, err
	}

	var (
		created models.Event
		version int64
	)
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		event, err := activateEvent(ctx, tx, req.ID, req.Name, req.SlowModeSeconds, s.now())
		if err != nil {
			return err
		}
		if err := tx.ModerationLogs().Create(ctx, &models.ModerationLog{
			ActorID:  actor.UserID,
			Action:   "event.created",
			EventID:  event.ID,
			Metadata: datatypes.JSONMap{"name": event.Name},
		}); err != nil {
			return err
		}
		created = event
		version = tx.Changes().Version()
		return nil
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		span.SetStatus(codes.Error, "duplicate event id")
		return dto.EventResponse{}, ErrEventExists
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.EventResponse{}, err
	}

	span.SetAttributes(attribute.String("event.id", created.ID))
	s.logger.Info().Str("event_id", created.ID).Str("actor_id", actor.UserID).Msg("event activated")
	if s.notifier != nil {
		s.notifier.Notify(ctx, version)
	}

	return dto.NewEventResponse(created), nil
}

// activateEvent deactivates every active event and inserts the new active one in tx,
// so at most one event is ever active once tx commits. The version row is locked before
// the active events are read so concurrent activations run one after the other.
func activateEvent(ctx context.Context, tx repository.Store, id, name string, slowMode int, now time.Time) (models.Event, error) {
	if id == "" {
		id = uuid.NewString()
	}

	if _, err := tx.Changes().Reserve(ctx); err != nil {
		return models.Event{}, err
	}

	deactivated, err := tx.Events().DeactivateAll(ctx)
	if err != nil {
		return models.Event{}, err
	}
	for _, previous := range deactivated {
		previous.UpdatedAt = now
		if err := recordEventChange(ctx, tx, previous); err != nil {
			return models.Event{}, err
		}
	}

	event := models.Event{
		ID:              id,
		Name:            name,
		IsActive:        true,
		SlowModeSeconds: slowMode,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := tx.Events().Create(ctx, &event); err != nil {
		return models.Event{}, err
	}
	if err := recordEventChange(ctx, tx, event); err != nil {
		return models.Event{}, err
	}

	return event, nil
}
