package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/messaging"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/observability"
	"github.com/noah-isme/gema-livechat/internal/repository"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// MutationService applies pushed mutations authoritatively and exactly once per client group.
type MutationService interface {
	// Push processes the batch in order. When a mutation fails unexpectedly the remaining ones
	// are reported as internal and ErrPushFailed is returned with the partial response.
	Push(ctx context.Context, identity Identity, req syncproto.PushRequest) (syncproto.PushResponse, error)
}

type mutationHandler func(mc *mutationContext, args json.RawMessage) error

// mutationContext is the state of one mutation inside its transaction.
type mutationContext struct {
	ctx      context.Context
	tx       repository.Store
	identity Identity
	now      time.Time
	effects  []messaging.Envelope
}

func (mc *mutationContext) publish(envelope messaging.Envelope) {
	envelope.ActorID = mc.identity.UserID
	envelope.OccurredAt = mc.now
	mc.effects = append(mc.effects, envelope)
}

// errSkipMutation rolls back a transaction that has nothing to apply.
var errSkipMutation = errors.New("skip mutation")

type mutationService struct {
	store     repository.Store
	limiter   RateLimiter
	words     WordFilter
	publisher messaging.Publisher
	notifier  ChangeNotifier
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	handlers  map[string]mutationHandler
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewMutationService constructs the server mutation processor.
func NewMutationService(store repository.Store, limiter RateLimiter, words WordFilter, publisher messaging.Publisher, notifier ChangeNotifier, validate *validator.Validate, logger zerolog.Logger) MutationService {
	s := &mutationService{
		store:     store,
		limiter:   limiter,
		words:     words,
		publisher: publisher,
		notifier:  notifier,
		validator: validate,
		sanitizer: bluemonday.UGCPolicy(),
		logger:    logger.With().Str("component", "mutation_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-livechat/internal/service/mutation"),
		now:       time.Now,
	}
	s.handlers = map[string]mutationHandler{
		syncproto.MutationAddMessage:      s.addMessage,
		syncproto.MutationDeleteMessage:   s.deleteMessage,
		syncproto.MutationMuteUser:        s.muteUser,
		syncproto.MutationUnmuteUser:      s.unmuteUser,
		syncproto.MutationBanUser:         s.banUser,
		syncproto.MutationUnbanUser:       s.unbanUser,
		syncproto.MutationSetUserCooldown: s.setUserCooldown,
		syncproto.MutationSetSlowMode:     s.setSlowMode,
		syncproto.MutationRotateEvent:     s.rotateEvent,
	}
	return s
}

func (s *mutationService) Push(ctx context.Context, identity Identity, req syncproto.PushRequest) (syncproto.PushResponse, error) {
	ctx, span := s.tracer.Start(ctx, "sync.push")
	defer span.End()
	span.SetAttributes(
		attribute.String("sync.client_group_id", req.ClientGroupID),
		attribute.Int("sync.mutations", len(req.Mutations)),
	)

	start := time.Now()
	defer func() {
		observability.PushLatency().Observe(time.Since(start).Seconds())
	}()

	response := syncproto.PushResponse{Mutations: make([]syncproto.MutationResult, 0, len(req.Mutations))}

	if identity.UserID == "" {
		for _, m := range req.Mutations {
			response.Mutations = append(response.Mutations, syncproto.MutationResult{
				ID:    m.ID,
				Error: reject(syncproto.ErrAuthenticationRequired, "authentication required"),
			})
		}
		return response, nil
	}

	for i, m := range req.Mutations {
		result, err := s.process(ctx, identity, req.ClientGroupID, m)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "mutation failed")
			s.logger.Error().Err(err).
				Str("client_group_id", req.ClientGroupID).
				Int64("mutation_id", m.ID).
				Str("mutation", m.Name).
				Msg("mutation failed unexpectedly")

			for _, rest := range req.Mutations[i:] {
				observability.Mutations().WithLabelValues(rest.Name, string(syncproto.ErrInternal)).Inc()
				response.Mutations = append(response.Mutations, syncproto.MutationResult{ID: rest.ID, Error: internalFailure()})
			}
			return response, ErrPushFailed
		}

		outcome := "ok"
		if result.Error != nil {
			outcome = string(result.Error.Kind)
		}
		observability.Mutations().WithLabelValues(m.Name, outcome).Inc()
		response.Mutations = append(response.Mutations, result)
	}

	return response, nil
}

// process applies one mutation in its own transaction. Only unexpected failures are returned
// as errors; rejections are part of the result.
func (s *mutationService) process(ctx context.Context, identity Identity, groupID string, m syncproto.Mutation) (syncproto.MutationResult, error) {
	result := syncproto.MutationResult{ID: m.ID}

	var (
		denied    *syncproto.MutationError
		duplicate bool
		effects   []messaging.Envelope
		version   int64
	)

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		group, err := tx.ClientGroups().Lock(ctx, groupID)
		if err != nil {
			return err
		}
		if group.UserID != "" && group.UserID != identity.UserID {
			denied = reject(syncproto.ErrAuthorizationDenied, "client group belongs to another user")
			return errSkipMutation
		}
		if m.ID <= group.LastMutationID {
			duplicate = true
			return errSkipMutation
		}

		mc := &mutationContext{ctx: ctx, tx: tx, identity: identity, now: s.now().UTC()}
		if err := s.apply(mc, m); err != nil {
			return err
		}

		group.UserID = identity.UserID
		group.LastMutationID = m.ID
		if err := tx.ClientGroups().Save(ctx, &group); err != nil {
			return err
		}
		if err := tx.ClientGroups().RecordOutcome(ctx, &models.MutationRecord{
			ClientGroupID: groupID,
			MutationID:    m.ID,
			Name:          m.Name,
			ArgsHash:      fingerprint(m),
		}); err != nil {
			return err
		}

		effects = mc.effects
		version = tx.Changes().Version()
		return nil
	})

	var rejection *syncproto.MutationError
	switch {
	case err == nil:
		s.afterCommit(ctx, effects, version)
		return result, nil
	case errors.Is(err, errSkipMutation) && denied != nil:
		result.Error = denied
		return result, nil
	case errors.Is(err, errSkipMutation) && duplicate:
		return s.replayOutcome(ctx, groupID, m)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		// A concurrent push of the same mutation committed first.
		return s.replayOutcome(ctx, groupID, m)
	case errors.As(err, &rejection):
		return s.recordRejection(ctx, identity, groupID, m, rejection)
	default:
		return result, err
	}
}

// recordRejection advances the client group past a rejected mutation in a fresh transaction,
// since the mutation's own transaction was rolled back.
func (s *mutationService) recordRejection(ctx context.Context, identity Identity, groupID string, m syncproto.Mutation, rejection *syncproto.MutationError) (syncproto.MutationResult, error) {
	duplicate := false
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		group, err := tx.ClientGroups().Lock(ctx, groupID)
		if err != nil {
			return err
		}
		if m.ID <= group.LastMutationID {
			duplicate = true
			return errSkipMutation
		}

		group.UserID = identity.UserID
		group.LastMutationID = m.ID
		if err := tx.ClientGroups().Save(ctx, &group); err != nil {
			return err
		}
		return tx.ClientGroups().RecordOutcome(ctx, &models.MutationRecord{
			ClientGroupID: groupID,
			MutationID:    m.ID,
			Name:          m.Name,
			ArgsHash:      fingerprint(m),
			ErrorKind:     string(rejection.Kind),
			ErrorMessage:  rejection.Message,
			RetryAfter:    rejection.RetryAfter,
		})
	})
	if (errors.Is(err, errSkipMutation) && duplicate) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return s.replayOutcome(ctx, groupID, m)
	}
	if err != nil {
		return syncproto.MutationResult{}, err
	}

	s.logger.Debug().
		Str("client_group_id", groupID).
		Int64("mutation_id", m.ID).
		Str("mutation", m.Name).
		Str("kind", string(rejection.Kind)).
		Msg("mutation rejected")

	return syncproto.MutationResult{ID: m.ID, Error: rejection}, nil
}

// replayOutcome answers a duplicate submission with the originally recorded outcome. An id
// that was never recorded, or was recorded with a different body, is a conflict.
func (s *mutationService) replayOutcome(ctx context.Context, groupID string, m syncproto.Mutation) (syncproto.MutationResult, error) {
	result := syncproto.MutationResult{ID: m.ID}

	record, err := s.store.ClientGroups().FindOutcome(ctx, groupID, m.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		result.Error = reject(syncproto.ErrConflict, "mutation id %d is below the last processed id of the client group", m.ID)
		return result, nil
	}
	if err != nil {
		return result, err
	}
	if record.Name != m.Name || (record.ArgsHash != "" && record.ArgsHash != fingerprint(m)) {
		s.logger.Warn().
			Str("client_group_id", groupID).
			Int64("mutation_id", m.ID).
			Str("mutation", m.Name).
			Msg("mutation id reused for a different mutation")
		result.Error = reject(syncproto.ErrConflict, "mutation id %d was already used for a different mutation", m.ID)
		return result, nil
	}

	if record.ErrorKind != "" {
		result.Error = &syncproto.MutationError{
			Kind:       syncproto.ErrorKind(record.ErrorKind),
			Message:    record.ErrorMessage,
			RetryAfter: record.RetryAfter,
		}
	}
	return result, nil
}

// fingerprint identifies a mutation body so a retry can be told apart from a reused id.
func fingerprint(m syncproto.Mutation) string {
	hash := sha256.New()
	hash.Write([]byte(m.Name))
	hash.Write([]byte{0})

	var compact bytes.Buffer
	if err := json.Compact(&compact, m.Args); err != nil {
		hash.Write(m.Args)
	} else {
		hash.Write(compact.Bytes())
	}
	return hex.EncodeToString(hash.Sum(nil))
}

func (s *mutationService) apply(mc *mutationContext, m syncproto.Mutation) error {
	handler, ok := s.handlers[m.Name]
	if !ok {
		return reject(syncproto.ErrValidationFailed, "unknown mutation %q", m.Name)
	}
	if !Authorized(mc.identity.Role, m.Name) {
		return reject(syncproto.ErrAuthorizationDenied, "%s requires the admin role", m.Name)
	}
	return handler(mc, m.Args)
}

func (s *mutationService) afterCommit(ctx context.Context, effects []messaging.Envelope, version int64) {
	if version > 0 && s.notifier != nil {
		s.notifier.Notify(ctx, version)
	}
	if s.publisher == nil {
		return
	}
	for _, envelope := range effects {
		if err := s.publisher.Publish(ctx, envelope); err != nil {
			observability.SideEffects().WithLabelValues(envelope.Topic, "error").Inc()
			s.logger.Warn().Err(err).Str("topic", envelope.Topic).Msg("failed to publish notification")
			continue
		}
		observability.SideEffects().WithLabelValues(envelope.Topic, "ok").Inc()
	}
}
