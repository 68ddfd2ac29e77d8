package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/observability"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

// BlockedWordService manages the send-path word filter list.
type BlockedWordService interface {
	List(ctx context.Context) ([]dto.BlockedWordResponse, error)
	Add(ctx context.Context, actor Identity, req dto.BlockedWordCreateRequest) (dto.BlockedWordResponse, error)
	Delete(ctx context.Context, actor Identity, id uint) error
}

// WordFilter finds blocked words in message text.
type WordFilter interface {
	// Match returns the first blocked word contained in text, or "" when the text is clean.
	// source is used on a cache miss so callers inside a transaction keep using it.
	Match(ctx context.Context, source repository.BlockedWordRepository, text string) (string, error)
}

// BlockedWords combines list management with the send-path filter.
type BlockedWords interface {
	BlockedWordService
	WordFilter
}

type blockedWordService struct {
	store     repository.Store
	cache     *redis.Client
	cacheKey  string
	genKey    string
	ttl       time.Duration
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
}

// NewBlockedWordService constructs the blocked word service backed by a Redis cached list.
func NewBlockedWordService(store repository.Store, cache *redis.Client, prefix string, ttl time.Duration, validate *validator.Validate, logger zerolog.Logger) BlockedWords {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &blockedWordService{
		store:     store,
		cache:     cache,
		cacheKey:  fmt.Sprintf("%s:blocked_words:v1", prefix),
		genKey:    fmt.Sprintf("%s:blocked_words:generation", prefix),
		ttl:       ttl,
		validator: validate,
		logger:    logger.With().Str("component", "blocked_word_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/gema-livechat/internal/service/blocked_words"),
	}
}

func (s *blockedWordService) List(ctx context.Context) ([]dto.BlockedWordResponse, error) {
	words, err := s.store.BlockedWords().List(ctx)
	if err != nil {
		return nil, err
	}

	items := make([]dto.BlockedWordResponse, 0, len(words))
	for _, word := range words {
		items = append(items, dto.NewBlockedWordResponse(word))
	}
	return items, nil
}

func (s *blockedWordService) Add(ctx context.Context, actor Identity, req dto.BlockedWordCreateRequest) (dto.BlockedWordResponse, error) {
	ctx, span := s.tracer.Start(ctx, "blocked_words.add")
	defer span.End()

	req.Word = models.NormalizeWord(req.Word)
	if err := s.validator.Struct(req); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		return dto.BlockedWordResponse{}, err
	}

	word := models.BlockedWord{Word: req.Word, AddedBy: actor.UserID}
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.BlockedWords().Create(ctx, &word); err != nil {
			return err
		}
		return tx.ModerationLogs().Create(ctx, &models.ModerationLog{
			ActorID:  actor.UserID,
			Action:   "blocked_word.added",
			Metadata: datatypes.JSONMap{"word": word.Word},
		})
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		span.SetStatus(codes.Error, "duplicate word")
		return dto.BlockedWordResponse{}, ErrBlockedWordExists
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create failed")
		return dto.BlockedWordResponse{}, err
	}

	s.invalidate(ctx)
	s.logger.Info().Str("actor_id", actor.UserID).Str("word", word.Word).Msg("blocked word added")
	return dto.NewBlockedWordResponse(word), nil
}

func (s *blockedWordService) Delete(ctx context.Context, actor Identity, id uint) error {
	ctx, span := s.tracer.Start(ctx, "blocked_words.delete")
	defer span.End()

	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.BlockedWords().Delete(ctx, id); err != nil {
			return err
		}
		return tx.ModerationLogs().Create(ctx, &models.ModerationLog{
			ActorID:  actor.UserID,
			Action:   "blocked_word.removed",
			Metadata: datatypes.JSONMap{"blocked_word_id": id},
		})
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrBlockedWordNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "delete failed")
		return err
	}

	s.invalidate(ctx)
	return nil
}

func (s *blockedWordService) Match(ctx context.Context, source repository.BlockedWordRepository, text string) (string, error) {
	words, err := s.words(ctx, source)
	if err != nil {
		return "", err
	}

	lowered := strings.ToLower(text)
	for _, word := range words {
		if word != "" && strings.Contains(lowered, word) {
			return word, nil
		}
	}
	return "", nil
}

// words returns the normalized list. Cached copies are keyed by the list generation read
// before the database, so a copy loaded across an invalidation is never served.
func (s *blockedWordService) words(ctx context.Context, source repository.BlockedWordRepository) ([]string, error) {
	key, cacheable := s.currentKey(ctx)
	if cacheable {
		if cached, err := s.cache.Get(ctx, key).Result(); err == nil {
			var words []string
			if err := json.Unmarshal([]byte(cached), &words); err == nil {
				observability.BlockedWordsCache().WithLabelValues("hit").Inc()
				return words, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			s.logger.Warn().Err(err).Msg("failed to read blocked words cache")
		}
	}
	observability.BlockedWordsCache().WithLabelValues("miss").Inc()

	if source == nil {
		source = s.store.BlockedWords()
	}
	rows, err := source.List(ctx)
	if err != nil {
		return nil, err
	}

	words := make([]string, 0, len(rows))
	for _, row := range rows {
		words = append(words, models.NormalizeWord(row.Word))
	}

	if cacheable {
		if payload, err := json.Marshal(words); err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl).Err(); err != nil {
				s.logger.Warn().Err(err).Msg("failed to write blocked words cache")
			}
		}
	}

	return words, nil
}

// currentKey returns the cache key of the current list generation.
func (s *blockedWordService) currentKey(ctx context.Context) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	generation, err := s.cache.Get(ctx, s.genKey).Int64()
	if errors.Is(err, redis.Nil) {
		generation = 0
	} else if err != nil {
		s.logger.Warn().Err(err).Msg("failed to read blocked words generation")
		return "", false
	}
	return fmt.Sprintf("%s:%d", s.cacheKey, generation), true
}

// invalidate moves readers to a new generation; copies of older ones expire with their TTL.
func (s *blockedWordService) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Incr(ctx, s.genKey).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to invalidate blocked words cache")
	}
}
