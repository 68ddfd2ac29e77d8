package service

import (
	"context"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

// ModerationLogService exposes the moderation audit trail to admins.
type ModerationLogService interface {
	List(ctx context.Context, req dto.ModerationLogListRequest) (dto.ModerationLogListResponse, error)
}

type moderationLogService struct {
	repo   repository.ModerationLogRepository
	logger zerolog.Logger
}

// NewModerationLogService constructs the moderation log service.
func NewModerationLogService(repo repository.ModerationLogRepository, logger zerolog.Logger) ModerationLogService {
	return &moderationLogService{
		repo:   repo,
		logger: logger.With().Str("component", "moderation_log_service").Logger(),
	}
}

func (s *moderationLogService) List(ctx context.Context, req dto.ModerationLogListRequest) (dto.ModerationLogListResponse, error) {
	page := maxInt(req.Page, 1)
	pageSize := clampPageSize(req.PageSize)

	entries, total, err := s.repo.List(ctx, repository.ModerationLogFilter{
		EventID:      strings.TrimSpace(req.EventID),
		TargetUserID: strings.TrimSpace(req.TargetUserID),
		Action:       strings.ToLower(strings.TrimSpace(req.Action)),
		Page:         page,
		PageSize:     pageSize,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list moderation logs")
		return dto.ModerationLogListResponse{}, err
	}

	items := make([]dto.ModerationLogItem, 0, len(entries))
	for _, entry := range entries {
		items = append(items, dto.ModerationLogItem{
			ID:           entry.ID,
			ActorID:      entry.ActorID,
			Action:       entry.Action,
			EventID:      entry.EventID,
			TargetUserID: entry.TargetUserID,
			MessageID:    entry.MessageID,
			Metadata:     map[string]interface{}(entry.Metadata),
			CreatedAt:    entry.CreatedAt,
		})
	}

	return dto.ModerationLogListResponse{
		Items: items,
		Pagination: dto.PaginationMeta{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
			TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		},
	}, nil
}

func clampPageSize(size int) int {
	if size <= 0 {
		return 20
	}
	if size > 100 {
		return 100
	}
	return size
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
