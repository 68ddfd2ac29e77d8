package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

func TestBlockedWordServiceAddNormalizesAndDedups(t *testing.T) {
	store := repository.NewStore(setupTestDB(t))
	svc := NewBlockedWordService(store, nil, "test", time.Minute, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "  SpAm "})
	require.NoError(t, err)
	require.Equal(t, "spam", created.Word)
	require.Equal(t, "root", created.AddedBy)

	_, err = svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "SPAM"})
	require.ErrorIs(t, err, ErrBlockedWordExists)

	_, err = svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "   "})
	require.Error(t, err)

	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)

	logs, total, err := store.ModerationLogs().List(ctx, repository.ModerationLogFilter{Action: "blocked_word.added"})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "root", logs[0].ActorID)

	require.NoError(t, svc.Delete(ctx, testAdmin, created.ID))
	require.ErrorIs(t, svc.Delete(ctx, testAdmin, created.ID), ErrBlockedWordNotFound)
}

func TestBlockedWordServiceMatchUsesCacheAndInvalidates(t *testing.T) {
	server, client := setupRedis(t)
	store := repository.NewStore(setupTestDB(t))
	svc := NewBlockedWordService(store, client, "test", time.Minute, testValidator(), testLogger())
	ctx := context.Background()

	created, err := svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "Spoiler"})
	require.NoError(t, err)

	word, err := svc.Match(ctx, nil, "no SPOILERS please")
	require.NoError(t, err)
	require.Equal(t, "spoiler", word)
	require.True(t, server.Exists("test:blocked_words:v1:1"))

	word, err = svc.Match(ctx, nil, "all clear")
	require.NoError(t, err)
	require.Empty(t, word)

	require.NoError(t, svc.Delete(ctx, testAdmin, created.ID))
	generation, err := server.Get("test:blocked_words:generation")
	require.NoError(t, err)
	require.Equal(t, "2", generation)

	word, err = svc.Match(ctx, nil, "no spoilers please")
	require.NoError(t, err)
	require.Empty(t, word)
}

// addingWordsRepository lets an admin add a word right after the list was read.
type addingWordsRepository struct {
	repository.BlockedWordRepository
	afterList func()
}

func (r addingWordsRepository) List(ctx context.Context) ([]models.BlockedWord, error) {
	words, err := r.BlockedWordRepository.List(ctx)
	if r.afterList != nil {
		r.afterList()
	}
	return words, err
}

func TestBlockedWordServiceInvalidationDuringReloadIsNotLost(t *testing.T) {
	_, client := setupRedis(t)
	store := repository.NewStore(setupTestDB(t))
	svc := NewBlockedWordService(store, client, "test", time.Minute, testValidator(), testLogger())
	ctx := context.Background()

	_, err := svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "spoiler"})
	require.NoError(t, err)

	source := addingWordsRepository{
		BlockedWordRepository: store.BlockedWords(),
		afterList: func() {
			_, err := svc.Add(ctx, testAdmin, dto.BlockedWordCreateRequest{Word: "leak"})
			require.NoError(t, err)
		},
	}

	// This reload started before "leak" existed, so it may answer without it.
	word, err := svc.Match(ctx, source, "a leak")
	require.NoError(t, err)
	require.Empty(t, word)

	word, err = svc.Match(ctx, nil, "a leak")
	require.NoError(t, err)
	require.Equal(t, "leak", word)
}
