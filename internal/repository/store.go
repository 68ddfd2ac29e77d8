package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that take part in one unit of work.
type Store interface {
	Events() EventRepository
	Messages() MessageRepository
	Participants() ParticipantRepository
	BlockedWords() BlockedWordRepository
	Users() UserRepository
	ClientGroups() ClientGroupRepository
	Changes() ChangeRepository
	ModerationLogs() ModerationLogRepository
	// Transaction runs fn inside a database transaction. Repositories obtained from the
	// Store passed to fn share that transaction and its change-log version.
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type store struct {
	db      *gorm.DB
	version *int64
}

// NewStore constructs a Store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) Events() EventRepository { return NewEventRepository(s.db) }

func (s *store) Messages() MessageRepository { return NewMessageRepository(s.db) }

func (s *store) Participants() ParticipantRepository { return NewParticipantRepository(s.db) }

func (s *store) BlockedWords() BlockedWordRepository { return NewBlockedWordRepository(s.db) }

func (s *store) Users() UserRepository { return NewUserRepository(s.db) }

func (s *store) ClientGroups() ClientGroupRepository { return NewClientGroupRepository(s.db) }

func (s *store) ModerationLogs() ModerationLogRepository { return NewModerationLogRepository(s.db) }

func (s *store) Changes() ChangeRepository {
	return &changeRepository{db: s.db, version: s.version}
}

func (s *store) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&store{db: tx, version: new(int64)})
	})
}
