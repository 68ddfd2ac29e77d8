package service

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/database"
	"github.com/noah-isme/gema-livechat/internal/messaging"
	"github.com/noah-isme/gema-livechat/internal/models"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return server, client
}

func seedEvent(t *testing.T, db *gorm.DB, id string, active bool, slowMode int) models.Event {
	t.Helper()

	event := models.Event{ID: id, Name: "Event " + id, IsActive: active, SlowModeSeconds: slowMode}
	require.NoError(t, db.Create(&event).Error)
	return event
}

var (
	testUser  = Identity{UserID: "alice", Role: models.RoleUser, Username: "alice", DisplayName: "Alice"}
	testOther = Identity{UserID: "bob", Role: models.RoleUser, Username: "bob", DisplayName: "Bob"}
	testAdmin = Identity{UserID: "root", Role: models.RoleAdmin, Username: "root", DisplayName: "Root"}
)

type recordingNotifier struct {
	mu       sync.Mutex
	versions []int64
}

func (n *recordingNotifier) Notify(_ context.Context, version int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.versions = append(n.versions, version)
}

func (n *recordingNotifier) all() []int64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int64(nil), n.versions...)
}

type recordingPublisher struct {
	mu        sync.Mutex
	envelopes []messaging.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, envelope messaging.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envelopes = append(p.envelopes, envelope)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := make([]string, 0, len(p.envelopes))
	for _, envelope := range p.envelopes {
		topics = append(topics, envelope.Topic)
	}
	return topics
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
