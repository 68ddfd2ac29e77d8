package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/database"
	"github.com/noah-isme/gema-livechat/internal/handler"
	"github.com/noah-isme/gema-livechat/internal/messaging"
	"github.com/noah-isme/gema-livechat/internal/middleware"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/repository"
	"github.com/noah-isme/gema-livechat/internal/service"
)

const testSyncSecret = "sync-secret"

// testEnv wires real services over an in-memory database and a miniredis instance.
type testEnv struct {
	db        *gorm.DB
	store     repository.Store
	tokens    service.TokenService
	mutations service.MutationService
	sync      service.SyncService
	events    service.EventService
	words     service.BlockedWords
	logs      service.ModerationLogService
	validate  *validator.Validate
	logger    zerolog.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, database.Migrate(db))

	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := zerolog.Nop()
	validate := validator.New(validator.WithRequiredStructEnabled())
	store := repository.NewStore(db)

	syncService := service.NewSyncService(store, 100, nil, "", nil, logger)
	words := service.NewBlockedWordService(store, redisClient, "test", time.Minute, validate, logger)
	limiter := service.NewRateLimiter(redisClient, "test", 100, time.Second)

	return &testEnv{
		db:        db,
		store:     store,
		tokens:    service.NewTokenService(store.Users(), testSyncSecret, time.Hour, "test", logger),
		mutations: service.NewMutationService(store, limiter, words, messaging.NewNoopPublisher(logger), syncService, validate, logger),
		sync:      syncService,
		events:    service.NewEventService(store, syncService, validate, logger),
		words:     words,
		logs:      service.NewModerationLogService(store.ModerationLogs(), logger),
		validate:  validate,
		logger:    logger,
	}
}

func (e *testEnv) token(t *testing.T, identity service.Identity) string {
	t.Helper()
	issued, err := e.tokens.Issue(t.Context(), identity)
	require.NoError(t, err)
	return issued.Token
}

func (e *testEnv) seedEvent(t *testing.T, id string) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Event{ID: id, Name: "Event " + id, IsActive: true}).Error)
}

var (
	alice = service.Identity{UserID: "alice", Role: models.RoleUser, Username: "alice", DisplayName: "Alice"}
	root  = service.Identity{UserID: "root", Role: models.RoleAdmin, Username: "root", DisplayName: "Root"}
)

// asSession stands in for the session middleware.
func asSession(identity service.Identity) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if identity.UserID != "" {
			c.Locals(middleware.LocalUserID, identity.UserID)
			c.Locals(middleware.LocalUserRole, string(identity.Role))
			c.Locals(middleware.LocalUsername, identity.Username)
			c.Locals(middleware.LocalDisplayName, identity.DisplayName)
		}
		return c.Next()
	}
}

func (e *testEnv) syncApp() *fiber.App {
	app := fiber.New()
	handler.NewSyncHandler(e.tokens, e.mutations, e.sync, e.validate, e.logger).Register(app.Group("/api/v1/sync"))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(target))
}

type envelope[T any] struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
	Details json.RawMessage `json:"details"`
}

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}
