package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/dto"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/repository"
)

func eventCreateRequest(id, name string) dto.EventCreateRequest {
	return dto.EventCreateRequest{ID: id, Name: name}
}

func TestEventServiceCreateReplacesActiveEvent(t *testing.T) {
	store := repository.NewStore(setupTestDB(t))
	notifier := &recordingNotifier{}
	svc := NewEventService(store, notifier, testValidator(), testLogger())
	ctx := context.Background()

	_, err := svc.Active(ctx)
	require.ErrorIs(t, err, ErrNoActiveEvent)

	first, err := svc.Create(ctx, testAdmin, eventCreateRequest("ev1", "Launch"))
	require.NoError(t, err)
	require.True(t, first.IsActive)

	second, err := svc.Create(ctx, testAdmin, dto.EventCreateRequest{Name: "  Follow-up  ", SlowModeSeconds: 5})
	require.NoError(t, err)
	require.NotEmpty(t, second.ID)
	require.Equal(t, "Follow-up", second.Name)
	require.Equal(t, 5, second.SlowModeSeconds)

	active, err := svc.Active(ctx)
	require.NoError(t, err)
	require.Equal(t, second.ID, active.ID)

	events, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	activeCount := 0
	for _, event := range events {
		if event.IsActive {
			activeCount++
		}
	}
	require.Equal(t, 1, activeCount)

	require.Equal(t, []int64{1, 2}, notifier.all())

	changes, err := store.Changes().ListSince(ctx, 1, repository.ChangeFilter{}, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2, "rotation emits the deactivated and the new event")

	_, err = svc.Create(ctx, testAdmin, eventCreateRequest("ev1", "Duplicate"))
	require.ErrorIs(t, err, ErrEventExists)

	_, err = svc.Create(ctx, testAdmin, eventCreateRequest("", " "))
	require.Error(t, err)
}

// orderedStore records the order in which activation touches the version row and the events.
type orderedStore struct {
	repository.Store
	mu    *sync.Mutex
	calls *[]string
}

func (s orderedStore) record(call string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*s.calls = append(*s.calls, call)
}

func (s orderedStore) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.Transaction(ctx, func(tx repository.Store) error {
		return fn(orderedStore{Store: tx, mu: s.mu, calls: s.calls})
	})
}

func (s orderedStore) Events() repository.EventRepository {
	return orderedEvents{EventRepository: s.Store.Events(), store: s}
}

func (s orderedStore) Changes() repository.ChangeRepository {
	return orderedChanges{ChangeRepository: s.Store.Changes(), store: s}
}

type orderedEvents struct {
	repository.EventRepository
	store orderedStore
}

func (e orderedEvents) DeactivateAll(ctx context.Context) ([]models.Event, error) {
	e.store.record("deactivate")
	return e.EventRepository.DeactivateAll(ctx)
}

type orderedChanges struct {
	repository.ChangeRepository
	store orderedStore
}

func (c orderedChanges) Reserve(ctx context.Context) (int64, error) {
	c.store.record("reserve")
	return c.ChangeRepository.Reserve(ctx)
}

func TestEventServiceLocksVersionBeforeDeactivating(t *testing.T) {
	db := setupTestDB(t)
	var calls []string
	store := orderedStore{Store: repository.NewStore(db), mu: &sync.Mutex{}, calls: &calls}
	svc := NewEventService(store, nil, testValidator(), testLogger())
	ctx := context.Background()

	_, err := svc.Create(ctx, testAdmin, eventCreateRequest("ev1", "Launch"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, testAdmin, eventCreateRequest("ev2", "Next"))
	require.NoError(t, err)
	require.Equal(t, []string{"reserve", "deactivate", "reserve", "deactivate"}, calls)

	version, err := store.Changes().CurrentVersion(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), version, "one version per activation")

	active, err := store.Events().ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "ev2", active[0].ID)

	// A second active row is refused by the store even outside activateEvent.
	err = db.Create(&models.Event{ID: "ev3", Name: "Sneaky", IsActive: true}).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}
