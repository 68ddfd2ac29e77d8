package syncclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// MutationState tracks a mutation from creation to its server outcome.
type MutationState string

const (
	StatePending   MutationState = "pending"
	StateConfirmed MutationState = "confirmed"
	StateRejected  MutationState = "rejected"
)

// Status is the query status of the local cache.
type Status string

const (
	StatusSyncing  Status = "syncing"
	StatusComplete Status = "complete"
)

// ErrClosed is returned by operations on a closed client.
var ErrClosed = errors.New("syncclient: client closed")

// PendingMutation is a snapshot of a queued mutation.
type PendingMutation struct {
	ID    int64
	Name  string
	Args  json.RawMessage
	State MutationState
	Error *syncproto.MutationError
}

type queued struct {
	PendingMutation
	// applied is cleared once a pull covers the mutation, from then on the base holds its effect.
	applied bool
}

// Options configures a Client.
type Options struct {
	ClientGroupID string
	Token         string
	Identity      Identity
	// EventID scopes pulls to one event. The scope follows the active event after a rotation.
	EventID       string
	Transport     Transport
	// PokeURL is the ws:// address of the poke endpoint; empty disables the listener.
	PokeURL       string
	OnRejected    func(PendingMutation)
	OnChange      func()
	Logger        zerolog.Logger
	RetryInterval time.Duration
	Now           func() time.Time
}

// Client is an optimistic mutation engine over the sync endpoints.
type Client struct {
	opts   Options
	logger zerolog.Logger

	mu             sync.Mutex
	base           *Store
	view           *Store
	queue          []*queued
	nextID         int64
	cookie         int64
	lastMutationID int64
	// seeded is set by the first pull, which moves ids past the server's last processed one.
	seeded         bool
	status         Status
	eventID        string
	// resync starts the next pull from an empty base.
	resync         bool

	pushMu sync.Mutex
	pullMu sync.Mutex

	pushSignal chan struct{}
	pokeSignal chan struct{}
	closed     chan struct{}
	closeOnce  sync.Once
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// New builds a client. Call Start to run the background pusher and puller.
func New(opts Options) (*Client, error) {
	if opts.Transport == nil {
		return nil, errors.New("syncclient: transport is required")
	}
	if strings.TrimSpace(opts.ClientGroupID) == "" {
		return nil, errors.New("syncclient: client group id is required")
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	base := NewStore()
	return &Client{
		opts:       opts,
		logger:     opts.Logger.With().Str("component", "syncclient").Str("client_group_id", opts.ClientGroupID).Logger(),
		base:       base,
		view:       base.Clone(),
		status:     StatusSyncing,
		eventID:    opts.EventID,
		pushSignal: make(chan struct{}, 1),
		pokeSignal: make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}, nil
}

// Identity returns the user the client mutates as.
func (c *Client) Identity() Identity {
	return c.opts.Identity
}

// ClientGroupID returns the client group the client pushes and pulls as.
func (c *Client) ClientGroupID() string {
	return c.opts.ClientGroupID
}

// Token returns the sync token the client authenticates with.
func (c *Client) Token() string {
	return c.opts.Token
}

// Mutate applies a mutation to the local view and queues it for the server. Ids handed out
// before the first pull are provisional and shift past the client group's last processed id.
func (c *Client) Mutate(name string, args interface{}) (*PendingMutation, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	if c.opts.Identity.UserID == "" {
		return nil, ErrNoIdentity
	}
	mutator, ok := localMutators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMutation, name)
	}

	now := c.opts.Now()
	raw, err := prepareArgs(name, args, now)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.nextID++
	entry := &queued{
		PendingMutation: PendingMutation{ID: c.nextID, Name: name, Args: raw, State: StatePending},
		applied:         true,
	}
	if err := mutator(c.view, localMutation{identity: c.opts.Identity, args: raw, now: now}); err != nil {
		c.logger.Debug().Err(err).Str("mutation", name).Msg("local mutator skipped")
	}
	c.queue = append(c.queue, entry)
	snapshot := entry.PendingMutation
	c.mu.Unlock()

	c.signal(c.pushSignal)
	c.changed()
	return &snapshot, nil
}

// Push submits every pending mutation in id order. A client that has not pulled yet pulls
// first so its ids continue from the client group's last processed mutation.
func (c *Client) Push(ctx context.Context) error {
	c.pushMu.Lock()
	defer c.pushMu.Unlock()

	if !c.hasPending() {
		return nil
	}
	if !c.isSeeded() {
		if _, err := c.Pull(ctx); err != nil {
			return err
		}
	}

	c.mu.Lock()
	batch := make([]syncproto.Mutation, 0, len(c.queue))
	now := c.opts.Now().UnixMilli()
	for _, entry := range c.queue {
		if entry.State != StatePending {
			continue
		}
		batch = append(batch, syncproto.Mutation{
			ID:        entry.ID,
			ClientID:  c.opts.ClientGroupID,
			Name:      entry.Name,
			Args:      entry.Args,
			Timestamp: now,
		})
	}
	c.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	resp, err := c.opts.Transport.Push(ctx, c.opts.Token, syncproto.PushRequest{
		ClientGroupID: c.opts.ClientGroupID,
		Mutations:     batch,
		PushVersion:   syncproto.PushVersion,
	})

	rejected, changed := c.applyResults(resp.Mutations)
	for _, m := range rejected {
		c.logger.Info().Int64("mutation_id", m.ID).Str("mutation", m.Name).Str("kind", string(m.Error.Kind)).Msg("mutation rejected")
		if c.opts.OnRejected != nil {
			c.opts.OnRejected(m)
		}
	}
	if changed {
		c.changed()
	}

	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	return nil
}

func (c *Client) applyResults(results []syncproto.MutationResult) ([]PendingMutation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rejected []PendingMutation
	rebuild := false
	for _, result := range results {
		index := c.indexOf(result.ID)
		if index < 0 {
			continue
		}
		entry := c.queue[index]
		if entry.State != StatePending {
			continue
		}

		switch {
		case result.Error == nil:
			entry.State = StateConfirmed
			if !entry.applied {
				c.queue = append(c.queue[:index], c.queue[index+1:]...)
			}
		case result.Error.Kind.Final():
			entry.State = StateRejected
			entry.Error = result.Error
			rejected = append(rejected, entry.PendingMutation)
			c.queue = append(c.queue[:index], c.queue[index+1:]...)
			if entry.applied {
				rebuild = true
			}
		}
	}

	if rebuild {
		c.rebuild()
	}
	return rejected, rebuild
}

// Pull fetches one page of patches and reports whether the cache caught up.
func (c *Client) Pull(ctx context.Context) (bool, error) {
	c.pullMu.Lock()
	defer c.pullMu.Unlock()

	c.mu.Lock()
	req := syncproto.PullRequest{ClientGroupID: c.opts.ClientGroupID, Cookie: c.cookie, EventID: c.eventID}
	fresh := c.resync
	c.mu.Unlock()

	resp, err := c.opts.Transport.Pull(ctx, c.opts.Token, req)
	if err != nil {
		return false, fmt.Errorf("pull: %w", err)
	}

	c.mu.Lock()
	base := c.base.Clone()
	if fresh || resp.Cookie < req.Cookie {
		base = NewStore()
	}
	for _, patch := range resp.Patches {
		if err := base.Apply(patch); err != nil {
			c.mu.Unlock()
			return false, err
		}
	}
	c.base = base
	c.cookie = resp.Cookie
	c.resync = false
	if !c.seeded {
		c.seed(resp.LastMutationID)
	}

	// Only a complete pull guarantees the base holds every row up to lastMutationID.
	if resp.Complete {
		if resp.LastMutationID > c.lastMutationID {
			c.lastMutationID = resp.LastMutationID
		}
		kept := c.queue[:0]
		for _, entry := range c.queue {
			if entry.ID <= c.lastMutationID {
				entry.applied = false
				if entry.State == StateConfirmed {
					continue
				}
			}
			kept = append(kept, entry)
		}
		c.queue = kept
		c.status = StatusComplete
	} else {
		c.status = StatusSyncing
	}

	// Changes of the new event were filtered out of every pull scoped to the old one.
	complete := resp.Complete
	if complete && c.eventID != "" {
		if active, ok := c.base.ActiveEvent(); ok && active.ID != c.eventID {
			c.logger.Info().Str("from_event_id", c.eventID).Str("to_event_id", active.ID).Msg("following rotated event")
			c.eventID = active.ID
			c.cookie = 0
			c.resync = true
			c.status = StatusSyncing
			complete = false
		}
	}
	c.rebuild()
	c.mu.Unlock()

	c.changed()
	return complete, nil
}

// Sync pushes pending mutations, then pulls until the cache is complete.
func (c *Client) Sync(ctx context.Context) error {
	if err := c.Push(ctx); err != nil {
		return err
	}
	for {
		complete, err := c.Pull(ctx)
		if err != nil {
			return err
		}
		if complete {
			return nil
		}
	}
}

// seed shifts the provisional ids of unsent mutations past the server's last processed id.
// Callers hold c.mu.
func (c *Client) seed(lastMutationID int64) {
	c.seeded = true
	if lastMutationID <= 0 {
		return
	}
	for _, entry := range c.queue {
		entry.ID += lastMutationID
	}
	c.nextID += lastMutationID
	c.logger.Debug().Int64("last_mutation_id", lastMutationID).Msg("mutation ids seeded")
}

func (c *Client) isSeeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seeded
}

// rebuild recomputes the view from the base and the still-applied queue. Callers hold c.mu.
func (c *Client) rebuild() {
	view := c.base.Clone()
	for _, entry := range c.queue {
		if !entry.applied {
			continue
		}
		mutator := localMutators[entry.Name]
		if mutator == nil {
			continue
		}
		_ = mutator(view, localMutation{identity: c.opts.Identity, args: entry.Args, now: c.opts.Now()})
	}
	c.view = view
}

func (c *Client) indexOf(id int64) int {
	for i, entry := range c.queue {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

// Start runs the background pusher and puller until ctx is cancelled or Close is called.
func (c *Client) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.run(ctx)
	}()

	if c.opts.PokeURL != "" {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.listen(ctx)
		}()
	}
}

func (c *Client) run(ctx context.Context) {
	ticker := time.NewTicker(c.opts.RetryInterval)
	defer ticker.Stop()

	c.signal(c.pokeSignal)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-c.pushSignal:
			if err := c.Push(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("push failed")
			}
		case <-c.pokeSignal:
			if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
				c.logger.Warn().Err(err).Msg("sync failed")
			}
		case <-ticker.C:
			if c.hasPending() {
				c.signal(c.pushSignal)
			}
		}
	}
}

func (c *Client) listen(ctx context.Context) {
	for {
		err := ListenPokes(ctx, c.opts.PokeURL, c.opts.Token, c.EventID(), func(syncproto.Poke) {
			c.Poke()
		})
		if ctx.Err() != nil || c.isClosed() {
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			c.logger.Warn().Msg("poke listener stopped: token rejected")
			return
		}
		c.logger.Debug().Err(err).Msg("poke connection lost")

		select {
		case <-ctx.Done():
			return
		case <-c.closed:
			return
		case <-time.After(c.opts.RetryInterval):
			c.Poke()
		}
	}
}

// Poke asks the background loop to pull.
func (c *Client) Poke() {
	c.signal(c.pokeSignal)
}

// Close stops the background loops. Pending mutations are discarded with the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	c.wg.Wait()
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Client) signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (c *Client) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

func (c *Client) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.queue {
		if entry.State == StatePending {
			return true
		}
	}
	return false
}

// Pending returns a snapshot of the mutation queue.
func (c *Client) Pending() []PendingMutation {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]PendingMutation, 0, len(c.queue))
	for _, entry := range c.queue {
		out = append(out, entry.PendingMutation)
	}
	return out
}

// Status reports whether the cache has caught up with the server.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// EventID returns the event pulls are currently scoped to, or "" for every event.
func (c *Client) EventID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eventID
}

// Cookie returns the last version pulled.
func (c *Client) Cookie() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cookie
}

// ActiveEvent returns the active event from the view.
func (c *Client) ActiveEvent() (syncproto.EventValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.ActiveEvent()
}

// Messages returns the view's messages of eventID, or of the active event when empty.
// A banned viewer gets no messages at all.
func (c *Client) Messages(eventID string) []syncproto.MessageValue {
	c.mu.Lock()
	defer c.mu.Unlock()
	if eventID == "" {
		event, ok := c.view.ActiveEvent()
		if !ok {
			return []syncproto.MessageValue{}
		}
		eventID = event.ID
	}
	if self, ok := c.view.Participant(eventID, c.opts.Identity.UserID); ok && self.Banned {
		return []syncproto.MessageValue{}
	}
	return c.view.MessagesFor(eventID)
}

// Participant returns the moderation state of userID in eventID from the view.
func (c *Client) Participant(eventID, userID string) (syncproto.ParticipantValue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.Participant(eventID, userID)
}

// CanView reports whether the signed-in user may see the chat of eventID. Banned users may not.
func (c *Client) CanView(eventID string) bool {
	participant, ok := c.Participant(eventID, c.opts.Identity.UserID)
	return !ok || !participant.Banned
}
