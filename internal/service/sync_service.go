package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/observability"
	"github.com/noah-isme/gema-livechat/internal/repository"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

const (
	pokePingInterval = 30 * time.Second
	defaultPullLimit = 500
)

// PokeConnectionOptions wraps metadata extracted during the websocket upgrade.
type PokeConnectionOptions struct {
	Identity      Identity
	EventID       string
	CorrelationID string
	Context       context.Context
}

// SyncService serves pulls and keeps poke connections informed of new versions.
type SyncService interface {
	ChangeNotifier
	Pull(ctx context.Context, identity Identity, req syncproto.PullRequest) (syncproto.PullResponse, error)
	ServeConnection(conn *websocket.Conn, opts PokeConnectionOptions)
	Start(ctx context.Context)
}

type syncService struct {
	store       repository.Store
	limit       int
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	hub         *pokeHub
	logger      zerolog.Logger
	tracer      trace.Tracer
	nodeID      string
	now         func() time.Time
}

type pokeHub struct {
	mu       sync.RWMutex
	clients  map[*pokeClient]struct{}
	presence map[string]int
	log      zerolog.Logger
}

type pokeClient struct {
	conn    *websocket.Conn
	send    chan int64
	options PokeConnectionOptions
	service *syncService
	closed  chan struct{}
	once    sync.Once
}

type pokeEvent struct {
	Source  string    `json:"source"`
	Version int64     `json:"version"`
	SentAt  time.Time `json:"sent_at"`
}

// NewSyncService creates the pull and poke service. Redis and NATS are optional fanout
// transports between nodes.
func NewSyncService(store repository.Store, pullLimit int, redisClient *redis.Client, channelBase string, natsConn *nats.Conn, logger zerolog.Logger) SyncService {
	if pullLimit <= 0 {
		pullLimit = defaultPullLimit
	}

	streamChannel := ""
	natsSubject := ""
	if channelBase != "" {
		streamChannel = channelBase + ":poke"
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".poke"
	}

	return &syncService{
		store:       store,
		limit:       pullLimit,
		redis:       redisClient,
		redisStream: streamChannel,
		nats:        natsConn,
		natsSubject: natsSubject,
		hub: &pokeHub{
			clients:  make(map[*pokeClient]struct{}),
			presence: make(map[string]int),
			log:      logger.With().Str("component", "poke_hub").Logger(),
		},
		logger: logger.With().Str("component", "sync_service").Logger(),
		tracer: otel.Tracer("github.com/noah-isme/gema-livechat/internal/service/sync"),
		nodeID: uuid.NewString(),
		now:    time.Now,
	}
}

func (s *syncService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *syncService) Pull(ctx context.Context, identity Identity, req syncproto.PullRequest) (syncproto.PullResponse, error) {
	ctx, span := s.tracer.Start(ctx, "sync.pull", trace.WithAttributes(
		attribute.String("sync.client_group_id", req.ClientGroupID),
		attribute.Int64("sync.cookie", req.Cookie),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.PullLatency().Observe(time.Since(start).Seconds())
	}()

	// The mutation high-water mark is read before the changes so every confirmed mutation's
	// effects are already visible in this response.
	var lastMutationID int64
	group, err := s.store.ClientGroups().Get(ctx, req.ClientGroupID)
	switch {
	case err == nil:
		if group.UserID != "" && group.UserID != identity.UserID {
			span.SetStatus(codes.Error, "foreign client group")
			return syncproto.PullResponse{}, ErrClientGroupForbidden
		}
		lastMutationID = group.LastMutationID
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		span.RecordError(err)
		return syncproto.PullResponse{}, err
	}

	head, err := s.store.Changes().CurrentVersion(ctx)
	if err != nil {
		span.RecordError(err)
		return syncproto.PullResponse{}, err
	}

	cookie := req.Cookie
	if cookie > head {
		// The client knows versions this server never issued; resend everything.
		cookie = 0
	}

	filter := repository.ChangeFilter{
		EventID:         req.EventID,
		ViewerID:        identity.UserID,
		AllParticipants: identity.IsAdmin(),
	}
	changes, complete, err := s.page(ctx, cookie, filter)
	if err != nil {
		span.RecordError(err)
		return syncproto.PullResponse{}, err
	}

	next := cookie
	if len(changes) > 0 {
		next = changes[len(changes)-1].Version
	}
	if complete && head > next {
		next = head
	}

	patches := compactPatches(changes)
	observability.PullPatches().Add(float64(len(patches)))

	if req.EventID != "" {
		s.touch(ctx, req.EventID, identity.UserID, models.PresenceOnline)
	}

	return syncproto.PullResponse{
		Cookie:         next,
		LastMutationID: lastMutationID,
		Patches:        patches,
		Complete:       complete,
	}, nil
}

// page returns up to limit changes after cookie without splitting a version across pages.
func (s *syncService) page(ctx context.Context, cookie int64, filter repository.ChangeFilter) ([]models.Change, bool, error) {
	changes, err := s.store.Changes().ListSince(ctx, cookie, filter, s.limit+1)
	if err != nil {
		return nil, false, err
	}
	if len(changes) <= s.limit {
		return changes, true, nil
	}

	boundary := changes[s.limit].Version
	cut := s.limit
	for cut > 0 && changes[cut-1].Version == boundary {
		cut--
	}
	if cut > 0 {
		return changes[:cut], false, nil
	}

	// One version is larger than a page; it is delivered whole.
	all, err := s.store.Changes().ListSince(ctx, cookie, filter, 0)
	if err != nil {
		return nil, false, err
	}
	kept := all[:0]
	for _, change := range all {
		if change.Version > boundary {
			break
		}
		kept = append(kept, change)
	}
	return kept, len(kept) == len(all), nil
}

// compactPatches keeps only the newest change per row.
func compactPatches(changes []models.Change) []syncproto.Patch {
	last := make(map[string]int, len(changes))
	for i, change := range changes {
		last[change.Entity+"\x00"+change.EntityID] = i
	}

	patches := make([]syncproto.Patch, 0, len(last))
	for i, change := range changes {
		if last[change.Entity+"\x00"+change.EntityID] != i {
			continue
		}
		patch := syncproto.Patch{
			Op:     syncproto.PatchOp(change.Op),
			Entity: change.Entity,
			ID:     change.EntityID,
		}
		if change.Op == models.ChangePut {
			patch.Value = json.RawMessage(change.Payload)
		}
		patches = append(patches, patch)
	}
	return patches
}

func (s *syncService) Notify(ctx context.Context, version int64) {
	if version <= 0 {
		return
	}

	s.hub.broadcast(version)
	if err := s.publish(ctx, version); err != nil {
		s.logger.Warn().Err(err).Int64("version", version).Msg("failed to publish poke")
	}
}

func (s *syncService) ServeConnection(conn *websocket.Conn, opts PokeConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &pokeClient{
		conn:    conn,
		send:    make(chan int64, 1),
		options: opts,
		service: s,
		closed:  make(chan struct{}),
	}

	if first := s.hub.register(client); first && opts.EventID != "" {
		s.touch(opts.Context, opts.EventID, opts.Identity.UserID, models.PresenceOnline)
	}
	observability.PokeConnections().Inc()

	if version, err := s.store.Changes().CurrentVersion(opts.Context); err == nil {
		client.enqueue(version)
	} else {
		s.logger.Warn().Err(err).Msg("failed to read current version for initial poke")
	}

	go client.writer()
	client.reader()
}

func (s *syncService) touch(ctx context.Context, eventID, userID string, presence models.Presence) {
	if err := s.store.Participants().Touch(ctx, eventID, userID, presence, s.now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("event_id", eventID).Str("user_id", userID).Msg("failed to update presence")
	}
}

func (s *syncService) publish(ctx context.Context, version int64) error {
	payload, err := json.Marshal(pokeEvent{Source: s.nodeID, Version: version, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *syncService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("poke redis subscription closed")
			return
		}
		s.handleEvent([]byte(msg.Payload))
	}
}

func (s *syncService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.Subscribe(s.natsSubject, func(msg *nats.Msg) {
		s.handleEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats poke subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain poke nats subscription")
		}
	}()
}

func (s *syncService) handleEvent(data []byte) {
	var event pokeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		s.logger.Warn().Err(err).Msg("invalid poke event")
		return
	}
	if event.Source == s.nodeID {
		return
	}
	s.hub.broadcast(event.Version)
}

func presenceKey(opts PokeConnectionOptions) string {
	return opts.EventID + "/" + opts.Identity.UserID
}

// register adds the client and reports whether it is the user's first connection to the event.
func (h *pokeHub) register(client *pokeClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	key := presenceKey(client.options)
	h.presence[key]++
	h.log.Debug().Str("event_id", client.options.EventID).Str("user_id", client.options.Identity.UserID).Msg("poke client connected")
	return h.presence[key] == 1
}

// unregister removes the client and reports whether it was the user's last connection to the event.
func (h *pokeHub) unregister(client *pokeClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.clients, client)
	key := presenceKey(client.options)
	h.presence[key]--
	last := h.presence[key] <= 0
	if last {
		delete(h.presence, key)
	}
	h.log.Debug().Str("event_id", client.options.EventID).Str("user_id", client.options.Identity.UserID).Msg("poke client disconnected")
	return last
}

func (h *pokeHub) broadcast(version int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		client.enqueue(version)
	}
}

func (h *pokeHub) size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// enqueue never blocks; a poke already waiting makes the client pull everything anyway.
func (c *pokeClient) enqueue(version int64) {
	select {
	case c.send <- version:
	default:
	}
}

func (c *pokeClient) reader() {
	defer c.close()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.service.logger.Debug().Err(err).Msg("poke read loop ended")
			return
		}
	}
}

func (c *pokeClient) writer() {
	defer c.close()

	ticker := time.NewTicker(pokePingInterval)
	defer ticker.Stop()

	for {
		select {
		case version := <-c.send:
			if err := c.conn.WriteJSON(syncproto.Poke{Type: syncproto.PokeType, Version: version}); err != nil {
				c.service.logger.Debug().Err(err).Msg("poke write loop terminated")
				return
			}
			observability.PokesSent().Inc()
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("poke ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *pokeClient) close() {
	c.once.Do(func() {
		close(c.closed)
		if last := c.service.hub.unregister(c); last && c.options.EventID != "" {
			c.service.touch(context.Background(), c.options.EventID, c.options.Identity.UserID, models.PresenceOffline)
		}
		observability.PokeConnections().Dec()
		_ = c.conn.Close()
	})
}
