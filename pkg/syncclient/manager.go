package syncclient

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Manager owns at most one live client per signed-in session. Switching token or user
// closes the previous client before the new one starts.
type Manager struct {
	mu      sync.Mutex
	factory func(Options) (*Client, error)
	current *Client
	token   string
	userID  string
}

// NewManager returns a manager building clients with New.
func NewManager() *Manager {
	return &Manager{factory: New}
}

// Client returns the live client for opts.Token and opts.Identity, creating and starting
// it when the session changed. A nil client and nil error mean there is no session.
// Every client built here gets a fresh client group; opts.ClientGroupID is ignored.
func (m *Manager) Client(ctx context.Context, opts Options) (*Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && m.token == opts.Token && m.userID == opts.Identity.UserID {
		return m.current, nil
	}

	if m.current != nil {
		m.current.Close()
		m.current = nil
		m.token = ""
		m.userID = ""
	}

	if opts.Token == "" || opts.Identity.UserID == "" {
		return nil, nil
	}

	opts.ClientGroupID = uuid.NewString()
	client, err := m.factory(opts)
	if err != nil {
		return nil, err
	}
	client.Start(ctx)

	m.current = client
	m.token = opts.Token
	m.userID = opts.Identity.UserID
	return client, nil
}

// Close shuts down the live client, if any.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil {
		m.current.Close()
		m.current = nil
	}
	m.token = ""
	m.userID = ""
}
