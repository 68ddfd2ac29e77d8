// Package syncproto holds the wire types shared by the sync server and the Go client engine:
// push and pull bodies, patches, mutation names with their argument bundles, and error kinds.
package syncproto

import (
	"encoding/json"
	"time"
)

// PushVersion is the only push body version the server accepts.
const PushVersion = 1

// PushRequest is a batch of mutations from one client group.
type PushRequest struct {
	ClientGroupID string     `json:"clientGroupID" validate:"required,max=64"`
	Mutations     []Mutation `json:"mutations" validate:"dive"`
	PushVersion   int        `json:"pushVersion"`
}

// Mutation is a single named change with its argument bundle.
type Mutation struct {
	ID        int64           `json:"id" validate:"required,gt=0"`
	ClientID  string          `json:"clientID,omitempty" validate:"omitempty,max=64"`
	Name      string          `json:"name" validate:"required,max=64"`
	Args      json.RawMessage `json:"args"`
	Timestamp int64           `json:"timestamp,omitempty"`
}

// PushResponse reports one outcome per submitted mutation, in submission order.
type PushResponse struct {
	Mutations []MutationResult `json:"mutations"`
}

// MutationResult is the outcome of one mutation. A nil error means the mutation was applied.
type MutationResult struct {
	ID    int64          `json:"id"`
	Error *MutationError `json:"error,omitempty"`
}

// MutationError is the client-visible rejection of a mutation.
type MutationError struct {
	Kind       ErrorKind `json:"kind"`
	Message    string    `json:"message"`
	RetryAfter int       `json:"retryAfter,omitempty"`
}

func (e *MutationError) Error() string {
	return e.Message
}

// PullRequest asks for all changes after the cookie.
type PullRequest struct {
	ClientGroupID string `json:"clientGroupID" validate:"required,max=64"`
	Cookie        int64  `json:"cookie" validate:"gte=0"`
	EventID       string `json:"eventID,omitempty" validate:"omitempty,max=64"`
}

// PullResponse carries the patches and the new cookie.
type PullResponse struct {
	Cookie         int64   `json:"cookie"`
	LastMutationID int64   `json:"lastMutationID"`
	Patches        []Patch `json:"patches"`
	Complete       bool    `json:"complete"`
}

// PatchOp is the operation of a patch.
type PatchOp string

const (
	PatchPut PatchOp = "put"
	PatchDel PatchOp = "del"
)

// Patch replaces or removes one row of the client cache.
type Patch struct {
	Op     PatchOp         `json:"op"`
	Entity string          `json:"entity"`
	ID     string          `json:"id"`
	Value  json.RawMessage `json:"value,omitempty"`
}

// Poke is sent over the websocket whenever the server has new changes.
type Poke struct {
	Type    string `json:"type"`
	Version int64  `json:"version"`
}

// PokeType is the Type of every poke frame.
const PokeType = "poke"

// Entity names used in patches.
const (
	EntityEvent       = "event"
	EntityMessage     = "message"
	EntityParticipant = "participant"
)

// ParticipantKey is the patch id of a participant row.
func ParticipantKey(eventID, userID string) string {
	return eventID + "/" + userID
}

// EventValue is the synced representation of an event.
type EventValue struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Active          bool      `json:"active"`
	SlowModeSeconds int       `json:"slowModeSeconds"`
	CreatedAt       time.Time `json:"createdAt"`
}

// MessageValue is the synced representation of a message. Deleted messages carry no text.
type MessageValue struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventID"`
	UserID    string    `json:"userID"`
	Text      string    `json:"text"`
	ReplyToID string    `json:"replyToID,omitempty"`
	Deleted   bool      `json:"deleted"`
	DeletedBy string    `json:"deletedBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// ParticipantValue is the synced moderation state of a user in an event.
type ParticipantValue struct {
	UserID         string     `json:"userID"`
	EventID        string     `json:"eventID"`
	Banned         bool       `json:"banned"`
	MutedUntil     *time.Time `json:"mutedUntil,omitempty"`
	CustomCooldown int        `json:"customCooldown"`
	LastMessageAt  *time.Time `json:"lastMessageAt,omitempty"`
}
