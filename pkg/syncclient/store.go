package syncclient

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// Store is the client-side cache of synced rows, keyed by durable id.
type Store struct {
	Events       map[string]syncproto.EventValue
	Messages     map[string]syncproto.MessageValue
	Participants map[string]syncproto.ParticipantValue
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		Events:       make(map[string]syncproto.EventValue),
		Messages:     make(map[string]syncproto.MessageValue),
		Participants: make(map[string]syncproto.ParticipantValue),
	}
}

// Clone returns a copy that can be mutated without affecting s.
func (s *Store) Clone() *Store {
	clone := &Store{
		Events:       make(map[string]syncproto.EventValue, len(s.Events)),
		Messages:     make(map[string]syncproto.MessageValue, len(s.Messages)),
		Participants: make(map[string]syncproto.ParticipantValue, len(s.Participants)),
	}
	for id, event := range s.Events {
		clone.Events[id] = event
	}
	for id, message := range s.Messages {
		clone.Messages[id] = message
	}
	for id, participant := range s.Participants {
		if participant.MutedUntil != nil {
			until := *participant.MutedUntil
			participant.MutedUntil = &until
		}
		if participant.LastMessageAt != nil {
			at := *participant.LastMessageAt
			participant.LastMessageAt = &at
		}
		clone.Participants[id] = participant
	}
	return clone
}

// Apply merges one server patch. A put for an existing id replaces the row, so a confirmed
// optimistic insert is reconciled in place rather than duplicated.
func (s *Store) Apply(patch syncproto.Patch) error {
	switch patch.Entity {
	case syncproto.EntityEvent:
		return applyRow(s.Events, patch)
	case syncproto.EntityMessage:
		return applyRow(s.Messages, patch)
	case syncproto.EntityParticipant:
		return applyRow(s.Participants, patch)
	default:
		return nil
	}
}

func applyRow[T any](rows map[string]T, patch syncproto.Patch) error {
	if patch.Op == syncproto.PatchDel {
		delete(rows, patch.ID)
		return nil
	}

	var value T
	if err := json.Unmarshal(patch.Value, &value); err != nil {
		return fmt.Errorf("decode %s %s: %w", patch.Entity, patch.ID, err)
	}
	rows[patch.ID] = value
	return nil
}

// ActiveEvent returns the active event, if any.
func (s *Store) ActiveEvent() (syncproto.EventValue, bool) {
	for _, event := range s.Events {
		if event.Active {
			return event, true
		}
	}
	return syncproto.EventValue{}, false
}

// MessagesFor returns the messages of an event ordered by creation time.
func (s *Store) MessagesFor(eventID string) []syncproto.MessageValue {
	messages := make([]syncproto.MessageValue, 0)
	for _, message := range s.Messages {
		if message.EventID == eventID {
			messages = append(messages, message)
		}
	}
	sort.Slice(messages, func(i, j int) bool {
		if messages[i].CreatedAt.Equal(messages[j].CreatedAt) {
			return messages[i].ID < messages[j].ID
		}
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
	return messages
}

// Participant returns the moderation state of a user in an event.
func (s *Store) Participant(eventID, userID string) (syncproto.ParticipantValue, bool) {
	participant, ok := s.Participants[syncproto.ParticipantKey(eventID, userID)]
	return participant, ok
}
