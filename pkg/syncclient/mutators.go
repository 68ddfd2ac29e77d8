package syncclient

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

var (
	// ErrNoIdentity is returned when a mutation is attempted without a signed-in user.
	ErrNoIdentity = errors.New("syncclient: identity required")
	// ErrEmptyText is returned for messages without visible text.
	ErrEmptyText = errors.New("syncclient: message text is empty")
	// ErrUnknownMutation is returned for names without a local mutator.
	ErrUnknownMutation = errors.New("syncclient: unknown mutation")
	// errNoEvent means the local cache has no event to apply the mutation to.
	errNoEvent = errors.New("syncclient: no event")
)

// Identity is the signed-in user the client mutates as.
type Identity struct {
	UserID string
	Role   string
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return strings.EqualFold(i.Role, "admin")
}

type localMutation struct {
	identity Identity
	args     json.RawMessage
	now      time.Time
}

// localMutator applies a mutation optimistically to the view. It never performs I/O.
type localMutator func(s *Store, m localMutation) error

var localMutators = map[string]localMutator{
	syncproto.MutationAddMessage:      localAddMessage,
	syncproto.MutationDeleteMessage:   localDeleteMessage,
	syncproto.MutationMuteUser:        localMuteUser,
	syncproto.MutationUnmuteUser:      localUnmuteUser,
	syncproto.MutationBanUser:         localBanUser,
	syncproto.MutationUnbanUser:       localUnbanUser,
	syncproto.MutationSetUserCooldown: localSetUserCooldown,
	syncproto.MutationSetSlowMode:     localSetSlowMode,
	syncproto.MutationRotateEvent:     localRotateEvent,
}

// prepareArgs validates the argument bundle and fills the ids and timestamps the client owns,
// so the server stores the same ids the optimistic rows already use.
func prepareArgs(name string, args interface{}, now time.Time) (json.RawMessage, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}

	switch name {
	case syncproto.MutationAddMessage:
		var a syncproto.AddMessageArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if strings.TrimSpace(a.Text) == "" {
			return nil, ErrEmptyText
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		if a.CreatedAt == 0 {
			a.CreatedAt = now.UnixMilli()
		}
		return json.Marshal(a)
	case syncproto.MutationRotateEvent:
		var a syncproto.RotateEventArgs
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, err
		}
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		return json.Marshal(a)
	}
	return raw, nil
}

func resolveEventID(s *Store, eventID string) (string, error) {
	if eventID != "" {
		return eventID, nil
	}
	if event, ok := s.ActiveEvent(); ok {
		return event.ID, nil
	}
	return "", errNoEvent
}

func localAddMessage(s *Store, m localMutation) error {
	var args syncproto.AddMessageArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	eventID, err := resolveEventID(s, args.EventID)
	if err != nil {
		return err
	}

	s.Messages[args.ID] = syncproto.MessageValue{
		ID:        args.ID,
		EventID:   eventID,
		UserID:    m.identity.UserID,
		Text:      strings.TrimSpace(args.Text),
		ReplyToID: args.ReplyToID,
		CreatedAt: time.UnixMilli(args.CreatedAt).UTC(),
	}
	return nil
}

func localDeleteMessage(s *Store, m localMutation) error {
	var args syncproto.DeleteMessageArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	message, ok := s.Messages[args.ID]
	if !ok {
		return nil
	}
	message.Deleted = true
	message.DeletedBy = m.identity.UserID
	message.Text = ""
	s.Messages[args.ID] = message
	return nil
}

// updateParticipant applies change to the cached participant, creating the default row.
func updateParticipant(s *Store, eventID, userID string, change func(p *syncproto.ParticipantValue)) error {
	eventID, err := resolveEventID(s, eventID)
	if err != nil {
		return err
	}
	key := syncproto.ParticipantKey(eventID, userID)
	participant, ok := s.Participants[key]
	if !ok {
		participant = syncproto.ParticipantValue{UserID: userID, EventID: eventID, CustomCooldown: -1}
	}
	change(&participant)
	s.Participants[key] = participant
	return nil
}

func localMuteUser(s *Store, m localMutation) error {
	var args syncproto.MuteUserArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	until := m.now.Add(time.Duration(args.DurationSeconds) * time.Second).UTC()
	return updateParticipant(s, args.EventID, args.UserID, func(p *syncproto.ParticipantValue) {
		p.MutedUntil = &until
	})
}

func localUnmuteUser(s *Store, m localMutation) error {
	var args syncproto.TargetUserArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	return updateParticipant(s, args.EventID, args.UserID, func(p *syncproto.ParticipantValue) {
		p.MutedUntil = nil
	})
}

func localBanUser(s *Store, m localMutation) error {
	var args syncproto.TargetUserArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	return updateParticipant(s, args.EventID, args.UserID, func(p *syncproto.ParticipantValue) {
		p.Banned = true
	})
}

func localUnbanUser(s *Store, m localMutation) error {
	var args syncproto.TargetUserArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	return updateParticipant(s, args.EventID, args.UserID, func(p *syncproto.ParticipantValue) {
		p.Banned = false
	})
}

func localSetUserCooldown(s *Store, m localMutation) error {
	var args syncproto.SetUserCooldownArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	return updateParticipant(s, args.EventID, args.UserID, func(p *syncproto.ParticipantValue) {
		p.CustomCooldown = args.Seconds
	})
}

func localSetSlowMode(s *Store, m localMutation) error {
	var args syncproto.SetSlowModeArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	eventID, err := resolveEventID(s, args.EventID)
	if err != nil {
		return err
	}
	event, ok := s.Events[eventID]
	if !ok {
		return errNoEvent
	}
	event.SlowModeSeconds = args.Seconds
	s.Events[eventID] = event
	return nil
}

func localRotateEvent(s *Store, m localMutation) error {
	var args syncproto.RotateEventArgs
	if err := json.Unmarshal(m.args, &args); err != nil {
		return err
	}
	for id, event := range s.Events {
		if event.Active {
			event.Active = false
			s.Events[id] = event
		}
	}
	s.Events[args.ID] = syncproto.EventValue{
		ID:        args.ID,
		Name:      strings.TrimSpace(args.Name),
		Active:    true,
		CreatedAt: m.now.UTC(),
	}
	return nil
}
