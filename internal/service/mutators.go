package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-livechat/internal/messaging"
	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

func (s *mutationService) decode(raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return reject(syncproto.ErrValidationFailed, "invalid mutation arguments")
	}
	if err := s.validator.Struct(dst); err != nil {
		return reject(syncproto.ErrValidationFailed, "%s", describeValidation(err))
	}
	return nil
}

func describeValidation(err error) string {
	var fieldErrors validator.ValidationErrors
	if errors.As(err, &fieldErrors) && len(fieldErrors) > 0 {
		field := fieldErrors[0]
		return fmt.Sprintf("invalid %s: failed %s", strings.ToLower(field.Field()), field.Tag())
	}
	return "invalid mutation arguments"
}

// resolveEvent loads the named event, or the active one when id is empty.
func (s *mutationService) resolveEvent(mc *mutationContext, id string) (models.Event, error) {
	if id != "" {
		event, err := mc.tx.Events().GetByID(mc.ctx, id)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Event{}, reject(syncproto.ErrNotFound, "event not found")
		}
		return event, err
	}

	event, err := mc.tx.Events().Active(mc.ctx)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Event{}, reject(syncproto.ErrNotFound, "no active event")
	}
	return event, err
}

func (s *mutationService) addMessage(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.AddMessageArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	event, err := s.resolveEvent(mc, args.EventID)
	if err != nil {
		return err
	}
	if !event.IsActive {
		return reject(syncproto.ErrValidationFailed, "event is not active")
	}

	text := strings.TrimSpace(args.Text)
	if text == "" {
		return reject(syncproto.ErrValidationFailed, "message text is required")
	}

	userID := mc.identity.UserID
	participant, err := mc.tx.Participants().GetOrInit(mc.ctx, event.ID, userID)
	if err != nil {
		return err
	}
	if rejection := CheckSend(participant, event, mc.now, mc.identity.IsAdmin()); rejection != nil {
		return rejection
	}

	if s.limiter != nil {
		wait, err := s.limiter.Allow(mc.ctx, event.ID+":"+userID)
		if err != nil {
			return err
		}
		if wait > 0 {
			return rejectWithWait(syncproto.ErrRateLimited, wait, "you are sending messages too fast")
		}
	}

	if !mc.identity.IsAdmin() && s.words != nil {
		word, err := s.words.Match(mc.ctx, mc.tx.BlockedWords(), text)
		if err != nil {
			return err
		}
		if word != "" {
			return reject(syncproto.ErrValidationFailed, "message contains a blocked word")
		}
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(text))
	if clean == "" {
		return reject(syncproto.ErrValidationFailed, "message text is required")
	}

	var (
		replyToID   *string
		replyAuthor string
	)
	if args.ReplyToID != "" {
		target, err := mc.tx.Messages().GetByID(mc.ctx, args.ReplyToID)
		if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && target.EventID != event.ID) {
			return reject(syncproto.ErrNotFound, "reply target not found")
		}
		if err != nil {
			return err
		}
		replyToID = &target.ID
		replyAuthor = target.UserID
	}

	if _, err := mc.tx.Messages().GetByID(mc.ctx, args.ID); err == nil {
		return reject(syncproto.ErrConflict, "message id already used")
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	message := models.Message{
		ID:        args.ID,
		EventID:   event.ID,
		UserID:    userID,
		Text:      clean,
		ReplyToID: replyToID,
		CreatedAt: mc.now,
	}
	if err := mc.tx.Messages().Create(mc.ctx, &message); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return reject(syncproto.ErrConflict, "message id already used")
		}
		return err
	}

	now := mc.now
	participant.LastMessageAt = &now
	participant.LastSeenAt = &now
	participant.Presence = models.PresenceOnline
	if err := mc.tx.Participants().Save(mc.ctx, &participant); err != nil {
		return err
	}

	if err := recordMessageChange(mc.ctx, mc.tx, message); err != nil {
		return err
	}
	if err := recordParticipantChange(mc.ctx, mc.tx, participant); err != nil {
		return err
	}

	if replyAuthor != "" && replyAuthor != userID {
		mc.publish(messaging.Envelope{
			Topic:        messaging.TopicMessageReplied,
			EventID:      event.ID,
			TargetUserID: replyAuthor,
			MessageID:    message.ID,
		})
	}
	return nil
}

func (s *mutationService) deleteMessage(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.DeleteMessageArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	message, err := mc.tx.Messages().GetByID(mc.ctx, args.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reject(syncproto.ErrNotFound, "message not found")
	}
	if err != nil {
		return err
	}
	if message.IsDeleted {
		return reject(syncproto.ErrConflict, "message already deleted")
	}

	deleted, err := mc.tx.Messages().SoftDelete(mc.ctx, message.ID, mc.identity.UserID, mc.now)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reject(syncproto.ErrConflict, "message already deleted")
	}
	if err != nil {
		return err
	}

	if err := recordMessageChange(mc.ctx, mc.tx, deleted); err != nil {
		return err
	}
	if err := mc.tx.ModerationLogs().Create(mc.ctx, &models.ModerationLog{
		ActorID:      mc.identity.UserID,
		Action:       "message.deleted",
		EventID:      deleted.EventID,
		TargetUserID: deleted.UserID,
		MessageID:    deleted.ID,
	}); err != nil {
		return err
	}

	mc.publish(messaging.Envelope{
		Topic:        messaging.TopicMessageDeleted,
		EventID:      deleted.EventID,
		TargetUserID: deleted.UserID,
		MessageID:    deleted.ID,
	})
	return nil
}

func (s *mutationService) muteUser(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.MuteUserArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	return s.moderate(mc, args.EventID, args.UserID, "user.muted", func(p *models.Participant) datatypes.JSONMap {
		until := mc.now.Add(time.Duration(args.DurationSeconds) * time.Second)
		actor := mc.identity.UserID
		p.MutedUntil = &until
		p.MutedBy = &actor
		return datatypes.JSONMap{"duration_seconds": args.DurationSeconds, "muted_until": until}
	})
}

func (s *mutationService) unmuteUser(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.TargetUserArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	return s.moderate(mc, args.EventID, args.UserID, "user.unmuted", func(p *models.Participant) datatypes.JSONMap {
		p.MutedUntil = nil
		p.MutedBy = nil
		return nil
	})
}

func (s *mutationService) banUser(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.TargetUserArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	return s.moderate(mc, args.EventID, args.UserID, "user.banned", func(p *models.Participant) datatypes.JSONMap {
		actor := mc.identity.UserID
		at := mc.now
		p.IsBanned = true
		p.BannedBy = &actor
		p.BannedAt = &at
		return nil
	})
}

// unbanUser clears the flag but keeps who banned and when for the audit trail.
func (s *mutationService) unbanUser(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.TargetUserArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	return s.moderate(mc, args.EventID, args.UserID, "user.unbanned", func(p *models.Participant) datatypes.JSONMap {
		p.IsBanned = false
		return nil
	})
}

func (s *mutationService) setUserCooldown(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.SetUserCooldownArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	return s.moderate(mc, args.EventID, args.UserID, "user.cooldown_set", func(p *models.Participant) datatypes.JSONMap {
		p.CustomCooldown = args.Seconds
		return datatypes.JSONMap{"seconds": args.Seconds}
	})
}

// moderate loads (or lazily creates) the target participant, applies change, and records the
// patch, the audit entry and the downstream notification.
func (s *mutationService) moderate(mc *mutationContext, eventID, userID, action string, change func(p *models.Participant) datatypes.JSONMap) error {
	event, err := s.resolveEvent(mc, eventID)
	if err != nil {
		return err
	}

	participant, err := mc.tx.Participants().GetOrInit(mc.ctx, event.ID, userID)
	if err != nil {
		return err
	}

	metadata := change(&participant)
	if err := mc.tx.Participants().Save(mc.ctx, &participant); err != nil {
		return err
	}
	if err := recordParticipantChange(mc.ctx, mc.tx, participant); err != nil {
		return err
	}
	if err := mc.tx.ModerationLogs().Create(mc.ctx, &models.ModerationLog{
		ActorID:      mc.identity.UserID,
		Action:       action,
		EventID:      event.ID,
		TargetUserID: userID,
		Metadata:     metadata,
	}); err != nil {
		return err
	}

	mc.publish(messaging.Envelope{
		Topic:        messaging.TopicUserModerated,
		EventID:      event.ID,
		TargetUserID: userID,
		Data:         map[string]interface{}{"action": action},
	})
	return nil
}

func (s *mutationService) setSlowMode(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.SetSlowModeArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	event, err := s.resolveEvent(mc, args.EventID)
	if err != nil {
		return err
	}

	updated, err := mc.tx.Events().UpdateSlowMode(mc.ctx, event.ID, args.Seconds)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return reject(syncproto.ErrNotFound, "event not found")
	}
	if err != nil {
		return err
	}

	if err := recordEventChange(mc.ctx, mc.tx, updated); err != nil {
		return err
	}
	return mc.tx.ModerationLogs().Create(mc.ctx, &models.ModerationLog{
		ActorID:  mc.identity.UserID,
		Action:   "event.slow_mode_set",
		EventID:  updated.ID,
		Metadata: datatypes.JSONMap{"seconds": args.Seconds},
	})
}

func (s *mutationService) rotateEvent(mc *mutationContext, raw json.RawMessage) error {
	var args syncproto.RotateEventArgs
	if err := s.decode(raw, &args); err != nil {
		return err
	}

	name := strings.TrimSpace(args.Name)
	if name == "" {
		return reject(syncproto.ErrValidationFailed, "event name is required")
	}

	if args.ID != "" {
		if _, err := mc.tx.Events().GetByID(mc.ctx, args.ID); err == nil {
			return reject(syncproto.ErrConflict, "event id already used")
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
	}

	event, err := activateEvent(mc.ctx, mc.tx, args.ID, name, 0, mc.now)
	if err != nil {
		return err
	}

	if err := mc.tx.ModerationLogs().Create(mc.ctx, &models.ModerationLog{
		ActorID:  mc.identity.UserID,
		Action:   "event.rotated",
		EventID:  event.ID,
		Metadata: datatypes.JSONMap{"name": event.Name},
	}); err != nil {
		return err
	}

	mc.publish(messaging.Envelope{
		Topic:   messaging.TopicEventRotated,
		EventID: event.ID,
		Data:    map[string]interface{}{"name": event.Name},
	})
	return nil
}
