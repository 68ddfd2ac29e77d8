package service

import (
	"context"
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/internal/repository"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

func eventValue(event models.Event) syncproto.EventValue {
	return syncproto.EventValue{
		ID:              event.ID,
		Name:            event.Name,
		Active:          event.IsActive,
		SlowModeSeconds: event.SlowModeSeconds,
		CreatedAt:       event.CreatedAt,
	}
}

func messageValue(message models.Message) syncproto.MessageValue {
	value := syncproto.MessageValue{
		ID:        message.ID,
		EventID:   message.EventID,
		UserID:    message.UserID,
		Text:      message.RenderedText(),
		Deleted:   message.IsDeleted,
		CreatedAt: message.CreatedAt,
	}
	if message.ReplyToID != nil {
		value.ReplyToID = *message.ReplyToID
	}
	if message.DeletedBy != nil {
		value.DeletedBy = *message.DeletedBy
	}
	return value
}

func participantValue(p models.Participant) syncproto.ParticipantValue {
	return syncproto.ParticipantValue{
		UserID:         p.UserID,
		EventID:        p.EventID,
		Banned:         p.IsBanned,
		MutedUntil:     p.MutedUntil,
		CustomCooldown: p.CustomCooldown,
		LastMessageAt:  p.LastMessageAt,
	}
}

// Events are visible to every viewer, so they carry no scope.
func recordEventChange(ctx context.Context, tx repository.Store, event models.Event) error {
	return recordChange(ctx, tx, models.EntityEvent, event.ID, "", "", eventValue(event))
}

func recordMessageChange(ctx context.Context, tx repository.Store, message models.Message) error {
	return recordChange(ctx, tx, models.EntityMessage, message.ID, message.EventID, "", messageValue(message))
}

// Participant rows are only delivered to their owner and to admins.
func recordParticipantChange(ctx context.Context, tx repository.Store, p models.Participant) error {
	key := syncproto.ParticipantKey(p.EventID, p.UserID)
	return recordChange(ctx, tx, models.EntityParticipant, key, p.EventID, p.UserID, participantValue(p))
}

func recordChange(ctx context.Context, tx repository.Store, entity, id, scope, owner string, value interface{}) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	return tx.Changes().Record(ctx, &models.Change{
		Entity:   entity,
		EntityID: id,
		Scope:    scope,
		OwnerID:  owner,
		Op:       models.ChangePut,
		Payload:  datatypes.JSON(payload),
	})
}
