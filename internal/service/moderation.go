package service

import (
	"time"

	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

// ModerationStatus is the effective classification of a participant.
type ModerationStatus string

const (
	StatusUnrestricted ModerationStatus = "unrestricted"
	StatusMuted        ModerationStatus = "muted"
	StatusBanned       ModerationStatus = "banned"
)

// Classify resolves the stored flags into one status; a ban always wins over a mute.
func Classify(p models.Participant, now time.Time) ModerationStatus {
	switch {
	case p.IsBanned:
		return StatusBanned
	case p.IsMuted(now):
		return StatusMuted
	default:
		return StatusUnrestricted
	}
}

// EffectiveCooldown returns the minimum delay between two messages of the participant.
// A non-negative custom cooldown overrides the event slow mode.
func EffectiveCooldown(p models.Participant, event models.Event) time.Duration {
	seconds := event.SlowModeSeconds
	if p.CustomCooldown >= 0 {
		seconds = p.CustomCooldown
	}
	if seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// CheckSend enforces ban, then mute, then cooldown for a new message. Admins skip the cooldown.
func CheckSend(p models.Participant, event models.Event, now time.Time, isAdmin bool) *syncproto.MutationError {
	switch Classify(p, now) {
	case StatusBanned:
		return reject(syncproto.ErrModeratedBanned, "you are banned from this event")
	case StatusMuted:
		return rejectWithWait(syncproto.ErrModeratedMuted, p.MutedUntil.Sub(now), "you are muted")
	}

	if isAdmin || p.LastMessageAt == nil {
		return nil
	}

	cooldown := EffectiveCooldown(p, event)
	if cooldown == 0 {
		return nil
	}

	if wait := p.LastMessageAt.Add(cooldown).Sub(now); wait > 0 {
		return rejectWithWait(syncproto.ErrModeratedSlowMode, wait, "slow mode is on")
	}
	return nil
}
