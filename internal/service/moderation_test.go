package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-livechat/internal/models"
	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

func TestClassifyBanTakesPrecedence(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	expired := now.Add(-time.Second)

	participant := models.NewParticipant("alice", "ev1")
	require.Equal(t, StatusUnrestricted, Classify(participant, now))

	participant.MutedUntil = &until
	require.Equal(t, StatusMuted, Classify(participant, now))

	participant.IsBanned = true
	require.Equal(t, StatusBanned, Classify(participant, now))

	participant.IsBanned = false
	participant.MutedUntil = &expired
	require.Equal(t, StatusUnrestricted, Classify(participant, now))
}

func TestEffectiveCooldownPrefersCustomValue(t *testing.T) {
	event := models.Event{ID: "ev1", SlowModeSeconds: 10}
	participant := models.NewParticipant("alice", "ev1")
	require.Equal(t, 10*time.Second, EffectiveCooldown(participant, event))

	participant.CustomCooldown = 3
	require.Equal(t, 3*time.Second, EffectiveCooldown(participant, event))

	participant.CustomCooldown = 0
	require.Zero(t, EffectiveCooldown(participant, event), "zero custom cooldown disables slow mode for the user")
}

func TestCheckSendOrdersRestrictions(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	event := models.Event{ID: "ev1", IsActive: true, SlowModeSeconds: 30}
	last := now.Add(-10 * time.Second)
	until := now.Add(90*time.Second + 400*time.Millisecond)

	participant := models.NewParticipant("alice", "ev1")
	participant.LastMessageAt = &last
	participant.MutedUntil = &until
	participant.IsBanned = true

	rejection := CheckSend(participant, event, now, false)
	require.NotNil(t, rejection)
	require.Equal(t, syncproto.ErrModeratedBanned, rejection.Kind)
	require.Zero(t, rejection.RetryAfter)

	participant.IsBanned = false
	rejection = CheckSend(participant, event, now, false)
	require.NotNil(t, rejection)
	require.Equal(t, syncproto.ErrModeratedMuted, rejection.Kind)
	require.Equal(t, 90, rejection.RetryAfter)

	participant.MutedUntil = nil
	rejection = CheckSend(participant, event, now, false)
	require.NotNil(t, rejection)
	require.Equal(t, syncproto.ErrModeratedSlowMode, rejection.Kind)
	require.Equal(t, 20, rejection.RetryAfter)
	require.Contains(t, rejection.Message, "20s")

	require.Nil(t, CheckSend(participant, event, now, true), "admins skip the cooldown")
	require.Nil(t, CheckSend(participant, event, now.Add(20*time.Second), false))
}

func TestCheckSendMutesAdminsToo(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	participant := models.NewParticipant("root", "ev1")
	participant.MutedUntil = &until

	rejection := CheckSend(participant, models.Event{ID: "ev1"}, now, true)
	require.NotNil(t, rejection)
	require.Equal(t, syncproto.ErrModeratedMuted, rejection.Kind)
}

func TestWaitSecondsRounding(t *testing.T) {
	require.Equal(t, 0, waitSeconds(0))
	require.Equal(t, 0, waitSeconds(-time.Second))
	require.Equal(t, 1, waitSeconds(300*time.Millisecond))
	require.Equal(t, 2, waitSeconds(1500*time.Millisecond))
	require.Equal(t, 60, waitSeconds(time.Minute))
}

func TestAuthorizedIsClosedOverRoles(t *testing.T) {
	require.True(t, Authorized(models.RoleUser, syncproto.MutationAddMessage))
	require.True(t, Authorized(models.RoleAdmin, syncproto.MutationAddMessage))

	for _, name := range []string{
		syncproto.MutationDeleteMessage,
		syncproto.MutationMuteUser,
		syncproto.MutationUnmuteUser,
		syncproto.MutationBanUser,
		syncproto.MutationUnbanUser,
		syncproto.MutationSetUserCooldown,
		syncproto.MutationSetSlowMode,
		syncproto.MutationRotateEvent,
	} {
		require.False(t, Authorized(models.RoleUser, name), name)
		require.True(t, Authorized(models.RoleAdmin, name), name)
	}

	require.False(t, Authorized(models.RoleAdmin, "dropTables"))
}
