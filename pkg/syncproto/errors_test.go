package syncproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorKindFinal(t *testing.T) {
	require.False(t, ErrInternal.Final())
	require.False(t, ErrAuthenticationRequired.Final())
	require.True(t, ErrRateLimited.Final())
	require.True(t, ErrModeratedBanned.Final())
	require.True(t, ErrConflict.Final())
}

func TestErrorKindModerated(t *testing.T) {
	require.True(t, ErrModeratedMuted.Moderated())
	require.True(t, ErrModeratedSlowMode.Moderated())
	require.False(t, ErrRateLimited.Moderated())
}

func TestParticipantKey(t *testing.T) {
	require.Equal(t, "evt-1/user-9", ParticipantKey("evt-1", "user-9"))
}
