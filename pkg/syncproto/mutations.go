package syncproto

// Mutation names understood by the server.
const (
	MutationAddMessage      = "addMessage"
	MutationDeleteMessage   = "deleteMessage"
	MutationMuteUser        = "muteUser"
	MutationUnmuteUser      = "unmuteUser"
	MutationBanUser         = "banUser"
	MutationUnbanUser       = "unbanUser"
	MutationSetUserCooldown = "setUserCooldown"
	MutationSetSlowMode     = "setSlowMode"
	MutationRotateEvent     = "rotateEvent"
)

// AddMessageArgs posts a message. ID is generated by the client and becomes the durable id.
// An empty EventID targets the active event.
type AddMessageArgs struct {
	ID        string `json:"id" validate:"required,max=64"`
	EventID   string `json:"eventID,omitempty" validate:"omitempty,max=64"`
	Text      string `json:"text" validate:"max=2000"`
	ReplyToID string `json:"replyToID,omitempty" validate:"omitempty,max=64"`
	CreatedAt int64  `json:"createdAt,omitempty"`
}

// DeleteMessageArgs soft-deletes a message.
type DeleteMessageArgs struct {
	ID string `json:"id" validate:"required,max=64"`
}

// MuteUserArgs mutes a user in an event for a duration.
type MuteUserArgs struct {
	UserID          string `json:"userID" validate:"required,max=64"`
	EventID         string `json:"eventID,omitempty" validate:"omitempty,max=64"`
	DurationSeconds int    `json:"durationSeconds" validate:"required,gt=0,max=2592000"`
}

// TargetUserArgs addresses a user in an event; used by unmute, ban and unban.
type TargetUserArgs struct {
	UserID  string `json:"userID" validate:"required,max=64"`
	EventID string `json:"eventID,omitempty" validate:"omitempty,max=64"`
}

// SetUserCooldownArgs overrides the slow mode for one user. -1 defers to the event setting.
type SetUserCooldownArgs struct {
	UserID  string `json:"userID" validate:"required,max=64"`
	EventID string `json:"eventID,omitempty" validate:"omitempty,max=64"`
	Seconds int    `json:"seconds" validate:"gte=-1,max=86400"`
}

// SetSlowModeArgs changes the event-wide cooldown. 0 disables it.
type SetSlowModeArgs struct {
	EventID string `json:"eventID,omitempty" validate:"omitempty,max=64"`
	Seconds int    `json:"seconds" validate:"gte=0,max=86400"`
}

// RotateEventArgs replaces the active event with a new one.
type RotateEventArgs struct {
	ID   string `json:"id,omitempty" validate:"omitempty,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}
