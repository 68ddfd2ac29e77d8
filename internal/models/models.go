package models

// All lists the models managed by the migration, parents first.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Event{},
		&Message{},
		&Participant{},
		&BlockedWord{},
		&ModerationLog{},
		&SyncState{},
		&ClientGroup{},
		&MutationRecord{},
		&Change{},
	}
}
