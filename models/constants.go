package models

// ✅ Room statuses
const (
	RoomStatusWaiting = "waiting"
	RoomStatusMatched = "matched"
	RoomStatusExpired = "expired"
)

// ✅ Match statuses
const (
	MatchStatusMatched    = "matched"
	MatchStatusInProgress = "in_progress"
	MatchStatusCompleted  = "completed"
)
