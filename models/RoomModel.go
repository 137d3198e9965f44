package models

// Room is a matchmaking ticket holding 1-2 waiting players before a match exists.
type Room struct {
	RoomID    string   `dynamodbav:"roomId" json:"roomId"`         // Unique roomId
	Players   []string `dynamodbav:"players" json:"players"`       // 1 player while waiting, 2 once matched
	Status    string   `dynamodbav:"status" json:"status"`         // waiting, matched, expired
	CreatedAt int64    `dynamodbav:"createdAt" json:"createdAt"`   // Epoch millis
	ProblemID string   `dynamodbav:"problemId,omitempty" json:"problemId,omitempty"`
	MatchID   string   `dynamodbav:"matchId,omitempty" json:"matchId,omitempty"` // Set when the room is paired
}

// RoomsTable is the DynamoDB table name for matchmaking rooms
const RoomsTable = "BattleRooms"

// RoomStatusIndex is the GSI keyed on status with createdAt as range key (FIFO order)
const RoomStatusIndex = "status-createdAt-index"
