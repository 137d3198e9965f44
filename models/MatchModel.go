package models

// Submission is one player's code and judged outcome for a match.
// Immutable once written; at most one per player per match.
type Submission struct {
	Code            string `dynamodbav:"code" json:"code"`
	Language        string `dynamodbav:"language" json:"language"`
	SubmissionTime  int64  `dynamodbav:"submissionTime" json:"submissionTime"` // Epoch millis
	TestCasesPassed int    `dynamodbav:"testCasesPassed" json:"testCasesPassed"`
	TotalTestCases  int    `dynamodbav:"totalTestCases" json:"totalTestCases"`
}

// Match is the authoritative record of one contest between exactly two players.
type Match struct {
	MatchID       string                `dynamodbav:"matchId" json:"matchId"` // Unique matchId
	Player1       string                `dynamodbav:"player1" json:"player1"`
	Player2       string                `dynamodbav:"player2" json:"player2"`
	ProblemID     string                `dynamodbav:"problemId" json:"problemId"`
	StartTime     int64                 `dynamodbav:"startTime" json:"startTime"` // Epoch millis, set at creation
	Status        string                `dynamodbav:"status" json:"status"`       // matched, in_progress, completed
	Submissions   map[string]Submission `dynamodbav:"submissions" json:"submissions"`
	Winner        string                `dynamodbav:"winner,omitempty" json:"winner,omitempty"`
	ForfeitedBy   string                `dynamodbav:"forfeitedBy,omitempty" json:"forfeitedBy,omitempty"`
	PointsAwarded bool                  `dynamodbav:"pointsAwarded" json:"pointsAwarded"`
	EndTime       int64                 `dynamodbav:"endTime,omitempty" json:"endTime,omitempty"` // Epoch millis, set when completed
}

// HasPlayer reports whether playerID occupies one of the match's two slots.
func (m *Match) HasPlayer(playerID string) bool {
	return m.Player1 == playerID || m.Player2 == playerID
}

// Opponent returns the other slot's player id, or "" if playerID is not in the match.
func (m *Match) Opponent(playerID string) string {
	switch playerID {
	case m.Player1:
		return m.Player2
	case m.Player2:
		return m.Player1
	}
	return ""
}

// MatchesTable is the DynamoDB table name for battle matches
const MatchesTable = "BattleMatches"

// GSIs keyed on each player slot with startTime as range key
const (
	MatchPlayer1Index = "player1-startTime-index"
	MatchPlayer2Index = "player2-startTime-index"
)
