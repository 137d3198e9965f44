package models

// PlayerProfile holds a player's persisted ranked statistics
type PlayerProfile struct {
	PlayerID      string `dynamodbav:"playerId" json:"playerId"`
	DisplayName   string `dynamodbav:"displayName,omitempty" json:"displayName,omitempty"`
	RankPoints    int    `dynamodbav:"rankPoints" json:"rankPoints"`
	Wins          int    `dynamodbav:"wins" json:"wins"`
	MatchesPlayed int    `dynamodbav:"matchesPlayed" json:"matchesPlayed"`
}

// PlayerProfilesTable is the DynamoDB table name for player profiles
const PlayerProfilesTable = "PlayerProfiles"
