package services

import (
	"context"
	"fmt"
	"log"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RankPointsPerWin is the rank-point award for one ranked win.
const RankPointsPerWin = 25

// StatsService performs the deferred, idempotent post-match settlement.
type StatsService struct {
	Dynamo Dynamo
}

// SettleMatch awards rank points for a completed match exactly once, no
// matter how many observers call it. The persisted pointsAwarded flag is
// flipped with a compare-and-swap before any profile document is touched:
// whichever caller lands that write first claims settlement, every other
// caller sees the flag already set and retreats.
//
// Returns true when this call performed the profile updates.
func (ss *StatsService) SettleMatch(ctx context.Context, matchID, winnerID, loserID string) (bool, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}

	_, err := ss.Dynamo.UpdateItemWithCondition(ctx, models.MatchesTable,
		"SET pointsAwarded = :claimed",
		"attribute_exists(matchId) AND pointsAwarded = :unclaimed",
		key,
		map[string]types.AttributeValue{
			":claimed":   &types.AttributeValueMemberBOOL{Value: true},
			":unclaimed": &types.AttributeValueMemberBOOL{Value: false},
		},
		nil,
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			// Already settled by the other observer.
			return false, nil
		}
		return false, err
	}

	if err := ss.awardPoints(ctx, winnerID, loserID); err != nil {
		// Release the claim so a later retry can still settle.
		ss.rollbackClaim(ctx, matchID)
		return false, fmt.Errorf("failed to award points for match %s: %w", matchID, err)
	}

	log.Printf("🏆 Match %s settled: +%d rank points for %s", matchID, RankPointsPerWin, winnerID)
	return true, nil
}

// awardPoints updates both profiles in one transaction so a partial award
// can never be left behind.
func (ss *StatsService) awardPoints(ctx context.Context, winnerID, loserID string) error {
	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:        aws.String(models.PlayerProfilesTable),
				Key:              map[string]types.AttributeValue{"playerId": &types.AttributeValueMemberS{Value: winnerID}},
				UpdateExpression: aws.String("ADD rankPoints :points, wins :one, matchesPlayed :one"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":points": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", RankPointsPerWin)},
					":one":    &types.AttributeValueMemberN{Value: "1"},
				},
			},
		},
		{
			Update: &types.Update{
				TableName:        aws.String(models.PlayerProfilesTable),
				Key:              map[string]types.AttributeValue{"playerId": &types.AttributeValueMemberS{Value: loserID}},
				UpdateExpression: aws.String("ADD matchesPlayed :one"),
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":one": &types.AttributeValueMemberN{Value: "1"},
				},
			},
		},
	}
	return ss.Dynamo.TransactWriteItems(ctx, items)
}

func (ss *StatsService) rollbackClaim(ctx context.Context, matchID string) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	_, err := ss.Dynamo.UpdateItem(ctx, models.MatchesTable,
		"SET pointsAwarded = :unclaimed",
		key,
		map[string]types.AttributeValue{":unclaimed": &types.AttributeValueMemberBOOL{Value: false}},
		nil,
	)
	if err != nil {
		log.Printf("❌ Failed to roll back settlement claim for match %s: %v", matchID, err)
	}
}
