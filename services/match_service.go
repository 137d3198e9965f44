package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// MatchDuration is the fixed battle window measured from startTime. Any
// client, including a reconnecting one, can recompute the deadline from the
// stored startTime alone.
const MatchDuration = 10 * time.Minute

var (
	ErrMatchNotFound  = errors.New("match not found")
	ErrNotInMatch     = errors.New("player is not part of this match")
	ErrMatchCompleted = errors.New("match already completed")
)

// MatchService drives a match from matched through in_progress to completed.
type MatchService struct {
	Dynamo Dynamo
}

// GetMatch retrieves a match by id (point read, used on refresh/recovery)
func (ms *MatchService) GetMatch(ctx context.Context, matchID string) (*models.Match, error) {
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	item, err := ms.Dynamo.GetItem(ctx, models.MatchesTable, key)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, err
	}

	var match models.Match
	if err := attributevalue.UnmarshalMap(item, &match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	return &match, nil
}

// SubmitSolution records a player's judged submission. The write is a
// targeted update of that player's slot only, so two players submitting
// concurrently can never clobber each other. When both slots are populated
// afterwards the match is completed and a winner selected.
//
// A repeat submit by the same player overwrites their own slot and nothing
// else.
func (ms *MatchService) SubmitSolution(ctx context.Context, matchID, playerID string, sub models.Submission) (*models.Match, error) {
	match, err := ms.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasPlayer(playerID) {
		return nil, ErrNotInMatch
	}
	if match.Status == models.MatchStatusCompleted {
		return nil, ErrMatchCompleted
	}

	if sub.SubmissionTime == 0 {
		sub.SubmissionTime = time.Now().UnixMilli()
	}
	subAttr, err := attributevalue.Marshal(sub)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission: %w", err)
	}

	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	updated, err := ms.Dynamo.UpdateItemWithCondition(ctx, models.MatchesTable,
		"SET submissions.#pid = :sub, #st = :inProgress",
		"attribute_exists(matchId) AND #st <> :completed",
		key,
		map[string]types.AttributeValue{
			":sub":        subAttr,
			":inProgress": &types.AttributeValueMemberS{Value: models.MatchStatusInProgress},
			":completed":  &types.AttributeValueMemberS{Value: models.MatchStatusCompleted},
		},
		map[string]string{
			"#pid": playerID,
			"#st":  "status",
		},
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			// A forfeit or the opponent's submission completed the match
			// while this write was in flight.
			return nil, ErrMatchCompleted
		}
		return nil, err
	}

	if err := attributevalue.UnmarshalMap(updated, match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	log.Printf("📬 Player %s submitted for match %s (%d/%d passed)", playerID, matchID, sub.TestCasesPassed, sub.TotalTestCases)

	// The later of two racing submits sees both slots in the returned image
	// and performs the completion.
	if len(match.Submissions) >= 2 && match.Status != models.MatchStatusCompleted {
		return ms.completeMatch(ctx, match)
	}
	return match, nil
}

// Forfeit concedes the match for playerID, awarding the win to the opponent
// regardless of any submissions already recorded. Forfeiture is a trusted
// concession signal (tab close during a ranked match).
func (ms *MatchService) Forfeit(ctx context.Context, matchID, playerID string) (*models.Match, error) {
	match, err := ms.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !match.HasPlayer(playerID) {
		return nil, ErrNotInMatch
	}
	if match.Status == models.MatchStatusCompleted {
		return nil, ErrMatchCompleted
	}

	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: matchID},
	}
	updated, err := ms.Dynamo.UpdateItemWithCondition(ctx, models.MatchesTable,
		"SET #st = :completed, winner = :winner, forfeitedBy = :pid, endTime = :end",
		"#st <> :completed",
		key,
		map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: models.MatchStatusCompleted},
			":winner":    &types.AttributeValueMemberS{Value: match.Opponent(playerID)},
			":pid":       &types.AttributeValueMemberS{Value: playerID},
			":end":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().UnixMilli())},
		},
		map[string]string{"#st": "status"},
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			return nil, ErrMatchCompleted
		}
		return nil, err
	}

	if err := attributevalue.UnmarshalMap(updated, match); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	log.Printf("🏳️ Player %s forfeited match %s, winner %s", playerID, matchID, match.Winner)
	return match, nil
}

// completeMatch flips the match to completed with a winner, guarded so only
// one of any number of racing observers lands the terminal transition.
func (ms *MatchService) completeMatch(ctx context.Context, match *models.Match) (*models.Match, error) {
	winner := DetermineWinner(match)
	key := map[string]types.AttributeValue{
		"matchId": &types.AttributeValueMemberS{Value: match.MatchID},
	}
	updated, err := ms.Dynamo.UpdateItemWithCondition(ctx, models.MatchesTable,
		"SET #st = :completed, winner = :winner, endTime = :end",
		"#st <> :completed",
		key,
		map[string]types.AttributeValue{
			":completed": &types.AttributeValueMemberS{Value: models.MatchStatusCompleted},
			":winner":    &types.AttributeValueMemberS{Value: winner},
			":end":       &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", time.Now().UnixMilli())},
		},
		map[string]string{"#st": "status"},
	)
	if err != nil {
		if IsConditionalCheckFailed(err) {
			// Someone else (a forfeit, or the other client) completed it first.
			return ms.GetMatch(ctx, match.MatchID)
		}
		return nil, err
	}

	result := &models.Match{}
	if err := attributevalue.UnmarshalMap(updated, result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal match: %w", err)
	}
	log.Printf("🏁 Match %s completed, winner %s", result.MatchID, result.Winner)
	return result, nil
}

// ResolveExpired completes a match whose deadline has passed on the merits of
// whatever submissions are present; a missing slot counts as zero passed.
func (ms *MatchService) ResolveExpired(ctx context.Context, match *models.Match) (*models.Match, error) {
	if match.Status == models.MatchStatusCompleted || !ms.Expired(match) {
		return match, nil
	}
	return ms.completeMatch(ctx, match)
}

// Deadline is the absolute point at which the match ends no matter what
// either client does.
func (ms *MatchService) Deadline(match *models.Match) time.Time {
	return time.UnixMilli(match.StartTime).Add(MatchDuration)
}

func (ms *MatchService) Expired(match *models.Match) bool {
	return time.Now().After(ms.Deadline(match))
}

// GetRecentMatches returns up to limit matches involving playerID, newest
// first, merged from both player-slot indexes.
func (ms *MatchService) GetRecentMatches(ctx context.Context, playerID string, limit int32) ([]models.Match, error) {
	var matches []models.Match
	for _, index := range []struct {
		name    string
		keyAttr string
	}{
		{models.MatchPlayer1Index, "player1"},
		{models.MatchPlayer2Index, "player2"},
	} {
		items, err := ms.Dynamo.QueryItemsWithIndex(ctx, models.MatchesTable, index.name,
			fmt.Sprintf("%s = :pid", index.keyAttr),
			map[string]types.AttributeValue{":pid": &types.AttributeValueMemberS{Value: playerID}},
			nil, limit, true,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch matches: %w", err)
		}

		var slot []models.Match
		if err := attributevalue.UnmarshalListOfMaps(items, &slot); err != nil {
			return nil, fmt.Errorf("failed to unmarshal matches: %w", err)
		}
		matches = append(matches, slot...)
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].StartTime > matches[j].StartTime })
	if int32(len(matches)) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// DetermineWinner applies the winner rule as a total order over the two
// slots: a forfeit always awards the opponent; otherwise more test cases
// passed wins, ties resolve to the earlier submissionTime, and an
// exact-millisecond tie resolves to the player1 slot.
func DetermineWinner(m *models.Match) string {
	if m.ForfeitedBy != "" {
		return m.Opponent(m.ForfeitedBy)
	}

	s1, ok1 := m.Submissions[m.Player1]
	s2, ok2 := m.Submissions[m.Player2]
	switch {
	case ok1 && !ok2:
		return m.Player1
	case ok2 && !ok1:
		return m.Player2
	case !ok1 && !ok2:
		return m.Player1
	}

	if s1.TestCasesPassed != s2.TestCasesPassed {
		if s1.TestCasesPassed > s2.TestCasesPassed {
			return m.Player1
		}
		return m.Player2
	}
	if s1.SubmissionTime != s2.SubmissionTime {
		if s1.SubmissionTime < s2.SubmissionTime {
			return m.Player1
		}
		return m.Player2
	}
	return m.Player1
}
