package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	// RoomTTL is how long a waiting room stays eligible before the sweep
	// treats it as abandoned.
	RoomTTL = 10 * time.Minute

	// pairingCandidates caps how many of the oldest waiting rooms one
	// pairing attempt examines.
	pairingCandidates = 25

	// pairingAttempts bounds transaction retries before the caller is told
	// to try again from scratch.
	pairingAttempts = 3
)

// ErrMatchmakingFailed is surfaced once the pairing retry budget is exhausted.
var ErrMatchmakingFailed = errors.New("matchmaking failed, try again")

// Join outcome statuses
const (
	JoinStatusMatched = "matched" // player already owns an active match
	JoinStatusWaiting = "waiting" // player already owns a waiting room
	JoinStatusJoined  = "joined"  // paired into another player's room
	JoinStatusCreated = "created" // new waiting room created
)

// JoinResult is the outcome of one JoinQueue call.
type JoinResult struct {
	Status  string `json:"status"`
	MatchID string `json:"matchId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

// QueueService owns waiting rooms and the atomic pairing step.
type QueueService struct {
	Dynamo   Dynamo
	Problems *ProblemService
}

// JoinQueue finds-or-creates a matchmaking room for playerID. Safe to call
// repeatedly: a player with an active match gets its id back, a player
// already waiting gets their existing room back.
func (qs *QueueService) JoinQueue(ctx context.Context, playerID string) (*JoinResult, error) {
	matchID, err := qs.findActiveMatch(ctx, playerID)
	if err != nil {
		return nil, err
	}
	if matchID != "" {
		log.Printf("🔁 Player %s re-joined with active match %s", playerID, matchID)
		return &JoinResult{Status: JoinStatusMatched, MatchID: matchID}, nil
	}

	for attempt := 1; attempt <= pairingAttempts; attempt++ {
		result, err := qs.tryPair(ctx, playerID)
		if err == nil {
			return result, nil
		}
		if !IsTransactionCanceled(err) && !IsConditionalCheckFailed(err) {
			return nil, err
		}
		// Another join raced us into the same room; re-read and retry.
		log.Printf("⚠️ Pairing conflict for player %s (attempt %d/%d)", playerID, attempt, pairingAttempts)
	}
	return nil, ErrMatchmakingFailed
}

// tryPair runs one pairing attempt: scan the waiting rooms oldest-first and
// either join the first foreign single-occupant room atomically, or create a
// fresh waiting room.
func (qs *QueueService) tryPair(ctx context.Context, playerID string) (*JoinResult, error) {
	rooms, err := qs.waitingRooms(ctx, pairingCandidates)
	if err != nil {
		return nil, err
	}

	now := time.Now().UnixMilli()
	cutoff := now - RoomTTL.Milliseconds()

	var candidate *models.Room
	for i := range rooms {
		room := &rooms[i]
		if room.CreatedAt < cutoff {
			qs.evictStaleRoom(ctx, room.RoomID, cutoff)
			continue
		}
		if len(room.Players) != 1 {
			continue
		}
		if room.Players[0] == playerID {
			return &JoinResult{Status: JoinStatusWaiting, RoomID: room.RoomID}, nil
		}
		if candidate == nil {
			candidate = room
		}
	}

	if candidate != nil {
		return qs.pairInto(ctx, candidate, playerID, now)
	}

	room := models.Room{
		RoomID:    uuid.NewString(),
		Players:   []string{playerID},
		Status:    models.RoomStatusWaiting,
		CreatedAt: now,
	}
	if err := qs.Dynamo.PutItemWithCondition(ctx, models.RoomsTable, room, "attribute_not_exists(roomId)"); err != nil {
		return nil, fmt.Errorf("failed to create waiting room: %w", err)
	}
	log.Printf("🆕 Player %s is waiting in room %s", playerID, room.RoomID)
	return &JoinResult{Status: JoinStatusCreated, RoomID: room.RoomID}, nil
}

// pairInto atomically flips room to matched and creates the match document.
// The transaction re-validates that the room is still waiting with its
// original sole occupant, so two concurrent joins can never both claim it.
func (qs *QueueService) pairInto(ctx context.Context, room *models.Room, playerID string, now int64) (*JoinResult, error) {
	owner := room.Players[0]
	match := models.Match{
		MatchID:       uuid.NewString(),
		Player1:       owner,
		Player2:       playerID,
		ProblemID:     qs.Problems.RandomProblemID(ctx),
		StartTime:     now,
		Status:        models.MatchStatusMatched,
		Submissions:   map[string]models.Submission{},
		PointsAwarded: false,
	}

	matchItem, err := attributevalue.MarshalMap(match)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal match: %w", err)
	}

	items := []types.TransactWriteItem{
		{
			Update: &types.Update{
				TableName:           aws.String(models.RoomsTable),
				Key:                 map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: room.RoomID}},
				UpdateExpression:    aws.String("SET #st = :matched, players = :players, matchId = :matchId, problemId = :problemId"),
				ConditionExpression: aws.String("#st = :waiting AND size(players) = :one AND players[0] = :owner"),
				ExpressionAttributeNames: map[string]string{
					"#st": "status",
				},
				ExpressionAttributeValues: map[string]types.AttributeValue{
					":matched": &types.AttributeValueMemberS{Value: models.RoomStatusMatched},
					":waiting": &types.AttributeValueMemberS{Value: models.RoomStatusWaiting},
					":players": &types.AttributeValueMemberL{Value: []types.AttributeValue{
						&types.AttributeValueMemberS{Value: owner},
						&types.AttributeValueMemberS{Value: playerID},
					}},
					":matchId":   &types.AttributeValueMemberS{Value: match.MatchID},
					":problemId": &types.AttributeValueMemberS{Value: match.ProblemID},
					":one":       &types.AttributeValueMemberN{Value: "1"},
					":owner":     &types.AttributeValueMemberS{Value: owner},
				},
			},
		},
		{
			Put: &types.Put{
				TableName:           aws.String(models.MatchesTable),
				Item:                matchItem,
				ConditionExpression: aws.String("attribute_not_exists(matchId)"),
			},
		},
	}

	if err := qs.Dynamo.TransactWriteItems(ctx, items); err != nil {
		return nil, err
	}

	log.Printf("🤝 Player %s joined room %s, match %s created (%s vs %s)", playerID, room.RoomID, match.MatchID, owner, playerID)
	return &JoinResult{Status: JoinStatusJoined, MatchID: match.MatchID, RoomID: room.RoomID}, nil
}

// CancelQueue removes playerID from matchmaking. Best effort: when a pairing
// transaction has already committed a match, the player is only removed from
// the room's list and the match stays binding for both sides.
func (qs *QueueService) CancelQueue(ctx context.Context, playerID string) error {
	rooms, err := qs.waitingRooms(ctx, pairingCandidates)
	if err != nil {
		return err
	}

	var roomID string
	for _, room := range rooms {
		if len(room.Players) == 1 && room.Players[0] == playerID {
			roomID = room.RoomID
			break
		}
	}
	if roomID == "" {
		return nil
	}

	key := map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: roomID}}
	err = qs.Dynamo.DeleteItemWithCondition(ctx, models.RoomsTable,
		"#st = :waiting AND size(players) = :one",
		key,
		map[string]types.AttributeValue{
			":waiting": &types.AttributeValueMemberS{Value: models.RoomStatusWaiting},
			":one":     &types.AttributeValueMemberN{Value: "1"},
		},
		map[string]string{"#st": "status"},
	)
	if err == nil {
		log.Printf("🚪 Player %s left the queue, room %s deleted", playerID, roomID)
		return nil
	}
	if !IsConditionalCheckFailed(err) {
		return err
	}

	// The room was paired while the cancel was in flight; the match wins.
	// Drop the player from the list so the other player's flow is intact.
	return qs.removePlayerFromRoom(ctx, roomID, playerID)
}

func (qs *QueueService) removePlayerFromRoom(ctx context.Context, roomID, playerID string) error {
	key := map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: roomID}}
	item, err := qs.Dynamo.GetItem(ctx, models.RoomsTable, key)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil
		}
		return err
	}

	var room models.Room
	if err := attributevalue.UnmarshalMap(item, &room); err != nil {
		return fmt.Errorf("failed to unmarshal room: %w", err)
	}

	remaining := []types.AttributeValue{}
	for _, p := range room.Players {
		if p != playerID {
			remaining = append(remaining, &types.AttributeValueMemberS{Value: p})
		}
	}
	if len(remaining) == len(room.Players) {
		return nil
	}

	_, err = qs.Dynamo.UpdateItem(ctx, models.RoomsTable,
		"SET players = :remaining",
		key,
		map[string]types.AttributeValue{":remaining": &types.AttributeValueMemberL{Value: remaining}},
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to remove player from room: %w", err)
	}
	log.Printf("🚪 Player %s removed from paired room %s", playerID, roomID)
	return nil
}

// findActiveMatch returns the id of a matched/in-progress match holding
// playerID in either slot, or "".
func (qs *QueueService) findActiveMatch(ctx context.Context, playerID string) (string, error) {
	for _, index := range []struct {
		name    string
		keyAttr string
	}{
		{models.MatchPlayer1Index, "player1"},
		{models.MatchPlayer2Index, "player2"},
	} {
		items, err := qs.Dynamo.QueryItemsWithIndex(ctx, models.MatchesTable, index.name,
			fmt.Sprintf("%s = :pid", index.keyAttr),
			map[string]types.AttributeValue{":pid": &types.AttributeValueMemberS{Value: playerID}},
			nil, 5, true,
		)
		if err != nil {
			return "", fmt.Errorf("failed to query matches for %s: %w", playerID, err)
		}

		var matches []models.Match
		if err := attributevalue.UnmarshalListOfMaps(items, &matches); err != nil {
			return "", fmt.Errorf("failed to unmarshal matches: %w", err)
		}
		for _, m := range matches {
			if m.Status != models.MatchStatusCompleted {
				return m.MatchID, nil
			}
		}
	}
	return "", nil
}

// waitingRooms returns up to limit waiting rooms, oldest first.
func (qs *QueueService) waitingRooms(ctx context.Context, limit int32) ([]models.Room, error) {
	items, err := qs.Dynamo.QueryItemsWithIndex(ctx, models.RoomsTable, models.RoomStatusIndex,
		"#st = :waiting",
		map[string]types.AttributeValue{":waiting": &types.AttributeValueMemberS{Value: models.RoomStatusWaiting}},
		map[string]string{"#st": "status"},
		limit, false,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query waiting rooms: %w", err)
	}

	var rooms []models.Room
	if err := attributevalue.UnmarshalListOfMaps(items, &rooms); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rooms: %w", err)
	}
	return rooms, nil
}

// evictStaleRoom deletes a waiting room left over from a broken session.
// Conditional so a room that was paired in the meantime survives.
func (qs *QueueService) evictStaleRoom(ctx context.Context, roomID string, cutoff int64) {
	key := map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: roomID}}
	err := qs.Dynamo.DeleteItemWithCondition(ctx, models.RoomsTable,
		"#st = :waiting AND createdAt < :cutoff",
		key,
		map[string]types.AttributeValue{
			":waiting": &types.AttributeValueMemberS{Value: models.RoomStatusWaiting},
			":cutoff":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cutoff)},
		},
		map[string]string{"#st": "status"},
	)
	if err != nil && !IsConditionalCheckFailed(err) {
		log.Printf("⚠️ Failed to evict stale room %s: %v", roomID, err)
		return
	}
	if err == nil {
		log.Printf("🧹 Evicted stale waiting room %s", roomID)
	}
}
