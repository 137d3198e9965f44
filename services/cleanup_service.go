package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"arena_server/models"
	"arena_server/utils"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// CleanupService periodically removes rooms and matches left behind by
// broken sessions: waiting rooms past their TTL, rooms whose match already
// started, matches past their deadline, and completed matches whose
// settlement was never triggered by either client.
type CleanupService struct {
	Dynamo   Dynamo
	Matches  *MatchService
	Stats    *StatsService
	Interval time.Duration
}

// Run sweeps on a ticker until ctx is canceled.
func (cs *CleanupService) Run(ctx context.Context) {
	interval := cs.Interval
	if interval == 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("🧹 Cleanup sweeper running every %s", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cs.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass over rooms and matches.
func (cs *CleanupService) SweepOnce(ctx context.Context) {
	cs.sweepRooms(ctx)
	cs.sweepMatches(ctx)
}

func (cs *CleanupService) sweepRooms(ctx context.Context) {
	cutoff := time.Now().Add(-RoomTTL).UnixMilli()

	var rooms []models.Room
	err := cs.Dynamo.ScanWithFilter(ctx, models.RoomsTable, func(item map[string]types.AttributeValue) bool {
		// Fresh waiting rooms are the queue's concern, not the sweeper's.
		if utils.ExtractString(item, "status") == models.RoomStatusWaiting {
			return utils.ExtractNumber(item, "createdAt") < cutoff
		}
		return utils.ExtractString(item, "status") != models.RoomStatusExpired
	}, nil, &rooms)
	if err != nil {
		log.Printf("❌ Room sweep scan failed: %v", err)
		return
	}

	for _, room := range rooms {
		switch room.Status {
		case models.RoomStatusWaiting:
			if room.CreatedAt < cutoff {
				cs.deleteStaleWaitingRoom(ctx, room.RoomID, cutoff)
			}
		case models.RoomStatusMatched:
			cs.cleanupMatchedRoom(ctx, &room)
		}
	}
}

// cleanupMatchedRoom discards a room once its match is underway; the room is
// only a matchmaking ticket and has no further role after pairing.
func (cs *CleanupService) cleanupMatchedRoom(ctx context.Context, room *models.Room) {
	if room.MatchID == "" {
		return
	}
	match, err := cs.Matches.GetMatch(ctx, room.MatchID)
	if err != nil {
		if !errors.Is(err, ErrMatchNotFound) {
			log.Printf("❌ Failed to read match %s for room %s: %v", room.MatchID, room.RoomID, err)
			return
		}
		// Match document gone; the room is pure debris.
	} else if match.Status == models.MatchStatusMatched {
		// Not started yet; both clients may still need the room to discover
		// the match id.
		return
	}

	key := map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: room.RoomID}}
	if err := cs.Dynamo.DeleteItem(ctx, models.RoomsTable, key); err != nil {
		log.Printf("❌ Failed to delete room %s: %v", room.RoomID, err)
		return
	}
	log.Printf("🧹 Deleted room %s (match %s underway)", room.RoomID, room.MatchID)
}

func (cs *CleanupService) deleteStaleWaitingRoom(ctx context.Context, roomID string, cutoff int64) {
	key := map[string]types.AttributeValue{"roomId": &types.AttributeValueMemberS{Value: roomID}}
	err := cs.Dynamo.DeleteItemWithCondition(ctx, models.RoomsTable,
		"#st = :waiting AND createdAt < :cutoff",
		key,
		map[string]types.AttributeValue{
			":waiting": &types.AttributeValueMemberS{Value: models.RoomStatusWaiting},
			":cutoff":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", cutoff)},
		},
		map[string]string{"#st": "status"},
	)
	if err != nil {
		if !IsConditionalCheckFailed(err) {
			log.Printf("❌ Failed to delete stale room %s: %v", roomID, err)
		}
		return
	}
	log.Printf("🧹 Deleted stale waiting room %s", roomID)
}

func (cs *CleanupService) sweepMatches(ctx context.Context) {
	var matches []models.Match
	err := cs.Dynamo.ScanWithFilter(ctx, models.MatchesTable, func(item map[string]types.AttributeValue) bool {
		// Completed and settled matches need nothing further.
		if utils.ExtractString(item, "status") != models.MatchStatusCompleted {
			return true
		}
		return !utils.ExtractBool(item, "pointsAwarded")
	}, nil, &matches)
	if err != nil {
		log.Printf("❌ Match sweep scan failed: %v", err)
		return
	}

	for i := range matches {
		match := &matches[i]

		if match.Status != models.MatchStatusCompleted {
			resolved, err := cs.Matches.ResolveExpired(ctx, match)
			if err != nil {
				log.Printf("❌ Failed to resolve expired match %s: %v", match.MatchID, err)
				continue
			}
			match = resolved
		}

		// Settlement backstop for matches both clients abandoned after
		// completion.
		if match.Status == models.MatchStatusCompleted && !match.PointsAwarded && match.Winner != "" {
			loser := match.Opponent(match.Winner)
			if _, err := cs.Stats.SettleMatch(ctx, match.MatchID, match.Winner, loser); err != nil {
				log.Printf("❌ Sweeper settlement failed for match %s: %v", match.MatchID, err)
			}
		}
	}
}
