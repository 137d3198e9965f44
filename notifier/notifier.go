// Package notifier collapses the several redundant delivery paths a match
// can become visible through into exactly one "match found" callback, plus a
// deduplicated stream of "match updated" callbacks.
package notifier

import (
	"context"
	"log"
	"sync"
	"time"

	"arena_server/models"
	"arena_server/services"
)

// StaleMatchAge is how old a match's startTime may be on first observation
// before it is treated as belonging to a prior session and dropped.
const StaleMatchAge = 2 * time.Minute

// Streams is the change-notification source (services.StreamService).
type Streams interface {
	Subscribe(tableName string, handler func(services.StreamEvent)) func()
}

// MatchReader resolves a match id observed via the room path.
type MatchReader interface {
	GetMatch(ctx context.Context, matchID string) (*models.Match, error)
}

// Notifier aggregates per-player subscriptions over the Rooms and Matches
// change feeds.
type Notifier struct {
	Streams Streams
	Matches MatchReader
}

func New(streams Streams, matches MatchReader) *Notifier {
	return &Notifier{Streams: streams, Matches: matches}
}

type subscription struct {
	playerID string
	onFound  func(*models.Match)
	onUpdate func(*models.Match)

	mu         sync.Mutex
	delivered  map[string]bool   // match ids already announced
	suppressed map[string]bool   // match ids dropped as stale, updates included
	updates    map[string]string // match id → last status forwarded to onUpdate
}

// Subscribe watches for a match involving playerID. A match can surface via
// two independent paths — a new match document naming the player, or the
// player's room flipping to matched with a match id — and both race; the
// first arrival wins and every later event for the same match id is dropped.
// Status transitions of the player's match feed onUpdate. The returned
// function tears the subscription down.
func (n *Notifier) Subscribe(playerID string, onFound, onUpdate func(*models.Match)) func() {
	sub := &subscription{
		playerID:   playerID,
		onFound:    onFound,
		onUpdate:   onUpdate,
		delivered:  make(map[string]bool),
		suppressed: make(map[string]bool),
		updates:    make(map[string]string),
	}

	cancelMatches := n.Streams.Subscribe(models.MatchesTable, func(event services.StreamEvent) {
		n.handleMatchEvent(sub, event)
	})
	cancelRooms := n.Streams.Subscribe(models.RoomsTable, func(event services.StreamEvent) {
		n.handleRoomEvent(sub, event)
	})

	return func() {
		cancelMatches()
		cancelRooms()
	}
}

func (n *Notifier) handleMatchEvent(sub *subscription, event services.StreamEvent) {
	if event.NewImage == nil {
		return
	}
	var match models.Match
	if err := services.UnmarshalStreamImage(event.NewImage, &match); err != nil {
		log.Printf("❌ Failed to decode match stream image: %v", err)
		return
	}
	if !match.HasPlayer(sub.playerID) {
		return
	}

	switch event.Type {
	case services.StreamEventAdd:
		n.deliverFound(sub, &match)
	case services.StreamEventModify:
		if match.Status == models.MatchStatusInProgress || match.Status == models.MatchStatusCompleted {
			n.deliverUpdate(sub, &match)
		}
	}
}

func (n *Notifier) handleRoomEvent(sub *subscription, event services.StreamEvent) {
	if event.Type != services.StreamEventModify || event.NewImage == nil {
		return
	}
	var room models.Room
	if err := services.UnmarshalStreamImage(event.NewImage, &room); err != nil {
		log.Printf("❌ Failed to decode room stream image: %v", err)
		return
	}
	if room.Status != models.RoomStatusMatched || room.MatchID == "" {
		return
	}
	mine := false
	for _, p := range room.Players {
		if p == sub.playerID {
			mine = true
			break
		}
	}
	if !mine {
		return
	}

	match, err := n.Matches.GetMatch(context.Background(), room.MatchID)
	if err != nil {
		log.Printf("❌ Failed to resolve match %s from room %s: %v", room.MatchID, room.RoomID, err)
		return
	}
	n.deliverFound(sub, match)
}

func (n *Notifier) deliverFound(sub *subscription, match *models.Match) {
	sub.mu.Lock()
	if sub.delivered[match.MatchID] || sub.suppressed[match.MatchID] {
		sub.mu.Unlock()
		return
	}
	if n.isStale(match) {
		sub.suppressed[match.MatchID] = true
		sub.mu.Unlock()
		log.Printf("🕰️ Dropping stale match %s for player %s", match.MatchID, sub.playerID)
		return
	}
	sub.delivered[match.MatchID] = true
	sub.mu.Unlock()

	sub.onFound(match)
}

func (n *Notifier) deliverUpdate(sub *subscription, match *models.Match) {
	sub.mu.Lock()
	if sub.suppressed[match.MatchID] {
		sub.mu.Unlock()
		return
	}
	if !sub.delivered[match.MatchID] && n.isStale(match) {
		// First observation of a prior session's match: suppress it and
		// everything after it.
		sub.suppressed[match.MatchID] = true
		sub.mu.Unlock()
		return
	}
	if sub.updates[match.MatchID] == match.Status {
		sub.mu.Unlock()
		return
	}
	sub.updates[match.MatchID] = match.Status
	sub.mu.Unlock()

	sub.onUpdate(match)
}

func (n *Notifier) isStale(match *models.Match) bool {
	return time.Since(time.UnixMilli(match.StartTime)) > StaleMatchAge
}
