package socket

import (
	"context"
	"log"
	"time"

	"arena_server/models"
	"arena_server/notifier"
	"arena_server/services"

	socketio "github.com/googollee/go-socket.io"
)

const (
	// Safety-net poll for a missed or delayed change notification after a
	// client submits.
	statusPollInterval = 3 * time.Second
	statusPollWindow   = 30 * time.Second
)

// NewSocketServer initializes and returns a new Socket.IO server bridging
// notifier events to connected clients
func NewSocketServer(n *notifier.Notifier, matches *services.MatchService, stats *services.StatsService) *socketio.Server {
	server := socketio.NewServer(nil)

	server.OnConnect("/", func(s socketio.Conn) error {
		log.Println("✅ Socket connected:", s.ID())
		return nil
	})

	// Client entering the queue: wire up matchFound/matchUpdated delivery.
	server.OnEvent("/", "subscribeQueue", func(s socketio.Conn, data map[string]string) {
		playerID := data["playerId"]
		if playerID == "" {
			log.Println("❌ Invalid playerId in subscribeQueue request")
			return
		}

		unsubscribe := n.Subscribe(playerID,
			func(m *models.Match) {
				s.Emit("matchFound", m)
			},
			func(m *models.Match) {
				s.Emit("matchUpdated", m)
				settleIfCompleted(stats, m)
			},
		)
		s.SetContext(unsubscribe)
		log.Printf("👥 Player %s subscribed for match notifications\n", playerID)
	})

	// Client just submitted: poll match status for a while in case the
	// stream delivery is missed or delayed.
	server.OnEvent("/", "watchMatch", func(s socketio.Conn, data map[string]string) {
		matchID := data["matchId"]
		if matchID == "" {
			log.Println("❌ Invalid matchId in watchMatch request")
			return
		}
		go pollMatchStatus(s, matches, stats, matchID)
	})

	// Unload-triggered concession from a closing tab.
	server.OnEvent("/", "forfeit", func(s socketio.Conn, data map[string]string) {
		matchID := data["matchId"]
		playerID := data["playerId"]
		if matchID == "" || playerID == "" {
			log.Println("❌ Invalid forfeit request")
			return
		}

		match, err := matches.Forfeit(context.Background(), matchID, playerID)
		if err != nil {
			log.Printf("⚠️ Forfeit for match %s failed: %v", matchID, err)
			return
		}
		s.Emit("matchUpdated", match)
		settleIfCompleted(stats, match)
	})

	server.OnDisconnect("/", func(s socketio.Conn, reason string) {
		if unsubscribe, ok := s.Context().(func()); ok && unsubscribe != nil {
			unsubscribe()
		}
		log.Println("❌ Socket disconnected:", s.ID(), reason)
	})

	return server
}

func pollMatchStatus(s socketio.Conn, matches *services.MatchService, stats *services.StatsService, matchID string) {
	deadline := time.Now().Add(statusPollWindow)
	lastStatus := ""
	for time.Now().Before(deadline) {
		time.Sleep(statusPollInterval)

		match, err := matches.GetMatch(context.Background(), matchID)
		if err != nil {
			log.Printf("⚠️ Status poll failed for match %s: %v", matchID, err)
			continue
		}
		if match.Status != lastStatus {
			lastStatus = match.Status
			s.Emit("matchUpdated", match)
		}
		if match.Status == models.MatchStatusCompleted {
			settleIfCompleted(stats, match)
			return
		}
	}
}

func settleIfCompleted(stats *services.StatsService, match *models.Match) {
	if match.Status != models.MatchStatusCompleted || match.Winner == "" {
		return
	}
	if _, err := stats.SettleMatch(context.Background(), match.MatchID, match.Winner, match.Opponent(match.Winner)); err != nil {
		log.Printf("⚠️ Settlement deferred for match %s: %v", match.MatchID, err)
	}
}
