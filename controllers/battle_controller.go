package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"arena_server/models"
	"arena_server/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// BattleController handles HTTP requests for an ongoing match
type BattleController struct {
	MatchService *services.MatchService
	StatsService *services.StatsService
	Archive      *services.ArchiveService // optional
	validate     *validator.Validate
}

// NewBattleController creates a new BattleController instance
func NewBattleController(matchService *services.MatchService, statsService *services.StatsService, archive *services.ArchiveService) *BattleController {
	return &BattleController{
		MatchService: matchService,
		StatsService: statsService,
		Archive:      archive,
		validate:     validator.New(),
	}
}

// HandleSubmit records a player's judged submission
func (bc *BattleController) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID         string `json:"matchId" validate:"required"`
		PlayerID        string `json:"playerId" validate:"required"`
		Code            string `json:"code" validate:"required"`
		Language        string `json:"language" validate:"required"`
		TestCasesPassed int    `json:"testCasesPassed" validate:"gte=0"`
		TotalTestCases  int    `json:"totalTestCases" validate:"gte=1"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := bc.validate.Struct(request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sub := models.Submission{
		Code:            request.Code,
		Language:        request.Language,
		TestCasesPassed: request.TestCasesPassed,
		TotalTestCases:  request.TotalTestCases,
	}
	match, err := bc.MatchService.SubmitSolution(r.Context(), request.MatchID, request.PlayerID, sub)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	bc.settleIfCompleted(r.Context(), match)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(match)
}

// HandleForfeit concedes the match for a player
func (bc *BattleController) HandleForfeit(w http.ResponseWriter, r *http.Request) {
	var request struct {
		MatchID  string `json:"matchId" validate:"required"`
		PlayerID string `json:"playerId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := bc.validate.Struct(request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	match, err := bc.MatchService.Forfeit(r.Context(), request.MatchID, request.PlayerID)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	bc.settleIfCompleted(r.Context(), match)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(match)
}

// HandleGetMatch returns one match by id (point read, used on refresh)
func (bc *BattleController) HandleGetMatch(w http.ResponseWriter, r *http.Request) {
	matchID := mux.Vars(r)["matchId"]

	match, err := bc.MatchService.GetMatch(r.Context(), matchID)
	if err != nil {
		writeMatchError(w, err)
		return
	}

	// A refresh is as good an observer of completion as a live client.
	bc.settleIfCompleted(r.Context(), match)

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(match)
}

// HandleRecentMatches returns a player's latest matches
func (bc *BattleController) HandleRecentMatches(w http.ResponseWriter, r *http.Request) {
	playerID := r.URL.Query().Get("playerId")
	if playerID == "" {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}
	limit := int32(10)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 50 {
			limit = int32(parsed)
		}
	}

	matches, err := bc.MatchService.GetRecentMatches(r.Context(), playerID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"matches": matches,
	})
}

// HandleArchiveURL returns a presigned link to the archived match document
func (bc *BattleController) HandleArchiveURL(w http.ResponseWriter, r *http.Request) {
	if bc.Archive == nil {
		http.Error(w, "archive not configured", http.StatusNotFound)
		return
	}
	matchID := mux.Vars(r)["matchId"]

	url, err := bc.Archive.GenerateMatchReadURL(matchID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"url": url})
}

// settleIfCompleted triggers settlement whenever this request observed a
// completed match. The persisted flag makes racing observers harmless.
func (bc *BattleController) settleIfCompleted(ctx context.Context, match *models.Match) {
	if match.Status != models.MatchStatusCompleted || match.Winner == "" {
		return
	}
	settled, err := bc.StatsService.SettleMatch(ctx, match.MatchID, match.Winner, match.Opponent(match.Winner))
	if err != nil {
		// Settlement is internal; the match outcome is already known and a
		// later observer (or the sweeper) will retry.
		log.Printf("⚠️ Settlement deferred for match %s: %v", match.MatchID, err)
		return
	}
	if settled && bc.Archive != nil {
		if err := bc.Archive.ArchiveMatch(ctx, match); err != nil {
			log.Printf("⚠️ Failed to archive match %s: %v", match.MatchID, err)
		}
	}
}

func writeMatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrMatchNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, services.ErrNotInMatch), errors.Is(err, services.ErrMatchCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
