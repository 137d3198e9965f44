package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"arena_server/services"

	"github.com/go-playground/validator/v10"
)

// QueueController handles HTTP requests for matchmaking
type QueueController struct {
	QueueService *services.QueueService
	validate     *validator.Validate
}

// NewQueueController creates a new QueueController instance
func NewQueueController(queueService *services.QueueService) *QueueController {
	return &QueueController{QueueService: queueService, validate: validator.New()}
}

// HandleJoin puts a player into the matchmaking queue (or returns their
// existing room/match when called again after a refresh)
func (qc *QueueController) HandleJoin(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlayerID string `json:"playerId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := qc.validate.Struct(request); err != nil {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}

	result, err := qc.QueueService.JoinQueue(r.Context(), request.PlayerID)
	if err != nil {
		if errors.Is(err, services.ErrMatchmakingFailed) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(result)
}

// HandleCancel removes a waiting player from the queue
func (qc *QueueController) HandleCancel(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlayerID string `json:"playerId" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := qc.validate.Struct(request); err != nil {
		http.Error(w, "playerId is required", http.StatusBadRequest)
		return
	}

	if err := qc.QueueService.CancelQueue(r.Context(), request.PlayerID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"message": "Left the queue"})
}
