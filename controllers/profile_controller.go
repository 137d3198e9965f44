package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"arena_server/models"
	"arena_server/services"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

// ProfileController handles HTTP requests for player profiles
type ProfileController struct {
	ProfileService *services.ProfileService
	validate       *validator.Validate
}

// NewProfileController creates a new ProfileController instance
func NewProfileController(profileService *services.ProfileService) *ProfileController {
	return &ProfileController{ProfileService: profileService, validate: validator.New()}
}

// HandleGetProfile returns a player's ranked statistics. A player who has
// never finished a match gets an empty profile back rather than an error.
func (pc *ProfileController) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["playerId"]

	profile, err := pc.ProfileService.GetProfile(r.Context(), playerID)
	if err != nil {
		if errors.Is(err, services.ErrProfileNotFound) {
			profile = &models.PlayerProfile{PlayerID: playerID}
		} else {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profile)
}

// HandleUpdateDisplayName sets the player's display name
func (pc *ProfileController) HandleUpdateDisplayName(w http.ResponseWriter, r *http.Request) {
	var request struct {
		PlayerID    string `json:"playerId" validate:"required"`
		DisplayName string `json:"displayName" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := pc.validate.Struct(request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	profile, err := pc.ProfileService.UpdateDisplayName(r.Context(), request.PlayerID, request.DisplayName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(profile)
}
