package routes

import (
	"arena_server/controllers"
	"arena_server/services"

	"github.com/gorilla/mux"
)

func RegisterProfileRoutes(r *mux.Router, profileService *services.ProfileService) {
	controller := controllers.NewProfileController(profileService)

	profileRouter := r.PathPrefix("/api/profile").Subrouter()
	profileRouter.HandleFunc("/{playerId}", controller.HandleGetProfile).Methods("GET")
	profileRouter.HandleFunc("", controller.HandleUpdateDisplayName).Methods("POST")
}
