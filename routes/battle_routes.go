package routes

import (
	"arena_server/controllers"
	"arena_server/services"

	"github.com/gorilla/mux"
)

func RegisterBattleRoutes(r *mux.Router, matchService *services.MatchService, statsService *services.StatsService, archive *services.ArchiveService) {
	controller := controllers.NewBattleController(matchService, statsService, archive)

	battleRouter := r.PathPrefix("/api/battle").Subrouter()
	battleRouter.HandleFunc("/submit", controller.HandleSubmit).Methods("POST")
	battleRouter.HandleFunc("/forfeit", controller.HandleForfeit).Methods("POST")
	battleRouter.HandleFunc("/recent", controller.HandleRecentMatches).Methods("GET")
	battleRouter.HandleFunc("/{matchId}/archive", controller.HandleArchiveURL).Methods("GET")
	battleRouter.HandleFunc("/{matchId}", controller.HandleGetMatch).Methods("GET")
}
