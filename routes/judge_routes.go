package routes

import (
	"arena_server/controllers"
	"arena_server/services"

	"github.com/gorilla/mux"
)

func RegisterJudgeRoutes(r *mux.Router, judgeService *services.JudgeService, problemService *services.ProblemService) {
	controller := controllers.NewJudgeController(judgeService, problemService)

	judgeRouter := r.PathPrefix("/api/judge").Subrouter()
	judgeRouter.HandleFunc("/evaluate", controller.HandleEvaluate).Methods("POST")
}
