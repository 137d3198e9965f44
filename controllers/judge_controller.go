package controllers

import (
	"encoding/json"
	"net/http"

	"arena_server/services"

	"github.com/go-playground/validator/v10"
)

// JudgeController runs submissions against the remote judge
type JudgeController struct {
	JudgeService   *services.JudgeService
	ProblemService *services.ProblemService
	validate       *validator.Validate
}

// NewJudgeController creates a new JudgeController instance
func NewJudgeController(judgeService *services.JudgeService, problemService *services.ProblemService) *JudgeController {
	return &JudgeController{
		JudgeService:   judgeService,
		ProblemService: problemService,
		validate:       validator.New(),
	}
}

// HandleEvaluate runs code against every test case of a problem and returns
// the per-case results plus the aggregate pass count used by submit
func (jc *JudgeController) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	var request struct {
		ProblemID string `json:"problemId" validate:"required"`
		Code      string `json:"code" validate:"required"`
		Language  string `json:"language" validate:"required"`
	}
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}
	if err := jc.validate.Struct(request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	problem, err := jc.ProblemService.GetProblem(r.Context(), request.ProblemID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	passed, results, err := jc.JudgeService.RunTestCases(r.Context(), problem, request.Code, request.Language)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"testCasesPassed": passed,
		"totalTestCases":  len(problem.TestCases),
		"results":         results,
	})
}
