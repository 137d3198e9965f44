package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"arena_server/models"
)

// JudgeResult is the remote judge's verdict for one test case.
type JudgeResult struct {
	Passed        bool   `json:"passed"`
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compileOutput"`
	TimeMs        int64  `json:"timeMs"`
}

// JudgeService is a thin client for the remote code-execution judge. The
// match flow only ever consumes the aggregate pass count; execution
// mechanics live entirely on the judge's side.
type JudgeService struct {
	BaseURL string
	Client  *http.Client
}

func NewJudgeService() *JudgeService {
	return &JudgeService{
		BaseURL: os.Getenv("JUDGE_URL"),
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type evaluateRequest struct {
	Code           string `json:"code"`
	Language       string `json:"language"`
	Stdin          string `json:"stdin"`
	ExpectedStdout string `json:"expectedStdout"`
}

// Evaluate runs code against one test case on the remote judge.
func (js *JudgeService) Evaluate(ctx context.Context, code, language, stdin, expectedStdout string) (*JudgeResult, error) {
	payload, err := json.Marshal(evaluateRequest{
		Code:           code,
		Language:       language,
		Stdin:          stdin,
		ExpectedStdout: expectedStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal judge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, js.BaseURL+"/evaluate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build judge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := js.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("judge request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("judge returned status %d", resp.StatusCode)
	}

	var result JudgeResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode judge response: %w", err)
	}
	return &result, nil
}

// RunTestCases evaluates code against every test case of a problem and
// returns the per-case results plus the aggregate pass count.
func (js *JudgeService) RunTestCases(ctx context.Context, problem *models.Problem, code, language string) (int, []JudgeResult, error) {
	results := make([]JudgeResult, 0, len(problem.TestCases))
	passed := 0
	for _, tc := range problem.TestCases {
		result, err := js.Evaluate(ctx, code, language, tc.Stdin, tc.ExpectedStdout)
		if err != nil {
			return 0, nil, err
		}
		if result.Passed {
			passed++
		}
		results = append(results, *result)
	}
	return passed, results, nil
}
