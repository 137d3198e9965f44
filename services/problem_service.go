package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ProblemService hands out problems from the problem bank.
type ProblemService struct {
	Dynamo Dynamo
}

// defaultProblemIDs keeps matchmaking alive when the Problems table has not
// been seeded yet; the battle UI resolves these from its bundled content.
var defaultProblemIDs = []string{"two-sum", "valid-parentheses", "reverse-linked-list", "fizz-buzz"}

// GetProblem retrieves one problem by id
func (ps *ProblemService) GetProblem(ctx context.Context, problemID string) (*models.Problem, error) {
	key := map[string]types.AttributeValue{
		"problemId": &types.AttributeValueMemberS{Value: problemID},
	}
	item, err := ps.Dynamo.GetItem(ctx, models.ProblemsTable, key)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, fmt.Errorf("problem '%s' not found", problemID)
		}
		return nil, err
	}

	var problem models.Problem
	if err := attributevalue.UnmarshalMap(item, &problem); err != nil {
		return nil, fmt.Errorf("failed to unmarshal problem: %w", err)
	}
	return &problem, nil
}

// RandomProblemID picks a random problem id for a new match.
func (ps *ProblemService) RandomProblemID(ctx context.Context) string {
	var problems []models.Problem
	if err := ps.Dynamo.ScanWithFilter(ctx, models.ProblemsTable, nil, nil, &problems); err != nil {
		log.Printf("⚠️ Failed to scan problem bank, using default problems: %v", err)
		problems = nil
	}
	if len(problems) == 0 {
		return defaultProblemIDs[rand.Intn(len(defaultProblemIDs))]
	}
	return problems[rand.Intn(len(problems))].ProblemID
}
