package services

import (
	"context"
	"errors"
	"fmt"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrProfileNotFound is returned when no profile exists for a player id.
var ErrProfileNotFound = errors.New("profile not found")

// ProfileService reads and writes player profiles. Rank-point mutations go
// through StatsService only; this service never touches them.
type ProfileService struct {
	Dynamo Dynamo
}

// GetProfile retrieves a player profile by ID
func (ps *ProfileService) GetProfile(ctx context.Context, playerID string) (*models.PlayerProfile, error) {
	key := map[string]types.AttributeValue{
		"playerId": &types.AttributeValueMemberS{Value: playerID},
	}
	item, err := ps.Dynamo.GetItem(ctx, models.PlayerProfilesTable, key)
	if err != nil {
		if errors.Is(err, ErrItemNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	var profile models.PlayerProfile
	if err := attributevalue.UnmarshalMap(item, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}

// UpdateDisplayName sets the profile's display name, creating the profile
// document on first write.
func (ps *ProfileService) UpdateDisplayName(ctx context.Context, playerID, displayName string) (*models.PlayerProfile, error) {
	key := map[string]types.AttributeValue{
		"playerId": &types.AttributeValueMemberS{Value: playerID},
	}
	updated, err := ps.Dynamo.UpdateItem(ctx, models.PlayerProfilesTable,
		"SET displayName = :name",
		key,
		map[string]types.AttributeValue{":name": &types.AttributeValueMemberS{Value: displayName}},
		nil,
	)
	if err != nil {
		return nil, err
	}

	var profile models.PlayerProfile
	if err := attributevalue.UnmarshalMap(updated, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal profile: %w", err)
	}
	return &profile, nil
}
