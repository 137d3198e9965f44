package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"arena_server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ArchiveService writes completed match documents to S3 for history export.
type ArchiveService struct {
	Client *s3.Client
	Bucket string
}

func NewArchiveService() *ArchiveService {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		panic(err)
	}
	return &ArchiveService{
		Client: s3.NewFromConfig(cfg),
		Bucket: os.Getenv("S3_BUCKET_NAME"),
	}
}

// ArchiveMatch stores the completed match as JSON under matches/<id>.json
func (as *ArchiveService) ArchiveMatch(ctx context.Context, match *models.Match) error {
	body, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("failed to marshal match %s: %w", match.MatchID, err)
	}

	key := "matches/" + match.MatchID + ".json"
	_, err = as.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(as.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to archive match %s: %w", match.MatchID, err)
	}
	return nil
}

// GenerateMatchReadURL generates a presigned URL for reading an archived match
func (as *ArchiveService) GenerateMatchReadURL(matchID string) (string, error) {
	params := &s3.GetObjectInput{
		Bucket: aws.String(as.Bucket),
		Key:    aws.String("matches/" + matchID + ".json"),
	}
	presigner := s3.NewPresignClient(as.Client)
	presignedURL, err := presigner.PresignGetObject(context.TODO(), params, s3.WithPresignExpires(5*time.Minute))
	if err != nil {
		return "", err
	}
	return presignedURL.URL, nil
}
