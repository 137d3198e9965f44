package services

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	streamattr "github.com/aws/aws-sdk-go-v2/feature/dynamodbstreams/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
)

// InitializeStreamsClient initializes the DynamoDB Streams client
func InitializeStreamsClient() *dynamodbstreams.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(os.Getenv("AWS_REGION")))
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}
	return dynamodbstreams.NewFromConfig(cfg)
}

// StreamEventType classifies a change-notification event.
type StreamEventType string

const (
	StreamEventAdd    StreamEventType = "add"
	StreamEventModify StreamEventType = "modify"
	StreamEventRemove StreamEventType = "remove"
)

// StreamEvent is one document change delivered to subscribers.
type StreamEvent struct {
	Type     StreamEventType
	Table    string
	NewImage map[string]streamtypes.AttributeValue
	OldImage map[string]streamtypes.AttributeValue
}

// UnmarshalStreamImage decodes a stream record image into a model struct.
func UnmarshalStreamImage(image map[string]streamtypes.AttributeValue, out interface{}) error {
	return streamattr.UnmarshalMap(image, out)
}

// StreamService fans DynamoDB Streams records out to in-process subscribers,
// giving the rest of the server push-style add/modify/remove notifications
// per table.
type StreamService struct {
	Dynamo       *dynamodb.Client
	Streams      *dynamodbstreams.Client
	PollInterval time.Duration

	mu     sync.Mutex
	nextID int
	subs   map[string]map[int]func(StreamEvent) // table → subscription id → handler
}

func NewStreamService(dynamoClient *dynamodb.Client, streamsClient *dynamodbstreams.Client) *StreamService {
	return &StreamService{
		Dynamo:       dynamoClient,
		Streams:      streamsClient,
		PollInterval: time.Second,
		subs:         make(map[string]map[int]func(StreamEvent)),
	}
}

// Subscribe registers handler for every change on tableName. The returned
// function cancels the subscription; events in flight may still be delivered.
func (ss *StreamService) Subscribe(tableName string, handler func(StreamEvent)) func() {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	if ss.subs[tableName] == nil {
		ss.subs[tableName] = make(map[int]func(StreamEvent))
	}
	ss.nextID++
	id := ss.nextID
	ss.subs[tableName][id] = handler

	return func() {
		ss.mu.Lock()
		defer ss.mu.Unlock()
		delete(ss.subs[tableName], id)
	}
}

func (ss *StreamService) dispatch(event StreamEvent) {
	ss.mu.Lock()
	handlers := make([]func(StreamEvent), 0, len(ss.subs[event.Table]))
	for _, h := range ss.subs[event.Table] {
		handlers = append(handlers, h)
	}
	ss.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Run polls the table's stream until ctx is canceled. New shards are picked up
// periodically; records start from LATEST so a restarting server does not
// replay history it already acted on.
func (ss *StreamService) Run(ctx context.Context, tableName string) {
	streamArn := ss.waitForStreamArn(ctx, tableName)
	if streamArn == "" {
		return
	}
	log.Printf("✅ Stream poller started for table %s", tableName)

	iterators := map[string]string{} // shard id → current iterator
	closed := map[string]bool{}
	lastShardRefresh := time.Time{}

	ticker := time.NewTicker(ss.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if time.Since(lastShardRefresh) > 30*time.Second {
			ss.refreshShards(ctx, tableName, streamArn, iterators, closed)
			lastShardRefresh = time.Now()
		}

		for shardID, iterator := range iterators {
			out, err := ss.Streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{
				ShardIterator: &iterator,
			})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("❌ GetRecords failed for %s shard %s: %v", tableName, shardID, err)
				delete(iterators, shardID)
				continue
			}

			for _, record := range out.Records {
				if record.Dynamodb == nil {
					continue
				}
				event := StreamEvent{
					Table:    tableName,
					NewImage: record.Dynamodb.NewImage,
					OldImage: record.Dynamodb.OldImage,
				}
				switch record.EventName {
				case streamtypes.OperationTypeInsert:
					event.Type = StreamEventAdd
				case streamtypes.OperationTypeModify:
					event.Type = StreamEventModify
				case streamtypes.OperationTypeRemove:
					event.Type = StreamEventRemove
				default:
					continue
				}
				ss.dispatch(event)
			}

			if out.NextShardIterator == nil {
				// Shard closed for good
				delete(iterators, shardID)
				closed[shardID] = true
			} else {
				iterators[shardID] = *out.NextShardIterator
			}
		}
	}
}

func (ss *StreamService) waitForStreamArn(ctx context.Context, tableName string) string {
	for {
		desc, err := ss.Dynamo.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: &tableName})
		if err == nil && desc.Table != nil && desc.Table.LatestStreamArn != nil {
			return *desc.Table.LatestStreamArn
		}
		if ctx.Err() != nil {
			return ""
		}
		log.Printf("⚠️ Table %s has no stream yet, retrying: %v", tableName, err)
		select {
		case <-ctx.Done():
			return ""
		case <-time.After(5 * time.Second):
		}
	}
}

func (ss *StreamService) refreshShards(ctx context.Context, tableName, streamArn string, iterators map[string]string, closed map[string]bool) {
	desc, err := ss.Streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
		StreamArn: &streamArn,
	})
	if err != nil {
		log.Printf("❌ DescribeStream failed for %s: %v", tableName, err)
		return
	}
	if desc.StreamDescription == nil {
		return
	}

	for _, shard := range desc.StreamDescription.Shards {
		if shard.ShardId == nil {
			continue
		}
		shardID := *shard.ShardId
		if _, ok := iterators[shardID]; ok || closed[shardID] {
			continue
		}
		iterOut, err := ss.Streams.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
			StreamArn:         &streamArn,
			ShardId:           &shardID,
			ShardIteratorType: streamtypes.ShardIteratorTypeLatest,
		})
		if err != nil || iterOut.ShardIterator == nil {
			log.Printf("❌ GetShardIterator failed for %s shard %s: %v", tableName, shardID, err)
			continue
		}
		iterators[shardID] = *iterOut.ShardIterator
	}
}
