package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/datavault-ai/entity-backend/pkg/constant"
)

// ChangeType labels what happened to the object a message is about.
type ChangeType string

const (
	ChangeTypeCreate ChangeType = "CREATE"
	ChangeTypeUpdate ChangeType = "UPDATE"
	ChangeTypeDelete ChangeType = "DELETE"
)

// ObjectType labels the kind of object a message is about.
type ObjectType string

const (
	ObjectTypeEntity          ObjectType = "ENTITY"
	ObjectTypeEntityContainer ObjectType = "ENTITY_CONTAINER"
)

// ChangeMessage is one record on the change feed.
type ChangeMessage struct {
	EntityUID  uuid.UUID  `json:"entity_uid"`
	ObjectType ObjectType `json:"object_type"`
	Etag       string     `json:"etag,omitempty"`
	ChangeType ChangeType `json:"change_type"`
	Timestamp  time.Time  `json:"timestamp"`
}

// ChangeSink receives change messages after the surrounding transaction
// commits. Delivery is best effort; the authorization decision never depends
// on it.
type ChangeSink interface {
	SendMessageAfterCommit(ctx context.Context, msg ChangeMessage) error
}

type redisChangeSink struct {
	redisClient *redis.Client
}

// NewRedisChangeSink publishes change messages on the shared redis change feed.
func NewRedisChangeSink(redisClient *redis.Client) ChangeSink {
	return &redisChangeSink{redisClient: redisClient}
}

func (s *redisChangeSink) SendMessageAfterCommit(ctx context.Context, msg ChangeMessage) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return s.redisClient.Publish(ctx, constant.ChangeFeedChannel, payload).Err()
}
