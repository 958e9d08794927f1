package sink

import (
	"context"
	"strconv"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"weldvision/internal/models"
)

// Redis appends records to a Redis stream named after the collection.
type Redis struct {
	client *redis.Client
	stream string
	owned  bool
}

func NewRedis(ctx context.Context, addr, stream string) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}

	return &Redis{client: client, stream: stream, owned: true}, nil
}

// NewRedisWithClient uses an existing client. Close leaves it open.
func NewRedisWithClient(client *redis.Client, stream string) *Redis {
	return &Redis{client: client, stream: stream}
}

func (r *Redis) Append(ctx context.Context, rec models.DetectionRecord) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: r.stream,
		Values: map[string]interface{}{
			"label":     rec.Label,
			"confianza": strconv.FormatFloat(rec.Confidence, 'f', 2, 64),
			"timestamp": rec.Timestamp,
		},
	}).Err()
	return errors.Wrap(err, "redis xadd")
}

func (r *Redis) Close() error {
	if !r.owned {
		return nil
	}
	return r.client.Close()
}
