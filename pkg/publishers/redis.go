package publishers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// streamClient is the subset of the redis client used by the stream sink.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// redisPublisher appends one stream entry per article.
type redisPublisher struct {
	id     string
	stream string
	maxLen int64
	client streamClient
	log    Logger
}

func newRedisPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.Redis == nil {
		return nil, fmt.Errorf("publisher %q missing redis configuration", cfg.ID)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &redisPublisher{
		id:     cfg.ID,
		stream: cfg.Redis.Stream,
		maxLen: cfg.Redis.MaxLen,
		client: client,
		log:    ensureLogger(log),
	}, nil
}

func (p *redisPublisher) ID() string   { return p.id }
func (p *redisPublisher) Type() string { return TypeRedis }

// Publish adds the event to the stream, trimming it approximately to maxLen when set.
func (p *redisPublisher) Publish(ctx context.Context, evt Event) error {
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]any{
			"event_id": evt.ID,
			"site":     evt.Site,
			"link":     evt.Article.Link,
			"payload":  string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	entryID, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	p.log.DebugObj("redis publisher appended entry", "publisher_redis_delivery", map[string]any{
		"stream":   p.stream,
		"entry_id": entryID,
	})
	return nil
}

func (p *redisPublisher) Close() error {
	return p.client.Close()
}
