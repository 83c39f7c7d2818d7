package tasks

import (
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	redis "github.com/redis/go-redis/v9"

	"github.com/studygrove/studygrove/internal/config"
)

// PubSub bundles both ends of the task transport.
type PubSub struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// NewPubSub selects the transport from config. "redis" runs on redis
// streams with a shared consumer group so workers split the load;
// "memory" keeps everything in-process for tests and single-node runs.
func NewPubSub(cfg config.Config, client *redis.Client, wmLogger watermill.LoggerAdapter) (*PubSub, error) {
	switch cfg.TaskTransport {
	case "memory":
		ch := gochannel.NewGoChannel(gochannel.Config{}, wmLogger)
		return &PubSub{Publisher: ch, Subscriber: ch}, nil
	case "redis":
		pub, err := redisstream.NewPublisher(redisstream.PublisherConfig{
			Client: client,
		}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("redis stream publisher: %w", err)
		}
		sub, err := redisstream.NewSubscriber(redisstream.SubscriberConfig{
			Client:        client,
			ConsumerGroup: cfg.TaskConsumerGroup,
		}, wmLogger)
		if err != nil {
			return nil, fmt.Errorf("redis stream subscriber: %w", err)
		}
		return &PubSub{Publisher: pub, Subscriber: sub}, nil
	default:
		return nil, fmt.Errorf("unknown task transport %q", cfg.TaskTransport)
	}
}
