package relay

import (
	"context"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"
)

type topicPublisher interface {
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (*gcppubsub.PublishResult, error)
}

// PubSubPublisher adapts the shared Pub/Sub client to Publisher.
type PubSubPublisher struct {
	Client topicPublisher
}

func (p PubSubPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (Pending, error) {
	if p.Client == nil {
		return nil, errors.New("pubsub client not configured")
	}
	res, err := p.Client.Publish(ctx, topic, data, attrs)
	if err != nil {
		return nil, err
	}
	return pubsubResult{res}, nil
}

type pubsubResult struct {
	res *gcppubsub.PublishResult
}

func (r pubsubResult) Wait(ctx context.Context) error {
	if r.res == nil {
		return errors.New("publish result missing")
	}
	_, err := r.res.Get(ctx)
	return err
}
