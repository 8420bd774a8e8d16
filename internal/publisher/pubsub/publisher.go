// Package pubsub announces discovered URLs on a Google Cloud Pub/Sub topic,
// feeding the work queue that drives future crawl runs.
package pubsub

import (
	"context"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
)

// Publisher publishes one URL per message, the same contract the work-queue
// consumer reads.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// New connects to Pub/Sub and verifies the topic is active before the first
// publish.
func New(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	if projectID == "" || topicID == "" {
		return nil, fmt.Errorf("pubsub publisher requires project and topic ids")
	}

	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	name := fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
	topic, err := client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("get topic %q: %w (close client: %v)", name, err, closeErr)
		}
		return nil, fmt.Errorf("get topic %q: %w", name, err)
	}
	if topic.State != pubsubpb.Topic_ACTIVE {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("topic %q is not active (close client: %v)", name, closeErr)
		}
		return nil, fmt.Errorf("topic %q is not active", name)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(topic.Name),
	}, nil
}

// Publish sends url as the message body and blocks until the server
// confirms it, returning the message ID.
func (p *Publisher) Publish(ctx context.Context, url string) (string, error) {
	result := p.publisher.Publish(ctx, &pubsub.Message{Data: []byte(url)})
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish url: %w", err)
	}
	return id, nil
}

// Close stops the publisher and releases the client.
func (p *Publisher) Close() error {
	p.publisher.Stop()
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
