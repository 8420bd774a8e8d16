package queue

import (
	"context"
	"fmt"
	"time"

	pubsubapi "cloud.google.com/go/pubsub/v2/apiv1"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/googleapis/gax-go/v2"
)

// subscriptionProbeTimeout bounds the existence check at construction;
// startup should fail fast when Pub/Sub is unreachable.
const subscriptionProbeTimeout = 15 * time.Second

// PubSubSource fetches work from a Google Cloud Pub/Sub subscription using
// unary pulls, so each delivery carries an ack ID the Consumer can use as
// its delivery token.
type PubSubSource struct {
	client       *pubsubapi.SubscriptionAdminClient
	subscription string
}

// NewPubSubSource connects to Pub/Sub with Application Default Credentials
// and verifies the subscription exists before the first pull.
func NewPubSubSource(ctx context.Context, projectID, subscriptionID string) (*PubSubSource, error) {
	if projectID == "" || subscriptionID == "" {
		return nil, fmt.Errorf("pubsub source requires project and subscription ids")
	}

	client, err := pubsubapi.NewSubscriptionAdminClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create pubsub subscriber client: %w", err)
	}

	name := fmt.Sprintf("projects/%s/subscriptions/%s", projectID, subscriptionID)
	getReq := &pubsubpb.GetSubscriptionRequest{Subscription: name}
	if _, err := client.GetSubscription(ctx, getReq, gax.WithTimeout(subscriptionProbeTimeout)); err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("get subscription %q: %w (close client: %v)", name, err, closeErr)
		}
		return nil, fmt.Errorf("get subscription %q: %w", name, err)
	}

	return &PubSubSource{
		client:       client,
		subscription: name,
	}, nil
}

// Fetch issues one unary pull bounded by ctx. Pub/Sub may legitimately
// return fewer messages than requested, including none.
func (s *PubSubSource) Fetch(ctx context.Context, max int) ([]Delivery, error) {
	if max < 1 {
		max = 1
	}
	resp, err := s.client.Pull(ctx, &pubsubpb.PullRequest{
		Subscription: s.subscription,
		MaxMessages:  int32(max),
	})
	if err != nil {
		return nil, fmt.Errorf("pull from %s: %w", s.subscription, err)
	}

	deliveries := make([]Delivery, 0, len(resp.GetReceivedMessages()))
	for _, m := range resp.GetReceivedMessages() {
		deliveries = append(deliveries, Delivery{
			URL:   string(m.GetMessage().GetData()),
			Token: m.GetAckId(),
		})
	}
	return deliveries, nil
}

// Acknowledge deletes one delivery by its ack ID.
func (s *PubSubSource) Acknowledge(ctx context.Context, token string) error {
	err := s.client.Acknowledge(ctx, &pubsubpb.AcknowledgeRequest{
		Subscription: s.subscription,
		AckIds:       []string{token},
	})
	if err != nil {
		return fmt.Errorf("acknowledge on %s: %w", s.subscription, err)
	}
	return nil
}

// Close releases the subscriber client.
func (s *PubSubSource) Close() error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close subscriber client: %w", err)
	}
	return nil
}
