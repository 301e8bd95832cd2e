package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/snapstudio-backend/pkg/config"
	"github.com/angelmondragon/snapstudio-backend/pkg/logger"
)

// Client carries ledger events from the outbox publisher to the analytics
// worker over a single credit-events topic and its subscription.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
}

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNothingConfigured = errors.New("pubsub credit events topic or subscription is required")
)

type resourceKind string

const (
	topicKind        resourceKind = "topics"
	subscriptionKind resourceKind = "subscriptions"
)

// NewClient connects and verifies that the configured credit-events topic
// and subscription exist, so a typo fails at startup rather than silently
// stranding events in the outbox.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	if strings.TrimSpace(gcp.ProjectID) == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, gcp.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{
		client:    psClient,
		projectID: gcp.ProjectID,
		cfg:       cfg,
	}
	if err := c.verify(ctx); err != nil {
		_ = psClient.Close()
		return nil, err
	}

	if logg != nil {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"topic":        c.resourceName(topicKind, cfg.CreditEventsTopic),
			"subscription": c.resourceName(subscriptionKind, cfg.CreditEventsSubscription),
		}), "pubsub client initialized")
	}
	return c, nil
}

func (c *Client) verify(ctx context.Context) error {
	topic := strings.TrimSpace(c.cfg.CreditEventsTopic)
	sub := strings.TrimSpace(c.cfg.CreditEventsSubscription)
	if topic == "" && sub == "" {
		return errNothingConfigured
	}
	if topic != "" {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{
			Topic: c.resourceName(topicKind, topic),
		})
		if err := notFoundAware(err, topicKind, topic); err != nil {
			return err
		}
	}
	if sub != "" {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{
			Subscription: c.resourceName(subscriptionKind, sub),
		})
		if err := notFoundAware(err, subscriptionKind, sub); err != nil {
			return err
		}
	}
	return nil
}

func notFoundAware(err error, kind resourceKind, name string) error {
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("pubsub %s %q does not exist", strings.TrimSuffix(string(kind), "s"), name)
	default:
		return fmt.Errorf("checking pubsub %s %q: %w", strings.TrimSuffix(string(kind), "s"), name, err)
	}
}

// CreditEventsSubscription returns the analytics worker's subscriber.
func (c *Client) CreditEventsSubscription() *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	name := c.resourceName(subscriptionKind, c.cfg.CreditEventsSubscription)
	if name == "" {
		return nil
	}
	return c.client.Subscriber(name)
}

// Publisher returns a publisher for a topic ID or full resource name. The
// outbox registry names topics per event type.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := c.resourceName(topicKind, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

func (c *Client) CreditEventsPublisher() *pubsub.Publisher {
	return c.Publisher(c.cfg.CreditEventsTopic)
}

// Ping is the readiness check: the topic and subscription still exist.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.client == nil {
		return errors.New("pubsub client not initialized")
	}
	return c.verify(ctx)
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// resourceName expands a bare ID to projects/<project>/<kind>/<id>. Names that
// are already fully qualified for the same kind pass through.
func (c *Client) resourceName(kind resourceKind, name string) string {
	if c == nil {
		return ""
	}
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+string(kind)+"/") {
		return n
	}
	p := strings.TrimSpace(c.projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
