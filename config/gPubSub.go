package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/joho/godotenv"
	"google.golang.org/api/option"
)

// MovementEvent is the integration payload published for every committed stock
// movement and request status transition. Downstream consumers (reporting,
// ERP sync) subscribe to the topic; delivery concerns stay outside this core.
type MovementEvent struct {
	ID             int       `json:"id"`
	OccurredAt     time.Time `json:"occurred_at"`
	ReferenceId    int       `json:"reference_id"`
	ReferenceType  string    `json:"reference_type"`
	Action         string    `json:"action"`
	Payload        []byte    `json:"payload"`
	CorrelationId  string    `json:"correlation_id"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

func init() {
	godotenv.Load()
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	if v := os.Getenv("GCP_PROJECT"); v != "" {
		return v
	}
	return ""
}

// GetPubSubClient returns a Pub/Sub client, initializing with retries if needed.
// Uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func GetPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++
		var opts []option.ClientOption
		if credJSON != "" {
			opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
		}
		client, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClientMu.Lock()
			pubsubClient = client
			pubsubClientMu.Unlock()
			return client, nil
		}
		if attempt >= 5 {
			return nil, err
		}
		log.Printf("failed to create pubsub client (attempt=%d): %v", attempt, err)
		time.Sleep(time.Second * time.Duration(attempt))
	}
}

// PublishMovementEventWithResult publishes one event to the movement topic
// and blocks for the server-assigned message id, so the outbox dispatcher can
// store it before marking the row sent.
func PublishMovementEventWithResult(ctx context.Context, event MovementEvent) (string, error) {
	client, err := GetPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(event)
	if err != nil {
		return "", err
	}
	topic := client.Topic(MovementEventsTopic())
	result := topic.Publish(ctx, &pubsub.Message{
		Data: body,
		Attributes: map[string]string{
			"reference_type": event.ReferenceType,
			"action":         event.Action,
			"correlation_id": event.CorrelationId,
		},
	})
	return result.Get(ctx)
}

// MovementEventsTopic returns the configured topic name for integration events.
func MovementEventsTopic() string {
	if v := os.Getenv("PUBSUB_MOVEMENT_TOPIC"); v != "" {
		return v
	}
	return "spareparts-movement-events"
}
