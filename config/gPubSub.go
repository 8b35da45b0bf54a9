package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"cloud.google.com/go/pubsub"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

var (
	pubsubClient   *pubsub.Client
	pubsubClientMu sync.Mutex
)

const pubsubConnectAttempts = 5

// getPubSubClient returns the shared client for PUBSUB_PROJECT_ID (or
// GOOGLE_CLOUD_PROJECT). It uses Application Default Credentials unless
// PUBSUB_CREDENTIALS_JSON is set.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if pubsubClient != nil {
		return pubsubClient, nil
	}

	projectID := os.Getenv("PUBSUB_PROJECT_ID")
	if projectID == "" {
		projectID = os.Getenv("GOOGLE_CLOUD_PROJECT")
	}
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}
	var opts []option.ClientOption
	if credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON"); credJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credJSON)))
	}

	for attempt := 1; ; attempt++ {
		c, err := pubsub.NewClient(ctx, projectID, opts...)
		if err == nil {
			pubsubClient = c
			logg.WithFields(logrus.Fields{"field": "pubsub", "project_id": projectID, "attempt": attempt}).Info("client ready")
			return c, nil
		}
		if attempt >= pubsubConnectAttempts {
			return nil, fmt.Errorf("init pubsub client: %w", err)
		}
		if err := waitRetry(ctx, "pubsub", attempt, err); err != nil {
			return nil, err
		}
	}
}

// EnsureTopic creates topicName when it does not exist yet.
func EnsureTopic(ctx context.Context, topicName string) error {
	if topicName == "" {
		return errors.New("topic name is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return err
	}
	t := client.Topic(topicName)
	ok, err := t.Exists(ctx)
	if err != nil || ok {
		return err
	}
	if _, err := client.CreateTopic(ctx, topicName); err != nil {
		return fmt.Errorf("create topic %q: %w", topicName, err)
	}
	return nil
}

// PublishJSON publishes obj as JSON on topicName and returns the server-assigned message ID.
func PublishJSON(ctx context.Context, topicName string, obj interface{}, attrs map[string]string) (string, error) {
	if topicName == "" {
		return "", errors.New("topic name is required")
	}
	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(obj)
	if err != nil {
		return "", err
	}
	result := client.Topic(topicName).Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	return result.Get(ctx)
}
