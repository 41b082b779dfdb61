// Package goposthog sends run events to a PostHog instance. The distinct id
// is an anonymous machine fingerprint, never user data.
package goposthog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/posthog/posthog-go"

	"github.com/kryptonlabs/leadscraper/tlmt"
)

type service struct {
	client     posthog.Client
	distinctID string
}

func New(apiKey, endpoint string) (tlmt.Telemetry, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("posthog api key is empty")
	}

	client, err := posthog.NewWithConfig(apiKey, posthog.Config{Endpoint: endpoint})
	if err != nil {
		return nil, err
	}

	return &service{
		client:     client,
		distinctID: machineID(),
	}, nil
}

func (s *service) Send(_ context.Context, event tlmt.Event) error {
	properties := posthog.NewProperties()
	for k, v := range event.Properties {
		properties.Set(k, v)
	}

	return s.client.Enqueue(posthog.Capture{
		DistinctId: s.distinctID,
		Event:      event.Name,
		Properties: properties,
	})
}

func (s *service) Close() error {
	return s.client.Close()
}

func machineID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	sum := sha256.Sum256([]byte(hostname))

	return hex.EncodeToString(sum[:16])
}
