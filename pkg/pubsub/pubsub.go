package pubsub

import (
	"context"
	"encoding/json"

	"github.com/ritzau/reach-analyzer/pkg/lens"
	"github.com/ritzau/reach-analyzer/pkg/model"
)

// Topics published by the analysis runner
const (
	TopicStatus = "analysis_status"
	TopicResult = "analysis_result"
)

// Event represents a pub/sub event
type Event struct {
	Topic   string          `json:"topic"`   // Subscription topic (e.g., "analysis_status")
	Type    string          `json:"type"`    // Event type (e.g., "collecting", "ready")
	Data    json.RawMessage `json:"data"`    // Event payload
	Version int             `json:"version"` // Version number for ordering
}

// Subscription represents a client subscription to a topic
type Subscription interface {
	// Topic returns the subscription topic
	Topic() string

	// Events returns a channel for receiving events. It is closed when the
	// subscription or the publisher is closed.
	Events() <-chan Event

	// Close closes the subscription
	Close() error
}

// Publisher manages pub/sub subscriptions and event publishing
type Publisher interface {
	// Subscribe creates a new subscription to a topic
	// Context cancellation will close the subscription
	Subscribe(ctx context.Context, topic string) (Subscription, error)

	// Publish sends an event to all subscribers of a topic
	Publish(topic string, eventType string, data interface{}) error

	// Close shuts down the publisher and all subscriptions
	Close() error
}

// AnalysisStatus is the payload of TopicStatus events
type AnalysisStatus struct {
	State   string `json:"state"`   // collecting, building, analyzing, ready, error
	Message string `json:"message"` // Human-readable status message
	Step    int    `json:"step"`    // Current step number (1-based)
	Total   int    `json:"total"`   // Total number of steps
}

// ResultSummary is the payload of TopicResult events. Clients fetch the full
// result from the HTTP API, or only the graph changes since GraphHash.
type ResultSummary struct {
	Mode        string           `json:"mode"`
	Fingerprint string           `json:"fingerprint"`
	GraphHash   string           `json:"graphHash"`
	Summary     model.Summary    `json:"summary"`
	Changes     *lens.ResultDiff `json:"changes,omitempty"`
}
