// Package events carries donation facts to downstream modules (certificates,
// notifications, reports) over Redis Streams.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultStream is the stream completed donations are appended to.
const DefaultStream = "donations.completed"

// DonationCompleted is emitted once a donation row is committed as COMPLETED.
type DonationCompleted struct {
	DonationID    string    `json:"donation_id"`
	DonorID       string    `json:"donor_id"`
	CampaignID    string    `json:"campaign_id"`
	EnrollmentID  string    `json:"enrollment_id"`
	QuantityML    int       `json:"quantity_ml"`
	ActualDate    time.Time `json:"actual_date"`
	CertificateID string    `json:"certificate_id"`
	DonationCount int       `json:"donation_count"`
}

// Publisher delivers DonationCompleted events.
type Publisher interface {
	PublishDonationCompleted(ctx context.Context, event DonationCompleted) error
}

// NopPublisher drops every event. Used when Redis is disabled.
type NopPublisher struct{}

func (NopPublisher) PublishDonationCompleted(context.Context, DonationCompleted) error { return nil }

// StreamPublisher appends events to a Redis stream
type StreamPublisher struct {
	client *redis.Client
	stream string
}

// NewStreamPublisher creates a publisher on stream (DefaultStream when empty)
func NewStreamPublisher(client *redis.Client, stream string) *StreamPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &StreamPublisher{client: client, stream: stream}
}

// PublishDonationCompleted XADDs the event as a JSON "data" field
func (p *StreamPublisher) PublishDonationCompleted(ctx context.Context, event DonationCompleted) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":      "donation.completed",
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.stream, err)
	}
	return nil
}

// Message is one delivered event with its stream id for acknowledgement.
type Message struct {
	ID    string
	Event DonationCompleted
}

// Reader consumes the stream as a member of a consumer group
type Reader struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
	block    time.Duration
}

// NewReader creates a reader. Call EnsureGroup once before Read.
func NewReader(client *redis.Client, stream, group, consumer string) *Reader {
	if stream == "" {
		stream = DefaultStream
	}
	return &Reader{client: client, stream: stream, group: group, consumer: consumer, block: 5 * time.Second}
}

// EnsureGroup creates the consumer group (and the stream) if missing
func (r *Reader) EnsureGroup(ctx context.Context) error {
	err := r.client.XGroupCreateMkStream(ctx, r.stream, r.group, "0").Err()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group %s: %w", r.group, err)
	}
	return nil
}

// Read returns up to count undelivered messages, blocking for at most the
// reader's block interval. An empty slice means nothing arrived in time.
func (r *Reader) Read(ctx context.Context, count int64) ([]Message, error) {
	streams, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    r.group,
		Consumer: r.consumer,
		Streams:  []string{r.stream, ">"},
		Count:    count,
		Block:    r.block,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return []Message{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", r.stream, err)
	}

	messages := []Message{}
	for _, s := range streams {
		for _, m := range s.Messages {
			raw, ok := m.Values["data"].(string)
			if !ok {
				return nil, fmt.Errorf("message %s has no data field", m.ID)
			}
			var event DonationCompleted
			if err := json.Unmarshal([]byte(raw), &event); err != nil {
				return nil, fmt.Errorf("failed to decode message %s: %w", m.ID, err)
			}
			messages = append(messages, Message{ID: m.ID, Event: event})
		}
	}
	return messages, nil
}

// Ack marks messages as processed for the group
func (r *Reader) Ack(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.client.XAck(ctx, r.stream, r.group, ids...).Err(); err != nil {
		return fmt.Errorf("failed to ack: %w", err)
	}
	return nil
}
