// Package events publishes session and playback events to Kafka for
// downstream consumers (analytics, activity feeds). Publishing is always
// best-effort: the sync path never depends on it.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"playsync-service/internal/models"

	"github.com/IBM/sarama"
)

type Publisher struct {
	producer sarama.SyncProducer
	topic    string
}

func NewPublisher(brokers []string, topic string) (*Publisher, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Partitioner = sarama.NewHashPartitioner
	config.Version = sarama.V2_0_0_0
	config.ClientID = "playsync-service"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return &Publisher{
		producer: producer,
		topic:    topic,
	}, nil
}

type deviceEvent struct {
	Type      string        `json:"type"`
	UserID    string        `json:"user_id"`
	Device    models.Device `json:"device"`
	Timestamp int64         `json:"timestamp"`
}

type playbackEvent struct {
	Type      string               `json:"type"`
	UserID    string               `json:"user_id"`
	State     models.PlaybackState `json:"state"`
	Timestamp int64                `json:"timestamp"`
}

// PublishDeviceEvent emits a device lifecycle event, keyed by user so one
// user's events stay ordered within a partition.
func (p *Publisher) PublishDeviceEvent(_ context.Context, eventType, userID string, device models.Device) error {
	return p.send(userID, deviceEvent{
		Type:      eventType,
		UserID:    userID,
		Device:    device,
		Timestamp: time.Now().Unix(),
	})
}

// PublishPlaybackEvent emits a playback state change.
func (p *Publisher) PublishPlaybackEvent(_ context.Context, userID string, state models.PlaybackState) error {
	return p.send(userID, playbackEvent{
		Type:      "playback.state_changed",
		UserID:    userID,
		State:     state,
		Timestamp: time.Now().Unix(),
	})
}

func (p *Publisher) send(key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, _, err = p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	if err != nil {
		slog.Warn("Failed to publish event", "topic", p.topic, "error", err)
		return err
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.producer.Close()
}
