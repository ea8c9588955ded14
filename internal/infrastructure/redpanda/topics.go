// Package redpanda provides topic management and configuration.
package redpanda

import (
	"context"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"
)

// Predefined topic names for the intake conversation engine
const (
	TopicIntakeEvents = "intake.events"
	TopicAuditTrail   = "audit.trail"
	TopicDeadLetter   = "dead.letter"
)

// TopicConfig holds configuration for a Kafka topic
type TopicConfig struct {
	Name              string
	Partitions        int32
	ReplicationFactor int16
	Configs           map[string]*string
}

// DefaultTopicConfigs returns topic configurations for intake event streaming.
// Events are keyed by session ID so each session's lifecycle stays ordered
// within a partition.
func DefaultTopicConfigs() []TopicConfig {
	// Helper for string pointers
	ptr := func(s string) *string { return &s }

	return []TopicConfig{
		{
			Name:              TopicIntakeEvents,
			Partitions:        12, // Parallelism across concurrent sessions
			ReplicationFactor: 1,  // Set to 3 in production
			Configs: map[string]*string{
				"retention.ms":        ptr("604800000"), // 7 days
				"cleanup.policy":      ptr("delete"),
				"compression.type":    ptr("lz4"),
				"min.insync.replicas": ptr("1"), // Set to 2 in production
			},
		},
		{
			Name:              TopicAuditTrail,
			Partitions:        6,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":     ptr("2592000000"), // 30 days (compliance)
				"cleanup.policy":   ptr("delete"),
				"compression.type": ptr("lz4"),
			},
		},
		{
			Name:              TopicDeadLetter,
			Partitions:        3,
			ReplicationFactor: 1,
			Configs: map[string]*string{
				"retention.ms":     ptr("604800000"), // 7 days
				"cleanup.policy":   ptr("delete"),
				"compression.type": ptr("lz4"),
			},
		},
	}
}

// Admin provides administrative operations for Redpanda
type Admin struct {
	client *kadm.Client
	logger *zap.Logger
}

// NewAdmin creates a new admin client
func NewAdmin(brokers []string, logger *zap.Logger) (*Admin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	kgoClient, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka client: %w", err)
	}

	return &Admin{
		client: kadm.NewClient(kgoClient),
		logger: logger,
	}, nil
}

// CreateTopics creates the specified topics
func (a *Admin) CreateTopics(ctx context.Context, configs []TopicConfig) error {
	for _, cfg := range configs {
		resp, err := a.client.CreateTopics(ctx, int32(cfg.Partitions), cfg.ReplicationFactor, cfg.Configs, cfg.Name)
		if err != nil {
			return fmt.Errorf("failed to create topic %s: %w", cfg.Name, err)
		}

		for _, r := range resp {
			if r.Err != nil {
				// Ignore "topic already exists" errors
				if r.Err.Error() == "TOPIC_ALREADY_EXISTS" {
					a.logger.Info("topic already exists", zap.String("topic", r.Topic))
					continue
				}
				return fmt.Errorf("failed to create topic %s: %w", r.Topic, r.Err)
			}
			a.logger.Info("topic created",
				zap.String("topic", r.Topic),
				zap.Int32("partitions", cfg.Partitions))
		}
	}
	return nil
}

// EnsureTopics ensures all required topics exist with proper configuration
func (a *Admin) EnsureTopics(ctx context.Context) error {
	return a.CreateTopics(ctx, DefaultTopicConfigs())
}

// Close closes the admin client
func (a *Admin) Close() {
	a.client.Close()
}
