// Package events publishes domain events for downstream consumers.
// Publishing is fire-and-forget: a failed publish is logged by the caller
// and never fails the operation that produced the event.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Channel names, one per event type.
const (
	ChannelProjectCreated      = "urbanscape.project.created"
	ChannelBaseScenarioCreated = "urbanscape.scenario.base_created"
)

// ProjectCreated is emitted after a project and its base scenario are
// committed.
type ProjectCreated struct {
	ProjectID      int64 `json:"project_id"`
	BaseScenarioID int64 `json:"base_scenario_id"`
	TerritoryID    int64 `json:"territory_id"`
}

// BaseScenarioCreated is emitted after a base scenario is derived from a
// regional scenario.
type BaseScenarioCreated struct {
	ProjectID          int64 `json:"project_id"`
	BaseScenarioID     int64 `json:"base_scenario_id"`
	RegionalScenarioID int64 `json:"regional_scenario_id"`
}

// Publisher delivers domain events.
type Publisher interface {
	PublishProjectCreated(ctx context.Context, e ProjectCreated) error
	PublishBaseScenarioCreated(ctx context.Context, e BaseScenarioCreated) error
}

// RedisPublisher publishes events as JSON on Redis pub/sub channels.
type RedisPublisher struct {
	client  *redis.Client
	timeout time.Duration
}

// NewRedisPublisher creates a Publisher over the given Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client, timeout: 5 * time.Second}
}

// PublishProjectCreated publishes e on the project-created channel.
func (p *RedisPublisher) PublishProjectCreated(ctx context.Context, e ProjectCreated) error {
	return p.publish(ctx, ChannelProjectCreated, e)
}

// PublishBaseScenarioCreated publishes e on the base-scenario channel.
func (p *RedisPublisher) PublishBaseScenarioCreated(ctx context.Context, e BaseScenarioCreated) error {
	return p.publish(ctx, ChannelBaseScenarioCreated, e)
}

func (p *RedisPublisher) publish(ctx context.Context, channel string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

// NopPublisher discards all events. Used when no broker is configured.
type NopPublisher struct{}

// PublishProjectCreated discards the event.
func (NopPublisher) PublishProjectCreated(context.Context, ProjectCreated) error { return nil }

// PublishBaseScenarioCreated discards the event.
func (NopPublisher) PublishBaseScenarioCreated(context.Context, BaseScenarioCreated) error {
	return nil
}
