package monitoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

const (
	instanceKeyPrefix = "relay:instances:"
	instanceIndexKey  = "relay:instances:index"

	// Default timeout to mark instance as offline
	defaultInstanceTTL = 90 * time.Second

	// Instance data disappears from redis after a day without heartbeat
	redisStorageTTL = 24 * time.Hour
)

// ErrInstanceNotFound is returned when an instance has no data left in Redis
var ErrInstanceNotFound = errors.New("instance not found")

// Registry keeps relay worker instances in Redis
type Registry struct {
	client      *redis.Client
	instanceTTL time.Duration
}

// NewRegistry connects to redis and returns a registry
func NewRegistry(ctx context.Context, redisURL string, ttl time.Duration) (*Registry, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return newRegistry(client, ttl), nil
}

func newRegistry(client *redis.Client, ttl time.Duration) *Registry {
	if ttl == 0 {
		ttl = defaultInstanceTTL
	}
	return &Registry{client: client, instanceTTL: ttl}
}

// UpdateInstance updates or creates an instance record
func (r *Registry) UpdateInstance(ctx context.Context, info InstanceInfo) error {
	info.LastHeartbeat = time.Now()
	info.Status = StatusOnline

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal instance info: %w", err)
	}

	pipe := r.client.Pipeline()
	pipe.Set(ctx, instanceKeyPrefix+info.InstanceID, data, redisStorageTTL)
	pipe.SAdd(ctx, instanceIndexKey, info.InstanceID)

	if _, err = pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID
func (r *Registry) GetInstance(ctx context.Context, instanceID string) (*InstanceInfo, error) {
	data, err := r.client.Get(ctx, instanceKeyPrefix+instanceID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrInstanceNotFound, instanceID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get instance: %w", err)
	}

	var info InstanceInfo
	if err := json.Unmarshal([]byte(data), &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal instance info: %w", err)
	}
	info.Status = statusAt(info.LastHeartbeat, time.Now(), r.instanceTTL)

	return &info, nil
}

// ListInstances retrieves all instances, optionally filtered by status.
// Index entries whose data expired are dropped from the index, any other
// Redis error aborts the listing.
func (r *Registry) ListInstances(ctx context.Context, status InstanceStatus) ([]*InstanceInfo, error) {
	instanceIDs, err := r.client.SMembers(ctx, instanceIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list instances: %w", err)
	}

	drop := func(id string) { r.client.SRem(ctx, instanceIndexKey, id) }
	return collectInstances(ctx, instanceIDs, status, r.GetInstance, drop)
}

func collectInstances(
	ctx context.Context,
	ids []string,
	status InstanceStatus,
	get func(ctx context.Context, id string) (*InstanceInfo, error),
	drop func(id string),
) ([]*InstanceInfo, error) {
	instances := make([]*InstanceInfo, 0, len(ids))
	for _, id := range ids {
		info, err := get(ctx, id)
		if errors.Is(err, ErrInstanceNotFound) {
			drop(id)
			continue
		}
		if err != nil {
			return nil, err
		}
		if status != "" && info.Status != status {
			continue
		}
		instances = append(instances, info)
	}

	return instances, nil
}

// GetSummary returns aggregate statistics about instances
func (r *Registry) GetSummary(ctx context.Context) (InstanceListResponse, error) {
	instances, err := r.ListInstances(ctx, "")
	if err != nil {
		return InstanceListResponse{}, err
	}
	return InstanceListResponse{Instances: instances, Summary: Summarize(instances)}, nil
}

// Close closes the Redis connection
func (r *Registry) Close() error {
	return r.client.Close()
}

// Summarize counts instances by status and adds up their record counters
func Summarize(instances []*InstanceInfo) InstanceSummary {
	summary := InstanceSummary{Total: len(instances)}
	for _, instance := range instances {
		if instance.Status == StatusOnline {
			summary.Online++
		} else {
			summary.Offline++
		}
		summary.RecordsSucceeded += instance.RecordsSucceeded
		summary.RecordsFailed += instance.RecordsFailed
	}
	return summary
}

func statusAt(lastHeartbeat, now time.Time, ttl time.Duration) InstanceStatus {
	if now.Sub(lastHeartbeat) > ttl {
		return StatusOffline
	}
	return StatusOnline
}

// StartHeartbeat writes the instance returned by snapshot every interval until ctx is done
func StartHeartbeat(ctx context.Context, registry *Registry, interval time.Duration, snapshot func() InstanceInfo) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("Monitoring heartbeat started")

	for {
		if err := registry.UpdateInstance(ctx, snapshot()); err != nil {
			log.Error().Err(err).Msg("Failed to send heartbeat")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
