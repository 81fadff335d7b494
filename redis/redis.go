package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ble-bridge/config"
	"ble-bridge/models"

	"github.com/go-redis/redis/v8"
)

const statusTTL = 24 * time.Hour

// AvailabilityStatus is the per-device record mirrored from the bridge.
type AvailabilityStatus struct {
	Family    models.Family       `json:"family"`
	State     models.Availability `json:"state,omitempty"`
	LastSeen  *time.Time          `json:"last_seen,omitempty"`
	UpdatedAt time.Time           `json:"updated_at"`
}

type RedisClient struct {
	client *redis.Client
	ctx    context.Context
}

func NewRedisClient(cfg *config.Config) (*RedisClient, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()

	// Test connection
	_, err := rdb.Ping(ctx).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{
		client: rdb,
		ctx:    ctx,
	}, nil
}

// AvailabilityKey is the key a device's status is stored under.
func AvailabilityKey(deviceID string) string {
	return fmt.Sprintf("device:availability:%s", deviceID)
}

// SaveAvailability records an online/offline transition, keeping the last
// seen time already stored.
func (r *RedisClient) SaveAvailability(device models.DeviceDescriptor, state models.Availability, at time.Time) error {
	status, err := r.GetStatus(device.ID)
	if err != nil {
		status = &AvailabilityStatus{}
	}
	status.Family = device.Family
	status.State = state
	status.UpdatedAt = at
	if state == models.Online {
		status.LastSeen = &at
	}
	return r.save(device.ID, status)
}

// SaveLastSeen refreshes the last seen time of a device that reported data.
func (r *RedisClient) SaveLastSeen(device models.DeviceDescriptor, at time.Time) error {
	status, err := r.GetStatus(device.ID)
	if err != nil {
		status = &AvailabilityStatus{State: models.Online}
	}
	status.Family = device.Family
	status.LastSeen = &at
	status.UpdatedAt = at
	return r.save(device.ID, status)
}

func (r *RedisClient) save(deviceID string, status *AvailabilityStatus) error {
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal availability: %w", err)
	}

	// Set with expiration (24 hours)
	err = r.client.Set(r.ctx, AvailabilityKey(deviceID), statusJSON, statusTTL).Err()
	if err != nil {
		return fmt.Errorf("failed to save availability to Redis: %w", err)
	}
	return nil
}

func (r *RedisClient) GetStatus(deviceID string) (*AvailabilityStatus, error) {
	val, err := r.client.Get(r.ctx, AvailabilityKey(deviceID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("availability not found for device %s", deviceID)
		}
		return nil, fmt.Errorf("failed to get availability from Redis: %w", err)
	}

	var status AvailabilityStatus
	if err := json.Unmarshal([]byte(val), &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal availability: %w", err)
	}
	return &status, nil
}

func (r *RedisClient) IsDeviceOnline(deviceID string) bool {
	status, err := r.GetStatus(deviceID)
	if err != nil {
		return false
	}
	return status.State == models.Online
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}
