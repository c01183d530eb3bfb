// Package session holds the shared per-user playback session state: the
// device set, the active-device pointer and the playback state record.
// Everything is keyed by user identifier in Redis so any server process
// handling one of the user's connections observes the same state.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"playsync-service/internal/database"
	"playsync-service/internal/models"

	"github.com/redis/go-redis/v9"
)

const defaultTTL = 24 * time.Hour

type Store struct {
	client *database.RedisClient
	ttl    time.Duration
}

func NewStore(client *database.RedisClient, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{
		client: client,
		ttl:    ttl,
	}
}

func devicesKey(userID string) string {
	return fmt.Sprintf("playsync:user:%s:devices", userID)
}

func activeKey(userID string) string {
	return fmt.Sprintf("playsync:user:%s:active", userID)
}

func playbackKey(userID string) string {
	return fmt.Sprintf("playsync:user:%s:playback", userID)
}

// AddDevice inserts or replaces the device entry keyed by its connection id
// and returns the device count after the write. The count lets the caller
// detect the empty-to-one transition that triggers auto-activation.
func (s *Store) AddDevice(ctx context.Context, userID string, device models.Device) (int64, error) {
	data, err := json.Marshal(device)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal device: %w", err)
	}

	pipe := s.client.GetClient().Pipeline()
	pipe.HSet(ctx, devicesKey(userID), device.ConnectionID, data)
	lenCmd := pipe.HLen(ctx, devicesKey(userID))
	pipe.Expire(ctx, devicesKey(userID), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to add device", "userID", userID, "deviceID", device.ID, "error", err)
		return 0, err
	}

	slog.Debug("Device added", "userID", userID, "deviceID", device.ID, "connectionID", device.ConnectionID)
	return lenCmd.Val(), nil
}

// RemoveDevice deletes the entry for a connection. Removing an absent
// connection is a no-op; the returned device is nil in that case.
func (s *Store) RemoveDevice(ctx context.Context, userID, connectionID string) (*models.Device, error) {
	data, err := s.client.GetClient().HGet(ctx, devicesKey(userID), connectionID).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		slog.Error("Failed to read device for removal", "userID", userID, "connectionID", connectionID, "error", err)
		return nil, err
	}

	if err := s.client.GetClient().HDel(ctx, devicesKey(userID), connectionID).Err(); err != nil {
		slog.Error("Failed to remove device", "userID", userID, "connectionID", connectionID, "error", err)
		return nil, err
	}

	var device models.Device
	if err := json.Unmarshal([]byte(data), &device); err != nil {
		slog.Warn("Removed device entry was not decodable", "userID", userID, "connectionID", connectionID, "error", err)
		return nil, nil
	}

	slog.Debug("Device removed", "userID", userID, "deviceID", device.ID, "connectionID", connectionID)
	return &device, nil
}

// ListDevices returns the current device set of a user. An unknown user has
// an empty device set, never an error.
func (s *Store) ListDevices(ctx context.Context, userID string) ([]models.Device, error) {
	entries, err := s.client.GetClient().HGetAll(ctx, devicesKey(userID)).Result()
	if err != nil {
		return nil, err
	}

	devices := make([]models.Device, 0, len(entries))
	for connectionID, data := range entries {
		var device models.Device
		if err := json.Unmarshal([]byte(data), &device); err != nil {
			slog.Warn("Skipping undecodable device entry", "userID", userID, "connectionID", connectionID, "error", err)
			continue
		}
		devices = append(devices, device)
	}

	return devices, nil
}

// SetActiveDevice points the user's active-device pointer at deviceID. The
// write is unconditional; no ownership or liveness check is performed.
func (s *Store) SetActiveDevice(ctx context.Context, userID, deviceID string) error {
	if err := s.client.GetClient().Set(ctx, activeKey(userID), deviceID, s.ttl).Err(); err != nil {
		slog.Error("Failed to set active device", "userID", userID, "deviceID", deviceID, "error", err)
		return err
	}

	slog.Debug("Active device set", "userID", userID, "deviceID", deviceID)
	return nil
}

// GetActiveDevice returns the pointer, or the empty string if none. The
// pointer may reference a device that has already disconnected; callers
// treat that the same as no active device.
func (s *Store) GetActiveDevice(ctx context.Context, userID string) (string, error) {
	deviceID, err := s.client.GetClient().Get(ctx, activeKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return deviceID, nil
}

// SetPlaybackState overwrites the user's playback state. Last-writer-wins:
// no versioning or merge logic. LastUpdated is stamped here if the caller
// has not already advanced it, and is kept strictly greater than the
// stored stamp so two writes in the same millisecond stay ordered.
func (s *Store) SetPlaybackState(ctx context.Context, userID string, state models.PlaybackState) error {
	if state.LastUpdated == 0 {
		state.Touch()
	}
	state.Normalize()

	if data, err := s.client.GetClient().Get(ctx, playbackKey(userID)).Result(); err == nil {
		var previous models.PlaybackState
		if json.Unmarshal([]byte(data), &previous) == nil && state.LastUpdated <= previous.LastUpdated {
			state.LastUpdated = previous.LastUpdated + 1
		}
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal playback state: %w", err)
	}

	if err := s.client.GetClient().Set(ctx, playbackKey(userID), data, s.ttl).Err(); err != nil {
		slog.Error("Failed to write playback state", "userID", userID, "error", err)
		return err
	}

	slog.Debug("Playback state written", "userID", userID, "songID", state.CurrentSongID, "isPlaying", state.IsPlaying)
	return nil
}

// GetPlaybackState returns the last written state, or the documented
// default when none exists.
func (s *Store) GetPlaybackState(ctx context.Context, userID string) (models.PlaybackState, error) {
	data, err := s.client.GetClient().Get(ctx, playbackKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return models.DefaultPlaybackState(), nil
	}
	if err != nil {
		return models.DefaultPlaybackState(), err
	}

	var state models.PlaybackState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		slog.Warn("Stored playback state was not decodable", "userID", userID, "error", err)
		return models.DefaultPlaybackState(), nil
	}
	state.Normalize()

	return state, nil
}

// Refresh extends the TTL of all session keys of a user. Called on
// activity so abandoned sessions expire on their own.
func (s *Store) Refresh(ctx context.Context, userID string) error {
	pipe := s.client.GetClient().Pipeline()
	pipe.Expire(ctx, devicesKey(userID), s.ttl)
	pipe.Expire(ctx, activeKey(userID), s.ttl)
	pipe.Expire(ctx, playbackKey(userID), s.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		slog.Error("Failed to refresh session TTL", "userID", userID, "error", err)
		return err
	}
	return nil
}

// ClearSession removes every session key of a user. This is the only path
// that destroys playback state; a single connection dropping never does.
func (s *Store) ClearSession(ctx context.Context, userID string) error {
	return s.client.GetClient().Del(ctx, devicesKey(userID), activeKey(userID), playbackKey(userID)).Err()
}
