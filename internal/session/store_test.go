package session

import (
	"context"
	"testing"
	"time"

	"playsync-service/internal/config"
	"playsync-service/internal/database"
	"playsync-service/internal/models"

	"github.com/google/uuid"
)

// newTestStore connects to a local Redis, skipping the test when none is
// running. Each test works under its own random user id and cleans up.
func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	client, err := database.NewRedisConnection(&config.RedisConfig{
		Host:        "localhost",
		Port:        "6379",
		DialTimeout: time.Second,
	})
	if err != nil {
		t.Skip("Redis not available, skipping integration test")
	}

	store := NewStore(client, time.Minute)
	userID := "test-user-" + uuid.New().String()

	t.Cleanup(func() {
		store.ClearSession(context.Background(), userID)
		client.Close()
	})

	return store, userID
}

func testDevice(connectionID string) models.Device {
	return models.Device{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Name:         "Test Device",
		Class:        models.DeviceClassWeb,
		ConnectedAt:  time.Now().Unix(),
	}
}

func TestAddAndListDevices(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	count, err := store.AddDevice(ctx, userID, testDevice("conn-1"))
	if err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	if count != 1 {
		t.Errorf("device count after first add = %d, want 1", count)
	}

	count, err = store.AddDevice(ctx, userID, testDevice("conn-2"))
	if err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	if count != 2 {
		t.Errorf("device count after second add = %d, want 2", count)
	}

	devices, err := store.ListDevices(ctx, userID)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 2 {
		t.Errorf("listed %d devices, want 2", len(devices))
	}
}

func TestListDevicesForUnknownUser(t *testing.T) {
	store, _ := newTestStore(t)

	devices, err := store.ListDevices(context.Background(), "never-seen-"+uuid.New().String())
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("unknown user has %d devices, want 0", len(devices))
	}
}

func TestRemoveDevice(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	device := testDevice("conn-1")
	if _, err := store.AddDevice(ctx, userID, device); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}

	removed, err := store.RemoveDevice(ctx, userID, "conn-1")
	if err != nil {
		t.Fatalf("RemoveDevice failed: %v", err)
	}
	if removed == nil || removed.ID != device.ID {
		t.Errorf("removed device = %+v, want id %s", removed, device.ID)
	}

	// Removing again is a no-op, not an error.
	removed, err = store.RemoveDevice(ctx, userID, "conn-1")
	if err != nil {
		t.Fatalf("second RemoveDevice failed: %v", err)
	}
	if removed != nil {
		t.Errorf("second removal returned %+v, want nil", removed)
	}
}

func TestActiveDevicePointer(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	activeID, err := store.GetActiveDevice(ctx, userID)
	if err != nil {
		t.Fatalf("GetActiveDevice failed: %v", err)
	}
	if activeID != "" {
		t.Errorf("fresh user has active device %q, want empty", activeID)
	}

	deviceID := uuid.New().String()
	if err := store.SetActiveDevice(ctx, userID, deviceID); err != nil {
		t.Fatalf("SetActiveDevice failed: %v", err)
	}

	activeID, err = store.GetActiveDevice(ctx, userID)
	if err != nil {
		t.Fatalf("GetActiveDevice failed: %v", err)
	}
	if activeID != deviceID {
		t.Errorf("active device = %q, want %q", activeID, deviceID)
	}
}

func TestPlaybackStateRoundTrip(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	// A user with no written state observes the default.
	state, err := store.GetPlaybackState(ctx, userID)
	if err != nil {
		t.Fatalf("GetPlaybackState failed: %v", err)
	}
	if state.Volume != models.DefaultVolume || state.CurrentSongID != "" {
		t.Errorf("fresh state = %+v, want default", state)
	}

	written := models.PlaybackState{
		CurrentSongID: "song-1",
		IsPlaying:     true,
		CurrentTime:   33.5,
		Volume:        70,
		Queue:         []string{"song-1", "song-2"},
	}
	if err := store.SetPlaybackState(ctx, userID, written); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	state, err = store.GetPlaybackState(ctx, userID)
	if err != nil {
		t.Fatalf("GetPlaybackState failed: %v", err)
	}
	if state.CurrentSongID != "song-1" || !state.IsPlaying || state.Volume != 70 || len(state.Queue) != 2 {
		t.Errorf("read back %+v, want the written state", state)
	}
	if state.LastUpdated == 0 {
		t.Error("stored state was not timestamped")
	}
}

func TestPlaybackStateLastWriterWins(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	first := models.PlaybackState{CurrentSongID: "song-1", Volume: 10}
	second := models.PlaybackState{CurrentSongID: "song-2", Volume: 90}

	if err := store.SetPlaybackState(ctx, userID, first); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	if err := store.SetPlaybackState(ctx, userID, second); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	state, err := store.GetPlaybackState(ctx, userID)
	if err != nil {
		t.Fatalf("GetPlaybackState failed: %v", err)
	}
	if state.CurrentSongID != "song-2" || state.Volume != 90 {
		t.Errorf("read back %+v, want the second write", state)
	}
}

func TestPlaybackStateStampStrictlyIncreases(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	if err := store.SetPlaybackState(ctx, userID, models.PlaybackState{CurrentSongID: "song-1"}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}
	first, err := store.GetPlaybackState(ctx, userID)
	if err != nil {
		t.Fatalf("GetPlaybackState failed: %v", err)
	}

	// A write carrying the same stamp, as two accepted writes within one
	// millisecond would.
	second := models.PlaybackState{CurrentSongID: "song-2", LastUpdated: first.LastUpdated}
	if err := store.SetPlaybackState(ctx, userID, second); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	got, err := store.GetPlaybackState(ctx, userID)
	if err != nil {
		t.Fatalf("GetPlaybackState failed: %v", err)
	}
	if got.LastUpdated <= first.LastUpdated {
		t.Errorf("stamp %d did not advance past %d", got.LastUpdated, first.LastUpdated)
	}
	if got.CurrentSongID != "song-2" {
		t.Errorf("read back song %q, want the second write", got.CurrentSongID)
	}
}

func TestClearSession(t *testing.T) {
	store, userID := newTestStore(t)
	ctx := context.Background()

	if _, err := store.AddDevice(ctx, userID, testDevice("conn-1")); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	if err := store.SetActiveDevice(ctx, userID, uuid.New().String()); err != nil {
		t.Fatalf("SetActiveDevice failed: %v", err)
	}
	if err := store.SetPlaybackState(ctx, userID, models.PlaybackState{CurrentSongID: "song-1"}); err != nil {
		t.Fatalf("SetPlaybackState failed: %v", err)
	}

	if err := store.ClearSession(ctx, userID); err != nil {
		t.Fatalf("ClearSession failed: %v", err)
	}

	devices, _ := store.ListDevices(ctx, userID)
	if len(devices) != 0 {
		t.Errorf("%d devices survived ClearSession", len(devices))
	}
	activeID, _ := store.GetActiveDevice(ctx, userID)
	if activeID != "" {
		t.Errorf("active pointer %q survived ClearSession", activeID)
	}
}
