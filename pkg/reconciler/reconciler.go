// Package reconciler implements the client-side contract of the playback
// synchronization protocol: it applies remote pushes to a local audio
// engine, suppresses echo of changes those pushes caused, and publishes
// local actions when this device is the active one.
package reconciler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"playsync-service/internal/models"
)

// DefaultSettleDelay is how long engine callbacks are ignored after a
// remote update has been applied, long enough for the engine's own event
// cascade to finish.
const DefaultSettleDelay = 100 * time.Millisecond

// AudioEngine is the local playback surface the reconciler drives. Only
// the active device's engine is ever driven.
type AudioEngine interface {
	Load(songID string, startTime float64)
	Play()
	Pause()
	Stop()
	SetVolume(volume int)
}

// Publisher sends this device's state snapshots to the server.
type Publisher interface {
	SyncPlaybackState(state models.PlaybackState) error
}

// Fetcher performs the catch-up reads issued right after registration.
type Fetcher interface {
	GetConnectedDevices(ctx context.Context) (devices []models.Device, activeDeviceID string, err error)
	GetPlaybackState(ctx context.Context) (models.PlaybackState, error)
}

// EngineEventType enumerates the callbacks a local audio engine emits.
type EngineEventType string

const (
	EngineEventPlay     EngineEventType = "play"
	EngineEventPause    EngineEventType = "pause"
	EngineEventProgress EngineEventType = "progress"
	EngineEventEnded    EngineEventType = "ended"
)

// EngineEvent is one locally observed audio engine callback.
type EngineEvent struct {
	Type     EngineEventType
	Position float64
}

// Reconciler keeps one device's local engine and UI mirror consistent with
// the shared session state.
type Reconciler struct {
	deviceID    string
	engine      AudioEngine
	publisher   Publisher
	fetcher     Fetcher
	settleDelay time.Duration

	mu             sync.Mutex
	ready          bool
	syncing        bool
	settleTimer    *time.Timer
	activeDeviceID string
	state          models.PlaybackState
}

type Option func(*Reconciler)

// WithSettleDelay overrides the guard settle delay, mainly for tests.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Reconciler) {
		r.settleDelay = d
	}
}

func New(deviceID string, engine AudioEngine, publisher Publisher, fetcher Fetcher, opts ...Option) *Reconciler {
	r := &Reconciler{
		deviceID:    deviceID,
		engine:      engine,
		publisher:   publisher,
		fetcher:     fetcher,
		settleDelay: DefaultSettleDelay,
		state:       models.DefaultPlaybackState(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start reconciles with the existing server state before any local command
// is accepted: first the device list, then the playback state, in that
// order, so a late-joining device observes what it missed.
func (r *Reconciler) Start(ctx context.Context) error {
	_, activeID, err := r.fetcher.GetConnectedDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch connected devices: %w", err)
	}

	state, err := r.fetcher.GetPlaybackState(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch playback state: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.activeDeviceID = activeID
	r.state = state
	r.ready = true

	if r.isActiveLocked() {
		r.applyStateToEngineLocked(state)
	}
	return nil
}

// IsActive reports whether this device is the current active device.
func (r *Reconciler) IsActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isActiveLocked()
}

// State returns the UI-visible playback mirror. It is kept up to date on
// every device, active or not.
func (r *Reconciler) State() models.PlaybackState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Reconciler) isActiveLocked() bool {
	return r.activeDeviceID != "" && r.activeDeviceID == r.deviceID
}

// beginSyncLocked raises the syncing guard and schedules its release after
// the settle delay. While the guard is up, engine callbacks are not
// re-published, which is what breaks the update loop between devices.
func (r *Reconciler) beginSyncLocked() {
	r.syncing = true
	if r.settleTimer != nil {
		r.settleTimer.Stop()
	}
	r.settleTimer = time.AfterFunc(r.settleDelay, func() {
		r.mu.Lock()
		r.syncing = false
		r.mu.Unlock()
	})
}

// HandleActiveDeviceChanged processes a device.active_changed push. A
// device that just lost the active role stops local audio immediately.
func (r *Reconciler) HandleActiveDeviceChanged(activeDeviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	wasActive := r.isActiveLocked()
	r.activeDeviceID = activeDeviceID

	if wasActive && !r.isActiveLocked() {
		r.beginSyncLocked()
		r.engine.Stop()
		r.state.IsPlaying = false
	}
}

// HandleStateUpdate processes a playback.state push from another device.
func (r *Reconciler) HandleStateUpdate(state models.PlaybackState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.beginSyncLocked()
	previous := r.state
	r.state = state

	if !r.isActiveLocked() {
		// UI mirror only; local audio stays silent on non-active devices.
		return
	}

	if state.CurrentSongID != previous.CurrentSongID {
		r.applyStateToEngineLocked(state)
		return
	}
	if state.Volume != previous.Volume {
		r.engine.SetVolume(state.Volume)
	}
	if state.IsPlaying != previous.IsPlaying {
		if state.IsPlaying {
			r.engine.Play()
		} else {
			r.engine.Pause()
		}
	}
}

func (r *Reconciler) applyStateToEngineLocked(state models.PlaybackState) {
	if state.CurrentSongID == "" {
		r.engine.Stop()
		return
	}
	r.engine.Load(state.CurrentSongID, state.CurrentTime)
	r.engine.SetVolume(state.Volume)
	if state.IsPlaying {
		r.engine.Play()
	} else {
		r.engine.Pause()
	}
}

// HandlePlay processes a mirrored playback.play push.
func (r *Reconciler) HandlePlay() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.beginSyncLocked()
	r.state.IsPlaying = true
	if r.isActiveLocked() {
		r.engine.Play()
	}
}

// HandlePause processes a mirrored playback.pause push.
func (r *Reconciler) HandlePause() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.beginSyncLocked()
	r.state.IsPlaying = false
	if r.isActiveLocked() {
		r.engine.Pause()
	}
}

// HandleSetVolume processes a mirrored playback.volume push.
func (r *Reconciler) HandleSetVolume(volume int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.beginSyncLocked()
	r.state.Volume = volume
	if r.isActiveLocked() {
		r.engine.SetVolume(volume)
	}
}

// HandlePlaySong processes a mirrored playback.play_song push.
func (r *Reconciler) HandlePlaySong(songID string, startTime float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.beginSyncLocked()
	r.state.CurrentSongID = songID
	r.state.CurrentTime = startTime
	r.state.IsPlaying = true
	if r.isActiveLocked() {
		r.engine.Load(songID, startTime)
		r.engine.Play()
	}
}

// HandleNext advances the queue. The advance happens here, on the client,
// because the concrete song list lives with the client-held playlist
// context; the resulting state is then published as a snapshot.
func (r *Reconciler) HandleNext() {
	r.advanceQueue(1)
}

// HandlePrevious steps the queue backwards.
func (r *Reconciler) HandlePrevious() {
	r.advanceQueue(-1)
}

func (r *Reconciler) advanceQueue(direction int) {
	r.mu.Lock()

	if !r.isActiveLocked() {
		r.mu.Unlock()
		return
	}

	idx := -1
	for i, songID := range r.state.Queue {
		if songID == r.state.CurrentSongID {
			idx = i
			break
		}
	}
	next := idx + direction
	if next < 0 || next >= len(r.state.Queue) {
		r.mu.Unlock()
		return
	}

	r.state.CurrentSongID = r.state.Queue[next]
	r.state.CurrentTime = 0
	r.state.IsPlaying = true
	r.engine.Load(r.state.CurrentSongID, 0)
	r.engine.Play()

	snapshot := r.state
	r.mu.Unlock()

	// The queue advance is this device's own action, so it is published
	// regardless of the syncing guard.
	r.publisher.SyncPlaybackState(snapshot)
}

// OnEngineEvent receives callbacks from the local audio engine. Events are
// re-published as outgoing sync calls only when this device is active and
// the syncing guard is down.
func (r *Reconciler) OnEngineEvent(event EngineEvent) {
	r.mu.Lock()

	if !r.ready || r.syncing || !r.isActiveLocked() {
		r.mu.Unlock()
		return
	}

	switch event.Type {
	case EngineEventPlay:
		r.state.IsPlaying = true
		r.state.CurrentTime = event.Position
	case EngineEventPause:
		r.state.IsPlaying = false
		r.state.CurrentTime = event.Position
	case EngineEventProgress:
		r.state.CurrentTime = event.Position
	case EngineEventEnded:
		r.mu.Unlock()
		r.advanceQueue(1)
		return
	default:
		r.mu.Unlock()
		return
	}

	r.state.Touch()
	snapshot := r.state
	r.mu.Unlock()

	r.publisher.SyncPlaybackState(snapshot)
}
