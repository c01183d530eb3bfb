package models

import (
	"testing"
	"time"
)

func TestDefaultPlaybackState(t *testing.T) {
	state := DefaultPlaybackState()

	if state.CurrentSongID != "" {
		t.Errorf("default song id = %q, want empty", state.CurrentSongID)
	}
	if state.IsPlaying {
		t.Error("default state is playing")
	}
	if state.Volume != DefaultVolume {
		t.Errorf("default volume = %d, want %d", state.Volume, DefaultVolume)
	}
	if state.Queue == nil || len(state.Queue) != 0 {
		t.Errorf("default queue = %v, want empty slice", state.Queue)
	}
}

func TestTouch(t *testing.T) {
	t.Run("stamps the current time", func(t *testing.T) {
		var state PlaybackState
		before := time.Now().UnixMilli()
		state.Touch()
		if state.LastUpdated < before {
			t.Errorf("LastUpdated = %d, want >= %d", state.LastUpdated, before)
		}
	})

	t.Run("stays strictly increasing under rapid writes", func(t *testing.T) {
		var state PlaybackState
		previous := int64(0)
		for i := 0; i < 1000; i++ {
			state.Touch()
			if state.LastUpdated <= previous {
				t.Fatalf("LastUpdated %d did not advance past %d", state.LastUpdated, previous)
			}
			previous = state.LastUpdated
		}
	})

	t.Run("advances past a future stamp", func(t *testing.T) {
		state := PlaybackState{LastUpdated: time.Now().UnixMilli() + 10000}
		want := state.LastUpdated + 1
		state.Touch()
		if state.LastUpdated != want {
			t.Errorf("LastUpdated = %d, want %d", state.LastUpdated, want)
		}
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		in    PlaybackState
		check func(t *testing.T, s PlaybackState)
	}{
		{
			name: "nil queue becomes empty slice",
			in:   PlaybackState{},
			check: func(t *testing.T, s PlaybackState) {
				if s.Queue == nil {
					t.Error("queue is still nil")
				}
			},
		},
		{
			name: "negative position clamps to zero",
			in:   PlaybackState{CurrentTime: -12.5},
			check: func(t *testing.T, s PlaybackState) {
				if s.CurrentTime != 0 {
					t.Errorf("CurrentTime = %v, want 0", s.CurrentTime)
				}
			},
		},
		{
			name: "volume clamps to the upper bound",
			in:   PlaybackState{Volume: 300},
			check: func(t *testing.T, s PlaybackState) {
				if s.Volume != 100 {
					t.Errorf("Volume = %d, want 100", s.Volume)
				}
			},
		},
		{
			name: "volume clamps to the lower bound",
			in:   PlaybackState{Volume: -5},
			check: func(t *testing.T, s PlaybackState) {
				if s.Volume != 0 {
					t.Errorf("Volume = %d, want 0", s.Volume)
				}
			},
		},
		{
			name: "valid fields are untouched",
			in:   PlaybackState{CurrentSongID: "song-1", CurrentTime: 42, Volume: 70, Queue: []string{"song-1"}},
			check: func(t *testing.T, s PlaybackState) {
				if s.CurrentSongID != "song-1" || s.CurrentTime != 42 || s.Volume != 70 || len(s.Queue) != 1 {
					t.Errorf("state mutated: %+v", s)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := tt.in
			state.Normalize()
			tt.check(t, state)
		})
	}
}

func TestApplyHelpers(t *testing.T) {
	t.Run("play and pause toggle IsPlaying", func(t *testing.T) {
		state := DefaultPlaybackState()
		state.ApplyPlay()
		if !state.IsPlaying {
			t.Error("ApplyPlay did not set IsPlaying")
		}
		state.ApplyPause()
		if state.IsPlaying {
			t.Error("ApplyPause did not clear IsPlaying")
		}
	})

	t.Run("volume change keeps the rest of the state", func(t *testing.T) {
		state := PlaybackState{CurrentSongID: "song-1", IsPlaying: true, CurrentTime: 30}
		state.ApplyVolume(80)
		if state.Volume != 80 {
			t.Errorf("Volume = %d, want 80", state.Volume)
		}
		if state.CurrentSongID != "song-1" || !state.IsPlaying || state.CurrentTime != 30 {
			t.Errorf("unrelated fields changed: %+v", state)
		}
	})

	t.Run("play song loads and starts", func(t *testing.T) {
		state := DefaultPlaybackState()
		state.ApplyPlaySong("song-9", 15)
		if state.CurrentSongID != "song-9" || state.CurrentTime != 15 || !state.IsPlaying {
			t.Errorf("unexpected state after ApplyPlaySong: %+v", state)
		}
	})

	t.Run("every apply stamps LastUpdated", func(t *testing.T) {
		state := DefaultPlaybackState()
		state.ApplyPlay()
		first := state.LastUpdated
		state.ApplyVolume(10)
		if state.LastUpdated <= first {
			t.Error("ApplyVolume did not advance LastUpdated")
		}
	})
}

func TestValidVolume(t *testing.T) {
	for _, v := range []int{0, 1, 50, 100} {
		if !ValidVolume(v) {
			t.Errorf("ValidVolume(%d) = false, want true", v)
		}
	}
	for _, v := range []int{-1, 101, 1000} {
		if ValidVolume(v) {
			t.Errorf("ValidVolume(%d) = true, want false", v)
		}
	}
}

func TestDeviceClass(t *testing.T) {
	for _, c := range []DeviceClass{DeviceClassWeb, DeviceClassMobile, DeviceClassDesktop} {
		if !c.IsValid() {
			t.Errorf("%q should be a valid device class", c)
		}
	}
	for _, c := range []DeviceClass{"", "tv", "Web"} {
		if c.IsValid() {
			t.Errorf("%q should not be a valid device class", c)
		}
	}
}
