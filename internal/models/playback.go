package models

import "time"

// DefaultVolume is the volume reported before any device has written state.
const DefaultVolume = 50

// PlaybackState is the single shared "now playing" record of a user.
// Writes are last-writer-wins; LastUpdated is stamped on every accepted
// write so a future implementation can add ordering checks.
type PlaybackState struct {
	CurrentSongID string   `json:"current_song_id"`
	IsPlaying     bool     `json:"is_playing"`
	CurrentTime   float64  `json:"current_time"`
	Volume        int      `json:"volume"`
	Queue         []string `json:"queue"`
	LastUpdated   int64    `json:"last_updated"` // unix milliseconds
}

// DefaultPlaybackState returns the state observed by a user who has never
// written any: nothing loaded, paused, zero position, default volume,
// empty queue.
func DefaultPlaybackState() PlaybackState {
	return PlaybackState{
		CurrentSongID: "",
		IsPlaying:     false,
		CurrentTime:   0,
		Volume:        DefaultVolume,
		Queue:         []string{},
	}
}

// Touch stamps LastUpdated with the current wall clock. The stamp is kept
// strictly increasing even when two writes land within the same millisecond.
func (s *PlaybackState) Touch() {
	now := time.Now().UnixMilli()
	if now <= s.LastUpdated {
		now = s.LastUpdated + 1
	}
	s.LastUpdated = now
}

// Normalize repairs fields a client snapshot may have left invalid.
func (s *PlaybackState) Normalize() {
	if s.Queue == nil {
		s.Queue = []string{}
	}
	if s.CurrentTime < 0 {
		s.CurrentTime = 0
	}
	if s.Volume < 0 {
		s.Volume = 0
	} else if s.Volume > 100 {
		s.Volume = 100
	}
}

func (s *PlaybackState) ApplyPlay() {
	s.IsPlaying = true
	s.Touch()
}

func (s *PlaybackState) ApplyPause() {
	s.IsPlaying = false
	s.Touch()
}

func (s *PlaybackState) ApplyVolume(volume int) {
	s.Volume = volume
	s.Touch()
}

func (s *PlaybackState) ApplyPlaySong(songID string, startTime float64) {
	s.CurrentSongID = songID
	s.CurrentTime = startTime
	s.IsPlaying = true
	s.Touch()
}

// ValidVolume reports whether v is inside the fixed 0-100 integer range.
func ValidVolume(v int) bool {
	return v >= 0 && v <= 100
}
