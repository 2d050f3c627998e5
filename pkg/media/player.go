// Package media plays audio files for the snippet's playback RPCs.
package media

import (
	"context"
	"errors"
)

var (
	ErrNotPlaying        = errors.New("media: nothing is playing")
	ErrUnsupportedScheme = errors.New("media: unsupported uri scheme")
)

//go:generate mockgen -destination=../../mocks/media.go -package=mocks -mock_names=Player=MediaPlayer . Player

// Player plays one media item at a time.
type Player interface {
	// Play stops any current playback and starts playing uri. ctx bounds the preparation of the
	// media (e.g. downloading it), not the playback itself.
	Play(ctx context.Context, uri string) error
	// Pause suspends playback. It fails with ErrNotPlaying if nothing is playing.
	Pause() error
	// Stop ends playback and releases the player. Stopping an idle player is not an error.
	Stop() error
}

type State int

const (
	StateIdle State = iota
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	}
	return "idle"
}
