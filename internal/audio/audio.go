package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrPlayback reports that a clip could not be played.
	ErrPlayback = errors.New("playback failed")
	// ErrDeviceUnavailable reports that no audio output could be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrClosed is returned by a player that has been closed.
	ErrClosed = errors.New("player is closed")
)

// Clip is decoded audio: interleaved signed 16-bit little-endian PCM.
type Clip struct {
	PCM        []byte
	SampleRate int
	Channels   int
}

// frameSize is the number of bytes per sample frame.
func (c Clip) frameSize() int {
	return 2 * c.Channels
}

// Frames returns the number of sample frames in the clip.
func (c Clip) Frames() int {
	if c.Channels <= 0 {
		return 0
	}
	return len(c.PCM) / c.frameSize()
}

// Duration returns the clip's playing time.
func (c Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(c.Frames()) * time.Second / time.Duration(c.SampleRate)
}

// Player plays clips. Only one clip plays at a time; starting a new one
// stops the previous.
type Player interface {
	Play(ctx context.Context, clip Clip) (Playback, error)
	SetVolume(volume float64)
	Close() error
}

// Playback is a clip in progress. Done is closed when the clip finishes
// or is stopped.
type Playback interface {
	Done() <-chan struct{}
	Stop()
	Err() error
}
