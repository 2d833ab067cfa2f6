package audio

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// pollInterval is how often a playing clip is checked for completion.
const pollInterval = 20 * time.Millisecond

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate int // 44100 or 48000 Hz only
	Channels   int // 1 = mono, 2 = stereo
	BufferSize time.Duration
}

// DefaultPlayerConfig returns the default player configuration.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate: 44100,
		Channels:   2,
		BufferSize: 100 * time.Millisecond,
	}
}

func validateConfig(config PlayerConfig) error {
	// oto only supports these rates reliably
	if config.SampleRate != 44100 && config.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	return nil
}

// OtoPlayer plays clips on the default output device. oto allows a single
// context per process, so create at most one OtoPlayer.
type OtoPlayer struct {
	context    *oto.Context
	sampleRate int
	channels   int

	volume atomic.Uint64 // float64 bits

	mu      sync.Mutex
	current *otoPlayback
	closed  bool
}

// NewPlayer opens the audio device. The error wraps ErrDeviceUnavailable
// when no device can be opened.
func NewPlayer(config PlayerConfig) (*OtoPlayer, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	<-ready

	p := &OtoPlayer{
		context:    ctx,
		sampleRate: config.SampleRate,
		channels:   config.Channels,
	}
	p.volume.Store(math.Float64bits(1.0))
	return p, nil
}

// Play starts clip and returns immediately. Any clip already playing is
// stopped first. Cancelling ctx stops playback.
func (p *OtoPlayer) Play(ctx context.Context, clip Clip) (Playback, error) {
	clip, err := Convert(clip, p.sampleRate, p.channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPlayback, err)
	}
	if len(clip.PCM) == 0 {
		return nil, fmt.Errorf("%w: clip is empty", ErrPlayback)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}

	player := p.context.NewPlayer(bytes.NewReader(clip.PCM))
	player.SetVolume(p.getVolume())

	pb := &otoPlayback{
		player: player,
		data:   clip.PCM,
		done:   make(chan struct{}),
	}
	player.Play()
	p.current = pb

	go pb.watch(ctx)
	return pb, nil
}

// SetVolume sets the volume (0.0 to 1.0) of the current and later clips.
func (p *OtoPlayer) SetVolume(volume float64) {
	volume = math.Max(0, math.Min(1, volume))
	p.volume.Store(math.Float64bits(volume))

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.setVolume(volume)
	}
}

func (p *OtoPlayer) getVolume() float64 {
	return math.Float64frombits(p.volume.Load())
}

// Close stops playback. The device itself is released when the process
// exits since oto contexts cannot be closed.
func (p *OtoPlayer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current != nil {
		p.current.Stop()
		p.current = nil
	}
	p.closed = true
	return nil
}

type otoPlayback struct {
	mu     sync.Mutex
	player *oto.Player
	data   []byte // keep the samples referenced until playback ends
	err    error

	done chan struct{}
	once sync.Once
}

func (pb *otoPlayback) watch(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.done:
			return
		case <-ctx.Done():
			pb.Stop()
			return
		case <-ticker.C:
			pb.mu.Lock()
			player := pb.player
			pb.mu.Unlock()
			if player == nil {
				return
			}
			if !player.IsPlaying() {
				var err error
				if perr := player.Err(); perr != nil {
					err = fmt.Errorf("%w: %w", ErrPlayback, perr)
				}
				pb.finish(err)
				return
			}
		}
	}
}

// Stop halts the clip. Done is closed before Stop returns.
func (pb *otoPlayback) Stop() {
	pb.finish(nil)
}

func (pb *otoPlayback) finish(err error) {
	pb.once.Do(func() {
		pb.mu.Lock()
		if pb.player != nil {
			pb.player.Pause()
			_ = pb.player.Close()
			pb.player = nil
		}
		pb.data = nil
		pb.err = err
		pb.mu.Unlock()
		close(pb.done)
	})
}

func (pb *otoPlayback) setVolume(v float64) {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	if pb.player != nil {
		pb.player.SetVolume(v)
	}
}

func (pb *otoPlayback) Done() <-chan struct{} {
	return pb.done
}

func (pb *otoPlayback) Err() error {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	return pb.err
}

var (
	_ Player   = (*OtoPlayer)(nil)
	_ Playback = (*otoPlayback)(nil)
)
