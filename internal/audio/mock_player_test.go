package audio

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// 50ms of 44.1kHz mono
var shortClip = Clip{PCM: make([]byte, 4410), SampleRate: 44100, Channels: 1}

func TestMockPlayer_PlaysToCompletion(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()

	var played atomic.Int32
	player.callbacks.OnPlay = func(Clip) { played.Add(1) }

	start := time.Now()
	pb, err := player.Play(context.Background(), shortClip)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if !player.IsPlaying() {
		t.Error("player should be playing after Play()")
	}

	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("playback did not finish")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("playback finished after %v, expected about 50ms", elapsed)
	}
	if pb.Err() != nil {
		t.Errorf("unexpected playback error: %v", pb.Err())
	}
	if player.IsPlaying() {
		t.Error("player should not be playing after completion")
	}
	if played.Load() != 1 {
		t.Errorf("OnPlay called %d times, want 1", played.Load())
	}
	if m := player.GetMetrics(); m.PlayCount != 1 || m.StopCount != 0 {
		t.Errorf("metrics = %+v, want 1 play and 0 stops", m)
	}
}

func TestMockPlayer_Stop(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()
	player.SetAudioDuration(time.Hour)

	pb, err := player.Play(context.Background(), shortClip)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	pb.Stop()
	select {
	case <-pb.Done():
	default:
		t.Fatal("Done should be closed when Stop returns")
	}
	pb.Stop()

	if m := player.GetMetrics(); m.StopCount != 1 {
		t.Errorf("stop count = %d, want 1", m.StopCount)
	}
}

func TestMockPlayer_ContextCancelStops(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()
	player.SetAudioDuration(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	pb, err := player.Play(ctx, shortClip)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	cancel()

	select {
	case <-pb.Done():
	case <-time.After(time.Second):
		t.Fatal("cancelling the context did not stop playback")
	}
}

func TestMockPlayer_NewClipStopsPrevious(t *testing.T) {
	player := DefaultMockPlayer()
	defer player.Close()
	player.SetAudioDuration(time.Hour)

	first, _ := player.Play(context.Background(), shortClip)
	second, err := player.Play(context.Background(), shortClip)
	if err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	select {
	case <-first.Done():
	default:
		t.Error("starting a clip should stop the previous one")
	}
	select {
	case <-second.Done():
		t.Error("the new clip should still be playing")
	default:
	}
	if got := len(player.Played()); got != 2 {
		t.Errorf("played %d clips, want 2", got)
	}
}

func TestMockPlayer_FailOnAndClose(t *testing.T) {
	player := DefaultMockPlayer()
	player.SetDelayFactor(0.1)
	player.FailOn(2, ErrSimulated)

	if _, err := player.Play(context.Background(), shortClip); err != nil {
		t.Fatalf("first Play failed: %v", err)
	}
	if _, err := player.Play(context.Background(), shortClip); !errors.Is(err, ErrPlayback) {
		t.Errorf("second Play err = %v, want ErrPlayback", err)
	}

	closed := false
	player.callbacks.OnClose = func() { closed = true }
	if err := player.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !closed {
		t.Error("OnClose not called")
	}
	if _, err := player.Play(context.Background(), shortClip); !errors.Is(err, ErrClosed) {
		t.Errorf("Play after Close err = %v, want ErrClosed", err)
	}
}

func TestMockPlayer_Volume(t *testing.T) {
	player := DefaultMockPlayer()
	player.SetVolume(0.25)
	if player.GetVolume() != 0.25 {
		t.Errorf("volume = %v, want 0.25", player.GetVolume())
	}
}

func TestPlayerConfigValidation(t *testing.T) {
	tests := []struct {
		name      string
		config    PlayerConfig
		expectErr bool
	}{
		{"valid 44100Hz stereo", PlayerConfig{SampleRate: 44100, Channels: 2}, false},
		{"valid 48000Hz mono", PlayerConfig{SampleRate: 48000, Channels: 1}, false},
		{"invalid sample rate", PlayerConfig{SampleRate: 22050, Channels: 1}, true},
		{"invalid channels", PlayerConfig{SampleRate: 44100, Channels: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateConfig(tt.config)
			if (err != nil) != tt.expectErr {
				t.Errorf("validateConfig() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}
