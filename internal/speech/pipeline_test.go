package speech

import (
	"context"
	"encoding/binary"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/carlos-ai/carlos/internal/audio"
	"github.com/carlos-ai/carlos/internal/cache"
	"github.com/carlos-ai/carlos/internal/config"
	"github.com/carlos-ai/carlos/internal/service"
	"github.com/carlos-ai/carlos/internal/tts"
	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSynth returns a short WAV per sentence whose first sample identifies
// the sentence.
type fakeSynth struct {
	mu       sync.Mutex
	requests []tts.Request
	ids      map[string]int16
	texts    map[int16]string
	fail     map[string]error
	garbage  map[string]bool
	voices   []string

	// block, when set, runs before each request is answered.
	block func(ctx context.Context)
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		ids:     make(map[string]int16),
		texts:   make(map[int16]string),
		fail:    make(map[string]error),
		garbage: make(map[string]bool),
		voices:  []string{"female_01.wav", "female_02.wav", "male_01.wav"},
	}
}

func (s *fakeSynth) Synthesize(ctx context.Context, req tts.Request) ([]byte, error) {
	if s.block != nil {
		s.block(ctx)
	}
	if err := ctx.Err(); err != nil && s.block == nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if err := s.fail[req.Text]; err != nil {
		return nil, err
	}
	if s.garbage[req.Text] {
		return []byte("definitely not audio"), nil
	}
	id, ok := s.ids[req.Text]
	if !ok {
		id = int16(len(s.ids) + 1)
		s.ids[req.Text] = id
		s.texts[id] = req.Text
	}
	// 20ms of 8kHz mono
	pcm := make([]byte, 320)
	binary.LittleEndian.PutUint16(pcm, uint16(id))
	return audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: 8000, Channels: 1}), nil
}

func (s *fakeSynth) Voices(context.Context) ([]string, error) {
	return s.voices, nil
}

func (s *fakeSynth) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

func (s *fakeSynth) textOf(clip audio.Clip) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.texts[int16(binary.LittleEndian.Uint16(clip.PCM))]
}

func (s *fakeSynth) spoken(player *audio.MockPlayer) []string {
	var out []string
	for _, clip := range player.Played() {
		out = append(out, s.textOf(clip))
	}
	return out
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestPipeline(t *testing.T, modify func(*Options)) (*Pipeline, *fakeSynth, *audio.MockPlayer) {
	t.Helper()
	synth := newFakeSynth()
	player := audio.DefaultMockPlayer()
	opts := Options{
		Synthesizer: synth,
		Player:      player,
		Settings:    Settings{Voice: "female_01.wav", Language: "en", Speed: 1, Pitch: 1, Volume: 0.8},
		Lookahead:   1,
		Logger:      quietLogger(),
	}
	if modify != nil {
		modify(&opts)
	}
	p := New(opts)
	t.Cleanup(func() { _ = p.Close() })
	return p, synth, player
}

func wait(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Wait(ctx))
}

func TestSpeakPlaysSentencesInOrder(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)

	require.True(t, p.Speak("First sentence. **Second** one! Third?"))
	wait(t, p)

	assert.Equal(t, []string{"First sentence.", "Second one!", "Third?"}, synth.spoken(player))
	assert.Equal(t, StateIdle, p.State())

	stats := p.Stats()
	assert.EqualValues(t, 1, stats.Utterances)
	assert.EqualValues(t, 3, stats.Chunks)
	assert.Zero(t, stats.Failures)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	for _, req := range synth.requests {
		assert.Equal(t, "female_01.wav", req.Voice)
		assert.Equal(t, "en", req.Language)
	}
}

func TestSpeakDegradedCases(t *testing.T) {
	t.Run("muted", func(t *testing.T) {
		p, synth, _ := newTestPipeline(t, func(o *Options) { o.Muted = true })
		assert.True(t, p.Speak("Hello there."))
		assert.True(t, p.Muted())
		assert.Zero(t, synth.calls())
	})

	t.Run("nothing to say", func(t *testing.T) {
		p, synth, _ := newTestPipeline(t, nil)
		assert.True(t, p.Speak("```\nls -la\n```"))
		assert.Zero(t, synth.calls())
	})

	t.Run("no audio device", func(t *testing.T) {
		p, synth, _ := newTestPipeline(t, func(o *Options) { o.Player = nil })
		assert.False(t, p.Speak("Hello there."))
		assert.Zero(t, synth.calls())
	})

	t.Run("server unreachable", func(t *testing.T) {
		p, synth, _ := newTestPipeline(t, func(o *Options) {
			o.Available = func(context.Context) bool { return false }
		})
		assert.False(t, p.Speak("Hello there."))
		assert.Zero(t, synth.calls())
	})
}

func TestMuteAffectsNextSpeak(t *testing.T) {
	p, synth, _ := newTestPipeline(t, nil)

	p.Mute()
	assert.True(t, p.Speak("Quiet."))
	assert.Zero(t, synth.calls())

	p.Unmute()
	assert.True(t, p.Speak("Loud."))
	wait(t, p)
	assert.Equal(t, 1, synth.calls())
}

func TestStopDiscardsQueuedSentences(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	player.SetAudioDuration(time.Hour)

	require.True(t, p.Speak("One. Two. Three. Four."))
	require.Eventually(t, player.IsPlaying, time.Second, 5*time.Millisecond)
	assert.Equal(t, StatePlaying, p.State())

	p.Stop()
	assert.Equal(t, StateIdle, p.State())
	assert.False(t, player.IsPlaying())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"One."}, synth.spoken(player))

	// idempotent
	p.Stop()
	p.Stop()
}

func TestStopDuringSynthesis(t *testing.T) {
	tests := []struct {
		name string
		// honorsContext is false for a server call that answers after
		// being abandoned.
		honorsContext bool
	}{
		{"call aborted by cancellation", true},
		{"call answers late", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, synth, player := newTestPipeline(t, nil)

			started := make(chan struct{}, 1)
			release := make(chan struct{})
			synth.block = func(ctx context.Context) {
				select {
				case started <- struct{}{}:
				default:
				}
				if tt.honorsContext {
					<-ctx.Done()
					return
				}
				<-release
			}

			require.True(t, p.Speak("Slow to render. Never heard."))
			select {
			case <-started:
			case <-time.After(time.Second):
				t.Fatal("synthesis never started")
			}
			assert.Equal(t, StateSynthesizing, p.State())

			stopped := make(chan struct{})
			go func() {
				p.Stop()
				close(stopped)
			}()
			select {
			case <-stopped:
			case <-time.After(time.Second):
				t.Fatal("Stop waited for the outstanding synthesis call")
			}
			assert.Equal(t, StateIdle, p.State())

			// let the abandoned call finish; its audio must not play
			close(release)
			time.Sleep(50 * time.Millisecond)
			assert.Empty(t, player.Played())
			assert.Equal(t, StateIdle, p.State())
			assert.Zero(t, p.Stats().Chunks)
		})
	}
}

func TestSpeakAfterAbandonedSynthesis(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)

	release := make(chan struct{})
	var first sync.Once
	synth.block = func(context.Context) {
		first.Do(func() { <-release })
	}

	require.True(t, p.Speak("Stuck sentence."))
	require.Eventually(t, func() bool { return p.State() == StateSynthesizing }, time.Second, 5*time.Millisecond)
	p.Stop()

	require.True(t, p.Speak("Fresh one. And another."))
	close(release)
	wait(t, p)

	assert.Equal(t, []string{"Fresh one.", "And another."}, synth.spoken(player))
}

func TestStopWhenIdle(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	p.Stop()
	assert.Equal(t, StateIdle, p.State())
	assert.NoError(t, p.Wait(context.Background()))
}

func TestSpeakInterruptsPreviousSpeech(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	player.SetAudioDuration(time.Hour)

	require.True(t, p.Speak("Alpha. Beta. Gamma."))
	require.Eventually(t, player.IsPlaying, time.Second, 5*time.Millisecond)

	require.True(t, p.Speak("Delta."))
	require.Eventually(t, func() bool { return len(player.Played()) == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	assert.Equal(t, []string{"Alpha.", "Delta."}, synth.spoken(player))
}

func TestNextSentenceSynthesizedDuringPlayback(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	player.SetAudioDuration(time.Hour)

	require.True(t, p.Speak("One. Two. Three. Four. Five."))
	require.Eventually(t, func() bool { return synth.calls() >= 2 }, time.Second, 5*time.Millisecond)

	// one playing, one waiting, one blocked on the full lookahead buffer
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, synth.calls(), 3)
	assert.Len(t, player.Played(), 1)
	p.Stop()
}

func TestCacheAvoidsResynthesis(t *testing.T) {
	c, err := cache.Open(config.CacheConfig{Enabled: true, Memory: 1 << 20}, quietLogger())
	require.NoError(t, err)

	p, synth, player := newTestPipeline(t, func(o *Options) { o.Cache = c })

	require.True(t, p.Speak("Same words."))
	wait(t, p)
	require.True(t, p.Speak("Same words."))
	wait(t, p)

	assert.Equal(t, 1, synth.calls())
	assert.Len(t, player.Played(), 2)
	assert.EqualValues(t, 1, p.Stats().CacheHits)
}

func TestUnavailableServerEndsUtterance(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	synth.fail["Two."] = service.Unavailable(service.NameTTS, "connection refused", nil)

	require.True(t, p.Speak("One. Two. Three."))
	wait(t, p)

	assert.Equal(t, []string{"One."}, synth.spoken(player))
	assert.Equal(t, 2, synth.calls())
	assert.EqualValues(t, 1, p.Stats().Failures)
	assert.Equal(t, StateIdle, p.State())
}

func TestUndecodableSentenceIsSkipped(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	synth.garbage["Two."] = true

	require.True(t, p.Speak("One. Two. Three."))
	wait(t, p)

	assert.Equal(t, []string{"One.", "Three."}, synth.spoken(player))
	assert.EqualValues(t, 1, p.Stats().Failures)
}

func TestPlaybackFailureEndsUtterance(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	player.FailOn(1, audio.ErrSimulated)

	require.True(t, p.Speak("One. Two."))
	wait(t, p)

	assert.Empty(t, synth.spoken(player))
	assert.EqualValues(t, 1, p.Stats().Failures)
}

func TestSetVoice(t *testing.T) {
	p, _, _ := newTestPipeline(t, nil)
	ctx := context.Background()

	require.NoError(t, p.SetVoice(ctx, "  MALE_01.WAV "))
	assert.Equal(t, "male_01.wav", p.Voice())

	err := p.SetVoice(ctx, "femal")
	require.ErrorIs(t, err, ErrInvalidVoice)
	var invalid *InvalidVoiceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "femal", invalid.Name)
	assert.Contains(t, invalid.Suggestions, "female_01.wav")
	assert.Contains(t, err.Error(), "did you mean")
	assert.Equal(t, "male_01.wav", p.Voice(), "failed SetVoice must keep the previous voice")

	err = p.SetVoice(ctx, "zzz")
	require.ErrorIs(t, err, ErrInvalidVoice)
	assert.NotContains(t, err.Error(), "did you mean")
}

func TestVoicesWithoutSynthesizer(t *testing.T) {
	p, _, _ := newTestPipeline(t, func(o *Options) { o.Synthesizer = nil })
	_, err := p.Voices(context.Background())
	assert.ErrorIs(t, err, service.ErrUnavailable)
}

func TestSetSettings(t *testing.T) {
	p, synth, player := newTestPipeline(t, nil)
	assert.InDelta(t, 0.8, player.GetVolume(), 1e-9)

	p.SetSettings(1.25, 0.9, 0.5)
	assert.InDelta(t, 0.5, player.GetVolume(), 1e-9)

	require.True(t, p.Speak("Faster now."))
	wait(t, p)

	synth.mu.Lock()
	defer synth.mu.Unlock()
	require.Len(t, synth.requests, 1)
	assert.Equal(t, 1.25, synth.requests[0].Speed)
	assert.Equal(t, 0.9, synth.requests[0].Pitch)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "synthesizing", StateSynthesizing.String())
	assert.Equal(t, "playing", StatePlaying.String())
	assert.Equal(t, "cancelled", StateCancelled.String())
	assert.Equal(t, "unknown", State(42).String())
}
